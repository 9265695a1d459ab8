package parser

import (
	"regexp"
	"strings"
)

// Forwarding markers in subjects: standard prefixes plus localized
// variants and the literal word.
var forwardedSubjectRegex = regexp.MustCompile(`(?i)^\s*(fwd?|tr|wg|vs|rv)\s*:`)

// Boundary lines that introduce the forwarded original inside the body.
var forwardBoundaryMarkers = []string{
	"---------- forwarded message ---------",
	"begin forwarded message",
	"original message",
	"-----original message-----",
	"ursprüngliche nachricht",
	"message d'origine",
	"mensaje original",
	"wiadomość przekazana",
}

// Ordered "From:" label patterns applied to the text after the boundary.
// First match wins.
var forwardedFromRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*\*?from\*?\s*:\s*(.+?)\s*$`),
	regexp.MustCompile(`(?im)^\s*\*?von\*?\s*:\s*(.+?)\s*$`),
	regexp.MustCompile(`(?im)^\s*\*?de\*?\s*:\s*(.+?)\s*$`),
	regexp.MustCompile(`(?im)^\s*发件人[:：]\s*(.+?)\s*$`),
}

func isForwardedSubject(subject string) bool {
	if forwardedSubjectRegex.MatchString(subject) {
		return true
	}
	return strings.Contains(strings.ToLower(subject), "forwarded")
}

// extractForwardedSender recovers the original sender of a forwarded
// message from the body text. Best-effort: a miss returns ok=false and the
// caller keeps the envelope sender.
func extractForwardedSender(subject, bodyText, bodyHTML string) (string, bool) {
	if !isForwardedSubject(subject) {
		return "", false
	}

	for _, body := range []string{bodyText, bodyHTML} {
		if body == "" {
			continue
		}
		if sender, ok := senderAfterBoundary(body); ok {
			return sender, true
		}
	}
	return "", false
}

func senderAfterBoundary(body string) (string, bool) {
	lower := strings.ToLower(body)

	earliest, markerLen := -1, 0
	for _, marker := range forwardBoundaryMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 && (earliest == -1 || idx < earliest) {
			earliest = idx
			markerLen = len(marker)
		}
	}
	if earliest < 0 {
		return "", false
	}

	tail := body[earliest+markerLen:]
	for _, re := range forwardedFromRegexes {
		if m := re.FindStringSubmatch(tail); m != nil {
			sender := strings.TrimSpace(m[1])
			sender = strings.Trim(sender, "*_ \t")
			if sender != "" {
				return sender, true
			}
		}
	}
	return "", false
}
