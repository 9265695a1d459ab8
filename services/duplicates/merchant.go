package duplicates

import (
	"regexp"
	"strings"
)

// Corporate suffixes stripped during merchant normalization.
var merchantSuffixes = []string{
	"inc", "incorporated", "llc", "ltd", "limited", "corp", "corporation",
	"co", "company", "gmbh", "ag", "sa", "srl", "bv", "plc", "llp",
}

var (
	parentheticalRegex = regexp.MustCompile(`\([^)]*\)`)
	punctuationRegex   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
)

// normalizeMerchant lowers the name and strips parentheticals, punctuation
// and corporate suffixes: "Starbucks Inc." and "starbucks" normalize to
// the same string.
func normalizeMerchant(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = parentheticalRegex.ReplaceAllString(s, " ")
	s = punctuationRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	words := strings.Fields(s)
	for len(words) > 1 && isMerchantSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isMerchantSuffix(word string) bool {
	for _, suffix := range merchantSuffixes {
		if word == suffix {
			return true
		}
	}
	return false
}

// merchantsSimilar reports whether two merchant names plausibly refer to
// the same merchant: equal after normalization, one containing the other,
// or sharing a sufficiently long first word.
func merchantsSimilar(a, b string) bool {
	na, nb := normalizeMerchant(a), normalizeMerchant(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	fa, fb := firstWord(na), firstWord(nb)
	return fa == fb && len(fa) >= 3
}

func firstWord(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}
