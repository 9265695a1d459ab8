package parser

import (
	"encoding/base64"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/internal/errs"
)

// ParsedMessage is the provider-independent result of decomposing one raw
// message.
type ParsedMessage struct {
	Subject string
	// From is the envelope sender; EffectiveFrom is the rewritten sender
	// when the message is a recognized forward, otherwise equal to From.
	From          string
	EffectiveFrom string
	To            []string
	Cc            []string

	BodyText   string
	BodyHTML   string
	SearchText string

	Attachments     []ParsedAttachment
	HasInlineImages bool
}

// ParsedAttachment describes one attachment or inline image part. Data is
// populated when the part carried its payload inline; otherwise the
// provider attachment id must be fetched separately.
type ParsedAttachment struct {
	ProviderAttachmentID string
	Filename             string
	ContentType          string
	ContentID            string
	Size                 int
	IsInline             bool
	Data                 []byte
}

type walkState struct {
	bodyText     string
	bodyHTML     string
	attachments  []ParsedAttachment
	embeddedFrom string
}

// Parse decomposes the provider message part tree. It is a pure function:
// no I/O, no provider calls.
func Parse(msg *dto.ProviderMessage) (*ParsedMessage, error) {
	if msg == nil || msg.Payload == nil {
		return nil, &errs.ParseError{MessageID: messageID(msg), Err: errors.New("message has no payload")}
	}

	state := &walkState{}
	if err := walkPart(msg.Payload, state); err != nil {
		return nil, &errs.ParseError{MessageID: msg.ID, Err: err}
	}

	parsed := &ParsedMessage{
		Subject:     msg.Payload.Header("Subject"),
		From:        msg.Payload.Header("From"),
		To:          splitAddressList(msg.Payload.Header("To")),
		Cc:          splitAddressList(msg.Payload.Header("Cc")),
		BodyText:    state.bodyText,
		BodyHTML:    state.bodyHTML,
		Attachments: state.attachments,
	}
	parsed.EffectiveFrom = parsed.From

	for _, a := range parsed.Attachments {
		if a.IsInline && strings.HasPrefix(a.ContentType, "image/") {
			parsed.HasInlineImages = true
			break
		}
	}

	// Best-effort forwarded-sender recovery; a miss falls back to the
	// envelope header.
	if sender, ok := extractForwardedSender(parsed.Subject, parsed.BodyText, parsed.BodyHTML); ok {
		parsed.EffectiveFrom = sender
	} else if state.embeddedFrom != "" && isForwardedSubject(parsed.Subject) {
		parsed.EffectiveFrom = state.embeddedFrom
	}

	parsed.SearchText = buildSearchText(parsed.Subject, parsed.EffectiveFrom, parsed.BodyText, parsed.BodyHTML)

	return parsed, nil
}

func walkPart(part *dto.MessagePart, state *walkState) error {
	if part == nil {
		return nil
	}
	if part.MimeType == "" && len(part.Parts) == 0 {
		return errors.New("part has no mime type")
	}

	switch {
	// Checked before the multipart branch: providers that expand the
	// embedded message into child parts would otherwise shadow it.
	case part.MimeType == "message/rfc822":
		handleEmbeddedMessage(part, state)

	case strings.HasPrefix(part.MimeType, "multipart/") || len(part.Parts) > 0:
		for _, child := range part.Parts {
			if err := walkPart(child, state); err != nil {
				return err
			}
		}

	case part.MimeType == "text/plain" && part.Filename == "":
		// First plain-text part wins.
		if state.bodyText == "" {
			text, err := decodePartText(part)
			if err != nil {
				return err
			}
			state.bodyText = text
		}

	case part.MimeType == "text/html" && part.Filename == "":
		// Last HTML part wins: prefer the final rendered alternative.
		html, err := decodePartText(part)
		if err != nil {
			return err
		}
		if html != "" {
			state.bodyHTML = html
		}

	case strings.HasPrefix(part.MimeType, "image/"):
		state.attachments = append(state.attachments, imagePart(part))

	case part.Filename != "" && hasBodyRef(part):
		state.attachments = append(state.attachments, filePart(part, false))
	}

	return nil
}

// imagePart classifies an image part: inline when the disposition says so
// or a Content-ID is present, a regular attachment otherwise.
func imagePart(part *dto.MessagePart) ParsedAttachment {
	disposition := strings.ToLower(part.Header("Content-Disposition"))
	contentID := strings.Trim(part.Header("Content-ID"), "<>")
	inline := strings.Contains(disposition, "inline") || contentID != ""
	a := filePart(part, inline)
	a.ContentID = contentID
	return a
}

func filePart(part *dto.MessagePart, inline bool) ParsedAttachment {
	a := ParsedAttachment{
		Filename:    part.Filename,
		ContentType: part.MimeType,
		IsInline:    inline,
	}
	if part.Body != nil {
		a.ProviderAttachmentID = part.Body.AttachmentID
		a.Size = int(part.Body.Size)
		if part.Body.Data != "" {
			if data, err := decodeBase64URL(part.Body.Data); err == nil {
				a.Data = data
				if a.Size == 0 {
					a.Size = len(data)
				}
			}
		}
	}
	if a.ProviderAttachmentID == "" {
		// Parts without a provider id are addressed by their part id.
		a.ProviderAttachmentID = "part-" + part.PartID
	}
	return a
}

func hasBodyRef(part *dto.MessagePart) bool {
	return part.Body != nil && (part.Body.AttachmentID != "" || part.Body.Data != "")
}

func decodePartText(part *dto.MessagePart) (string, error) {
	if part.Body == nil || part.Body.Data == "" {
		return "", nil
	}
	data, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		return "", errors.Wrap(err, "decode body")
	}
	return string(data), nil
}

// decodeBase64URL decodes the URL-safe alphabet the provider uses for part
// bodies, with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return data, nil
	}
	// Some senders hand back the standard alphabet.
	return base64.StdEncoding.DecodeString(s)
}

func splitAddressList(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, cleanAddress(p))
	}
	return out
}

// cleanAddress validates the bare address inside "Name <addr>" forms and
// returns the original string when validation cannot improve it.
func cleanAddress(address string) string {
	bare := address
	if start := strings.LastIndex(address, "<"); start >= 0 {
		if end := strings.LastIndex(address, ">"); end > start {
			bare = address[start+1 : end]
		}
	}
	validation := mailvalidate.ValidateEmailSyntax(bare)
	if !validation.IsValid {
		return address
	}
	if bare == address {
		return validation.CleanEmail
	}
	return address
}

func messageID(msg *dto.ProviderMessage) string {
	if msg == nil {
		return ""
	}
	return msg.ID
}
