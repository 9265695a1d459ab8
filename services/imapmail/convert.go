package imapmail

import (
	"encoding/base64"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/payradar/payradar/dto"
)

// buildProviderMessage flattens an enmime envelope into the uniform
// part-tree shape. Bodies are carried inline (base64url, matching the REST
// providers); attachments are referenced and fetched on demand.
func buildProviderMessage(providerMessageID string, envelope *enmime.Envelope, internalDate time.Time, size int64) *dto.ProviderMessage {
	root := &dto.MessagePart{
		PartID:   "",
		MimeType: "multipart/mixed",
		Headers:  envelopeHeaders(envelope),
	}

	if envelope.Text != "" {
		root.Parts = append(root.Parts, &dto.MessagePart{
			PartID:   "text",
			MimeType: "text/plain",
			Body: &dto.MessagePartBody{
				Size: int64(len(envelope.Text)),
				Data: base64.RawURLEncoding.EncodeToString([]byte(envelope.Text)),
			},
		})
	}
	if envelope.HTML != "" {
		root.Parts = append(root.Parts, &dto.MessagePart{
			PartID:   "html",
			MimeType: "text/html",
			Body: &dto.MessagePartBody{
				Size: int64(len(envelope.HTML)),
				Data: base64.RawURLEncoding.EncodeToString([]byte(envelope.HTML)),
			},
		})
	}

	for idx, att := range envelope.Attachments {
		root.Parts = append(root.Parts, &dto.MessagePart{
			PartID:   attachmentRef(idx),
			MimeType: att.ContentType,
			Filename: att.FileName,
			Headers: []dto.MessageHeader{
				{Name: "Content-Disposition", Value: "attachment"},
			},
			Body: &dto.MessagePartBody{
				AttachmentID: attachmentRef(idx),
				Size:         int64(len(att.Content)),
			},
		})
	}

	for idx, inline := range envelope.Inlines {
		headers := []dto.MessageHeader{
			{Name: "Content-Disposition", Value: "inline"},
		}
		if inline.ContentID != "" {
			headers = append(headers, dto.MessageHeader{Name: "Content-ID", Value: "<" + inline.ContentID + ">"})
		}
		root.Parts = append(root.Parts, &dto.MessagePart{
			PartID:   inlineRef(idx),
			MimeType: inline.ContentType,
			Filename: inline.FileName,
			Headers:  headers,
			Body: &dto.MessagePartBody{
				AttachmentID: inlineRef(idx),
				Size:         int64(len(inline.Content)),
			},
		})
	}

	if internalDate.IsZero() {
		if parsed, err := envelope.Date(); err == nil {
			internalDate = parsed
		}
	}

	return &dto.ProviderMessage{
		ID:           providerMessageID,
		InternalDate: internalDate.UnixMilli(),
		SizeEstimate: size,
		Payload:      root,
	}
}

func envelopeHeaders(envelope *enmime.Envelope) []dto.MessageHeader {
	headers := make([]dto.MessageHeader, 0, 5)
	for _, name := range []string{"From", "To", "Cc", "Subject", "Date", "Message-ID"} {
		if value := envelope.GetHeader(name); value != "" {
			headers = append(headers, dto.MessageHeader{Name: name, Value: value})
		}
	}
	return headers
}
