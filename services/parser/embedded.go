package parser

import (
	"bytes"

	"github.com/jhillyerd/enmime"

	"github.com/payradar/payradar/dto"
)

// handleEmbeddedMessage parses a message/rfc822 part, which is how some
// clients forward mail. The embedded envelope contributes the original
// sender and, when the outer message has no body of its own, the text.
// The part arrives in two shapes: a raw RFC822 blob in the body, or the
// embedded message already expanded into child parts with the inner
// headers on the part itself.
func handleEmbeddedMessage(part *dto.MessagePart, state *walkState) {
	if part.Body != nil && part.Body.Data != "" {
		embeddedFromBlob(part.Body.Data, state)
		return
	}

	if from := embeddedFromHeader(part); from != "" && state.embeddedFrom == "" {
		state.embeddedFrom = from
	}
	for _, child := range part.Parts {
		// Best-effort: a malformed child should not fail the outer parse.
		_ = walkPart(child, state)
	}
}

func embeddedFromBlob(data string, state *walkState) {
	raw, err := decodeBase64URL(data)
	if err != nil {
		return
	}
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return
	}

	if from := envelope.GetHeader("From"); from != "" && state.embeddedFrom == "" {
		state.embeddedFrom = from
	}
	if state.bodyText == "" && envelope.Text != "" {
		state.bodyText = envelope.Text
	}
	if state.bodyHTML == "" && envelope.HTML != "" {
		state.bodyHTML = envelope.HTML
	}
}

// embeddedFromHeader finds the inner From header on the rfc822 part or its
// first-level children.
func embeddedFromHeader(part *dto.MessagePart) string {
	if from := part.Header("From"); from != "" {
		return from
	}
	for _, child := range part.Parts {
		if from := child.Header("From"); from != "" {
			return from
		}
	}
	return ""
}
