package imapmail

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawMessage = "From: billing@acme.com\r\n" +
	"To: user@example.com\r\n" +
	"Subject: Your receipt\r\n" +
	"Date: Mon, 10 Mar 2025 08:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"You paid $12.00\r\n" +
	"--outer\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>You paid $12.00</p>\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=invoice.pdf\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func parseEnvelope(t *testing.T, raw string) *enmime.Envelope {
	t.Helper()
	envelope, err := enmime.ReadEnvelope(strings.NewReader(raw))
	require.NoError(t, err)
	return envelope
}

func TestBuildProviderMessage(t *testing.T) {
	envelope := parseEnvelope(t, rawMessage)
	internalDate := time.Date(2025, 3, 10, 8, 5, 0, 0, time.UTC)

	msg := buildProviderMessage("42", envelope, internalDate, 2048)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, internalDate.UnixMilli(), msg.InternalDate)
	assert.Equal(t, int64(2048), msg.SizeEstimate)

	require.NotNil(t, msg.Payload)
	assert.Equal(t, "Your receipt", msg.Payload.Header("Subject"))
	assert.Equal(t, "billing@acme.com", msg.Payload.Header("From"))

	require.Len(t, msg.Payload.Parts, 3)

	text := msg.Payload.Parts[0]
	assert.Equal(t, "text/plain", text.MimeType)
	decoded, err := base64.RawURLEncoding.DecodeString(text.Body.Data)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "You paid $12.00")

	html := msg.Payload.Parts[1]
	assert.Equal(t, "text/html", html.MimeType)

	pdf := msg.Payload.Parts[2]
	assert.Equal(t, "application/pdf", pdf.MimeType)
	assert.Equal(t, "invoice.pdf", pdf.Filename)
	assert.Equal(t, "att-0", pdf.Body.AttachmentID)
	// Attachment payloads are fetched on demand, never inlined.
	assert.Empty(t, pdf.Body.Data)
}

func TestBuildProviderMessage_FallsBackToEnvelopeDate(t *testing.T) {
	envelope := parseEnvelope(t, rawMessage)

	msg := buildProviderMessage("42", envelope, time.Time{}, 0)

	want := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, msg.InternalDate)
}

func TestAttachmentRefs(t *testing.T) {
	assert.Equal(t, "att-0", attachmentRef(0))
	assert.Equal(t, "att-3", attachmentRef(3))
	assert.Equal(t, "inl-1", inlineRef(1))
}
