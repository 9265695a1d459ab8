package dto

import "strings"

// ProviderToken is the result of an authorization-code or refresh-token
// exchange with a provider's OAuth endpoint.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string
	// Epoch millis.
	ExpiresAt int64
	Scope     string
}

type ProviderUserInfo struct {
	Email string
	Name  string
}

// MessageQuery is the provider-agnostic form of "list message ids".
type MessageQuery struct {
	// Unix seconds; zero means unbounded.
	AfterUnix int64
	// Free-text terms appended to the provider query.
	Terms      string
	MaxResults int64
	PageToken  string
}

type MessageIDPage struct {
	IDs           []string
	NextPageToken string
}

// ProviderMessage mirrors the provider's full-message shape: envelope
// metadata plus the root of the MIME part tree.
type ProviderMessage struct {
	ID           string
	ThreadID     string
	Labels       []string
	InternalDate int64 // epoch millis
	SizeEstimate int64
	Payload      *MessagePart
}

type MessagePart struct {
	PartID   string
	MimeType string
	Filename string
	Headers  []MessageHeader
	Body     *MessagePartBody
	Parts    []*MessagePart
}

type MessageHeader struct {
	Name  string
	Value string
}

// MessagePartBody carries either inline base64url data or a reference to
// a separately fetchable attachment.
type MessagePartBody struct {
	AttachmentID string
	Size         int64
	Data         string
}

// Header returns the first header with the given name, case-insensitive.
func (p *MessagePart) Header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
