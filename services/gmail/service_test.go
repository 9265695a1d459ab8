package gmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/internal/logger"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		query dto.MessageQuery
		want  string
	}{
		{"empty", dto.MessageQuery{}, ""},
		{"after only", dto.MessageQuery{AfterUnix: 1741600000}, "after:1741600000"},
		{"terms only", dto.MessageQuery{Terms: "has:attachment"}, "has:attachment"},
		{"after and terms", dto.MessageQuery{AfterUnix: 1741600000, Terms: "in:inbox"}, "after:1741600000 in:inbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(tt.query))
		})
	}
}

func TestAuthorizeURL(t *testing.T) {
	provider := NewGmailProvider(&config.GoogleOAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "https://app.example.com/callback",
	}, testLogger())

	url := provider.AuthorizeURL("user-42")

	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=user-42")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "gmail.readonly")
}

func TestConvertToken(t *testing.T) {
	expiry := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := (&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       expiry,
	}).WithExtra(map[string]interface{}{"scope": "gmail.readonly email"})

	token := convertToken(src)

	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.Equal(t, expiry.UnixMilli(), token.ExpiresAt)
	assert.Equal(t, "gmail.readonly email", token.Scope)
}

func TestConvertToken_ZeroExpiry(t *testing.T) {
	token := convertToken(&oauth2.Token{AccessToken: "access"})
	assert.Zero(t, token.ExpiresAt)
}

func TestConvertPart(t *testing.T) {
	src := &gmailapi.MessagePart{
		PartId:   "0",
		MimeType: "multipart/mixed",
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Subject", Value: "Receipt"},
		},
		Parts: []*gmailapi.MessagePart{
			{
				PartId:   "1",
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: "aGVsbG8", Size: 5},
			},
			{
				PartId:   "2",
				MimeType: "application/pdf",
				Filename: "invoice.pdf",
				Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1", Size: 1024},
			},
		},
	}

	part := convertPart(src)

	require.NotNil(t, part)
	assert.Equal(t, "multipart/mixed", part.MimeType)
	assert.Equal(t, "Receipt", part.Header("Subject"))
	require.Len(t, part.Parts, 2)
	assert.Equal(t, "aGVsbG8", part.Parts[0].Body.Data)
	assert.Equal(t, "att-1", part.Parts[1].Body.AttachmentID)
	assert.Equal(t, int64(1024), part.Parts[1].Body.Size)

	assert.Nil(t, convertPart(nil))
}
