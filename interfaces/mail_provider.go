package interfaces

import (
	"context"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/internal/models"
)

// MailProvider is the contract every mailbox provider implements. Adding a
// provider means implementing this interface and registering it; there are
// no optional methods.
type MailProvider interface {
	Name() string
	// SupportsOAuth reports whether accounts of this provider carry
	// refreshable OAuth tokens.
	SupportsOAuth() bool
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*dto.ProviderToken, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.ProviderToken, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*dto.ProviderUserInfo, error)

	ListMessageIDs(ctx context.Context, account *models.MailAccount, accessToken string, query dto.MessageQuery) (*dto.MessageIDPage, error)
	GetMessage(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID string) (*dto.ProviderMessage, error)
	GetAttachment(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID, attachmentID string) ([]byte, error)
}
