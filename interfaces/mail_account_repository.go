package interfaces

import (
	"context"

	"github.com/payradar/payradar/internal/models"
)

type MailAccountRepository interface {
	Create(ctx context.Context, account *models.MailAccount) (string, error)
	GetByID(ctx context.Context, id string) (*models.MailAccount, error)
	GetByIdentity(ctx context.Context, userID, provider, email string) (*models.MailAccount, error)
	ListActiveByProvider(ctx context.Context, provider string) ([]*models.MailAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error)
	// ListUserIDs returns the distinct user ids that own at least one
	// active account.
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateTokens(ctx context.Context, account *models.MailAccount) error
	SetNeedsReauth(ctx context.Context, id string, needsReauth bool) error
}
