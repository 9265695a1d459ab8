package interfaces

import (
	"context"
	"time"

	"github.com/payradar/payradar/internal/models"
)

type MessageFilters struct {
	Search        string
	OnlyAnalyzed  *bool
	ReceivedAfter *time.Time
	Limit         int
	Offset        int
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) (string, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// GetLatestByAccount returns the most recently received message for the
	// account, or nil when the account has never synced.
	GetLatestByAccount(ctx context.Context, accountID string) (*models.Message, error)
	// FilterExistingProviderIDs returns the subset of providerIDs already
	// persisted for the account.
	FilterExistingProviderIDs(ctx context.Context, accountID string, providerIDs []string) (map[string]bool, error)
	ListByAccount(ctx context.Context, accountID string, filters MessageFilters) ([]*models.Message, int64, error)
	// ListUnanalyzed returns messages with null analyzed_at for all accounts
	// of the given user, oldest first. Empty userID spans all users.
	ListUnanalyzed(ctx context.Context, userID string, limit int) ([]*models.Message, error)
	MarkAnalyzed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
