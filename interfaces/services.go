package interfaces

import (
	"context"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/internal/models"
)

// TokenVault owns token freshness for OAuth accounts.
type TokenVault interface {
	// GetValidAccessToken returns a token guaranteed to outlive the refresh
	// margin, refreshing if needed. Returns errs.ErrReauthRequired when the
	// token cannot be refreshed; it never returns a stale token.
	GetValidAccessToken(ctx context.Context, account *models.MailAccount) (string, error)
	// RefreshAll refreshes every active account of the provider; one
	// account's failure does not abort the others.
	RefreshAll(ctx context.Context, provider string) (*dto.RefreshSummary, error)
}

type SyncService interface {
	SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error)
	SyncAllAccounts(ctx context.Context) error
}

type AnalysisService interface {
	Analyze(ctx context.Context, messageID string, force bool) (*models.AnalysisRecord, error)
	AnalyzeBatch(ctx context.Context, userID string, limit int, force bool) (*dto.BatchAnalysisResult, error)
}

type CollectorService interface {
	// Collect gathers the bounded evidence file set for a message: PDFs,
	// remote images referenced by the HTML body, then stored inline images.
	Collect(ctx context.Context, message *models.Message) ([]dto.EvidenceFile, error)
}

// AnalysisQueue is the bounded in-memory FIFO of message ids awaiting
// classification. Fill and Drain each run at most once concurrently;
// a second trigger returns errs.ErrAlreadyRunning.
type AnalysisQueue interface {
	// Fill enqueues unanalyzed messages for the user; empty userID means
	// all users.
	Fill(ctx context.Context, userID string) (*dto.QueueFillResult, error)
	// Drain processes queued ids in fixed-size batches until the queue is
	// empty or the context is cancelled. Failed ids are not requeued.
	Drain(ctx context.Context) (*dto.QueueDrainResult, error)
	Enqueue(messageID string) bool
	Status() dto.QueueStatus
	Clear() int
}

type DuplicateService interface {
	Detect(ctx context.Context, userID string) ([]dto.DuplicateGroup, error)
	MarkDuplicates(ctx context.Context, userID string) ([]dto.DuplicateGroup, error)
	ResetDuplicates(ctx context.Context, userID string) (int64, error)
}
