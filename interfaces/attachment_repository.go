package interfaces

import (
	"context"

	"github.com/payradar/payradar/internal/models"
)

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) (string, error)
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error)
	// GetPayload loads the raw bytes, falling back to object storage when
	// the row only carries a storage key.
	GetPayload(ctx context.Context, id string) ([]byte, error)
}
