package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/payradar/payradar/internal/utils"
)

// Attachment belongs to exactly one Message. Payload bytes are stored in
// Postgres; when object storage is configured the payload is additionally
// offloaded and StorageKey records where.
type Attachment struct {
	ID                   string `gorm:"column:id;type:varchar(50);primaryKey"`
	MessageID            string `gorm:"column:message_id;type:varchar(50);index:idx_attachment_provider_id,unique;not null"`
	ProviderAttachmentID string `gorm:"column:provider_attachment_id;type:varchar(500);index:idx_attachment_provider_id,unique;not null"`

	Filename    string `gorm:"column:filename;type:varchar(500)"`
	ContentType string `gorm:"column:content_type;type:varchar(255)"`
	ContentID   string `gorm:"column:content_id;type:varchar(255)"`
	Size        int    `gorm:"column:size;default:0"`
	IsInline    bool   `gorm:"column:is_inline;default:false"`

	Payload []byte `gorm:"column:payload;type:bytea"`

	StorageBucket string `gorm:"column:storage_bucket;type:varchar(255)"`
	StorageKey    string `gorm:"column:storage_key;type:varchar(1000)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Attachment) TableName() string {
	return "attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("attach", 12)
	}
	a.CreatedAt = utils.Now()
	return nil
}

func (a *Attachment) IsPDF() bool {
	return a.ContentType == "application/pdf"
}

func (a *Attachment) IsImage() bool {
	return len(a.ContentType) > 6 && a.ContentType[:6] == "image/"
}
