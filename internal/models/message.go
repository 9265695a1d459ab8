package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/payradar/payradar/internal/utils"
)

// Message is one synchronized mail item. (account_id, provider_message_id)
// is unique; re-sync never rewrites an existing row.
type Message struct {
	ID                string `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID         string `gorm:"column:account_id;type:varchar(50);index:idx_message_provider_id,unique;not null"`
	ProviderMessageID string `gorm:"column:provider_message_id;type:varchar(255);index:idx_message_provider_id,unique;not null"`
	ThreadID          string `gorm:"column:thread_id;type:varchar(255);index"`

	// Envelope
	Subject     string         `gorm:"column:subject;type:varchar(1000)"`
	FromAddress string         `gorm:"column:from_address;type:varchar(500);index"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	// Content
	BodyText   string         `gorm:"column:body_text;type:text"`
	BodyHTML   string         `gorm:"column:body_html;type:text"`
	SearchText string         `gorm:"column:search_text;type:text"`
	Labels     pq.StringArray `gorm:"column:labels;type:text[]"`

	ReceivedAt      time.Time `gorm:"column:received_at;type:timestamp;index;not null"`
	IsRead          bool      `gorm:"column:is_read;default:false"`
	HasAttachment   bool      `gorm:"column:has_attachment;default:false"`
	HasInlineImages bool      `gorm:"column:has_inline_images;default:false"`

	// Set once by the analysis engine, null until then.
	AnalyzedAt *time.Time `gorm:"column:analyzed_at;type:timestamp;index"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	m.CreatedAt = utils.Now()
	return nil
}
