package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/payradar/payradar/internal/utils"
)

// AnalysisRecord holds the structured classifier output for one message,
// at most one per message. Duplicate fields are mutated only by the
// duplicate detector.
type AnalysisRecord struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	MessageID string `gorm:"column:message_id;type:varchar(50);uniqueIndex;not null"`
	UserID    string `gorm:"column:user_id;type:varchar(50);index;not null"`

	IsPayment   bool       `gorm:"column:is_payment;default:false;index"`
	Amount      *float64   `gorm:"column:amount"`
	Currency    string     `gorm:"column:currency;type:varchar(10)"`
	Merchant    string     `gorm:"column:merchant;type:varchar(500)"`
	PaymentDate *time.Time `gorm:"column:payment_date;type:timestamp;index"`
	CardType    string     `gorm:"column:card_type;type:varchar(100)"`
	PaymentType string     `gorm:"column:payment_type;type:varchar(100)"`
	Category    string     `gorm:"column:category;type:varchar(100)"`
	Summary     string     `gorm:"column:summary;type:text"`

	RawResponse JSONMap `gorm:"column:raw_response;type:jsonb"`

	// If IsDuplicate is set, PrimaryReportID references the non-duplicate
	// member of the group.
	IsDuplicate     bool    `gorm:"column:is_duplicate;default:false;index"`
	PrimaryReportID *string `gorm:"column:primary_report_id;type:varchar(50);index"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

func (r *AnalysisRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("report", 16)
	}
	r.CreatedAt = utils.Now()
	return nil
}

// DetailScore is a weighted count of populated fields, used to pick the
// most informative record among duplicates.
func (r *AnalysisRecord) DetailScore() int {
	score := 0
	if r.Amount != nil {
		score += 3
	}
	if r.Merchant != "" {
		score += 3
	}
	if r.PaymentDate != nil {
		score += 2
	}
	if r.CardType != "" {
		score++
	}
	if r.Currency != "" {
		score++
	}
	if r.PaymentType != "" {
		score++
	}
	if r.Category != "" {
		score++
	}
	if len(r.Summary) > 50 {
		score++
	}
	return score
}
