package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/payradar/payradar/internal/utils"
)

// MailAccount represents one connected mailbox for a user. At most one
// active account may exist per (user, provider, email).
type MailAccount struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID   string `gorm:"column:user_id;type:varchar(50);index:idx_account_identity,unique;not null"`
	Provider string `gorm:"column:provider;type:varchar(50);index:idx_account_identity,unique;not null"`
	Email    string `gorm:"column:email;type:varchar(255);index:idx_account_identity,unique;not null"`

	// OAuth token state. ExpiresAt is epoch millis to match the provider
	// token endpoint response.
	AccessToken  string `gorm:"column:access_token;type:text"`
	RefreshToken string `gorm:"column:refresh_token;type:text"`
	ExpiresAt    int64  `gorm:"column:expires_at;default:0"`
	Scope        string `gorm:"column:scope;type:text"`

	// IMAP credentials for password-authenticated accounts (provider=imap).
	ImapHost     string `gorm:"column:imap_host;type:varchar(255)"`
	ImapPort     int    `gorm:"column:imap_port;default:0"`
	ImapUsername string `gorm:"column:imap_username;type:varchar(255)"`
	ImapPassword string `gorm:"column:imap_password;type:text"`

	IsActive    bool `gorm:"column:is_active;default:true;index"`
	NeedsReauth bool `gorm:"column:needs_reauth;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (MailAccount) TableName() string {
	return "mail_accounts"
}

func (a *MailAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	a.CreatedAt = utils.Now()
	return nil
}

// TokenExpiresIn reports the remaining token lifetime at the given instant.
func (a *MailAccount) TokenExpiresIn(now time.Time) time.Duration {
	return time.UnixMilli(a.ExpiresAt).Sub(now)
}
