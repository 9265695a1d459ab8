package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/internal/utils"
)

type mailAccountRepository struct {
	db *gorm.DB
}

func NewMailAccountRepository(db *gorm.DB) interfaces.MailAccountRepository {
	return &mailAccountRepository{db: db}
}

func (r *mailAccountRepository) Create(ctx context.Context, account *models.MailAccount) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if account == nil {
		return "", nil
	}

	// One active account per (user, provider, email): reuse the existing
	// row if the identity is already connected.
	existing := &models.MailAccount{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND email = ?", account.UserID, account.Provider, account.Email).
		First(existing).Error
	if err == nil {
		span.SetTag("duplicate", true)
		existing.AccessToken = account.AccessToken
		existing.RefreshToken = account.RefreshToken
		existing.ExpiresAt = account.ExpiresAt
		existing.Scope = account.Scope
		existing.IsActive = true
		existing.NeedsReauth = false
		if saveErr := r.db.WithContext(ctx).Save(existing).Error; saveErr != nil {
			tracing.TraceErr(span, saveErr)
			return "", saveErr
		}
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return account.ID, nil
}

func (r *mailAccountRepository) GetByID(ctx context.Context, id string) (*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.MailAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *mailAccountRepository) GetByIdentity(ctx context.Context, userID, provider, email string) (*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.GetByIdentity")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.MailAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND email = ?", userID, provider, email).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *mailAccountRepository) ListActiveByProvider(ctx context.Context, provider string) ([]*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.ListActiveByProvider")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.MailAccount
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND is_active = ?", provider, true).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *mailAccountRepository) ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.MailAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *mailAccountRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.ListUserIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var userIDs []string
	if err := r.db.WithContext(ctx).
		Model(&models.MailAccount{}).
		Where("is_active = ?", true).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &userIDs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return userIDs, nil
}

// UpdateTokens persists the token fields in one update so a refresh is
// atomic.
func (r *mailAccountRepository) UpdateTokens(ctx context.Context, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.UpdateTokens")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, account.ID)

	err := r.db.WithContext(ctx).
		Model(&models.MailAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"access_token":  account.AccessToken,
			"refresh_token": account.RefreshToken,
			"expires_at":    account.ExpiresAt,
			"scope":         account.Scope,
			"needs_reauth":  account.NeedsReauth,
			"updated_at":    utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *mailAccountRepository) SetNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.SetNeedsReauth")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.MailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"needs_reauth": needsReauth,
			"updated_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
