package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeProvider struct {
	name          string
	supportsOAuth bool
	refreshToken  *dto.ProviderToken
	refreshErr    error
	refreshCalls  int
}

func (p *fakeProvider) Name() string          { return p.name }
func (p *fakeProvider) SupportsOAuth() bool   { return p.supportsOAuth }
func (p *fakeProvider) AuthorizeURL(state string) string {
	return "https://auth.example.com?state=" + state
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code string) (*dto.ProviderToken, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*dto.ProviderToken, error) {
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshToken, nil
}

func (p *fakeProvider) FetchUserInfo(ctx context.Context, accessToken string) (*dto.ProviderUserInfo, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) ListMessageIDs(ctx context.Context, account *models.MailAccount, accessToken string, query dto.MessageQuery) (*dto.MessageIDPage, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) GetMessage(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID string) (*dto.ProviderMessage, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) GetAttachment(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID, attachmentID string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type fakeAccountRepo struct {
	accounts      map[string]*models.MailAccount
	updatedTokens []*models.MailAccount
	reauthSet     map[string]bool
}

func newFakeAccountRepo(accounts ...*models.MailAccount) *fakeAccountRepo {
	repo := &fakeAccountRepo{
		accounts:  make(map[string]*models.MailAccount),
		reauthSet: make(map[string]bool),
	}
	for _, a := range accounts {
		repo.accounts[a.ID] = a
	}
	return repo
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.MailAccount) (string, error) {
	r.accounts[account.ID] = account
	return account.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.MailAccount, error) {
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) GetByIdentity(ctx context.Context, userID, provider, email string) (*models.MailAccount, error) {
	for _, a := range r.accounts {
		if a.UserID == userID && a.Provider == provider && a.Email == email {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ListActiveByProvider(ctx context.Context, provider string) ([]*models.MailAccount, error) {
	var out []*models.MailAccount
	for _, a := range r.accounts {
		if a.Provider == provider && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error) {
	var out []*models.MailAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.accounts {
		if a.IsActive && !seen[a.UserID] {
			seen[a.UserID] = true
			out = append(out, a.UserID)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) UpdateTokens(ctx context.Context, account *models.MailAccount) error {
	r.updatedTokens = append(r.updatedTokens, account)
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) SetNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	r.reauthSet[id] = needsReauth
	if a, ok := r.accounts[id]; ok {
		a.NeedsReauth = needsReauth
	}
	return nil
}

var _ interfaces.MailAccountRepository = (*fakeAccountRepo)(nil)

func newTestVault(repo *fakeAccountRepo, provider *fakeProvider, now time.Time) *tokenVault {
	return &tokenVault{
		accounts:  repo,
		providers: map[string]interfaces.MailProvider{provider.name: provider},
		log:       testLogger(),
		margin:    DefaultRefreshMargin,
		now:       func() time.Time { return now },
	}
}

func oauthAccount(expiresAt time.Time) *models.MailAccount {
	return &models.MailAccount{
		ID:           "acct-1",
		UserID:       "user-1",
		Provider:     "gmail",
		Email:        "user@example.com",
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt.UnixMilli(),
		IsActive:     true,
	}
}

func TestGetValidAccessToken_FreshTokenIsReturnedDirectly(t *testing.T) {
	now := time.Now()
	account := oauthAccount(now.Add(5 * time.Minute))
	provider := &fakeProvider{name: "gmail", supportsOAuth: true}
	vault := newTestVault(newFakeAccountRepo(account), provider, now)

	token, err := vault.GetValidAccessToken(context.Background(), account)

	require.NoError(t, err)
	assert.Equal(t, "old-access", token)
	assert.Equal(t, 0, provider.refreshCalls)
}

func TestGetValidAccessToken_ExpiringTokenTriggersRefresh(t *testing.T) {
	now := time.Now()
	account := oauthAccount(now.Add(30 * time.Second))
	provider := &fakeProvider{
		name:          "gmail",
		supportsOAuth: true,
		refreshToken: &dto.ProviderToken{
			AccessToken: "new-access",
			ExpiresAt:   now.Add(time.Hour).UnixMilli(),
			Scope:       "mail.readonly",
		},
	}
	repo := newFakeAccountRepo(account)
	vault := newTestVault(repo, provider, now)

	token, err := vault.GetValidAccessToken(context.Background(), account)

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, 1, provider.refreshCalls)
	require.Len(t, repo.updatedTokens, 1)
	assert.Equal(t, "new-access", account.AccessToken)
	// Provider did not rotate the refresh token, so the old one survives.
	assert.Equal(t, "refresh-1", account.RefreshToken)
	assert.Equal(t, "mail.readonly", account.Scope)
	assert.False(t, account.NeedsReauth)
}

func TestGetValidAccessToken_RotatedRefreshTokenIsKept(t *testing.T) {
	now := time.Now()
	account := oauthAccount(now.Add(-time.Minute))
	provider := &fakeProvider{
		name:          "gmail",
		supportsOAuth: true,
		refreshToken: &dto.ProviderToken{
			AccessToken:  "new-access",
			RefreshToken: "refresh-2",
			ExpiresAt:    now.Add(time.Hour).UnixMilli(),
		},
	}
	vault := newTestVault(newFakeAccountRepo(account), provider, now)

	_, err := vault.GetValidAccessToken(context.Background(), account)

	require.NoError(t, err)
	assert.Equal(t, "refresh-2", account.RefreshToken)
}

func TestGetValidAccessToken_RefreshRejectionFlagsReauth(t *testing.T) {
	now := time.Now()
	account := oauthAccount(now.Add(-time.Minute))
	provider := &fakeProvider{
		name:          "gmail",
		supportsOAuth: true,
		refreshErr:    errors.New("invalid_grant"),
	}
	repo := newFakeAccountRepo(account)
	vault := newTestVault(repo, provider, now)

	_, err := vault.GetValidAccessToken(context.Background(), account)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrReauthRequired))
	assert.True(t, repo.reauthSet["acct-1"])
}

func TestGetValidAccessToken_MissingRefreshTokenFlagsReauth(t *testing.T) {
	now := time.Now()
	account := oauthAccount(now.Add(-time.Minute))
	account.RefreshToken = ""
	provider := &fakeProvider{name: "gmail", supportsOAuth: true}
	repo := newFakeAccountRepo(account)
	vault := newTestVault(repo, provider, now)

	_, err := vault.GetValidAccessToken(context.Background(), account)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrReauthRequired))
	assert.Equal(t, 0, provider.refreshCalls)
	assert.True(t, repo.reauthSet["acct-1"])
}

func TestGetValidAccessToken_PasswordProviderReturnsEmpty(t *testing.T) {
	now := time.Now()
	account := &models.MailAccount{ID: "acct-2", Provider: "imap", IsActive: true}
	provider := &fakeProvider{name: "imap", supportsOAuth: false}
	vault := newTestVault(newFakeAccountRepo(account), provider, now)

	token, err := vault.GetValidAccessToken(context.Background(), account)

	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestGetValidAccessToken_UnknownProvider(t *testing.T) {
	now := time.Now()
	account := &models.MailAccount{ID: "acct-3", Provider: "outlook"}
	provider := &fakeProvider{name: "gmail", supportsOAuth: true}
	vault := newTestVault(newFakeAccountRepo(account), provider, now)

	_, err := vault.GetValidAccessToken(context.Background(), account)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestRefreshAll_TalliesOutcomes(t *testing.T) {
	now := time.Now()
	fresh := oauthAccount(now.Add(time.Hour))
	stale := oauthAccount(now.Add(-time.Minute))
	stale.ID = "acct-stale"
	broken := oauthAccount(now.Add(-time.Minute))
	broken.ID = "acct-broken"
	broken.RefreshToken = ""

	provider := &fakeProvider{
		name:          "gmail",
		supportsOAuth: true,
		refreshToken: &dto.ProviderToken{
			AccessToken: "new-access",
			ExpiresAt:   now.Add(time.Hour).UnixMilli(),
		},
	}
	vault := newTestVault(newFakeAccountRepo(fresh, stale, broken), provider, now)

	summary, err := vault.RefreshAll(context.Background(), "gmail")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
}

func TestNewProviderRegistry(t *testing.T) {
	gmailProvider := &fakeProvider{name: "gmail", supportsOAuth: true}
	imapProvider := &fakeProvider{name: "imap"}

	registry, err := NewProviderRegistry(gmailProvider, imapProvider)
	require.NoError(t, err)
	assert.Len(t, registry, 2)
	assert.Equal(t, gmailProvider, registry["gmail"].(*fakeProvider))

	_, err = NewProviderRegistry(gmailProvider, &fakeProvider{name: "gmail"})
	assert.Error(t, err)

	_, err = NewProviderRegistry(&fakeProvider{})
	assert.Error(t, err)
}
