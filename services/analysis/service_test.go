package analysis

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

type fakeMessageRepo struct {
	messages map[string]*models.Message
	analyzed map[string]time.Time
}

func newFakeMessageRepo(messages ...*models.Message) *fakeMessageRepo {
	repo := &fakeMessageRepo{
		messages: make(map[string]*models.Message),
		analyzed: make(map[string]time.Time),
	}
	for _, m := range messages {
		repo.messages[m.ID] = m
	}
	return repo
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *models.Message) (string, error) {
	r.messages[message.ID] = message
	return message.ID, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return r.messages[id], nil
}

func (r *fakeMessageRepo) GetLatestByAccount(ctx context.Context, accountID string) (*models.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) FilterExistingProviderIDs(ctx context.Context, accountID string, providerIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (r *fakeMessageRepo) ListByAccount(ctx context.Context, accountID string, filters interfaces.MessageFilters) ([]*models.Message, int64, error) {
	return nil, 0, nil
}

func (r *fakeMessageRepo) ListUnanalyzed(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.messages {
		if _, done := r.analyzed[m.ID]; !done {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	r.analyzed[id] = at
	return nil
}

func (r *fakeMessageRepo) Delete(ctx context.Context, id string) error {
	delete(r.messages, id)
	return nil
}

type fakeRecordRepo struct {
	byMessage map[string]*models.AnalysisRecord
	created   []*models.AnalysisRecord
	deleted   []string
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{byMessage: make(map[string]*models.AnalysisRecord)}
}

func (r *fakeRecordRepo) Create(ctx context.Context, record *models.AnalysisRecord) (string, error) {
	if record.ID == "" {
		record.ID = "rec-" + record.MessageID
	}
	r.byMessage[record.MessageID] = record
	r.created = append(r.created, record)
	return record.ID, nil
}

func (r *fakeRecordRepo) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) GetByMessageID(ctx context.Context, messageID string) (*models.AnalysisRecord, error) {
	return r.byMessage[messageID], nil
}

func (r *fakeRecordRepo) DeleteByMessageID(ctx context.Context, messageID string) error {
	delete(r.byMessage, messageID)
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *fakeRecordRepo) ListByUser(ctx context.Context, userID string, filters interfaces.RecordFilters) ([]*models.AnalysisRecord, int64, error) {
	return nil, 0, nil
}

func (r *fakeRecordRepo) ListPaymentsForDedup(ctx context.Context, userID string) ([]*models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) MarkDuplicate(ctx context.Context, id string, primaryID string) error {
	return nil
}

func (r *fakeRecordRepo) ResetDuplicates(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (r *fakeRecordRepo) MonthlyStats(ctx context.Context, userID string, months int) ([]dto.MonthlyStat, error) {
	return nil, nil
}

func (r *fakeRecordRepo) DailyStats(ctx context.Context, userID string, days int) ([]dto.DailyStat, error) {
	return nil, nil
}

type fakeAccountRepo struct {
	accounts map[string]*models.MailAccount
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.MailAccount) (string, error) {
	return account.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.MailAccount, error) {
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) GetByIdentity(ctx context.Context, userID, provider, email string) (*models.MailAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) ListActiveByProvider(ctx context.Context, provider string) ([]*models.MailAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (r *fakeAccountRepo) UpdateTokens(ctx context.Context, account *models.MailAccount) error {
	return nil
}

func (r *fakeAccountRepo) SetNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	return nil
}

type fakeClassifier struct {
	response *dto.ClassifyResponse
	err      error
	requests []dto.ClassifyRequest
}

func (c *fakeClassifier) Classify(ctx context.Context, request dto.ClassifyRequest) (*dto.ClassifyResponse, error) {
	c.requests = append(c.requests, request)
	if c.err != nil {
		return nil, c.err
	}
	return c.response, nil
}

type fakeCollector struct {
	files []dto.EvidenceFile
	err   error
}

func (c *fakeCollector) Collect(ctx context.Context, message *models.Message) ([]dto.EvidenceFile, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.files, nil
}

type fakePublisher struct {
	recordEvents []dto.RecordCreated
	publishErr   error
}

func (p *fakePublisher) PublishMessageReceived(ctx context.Context, event dto.MessageReceived) error {
	return nil
}

func (p *fakePublisher) PublishRecordCreated(ctx context.Context, event dto.RecordCreated) error {
	p.recordEvents = append(p.recordEvents, event)
	return p.publishErr
}

func (p *fakePublisher) Close() error { return nil }

type testEnv struct {
	messages   *fakeMessageRepo
	records    *fakeRecordRepo
	classifier *fakeClassifier
	collector  *fakeCollector
	publisher  *fakePublisher
	svc        interfaces.AnalysisService
}

func newTestEnv(classifier *fakeClassifier, messages ...*models.Message) *testEnv {
	env := &testEnv{
		messages:   newFakeMessageRepo(messages...),
		records:    newFakeRecordRepo(),
		classifier: classifier,
		collector:  &fakeCollector{},
		publisher:  &fakePublisher{},
	}
	accounts := &fakeAccountRepo{accounts: map[string]*models.MailAccount{
		"acct-1": {ID: "acct-1", UserID: "user-1", Provider: "gmail"},
	}}
	env.svc = NewAnalysisService(env.messages, env.records, accounts, classifier, env.collector, env.publisher, testLogger())
	return env
}

func paymentResponse(amount float64, merchant, paymentDate string) *dto.ClassifyResponse {
	return &dto.ClassifyResponse{
		Payment: dto.PaymentInfo{
			IsPayment:   true,
			Amount:      &amount,
			Currency:    "USD",
			Merchant:    merchant,
			PaymentDate: paymentDate,
			Summary:     "card payment",
		},
		Raw: map[string]interface{}{"payment": map[string]interface{}{"isPayment": true}},
	}
}

func testMessage() *models.Message {
	return &models.Message{
		ID:          "msg-1",
		AccountID:   "acct-1",
		FromAddress: "billing@acme.com",
		Subject:     "Your receipt",
		BodyText:    "You paid $42.00",
		ReceivedAt:  time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestAnalyze_CreatesRecordAndMarksMessage(t *testing.T) {
	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "2025-03-09")}
	env := newTestEnv(classifier, testMessage())

	record, err := env.svc.Analyze(context.Background(), "msg-1", false)

	require.NoError(t, err)
	assert.True(t, record.IsPayment)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "Acme", record.Merchant)
	require.NotNil(t, record.PaymentDate)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), *record.PaymentDate)
	assert.Contains(t, env.messages.analyzed, "msg-1")
	require.Len(t, env.publisher.recordEvents, 1)
	assert.Equal(t, record.ID, env.publisher.recordEvents[0].RecordID)
}

func TestAnalyze_IsIdempotent(t *testing.T) {
	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "2025-03-09")}
	env := newTestEnv(classifier, testMessage())

	first, err := env.svc.Analyze(context.Background(), "msg-1", false)
	require.NoError(t, err)
	second, err := env.svc.Analyze(context.Background(), "msg-1", false)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, classifier.requests, 1)
}

func TestAnalyze_ForceDeletesPriorRecord(t *testing.T) {
	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "2025-03-09")}
	env := newTestEnv(classifier, testMessage())

	_, err := env.svc.Analyze(context.Background(), "msg-1", false)
	require.NoError(t, err)
	_, err = env.svc.Analyze(context.Background(), "msg-1", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"msg-1"}, env.records.deleted)
	assert.Len(t, classifier.requests, 2)
}

func TestAnalyze_UnknownMessage(t *testing.T) {
	env := newTestEnv(&fakeClassifier{})

	_, err := env.svc.Analyze(context.Background(), "missing", false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestAnalyze_ClassifierFailureLeavesNoPartialState(t *testing.T) {
	classifier := &fakeClassifier{err: &errs.ClassifierError{StatusCode: 502, Err: errors.New("bad gateway")}}
	env := newTestEnv(classifier, testMessage())

	_, err := env.svc.Analyze(context.Background(), "msg-1", false)

	require.Error(t, err)
	assert.Empty(t, env.records.created)
	assert.NotContains(t, env.messages.analyzed, "msg-1")
	assert.Empty(t, env.publisher.recordEvents)
}

func TestAnalyze_CollectorFailureIsNonFatal(t *testing.T) {
	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "2025-03-09")}
	env := newTestEnv(classifier, testMessage())
	env.collector.err = errors.New("download failed")

	record, err := env.svc.Analyze(context.Background(), "msg-1", false)

	require.NoError(t, err)
	assert.True(t, record.IsPayment)
	require.Len(t, classifier.requests, 1)
	assert.Empty(t, classifier.requests[0].Files)
}

func TestAnalyze_PaymentDateFallsBackToReceivedAt(t *testing.T) {
	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "")}
	env := newTestEnv(classifier, testMessage())

	record, err := env.svc.Analyze(context.Background(), "msg-1", false)

	require.NoError(t, err)
	require.NotNil(t, record.PaymentDate)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), *record.PaymentDate)
}

func TestAnalyze_NonPaymentHasNoPaymentDate(t *testing.T) {
	classifier := &fakeClassifier{response: &dto.ClassifyResponse{
		Payment: dto.PaymentInfo{IsPayment: false, Summary: "newsletter"},
	}}
	env := newTestEnv(classifier, testMessage())

	record, err := env.svc.Analyze(context.Background(), "msg-1", false)

	require.NoError(t, err)
	assert.False(t, record.IsPayment)
	assert.Nil(t, record.PaymentDate)
}

func TestAnalyzeBatch_TalliesFailures(t *testing.T) {
	ok := testMessage()
	broken := testMessage()
	broken.ID = "msg-2"
	broken.AccountID = "acct-missing"

	classifier := &fakeClassifier{response: paymentResponse(42.0, "Acme", "2025-03-09")}
	env := newTestEnv(classifier, ok, broken)

	result, err := env.svc.AnalyzeBatch(context.Background(), "user-1", 10, false)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Payments)
	assert.Equal(t, 1, result.Failed)
}
