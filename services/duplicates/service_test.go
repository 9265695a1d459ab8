package duplicates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeRecordRepo struct {
	records      []*models.AnalysisRecord
	marked       map[string]string
	resetCalls   int
	resetCleared int64
}

func newFakeRecordRepo(records ...*models.AnalysisRecord) *fakeRecordRepo {
	return &fakeRecordRepo{records: records, marked: make(map[string]string)}
}

func (r *fakeRecordRepo) Create(ctx context.Context, record *models.AnalysisRecord) (string, error) {
	r.records = append(r.records, record)
	return record.ID, nil
}

func (r *fakeRecordRepo) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRecordRepo) GetByMessageID(ctx context.Context, messageID string) (*models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) DeleteByMessageID(ctx context.Context, messageID string) error {
	return nil
}

func (r *fakeRecordRepo) ListByUser(ctx context.Context, userID string, filters interfaces.RecordFilters) ([]*models.AnalysisRecord, int64, error) {
	return nil, 0, nil
}

func (r *fakeRecordRepo) ListPaymentsForDedup(ctx context.Context, userID string) ([]*models.AnalysisRecord, error) {
	return r.records, nil
}

func (r *fakeRecordRepo) MarkDuplicate(ctx context.Context, id string, primaryID string) error {
	r.marked[id] = primaryID
	return nil
}

func (r *fakeRecordRepo) ResetDuplicates(ctx context.Context, userID string) (int64, error) {
	r.resetCalls++
	return r.resetCleared, nil
}

func (r *fakeRecordRepo) MonthlyStats(ctx context.Context, userID string, months int) ([]dto.MonthlyStat, error) {
	return nil, nil
}

func (r *fakeRecordRepo) DailyStats(ctx context.Context, userID string, days int) ([]dto.DailyStat, error) {
	return nil, nil
}

func amount(v float64) *float64 { return &v }

func date(t time.Time) *time.Time { return &t }

func paymentRecord(id, merchant string, amt float64, at time.Time) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		ID:          id,
		IsPayment:   true,
		Merchant:    merchant,
		Amount:      amount(amt),
		PaymentDate: date(at),
		CreatedAt:   at,
	}
}

func TestDetect_GroupsSameTransaction(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks Inc.", 4.50, day),
		paymentRecord("rec-2", "starbucks", 4.50, day.Add(6*time.Hour)),
		paymentRecord("rec-3", "Whole Foods", 52.10, day),
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	members := append([]string{groups[0].PrimaryID}, groups[0].DuplicateIDs...)
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, members)
}

func TestDetect_RespectsDateWindow(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks", 4.50, day),
		paymentRecord("rec-2", "Starbucks", 4.50, day.Add(48*time.Hour)),
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestDetect_RespectsAmountEpsilon(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks", 4.50, day),
		paymentRecord("rec-2", "Starbucks", 4.51, day),
		paymentRecord("rec-3", "Starbucks", 4.75, day),
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	members := append([]string{groups[0].PrimaryID}, groups[0].DuplicateIDs...)
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, members)
}

func TestDetect_MissingAmountStillGroups(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	noAmount := paymentRecord("rec-2", "Starbucks Inc.", 0, day.Add(6*time.Hour))
	noAmount.Amount = nil
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks", 4.50, day),
		noAmount,
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	members := append([]string{groups[0].PrimaryID}, groups[0].DuplicateIDs...)
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, members)
}

func TestDetect_MissingDateStillGroups(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	noDate := paymentRecord("rec-2", "starbucks", 4.50, day)
	noDate.PaymentDate = nil
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks", 4.50, day),
		noDate,
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	members := append([]string{groups[0].PrimaryID}, groups[0].DuplicateIDs...)
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, members)
}

func TestDetect_PresentCriteriaStillReject(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// A missing amount does not excuse a date outside the window.
	noAmount := paymentRecord("rec-2", "Starbucks", 0, day.Add(48*time.Hour))
	noAmount.Amount = nil
	repo := newFakeRecordRepo(paymentRecord("rec-1", "Starbucks", 4.50, day), noAmount)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, groups)

	// Dissimilar merchants never group, even with both fields absent.
	bareA := &models.AnalysisRecord{ID: "rec-3", IsPayment: true, Merchant: "Starbucks"}
	bareB := &models.AnalysisRecord{ID: "rec-4", IsPayment: true, Merchant: "Whole Foods"}
	svc = NewDuplicateService(newFakeRecordRepo(bareA, bareB), testLogger())

	groups, err = svc.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestDetect_PrimaryIsMostDetailed(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	sparse := paymentRecord("rec-sparse", "Starbucks", 4.50, day)
	detailed := paymentRecord("rec-detailed", "Starbucks", 4.50, day.Add(time.Hour))
	detailed.Currency = "USD"
	detailed.CardType = "visa"
	detailed.Category = "coffee"
	repo := newFakeRecordRepo(sparse, detailed)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "rec-detailed", groups[0].PrimaryID)
	assert.Equal(t, []string{"rec-sparse"}, groups[0].DuplicateIDs)
}

func TestDetect_TieBreaksToEarliestCreated(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	first := paymentRecord("rec-first", "Starbucks", 4.50, day)
	second := paymentRecord("rec-second", "Starbucks", 4.50, day)
	second.CreatedAt = day.Add(time.Minute)
	repo := newFakeRecordRepo(second, first)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.Detect(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "rec-first", groups[0].PrimaryID)
}

func TestMarkDuplicates_ResetsThenPersists(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newFakeRecordRepo(
		paymentRecord("rec-1", "Starbucks", 4.50, day),
		paymentRecord("rec-2", "Starbucks Inc.", 4.50, day.Add(time.Hour)),
	)
	svc := NewDuplicateService(repo, testLogger())

	groups, err := svc.MarkDuplicates(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, repo.resetCalls)
	assert.Equal(t, map[string]string{"rec-2": "rec-1"}, repo.marked)
}

func TestResetDuplicates(t *testing.T) {
	repo := newFakeRecordRepo()
	repo.resetCleared = 7
	svc := NewDuplicateService(repo, testLogger())

	cleared, err := svc.ResetDuplicates(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, int64(7), cleared)
}
