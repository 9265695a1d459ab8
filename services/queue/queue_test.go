package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
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
	unanalyzed []*models.Message
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *models.Message) (string, error) {
	return message.ID, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return nil, nil
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
	if limit > len(r.unanalyzed) {
		limit = len(r.unanalyzed)
	}
	return r.unanalyzed[:limit], nil
}

func (r *fakeMessageRepo) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (r *fakeMessageRepo) Delete(ctx context.Context, id string) error {
	return nil
}

type fakeAnalysis struct {
	mu       sync.Mutex
	analyzed []string
	failIDs  map[string]bool
	payments map[string]bool
	block    chan struct{}
}

func (a *fakeAnalysis) Analyze(ctx context.Context, messageID string, force bool) (*models.AnalysisRecord, error) {
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failIDs[messageID] {
		return nil, errors.New("classifier unavailable")
	}
	a.analyzed = append(a.analyzed, messageID)
	return &models.AnalysisRecord{MessageID: messageID, IsPayment: a.payments[messageID]}, nil
}

func (a *fakeAnalysis) AnalyzeBatch(ctx context.Context, userID string, limit int, force bool) (*dto.BatchAnalysisResult, error) {
	return nil, errors.New("not implemented")
}

func newTestQueue(repo *fakeMessageRepo, analysis *fakeAnalysis) *analysisQueue {
	return NewAnalysisQueue(repo, analysis, testLogger()).(*analysisQueue)
}

func TestEnqueue_RejectsDuplicatesAndEmpty(t *testing.T) {
	q := newTestQueue(&fakeMessageRepo{}, &fakeAnalysis{})

	assert.True(t, q.Enqueue("msg-1"))
	assert.False(t, q.Enqueue("msg-1"))
	assert.False(t, q.Enqueue(""))
	assert.Equal(t, 1, q.Status().Depth)
}

func TestEnqueue_RejectsWhenFull(t *testing.T) {
	q := newTestQueue(&fakeMessageRepo{}, &fakeAnalysis{})
	q.capacity = 2

	assert.True(t, q.Enqueue("msg-1"))
	assert.True(t, q.Enqueue("msg-2"))
	assert.False(t, q.Enqueue("msg-3"))
}

func TestFill_EnqueuesUnanalyzed(t *testing.T) {
	repo := &fakeMessageRepo{unanalyzed: []*models.Message{
		{ID: "msg-1"}, {ID: "msg-2"}, {ID: "msg-3"},
	}}
	q := newTestQueue(repo, &fakeAnalysis{})

	result, err := q.Fill(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 3, result.Enqueued)
	assert.Equal(t, 3, result.Depth)

	// Already-queued ids are not enqueued twice.
	result, err = q.Fill(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Enqueued)
	assert.Equal(t, 3, result.Depth)
}

func TestDrain_ProcessesOneBatchPerCall(t *testing.T) {
	analysis := &fakeAnalysis{payments: map[string]bool{"msg-2": true}}
	q := newTestQueue(&fakeMessageRepo{}, analysis)
	for i := 1; i <= 7; i++ {
		q.Enqueue(fmt.Sprintf("msg-%d", i))
	}

	// One pass is bounded by the batch size; the rest stays queued.
	result, err := q.Drain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DrainBatchSize, result.Processed)
	assert.Equal(t, 1, result.Payments)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Remaining)
	assert.Equal(t, 2, q.Status().Depth)
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3", "msg-4", "msg-5"}, analysis.analyzed)

	// The next trigger picks up the remainder in order.
	result, err = q.Drain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 0, q.Status().Depth)
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3", "msg-4", "msg-5", "msg-6", "msg-7"}, analysis.analyzed)
}

func TestDrain_FailedMessagesAreDroppedNotRequeued(t *testing.T) {
	analysis := &fakeAnalysis{failIDs: map[string]bool{"msg-2": true}}
	q := newTestQueue(&fakeMessageRepo{}, analysis)
	q.Enqueue("msg-1")
	q.Enqueue("msg-2")
	q.Enqueue("msg-3")

	result, err := q.Drain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, q.Status().Depth)

	// The failed id can be enqueued again by a later fill.
	assert.True(t, q.Enqueue("msg-2"))
}

func TestDrain_SecondConsumerIsRejected(t *testing.T) {
	block := make(chan struct{})
	analysis := &fakeAnalysis{block: block}
	q := newTestQueue(&fakeMessageRepo{}, analysis)
	q.Enqueue("msg-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := q.Drain(context.Background())
		assert.NoError(t, err)
	}()

	// Wait until the first drain holds the consumer flag.
	for !q.consumerRunning.Load() {
		runtime.Gosched()
	}

	_, err := q.Drain(context.Background())
	assert.True(t, errors.Is(err, errs.ErrAlreadyRunning))

	close(block)
	<-done
}

func TestDrain_ContextCancellationReportsRemaining(t *testing.T) {
	q := newTestQueue(&fakeMessageRepo{}, &fakeAnalysis{})
	for i := 1; i <= 3; i++ {
		q.Enqueue(fmt.Sprintf("msg-%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := q.Drain(ctx)

	require.Error(t, err)
	assert.Equal(t, 3, result.Remaining)
}

func TestClear(t *testing.T) {
	q := newTestQueue(&fakeMessageRepo{}, &fakeAnalysis{})
	q.Enqueue("msg-1")
	q.Enqueue("msg-2")

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Status().Depth)
	assert.True(t, q.Enqueue("msg-1"))
}
