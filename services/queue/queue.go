package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/tracing"
)

const (
	// DrainBatchSize caps how many messages a single consumer pass
	// classifies; the remainder waits for the next trigger.
	DrainBatchSize = 5

	defaultCapacity = 500
)

// analysisQueue is a bounded in-memory FIFO of message ids. Producer and
// consumer are guarded by compare-and-swap flags so at most one of each
// runs at a time; a second trigger is rejected, not serialized.
type analysisQueue struct {
	messages interfaces.MessageRepository
	analysis interfaces.AnalysisService
	log      logger.Logger

	mu       sync.Mutex
	ids      []string
	queued   map[string]bool
	capacity int

	producerRunning atomic.Bool
	consumerRunning atomic.Bool

	totalEnqueued  atomic.Int64
	totalProcessed atomic.Int64
	totalFailed    atomic.Int64

	lastTickMu sync.Mutex
	lastTick   *time.Time
}

func NewAnalysisQueue(messages interfaces.MessageRepository, analysis interfaces.AnalysisService, log logger.Logger) interfaces.AnalysisQueue {
	return &analysisQueue{
		messages: messages,
		analysis: analysis,
		log:      log,
		queued:   make(map[string]bool),
		capacity: defaultCapacity,
	}
}

// Enqueue adds one message id. Returns false when the queue is full or the
// id is already queued.
func (q *analysisQueue) Enqueue(messageID string) bool {
	if messageID == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) >= q.capacity || q.queued[messageID] {
		return false
	}
	q.ids = append(q.ids, messageID)
	q.queued[messageID] = true
	q.totalEnqueued.Add(1)
	return true
}

func (q *analysisQueue) Fill(ctx context.Context, userID string) (*dto.QueueFillResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisQueue.Fill")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userID)

	if !q.producerRunning.CompareAndSwap(false, true) {
		tracing.TraceErr(span, errs.ErrAlreadyRunning)
		return nil, errs.ErrAlreadyRunning
	}
	defer q.producerRunning.Store(false)

	q.mu.Lock()
	room := q.capacity - len(q.ids)
	q.mu.Unlock()

	result := &dto.QueueFillResult{}
	if room <= 0 {
		result.Depth = q.depth()
		return result, nil
	}

	pending, err := q.messages.ListUnanalyzed(ctx, userID, room)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	for _, message := range pending {
		if q.Enqueue(message.ID) {
			result.Enqueued++
		}
	}
	result.Depth = q.depth()

	span.SetTag("enqueued", result.Enqueued)
	return result, nil
}

// Drain pops a single batch and classifies it; whatever is left stays
// queued for the next trigger, so each consumer pass does a bounded amount
// of work against the classifier. A message that fails classification is
// counted and dropped; it remains unanalyzed in the store and a later Fill
// picks it up again.
func (q *analysisQueue) Drain(ctx context.Context) (*dto.QueueDrainResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisQueue.Drain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if !q.consumerRunning.CompareAndSwap(false, true) {
		tracing.TraceErr(span, errs.ErrAlreadyRunning)
		return nil, errs.ErrAlreadyRunning
	}
	defer q.consumerRunning.Store(false)

	result := &dto.QueueDrainResult{}
	select {
	case <-ctx.Done():
		result.Remaining = q.depth()
		return result, ctx.Err()
	default:
	}

	batch := q.pop(DrainBatchSize)
	if len(batch) > 0 {
		q.touch()
	}

	for _, messageID := range batch {
		record, err := q.analysis.Analyze(ctx, messageID, false)
		if err != nil {
			q.log.Warnf("Queue analysis failed for message %s: %v", messageID, err)
			q.totalFailed.Add(1)
			result.Failed++
			continue
		}
		q.totalProcessed.Add(1)
		result.Processed++
		if record.IsPayment {
			result.Payments++
		}
	}

	result.Remaining = q.depth()
	span.SetTag("processed", result.Processed)
	span.SetTag("failed", result.Failed)
	return result, nil
}

func (q *analysisQueue) Status() dto.QueueStatus {
	q.mu.Lock()
	depth := len(q.ids)
	capacity := q.capacity
	q.mu.Unlock()

	q.lastTickMu.Lock()
	lastTick := q.lastTick
	q.lastTickMu.Unlock()

	return dto.QueueStatus{
		Depth:            depth,
		Capacity:         capacity,
		ProducerRunning:  q.producerRunning.Load(),
		ConsumerRunning:  q.consumerRunning.Load(),
		TotalEnqueued:    int(q.totalEnqueued.Load()),
		TotalProcessed:   int(q.totalProcessed.Load()),
		TotalFailed:      int(q.totalFailed.Load()),
		LastConsumerTick: lastTick,
	}
}

// Clear empties the queue and returns how many ids were dropped.
func (q *analysisQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.ids)
	q.ids = nil
	q.queued = make(map[string]bool)
	return dropped
}

func (q *analysisQueue) pop(n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.ids) {
		n = len(q.ids)
	}
	if n == 0 {
		return nil
	}
	batch := make([]string, n)
	copy(batch, q.ids[:n])
	q.ids = q.ids[n:]
	for _, id := range batch {
		delete(q.queued, id)
	}
	return batch
}

func (q *analysisQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *analysisQueue) touch() {
	now := time.Now().UTC()
	q.lastTickMu.Lock()
	q.lastTick = &now
	q.lastTickMu.Unlock()
}
