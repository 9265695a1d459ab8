package interfaces

import (
	"context"

	"github.com/payradar/payradar/dto"
)

// EventPublisher publishes domain events. Implementations must tolerate a
// broker being unavailable; publishing is best-effort.
type EventPublisher interface {
	PublishMessageReceived(ctx context.Context, event dto.MessageReceived) error
	PublishRecordCreated(ctx context.Context, event dto.RecordCreated) error
	Close() error
}
