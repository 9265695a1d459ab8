package events

import (
	"context"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
)

// noopPublisher is used when no broker is configured. Events are dropped
// silently; the periodic queue producer covers the trigger path instead.
type noopPublisher struct{}

func NewNoopPublisher() interfaces.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) PublishMessageReceived(ctx context.Context, event dto.MessageReceived) error {
	return nil
}

func (noopPublisher) PublishRecordCreated(ctx context.Context, event dto.RecordCreated) error {
	return nil
}

func (noopPublisher) Close() error {
	return nil
}
