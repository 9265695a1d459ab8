package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/tracing"
)

type SubscriberConfig struct {
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

// RabbitMQSubscriber consumes the message-received queue and feeds the
// analysis queue, so classification starts as soon as sync lands a new
// message instead of waiting for the next producer tick.
type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
	config          SubscriberConfig
	queue           interfaces.AnalysisQueue
}

// receivedEnvelope mirrors EventEnvelope with the payload left raw for a
// second decode pass.
type receivedEnvelope struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	Data        json.RawMessage `json:"data"`
	UberTraceID string          `json:"uberTraceId"`
}

func NewRabbitMQSubscriber(rabbitmqURL string, queue interfaces.AnalysisQueue, logger logger.Logger, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = &SubscriberConfig{
			ReconnectBackoff:    time.Second,
			MaxReconnectBackoff: 30 * time.Second,
		}
	}

	subscriber := &RabbitMQSubscriber{
		url:    rabbitmqURL,
		logger: logger,
		config: *config,
		queue:  queue,
	}

	if err := subscriber.connect(); err != nil {
		return nil, err
	}
	return subscriber, nil
}

// Start begins consuming in the background. It never returns an error
// after startup; consume failures are logged and retried.
func (r *RabbitMQSubscriber) Start() {
	go func() {
		for {
			channel, err := r.connection.Channel()
			if err != nil {
				r.logger.Errorf("Failed to open channel for queue %s: %v. Retrying...", QueueMessageReceived, err)
				time.Sleep(5 * time.Second)
				continue
			}

			msgs, err := channel.Consume(
				QueueMessageReceived,
				"",    // consumer tag
				false, // auto-ack
				false, // exclusive
				false, // no-local
				false, // no-wait
				nil,
			)
			if err != nil {
				channel.Close()
				r.logger.Errorf("Failed to register consumer on queue %s: %v. Retrying...", QueueMessageReceived, err)
				time.Sleep(5 * time.Second)
				continue
			}

			r.logger.Infof("Listening for messages on queue %s", QueueMessageReceived)

			for d := range msgs {
				r.handleDelivery(d)
			}

			channel.Close()
			r.logger.Warnf("Connection lost for queue %s. Reconnecting...", QueueMessageReceived)
			time.Sleep(5 * time.Second)
		}
	}()
}

func (r *RabbitMQSubscriber) handleDelivery(d amqp091.Delivery) {
	defer tracing.RecoverAndLogToJaeger(r.logger)

	if err := r.processDelivery(d); err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", QueueMessageReceived, err)
		r.retryAckNack(d, false)
		return
	}
	r.retryAckNack(d, true)
}

func (r *RabbitMQSubscriber) processDelivery(d amqp091.Delivery) error {
	var envelope receivedEnvelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		return errors.Wrap(err, "failed to unmarshal envelope")
	}

	_, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(context.Background(), "RabbitMQSubscriber.processDelivery", envelope.UberTraceID)
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.LogKV("event_type", envelope.EventType)

	if envelope.EventType != EventTypeMessageReceived {
		return nil
	}

	var event dto.MessageReceived
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal message.received event")
	}

	r.queue.Enqueue(event.MessageID)

	// Kick the consumer; another drain already in flight covers the id.
	go func() {
		if _, err := r.queue.Drain(context.Background()); err != nil && !errors.Is(err, errs.ErrAlreadyRunning) {
			r.logger.Warnf("Queue drain after %s failed: %v", event.MessageID, err)
		}
	}()

	return nil
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	go func() {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		<-notifyClose
		r.logger.Warn("RabbitMQ connection closed, attempting to reconnect")
		_ = r.connect()
	}()

	return nil
}

func (r *RabbitMQSubscriber) retryAckNack(d amqp091.Delivery, ack bool) {
	maxRetries := 5
	retryDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}
		if err == nil {
			return
		}
		time.Sleep(retryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		maxRetries)
}

func (r *RabbitMQSubscriber) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}
