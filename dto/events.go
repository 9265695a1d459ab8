package dto

// EventEnvelope is the wire wrapper around every published event.
type EventEnvelope struct {
	EventID     string      `json:"eventId"`
	EventType   string      `json:"eventType"`
	Data        interface{} `json:"data"`
	UberTraceID string      `json:"uberTraceId,omitempty"`
	Timestamp   string      `json:"timestamp"` // RFC3339
}

// MessageReceived is published after a new message is persisted by sync.
type MessageReceived struct {
	MessageID  string `json:"messageId"`
	AccountID  string `json:"accountId"`
	UserID     string `json:"userId"`
	ReceivedAt int64  `json:"receivedAt"` // epoch millis
}

// RecordCreated is published after the analysis engine persists a record.
type RecordCreated struct {
	RecordID  string `json:"recordId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	IsPayment bool   `json:"isPayment"`
}
