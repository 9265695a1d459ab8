package dto

import "time"

type SyncOptions struct {
	MaxResults int64
}

type SyncResult struct {
	AccountID string `json:"accountId"`
	Synced    int    `json:"synced"`
	Skipped   int    `json:"skipped"`
}

type RefreshSummary struct {
	Provider  string `json:"provider"`
	Refreshed int    `json:"refreshed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

type BatchAnalysisResult struct {
	Processed int `json:"processed"`
	Payments  int `json:"payments"`
	Failed    int `json:"failed"`
}

type QueueStatus struct {
	Depth            int        `json:"depth"`
	Capacity         int        `json:"capacity"`
	ProducerRunning  bool       `json:"producerRunning"`
	ConsumerRunning  bool       `json:"consumerRunning"`
	TotalEnqueued    int        `json:"totalEnqueued"`
	TotalProcessed   int        `json:"totalProcessed"`
	TotalFailed      int        `json:"totalFailed"`
	LastConsumerTick *time.Time `json:"lastConsumerTick,omitempty"`
}

type QueueFillResult struct {
	Enqueued int `json:"enqueued"`
	Depth    int `json:"depth"`
}

type QueueDrainResult struct {
	Processed int `json:"processed"`
	Payments  int `json:"payments"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

type DuplicateGroup struct {
	PrimaryID    string   `json:"primaryId"`
	DuplicateIDs []string `json:"duplicateIds"`
}

type MonthlyStat struct {
	Month    string  `json:"month"` // YYYY-MM
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

type DailyStat struct {
	Day      string  `json:"day"` // YYYY-MM-DD
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}
