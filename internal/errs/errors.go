package errs

import (
	"github.com/pkg/errors"
)

// Sentinel errors for the failure classes the rest of the system branches on.
var (
	// ErrReauthRequired means the account's token cannot be refreshed and
	// the user must repeat the authorization flow. Never auto-retried.
	ErrReauthRequired = errors.New("reauthentication required")

	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning is returned when a periodic actor is triggered
	// while a previous run is still in flight.
	ErrAlreadyRunning = errors.New("already running")
)

// ProviderError wraps a failure from the mailbox provider that is local to
// one message or attachment. Callers log it and continue the batch.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return "provider: " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseError marks a malformed message structure. The message is skipped
// and not persisted.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return "parse " + e.MessageID + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ClassifierError wraps a failed classifier call. The message stays
// unanalyzed; no partial record is persisted.
type ClassifierError struct {
	StatusCode int
	Err        error
}

func (e *ClassifierError) Error() string {
	return "classifier: " + e.Err.Error()
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}
