package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a fetch failure at the API boundary so callers can
// decide between retrying, recording and aborting without string matching.
type ErrorKind int

const (
	// ErrKindNetwork covers timeouts, connection failures and transient 5xx
	// responses. Retryable.
	ErrKindNetwork ErrorKind = iota
	// ErrKindMalformed means the endpoint answered but the body did not
	// match its schema. Retryable, the next attempt may get a clean body.
	ErrKindMalformed
	// ErrKindNotFound means the exchange does not know the symbol, usually
	// a delisting. Terminal for the symbol, never retried.
	ErrKindNotFound
	// ErrKindLockout means the API reported a punitive ban. Fatal for the
	// whole run, not just the symbol.
	ErrKindLockout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNetwork:
		return "network"
	case ErrKindMalformed:
		return "malformed"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure produced at the market-data fetch
// boundary.
type FetchError struct {
	Symbol   string
	Endpoint string
	Kind     ErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Symbol, e.Endpoint, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the per-symbol retry rounds should attempt the
// symbol again.
func (e *FetchError) Retryable() bool {
	return e.Kind == ErrKindNetwork || e.Kind == ErrKindMalformed
}

// LockoutError signals that the external API banned the client until the
// given time. All further calls to that API must stop for the rest of the
// run.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("api lockout until %s", e.Until.Format(time.RFC3339))
}

// IsLockout reports whether err carries a lockout anywhere in its chain.
func IsLockout(err error) bool {
	var le *LockoutError
	if errors.As(err, &le) {
		return true
	}
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == ErrKindLockout
}

// IsRetryable reports whether the error should be fed back into the bounded
// retry rounds. Unknown errors default to retryable; only confirmed
// delistings and lockouts are excluded.
func IsRetryable(err error) bool {
	if IsLockout(err) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return true
}
