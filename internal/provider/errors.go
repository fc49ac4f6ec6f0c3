package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure for retry purposes.
type Kind int

const (
	// KindTransient failures (timeout, quota, 5xx-equivalent) are
	// eligible for fallback to the next provider in the chain.
	KindTransient Kind = iota
	// KindPermanent failures (malformed request, auth) are surfaced
	// immediately and never retried across providers.
	KindPermanent
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Status   int
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status to a failure kind: timeouts, rate
// limits and server errors are transient; everything else (bad request,
// auth) is permanent.
func classifyStatus(status int) Kind {
	switch {
	case status == 408, status == 429, status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// IsTransient reports whether err is eligible for provider fallback.
// Unclassified errors (network failures, exceeded deadlines) are treated
// as transient; only an explicit permanent classification stops the chain.
func IsTransient(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindTransient
	}
	return true
}
