package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failed chat turn.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthenticated
	KindAccountNotActive
	KindInsufficientCredits
	KindNotConfigured
	KindRateLimited
	KindUpstream
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAccountNotActive:
		return "account_not_active"
	case KindInsufficientCredits:
		return "insufficient_credits"
	case KindNotConfigured:
		return "not_configured"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream_error"
	case KindPersistence:
		return "persistence_failure"
	default:
		return "internal_error"
	}
}

// userMessage is the text shown to callers. It never carries upstream or
// storage details.
func (k Kind) userMessage() string {
	switch k {
	case KindUnauthenticated:
		return "Unauthorized"
	case KindAccountNotActive:
		return "Account is not active"
	case KindInsufficientCredits:
		return "Insufficient credits. Please upgrade your plan to continue chatting."
	case KindNotConfigured:
		return "AI service not configured"
	case KindRateLimited:
		return "AI rate limit exceeded. Please wait a minute and try again."
	case KindUpstream:
		return "Failed to get AI response"
	default:
		return "Internal server error"
	}
}

// ErrUnauthenticated is returned when no caller identity was supplied.
var ErrUnauthenticated = errors.New("no authenticated caller")

// Error is the terminal Failed(kind) state of a chat turn.
type Error struct {
	Kind    Kind
	State   State
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s): %v", e.State, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s)", e.State, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal when err is not a gateway
// error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindInternal
}
