package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoRateLimiter is returned by TakeResult when no permissive rate
	// limiter handled the request.
	ErrNoRateLimiter = errors.New("no permissive rate limiter ran for this request")

	// ErrResultTaken is returned by TakeResult once the result was consumed.
	ErrResultTaken = errors.New("rate limit result already taken")
)

// ResultKind classifies a permissive-mode Result.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultWait
	ResultWhitelisted
	ResultExtractionError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultWait:
		return "wait"
	case ResultWhitelisted:
		return "whitelisted"
	case ResultExtractionError:
		return "extraction_error"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is what a permissive limiter would have decided for a request.
// Limit and Remaining are set for ResultOK, Limit and RetryAfter (seconds)
// for ResultWait, Message for ResultExtractionError.
type Result struct {
	Kind       ResultKind `json:"kind"`
	Limit      uint32     `json:"limit,omitempty"`
	Remaining  uint32     `json:"remaining,omitempty"`
	RetryAfter uint64     `json:"retry_after,omitempty"`
	Message    string     `json:"message,omitempty"`
}

type resultKey struct{}

type resultSlot struct {
	mu     sync.Mutex
	result Result
	taken  bool
}

// WithResult returns a copy of ctx carrying r for a single TakeResult.
func WithResult(ctx context.Context, r Result) context.Context {
	return context.WithValue(ctx, resultKey{}, &resultSlot{result: r})
}

// TakeResult removes and returns the Result attached by a permissive
// limiter. Calling it on a request no limiter handled is a wiring mistake
// and fails with ErrNoRateLimiter.
func TakeResult(ctx context.Context) (Result, error) {
	slot, ok := ctx.Value(resultKey{}).(*resultSlot)
	if !ok {
		return Result{}, ErrNoRateLimiter
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.taken {
		return Result{}, ErrResultTaken
	}
	slot.taken = true
	return slot.result, nil
}
