// Package store implements the realtime tree database the editor runs on:
// atomic single and multi-path writes, compare-and-set transactions,
// disconnect cleanup and value/child subscriptions.
package store

import (
	"context"
	"errors"
)

var (
	ErrInvalidPath      = errors.New("store: invalid path")
	ErrInvalidValue     = errors.New("store: value is not JSON compatible")
	ErrOverlappingPaths = errors.New("store: update paths overlap")
	ErrClosed           = errors.New("store: connection closed")
	ErrTooManyRetries   = errors.New("store: transaction retried too many times")
	ErrUnknownEvent     = errors.New("store: unknown event kind")
	ErrNoSubscription   = errors.New("store: no such subscription")
)

// MaxTxRetries bounds the compare-and-set loop of a transaction.
const MaxTxRetries = 25

type EventKind string

const (
	EventValue        EventKind = "value"
	EventChildAdded   EventKind = "child_added"
	EventChildChanged EventKind = "child_changed"
	EventChildRemoved EventKind = "child_removed"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventValue, EventChildAdded, EventChildChanged, EventChildRemoved:
		return true
	}
	return false
}

// Event is delivered to a Listener. Key is empty for value events.
type Event struct {
	Kind  EventKind `json:"kind"`
	Path  string    `json:"path"`
	Key   string    `json:"key,omitempty"`
	Value any       `json:"value"`
}

type Listener func(Event)

type SubscriptionID string

type SubscribeOptions struct {
	// OrderBy names a numeric child field used to order the initial
	// child_added events and the events of a single commit.
	OrderBy string
}

// TxFunc receives the current value at the transaction path and returns the
// value to store. Returning ok=false aborts the transaction.
type TxFunc func(current any) (next any, ok bool)

type TxResult struct {
	Committed bool
	Value     any
}

// Store is the contract the synchronization core is written against. Conn is
// the in-process implementation; remote.Client speaks it over a websocket.
type Store interface {
	Read(ctx context.Context, path string) (any, error)
	Write(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, values map[string]any) error
	Append(ctx context.Context, path string, value any) (string, error)
	Remove(ctx context.Context, path string) error
	Transact(ctx context.Context, path string, fn TxFunc) (TxResult, error)
	OnDisconnectRemove(ctx context.Context, path string) error
	CancelOnDisconnect(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string, kind EventKind, opts SubscribeOptions, l Listener) (SubscriptionID, error)
	Unsubscribe(ctx context.Context, id SubscriptionID) error
}

// CompareAndSetter is the primitive transactions are built on.
type CompareAndSetter interface {
	Read(ctx context.Context, path string) (any, error)
	CompareAndSet(ctx context.Context, path string, expected, next any) (swapped bool, current any, err error)
}

// RunTransaction drives fn through an optimistic compare-and-set loop.
func RunTransaction(ctx context.Context, s CompareAndSetter, path string, fn TxFunc) (TxResult, error) {
	current, err := s.Read(ctx, path)
	if err != nil {
		return TxResult{}, err
	}
	for attempt := 0; attempt < MaxTxRetries; attempt++ {
		next, ok := fn(Clone(current))
		if !ok {
			return TxResult{Committed: false, Value: current}, nil
		}
		swapped, latest, err := s.CompareAndSet(ctx, path, current, next)
		if err != nil {
			return TxResult{}, err
		}
		if swapped {
			return TxResult{Committed: true, Value: latest}, nil
		}
		current = latest
	}
	return TxResult{}, ErrTooManyRetries
}
