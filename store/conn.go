package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Conn is one session's handle on a Tree. Its listeners are called one at a
// time, in commit order, on the connection's own goroutine.
type Conn struct {
	tree     *Tree
	id       string
	dispatch *Dispatcher

	mu      sync.Mutex
	closed  bool
	cleanup map[string][]string
}

var _ Store = (*Conn)(nil)

func (c *Conn) ID() string { return c.id }

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Conn) Read(ctx context.Context, path string) (any, error) {
	v, err := c.read(ctx, path)
	observe("read", err)
	return v, err
}

func (c *Conn) read(ctx context.Context, path string) (any, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	return c.tree.read(parts), nil
}

func (c *Conn) Write(ctx context.Context, path string, value any) error {
	err := c.write(ctx, path, value)
	observe("write", err)
	return err
}

func (c *Conn) write(ctx context.Context, path string, value any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	w, err := makeWrite(path, value)
	if err != nil {
		return err
	}
	c.tree.apply([]write{w})
	return nil
}

func makeWrite(path string, value any) (write, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return write{}, err
	}
	v, err := Normalize(value)
	if err != nil {
		return write{}, err
	}
	if len(parts) == 0 && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return write{}, fmt.Errorf("%w: root must be an object", ErrInvalidPath)
		}
	}
	return write{parts: parts, value: v}, nil
}

func (c *Conn) Update(ctx context.Context, path string, values map[string]any) error {
	err := c.update(ctx, path, values)
	observe("update", err)
	return err
}

func (c *Conn) update(ctx context.Context, path string, values map[string]any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	writes, err := makeUpdate(path, values)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	c.tree.apply(writes)
	return nil
}

// makeUpdate resolves the sub-paths of a multi-path update against base and
// rejects overlapping entries.
func makeUpdate(base string, values map[string]any) ([]write, error) {
	baseParts, err := SplitPath(base)
	if err != nil {
		return nil, err
	}
	writes := make([]write, 0, len(values))
	for sub, value := range values {
		subParts, err := SplitPath(sub)
		if err != nil {
			return nil, err
		}
		if len(subParts) == 0 {
			return nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}
		v, err := Normalize(value)
		if err != nil {
			return nil, err
		}
		parts := append(append([]string{}, baseParts...), subParts...)
		writes = append(writes, write{parts: parts, value: v})
	}
	for i := range writes {
		for j := range writes {
			if i != j && isPrefix(writes[i].parts, writes[j].parts) {
				return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingPaths,
					JoinPath(writes[i].parts...), JoinPath(writes[j].parts...))
			}
		}
	}
	return writes, nil
}

// NewKey returns a unique child key; keys sort by creation time.
func NewKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (c *Conn) Append(ctx context.Context, path string, value any) (string, error) {
	key, err := c.append(ctx, path, value)
	observe("append", err)
	return key, err
}

func (c *Conn) append(ctx context.Context, path string, value any) (string, error) {
	if value == nil {
		return "", ErrInvalidValue
	}
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	if err := c.write(ctx, JoinPath(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	err := c.write(ctx, path, nil)
	observe("remove", err)
	return err
}

func (c *Conn) CompareAndSet(ctx context.Context, path string, expected, next any) (bool, any, error) {
	if err := c.check(ctx); err != nil {
		return false, nil, err
	}
	want, err := Normalize(expected)
	if err != nil {
		return false, nil, err
	}
	w, err := makeWrite(path, next)
	if err != nil {
		return false, nil, err
	}
	swapped, current := c.tree.compareAndSet(w.parts, want, w.value)
	return swapped, current, nil
}

func (c *Conn) Transact(ctx context.Context, path string, fn TxFunc) (TxResult, error) {
	res, err := RunTransaction(ctx, c, path, fn)
	observe("transact", err)
	return res, err
}

func (c *Conn) OnDisconnectRemove(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cleanup[JoinPath(parts...)] = parts
	c.mu.Unlock()
	return nil
}

func (c *Conn) CancelOnDisconnect(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.cleanup, JoinPath(parts...))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, path string, kind EventKind, opts SubscribeOptions, l Listener) (SubscriptionID, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	parts, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return c.tree.subscribe(c, parts, kind, opts, l), nil
}

func (c *Conn) Unsubscribe(ctx context.Context, id SubscriptionID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.tree.unsubscribe(c, id)
}

// Sync waits until every event queued for this connection so far has been
// delivered. Not to be called from a listener.
func (c *Conn) Sync(ctx context.Context) error {
	return c.dispatch.Flush(ctx)
}

// Close ends the session: subscriptions are dropped and the registered
// disconnect cleanups run. Closing twice is a no-op.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cleanup := make([]write, 0, len(c.cleanup))
	for _, parts := range c.cleanup {
		cleanup = append(cleanup, write{parts: parts})
	}
	c.cleanup = nil
	c.mu.Unlock()

	c.tree.disconnect(c, cleanup)
	c.dispatch.Close()
}
