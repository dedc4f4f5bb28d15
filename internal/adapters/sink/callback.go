package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("sink: channel sink closed")

// BatchFunc receives one buffered batch.
type BatchFunc func(ctx context.Context, records []*domain.Record) error

// NewCallbackSink adapts fn into a ports.Sink so callers can plug arbitrary
// functions without defining structs.
func NewCallbackSink(name string, fn BatchFunc) ports.Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

type callbackSink struct {
	name string
	fn   BatchFunc
}

func (s *callbackSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(ctx, records)
}

func (s *callbackSink) Name() string {
	return s.name
}

// ChannelSink exposes batches on a channel. Close ends the stream.
type ChannelSink struct {
	name string
	ch   chan []*domain.Record

	mu     sync.RWMutex
	closed bool
}

func NewChannelSink(name string, buffer int) *ChannelSink {
	if name == "" {
		name = "channel"
	}
	return &ChannelSink{name: name, ch: make(chan []*domain.Record, max(buffer, 0))}
}

// C is the batch stream. It is closed by Close.
func (s *ChannelSink) C() <-chan []*domain.Record {
	return s.ch
}

// WriteBatch blocks until the batch is received, ctx is done, or the sink
// is closed.
func (s *ChannelSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrChannelSinkClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- records:
		return nil
	}
}

func (s *ChannelSink) Name() string {
	return s.name
}

// Close waits for in-flight writes and closes the channel.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

var _ ports.Sink = (*ChannelSink)(nil)
