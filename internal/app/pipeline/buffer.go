package pipeline

import (
	"time"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

const DefaultMaxItems = 1000

// BufferConfig controls batching ahead of the sink. Below one second of
// MaxWaitSeconds batches are cut by count only.
type BufferConfig struct {
	MaxItems       int `yaml:"max_items"`
	MaxWaitSeconds int `yaml:"max_wait_seconds"`
}

func DefaultBufferConfig() BufferConfig {
	return BufferConfig{MaxItems: DefaultMaxItems}
}

func (c BufferConfig) withDefaults() BufferConfig {
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	return c
}

func (c BufferConfig) maxWait() time.Duration {
	if c.MaxWaitSeconds < 1 {
		return 0
	}
	return time.Duration(c.MaxWaitSeconds) * time.Second
}

// batcher accumulates records and, when a max wait is set, arms a timer on
// the first record of every batch.
type batcher struct {
	maxItems int
	maxWait  time.Duration
	items    []*domain.Record
	timer    *time.Timer
}

func newBatcher(cfg BufferConfig) *batcher {
	return &batcher{maxItems: cfg.MaxItems, maxWait: cfg.maxWait()}
}

// add appends r and reports whether the batch is full.
func (b *batcher) add(r *domain.Record) bool {
	if b.items == nil {
		b.items = make([]*domain.Record, 0, b.maxItems)
		if b.maxWait > 0 {
			b.timer = time.NewTimer(b.maxWait)
		}
	}
	b.items = append(b.items, r)
	return len(b.items) >= b.maxItems
}

// take returns the pending batch and resets the batcher.
func (b *batcher) take() []*domain.Record {
	out := b.items
	b.items = nil
	b.stop()
	return out
}

// expired fires when the pending batch has waited maxWait. It is nil while
// no timer is armed.
func (b *batcher) expired() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

func (b *batcher) stop() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
