package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

var (
	ErrQueueFull = errors.New("source: queue full")
	ErrClosed    = errors.New("source: closed")
)

// Full-queue policies of a Memory source.
const (
	OnFullBlock  = "block"
	OnFullDrop   = "drop"
	OnFullReject = "reject"
)

type MemoryConfig struct {
	Capacity  int           `yaml:"capacity"`
	OnFull    string        `yaml:"on_full"`
	IdleSleep time.Duration `yaml:"idle_sleep"`
	MaxBatch  int           `yaml:"max_batch"`
}

func (c *MemoryConfig) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.OnFull == "" {
		c.OnFull = OnFullBlock
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 5 * time.Millisecond
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 64
	}
}

// Memory is a bounded in-memory FIFO of frames that feeds one pipeline at a
// time. Producers Push; Close ends production once the queue drains.
type Memory struct {
	name string
	cfg  MemoryConfig
	obs  ports.Observability

	mu     sync.Mutex
	data   [][]byte
	closed bool

	notify   chan struct{}
	attached atomic.Bool
	drained  atomic.Bool
	dropped  atomic.Int64
}

func NewMemory(name string, cfg MemoryConfig, obs ports.Observability) (*Memory, error) {
	cfg.applyDefaults()
	switch cfg.OnFull {
	case OnFullBlock, OnFullDrop, OnFullReject:
	default:
		return nil, fmt.Errorf("source %s: unknown on_full policy %q", name, cfg.OnFull)
	}
	if obs == nil {
		obs = ports.Nop{}
	}
	return &Memory{
		name:   name,
		cfg:    cfg,
		obs:    obs,
		data:   make([][]byte, 0, cfg.Capacity),
		notify: make(chan struct{}, 1),
	}, nil
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) tryEnqueue(frame []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if len(m.data) >= m.cfg.Capacity {
		return false, nil
	}
	m.data = append(m.data, frame)
	m.obs.SetGauge(ports.MetricSourceQueue, float64(len(m.data)), m.name)
	return true, nil
}

// Push enqueues frame following the configured full-queue policy. A frame
// dropped by the drop policy is not an error.
func (m *Memory) Push(ctx context.Context, frame []byte) error {
	for {
		ok, err := m.tryEnqueue(frame)
		if err != nil {
			return err
		}
		if ok {
			m.signal()
			return nil
		}

		switch m.cfg.OnFull {
		case OnFullBlock:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.IdleSleep):
			}
		case OnFullDrop:
			m.dropped.Add(1)
			return nil
		default:
			return fmt.Errorf("%w: capacity %d", ErrQueueFull, m.cfg.Capacity)
		}
	}
}

// Dropped counts frames discarded by the drop policy.
func (m *Memory) Dropped() int64 {
	return m.dropped.Load()
}

// Len is the number of queued frames.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Close stops accepting frames. Start returns after the queue drains.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// spent reports whether a consumer has delivered every frame of the closed
// queue.
func (m *Memory) spent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && len(m.data) == 0 && m.drained.Load()
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Memory) dequeueBatch(max int) ([][]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, m.closed
	}
	if max <= 0 || max > len(m.data) {
		max = len(m.data)
	}
	out := make([][]byte, max)
	copy(out, m.data[:max])
	m.data = append(m.data[:0], m.data[max:]...)
	m.obs.SetGauge(ports.MetricSourceQueue, float64(len(m.data)), m.name)
	return out, false
}

// requeue puts undelivered frames back at the head of the queue.
func (m *Memory) requeue(frames [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(frames[:len(frames):len(frames)], m.data...)
	m.obs.SetGauge(ports.MetricSourceQueue, float64(len(m.data)), m.name)
}

// Start delivers frames to out until the queue is closed and empty or ctx
// is done. Only one Start may run at a time; the queue can be attached again
// once it returns.
func (m *Memory) Start(ctx context.Context, out chan<- []byte) error {
	if !m.attached.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ports.ErrAlreadyAttached, m.name)
	}
	defer m.attached.Store(false)
	for {
		batch, closed := m.dequeueBatch(m.cfg.MaxBatch)
		if closed {
			m.drained.Store(true)
			return nil
		}
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.notify:
			}
			continue
		}
		for i, frame := range batch {
			select {
			case <-ctx.Done():
				m.requeue(batch[i:])
				return ctx.Err()
			case out <- frame:
			}
		}
	}
}

var _ ports.Source = (*Memory)(nil)
