// Package dedup drops duplicate call lifecycle events from a telemetry
// stream while keeping its bookkeeping bounded by periodic cleanup.
package dedup

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

const (
	DefaultCleanupThreshold      = 100000
	DefaultCleanupPeriodInCycles = 10000
)

var ErrInvalidConfig = errors.New("dedup: invalid config")

// Config tunes the cleanup cadence. Counts are in records observed.
type Config struct {
	// CleanupThreshold is how many cycles a finished call is remembered. Nil
	// selects DefaultCleanupThreshold; 0 evicts finished calls on every pass.
	CleanupThreshold      *int64 `yaml:"cleanup_threshold"`
	CleanupPeriodInCycles int64  `yaml:"cleanup_period_in_cycles"`
	// SpinSleepMs is accepted and ignored.
	SpinSleepMs int `yaml:"spin_sleep_ms"`
	// AbandonedCallHorizon, when positive, also evicts calls that were never
	// finished once no record touched them for this many cycles.
	AbandonedCallHorizon int64 `yaml:"abandoned_call_horizon"`
}

func (c *Config) applyDefaults() {
	if c.CleanupThreshold == nil {
		n := int64(DefaultCleanupThreshold)
		c.CleanupThreshold = &n
	}
	if c.CleanupPeriodInCycles == 0 {
		c.CleanupPeriodInCycles = DefaultCleanupPeriodInCycles
	}
}

func (c Config) validate() error {
	switch {
	case *c.CleanupThreshold < 0:
		return errors.Join(ErrInvalidConfig, errors.New("cleanup_threshold must be >= 0"))
	case c.CleanupPeriodInCycles <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("cleanup_period_in_cycles must be > 0"))
	case c.AbandonedCallHorizon < 0:
		return errors.Join(ErrInvalidConfig, errors.New("abandoned_call_horizon must be >= 0"))
	}
	return nil
}

type set map[string]struct{}

// Engine decides, record by record, whether a record is a duplicate. An
// Engine belongs to one pipeline.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	mu       sync.Mutex
	counter  int64
	calls    set
	joined   map[string]set
	detached map[string]set
	finished map[string]int64
	touched  map[string]int64
	passes   int64
	evicted  int64
}

// Stats is a snapshot of the engine's bookkeeping sizes.
type Stats struct {
	Counter       int64
	Calls         int
	Joined        int
	Detached      int
	Finished      int
	CleanupPasses int64
	Evicted       int64
}

// New validates cfg, filling zero values with defaults.
func New(cfg Config, log logrus.FieldLogger) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Engine{
		cfg:      cfg,
		log:      log.WithField("component", "dedup"),
		calls:    set{},
		joined:   map[string]set{},
		detached: map[string]set{},
		finished: map[string]int64{},
		touched:  map[string]int64{},
	}, nil
}

// Keep reports whether r should continue down the pipeline. Every call
// advances the engine counter; every CleanupPeriodInCycles calls a cleanup
// pass runs.
func (e *Engine) Keep(r *domain.Record) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counter++
	keep := e.decide(r)
	if e.counter%e.cfg.CleanupPeriodInCycles == 0 {
		e.cleanupLocked()
	}
	return keep
}

func (e *Engine) decide(r *domain.Record) bool {
	if r == nil {
		return false
	}
	switch p := r.Payload.(type) {
	case *domain.CallInitiated:
		_, seen := e.calls[p.CallID]
		e.calls[p.CallID] = struct{}{}
		e.touch(p.CallID)
		if seen {
			e.dropped(r, p.CallID, "")
		}
		return !seen
	case *domain.CallFinished:
		_, seen := e.finished[p.CallID]
		e.finished[p.CallID] = e.counter
		e.touch(p.CallID)
		if seen {
			e.dropped(r, p.CallID, "")
		}
		return !seen
	case *domain.PeerConnectionJoined:
		return e.firstPeerConnection(e.joined, r, p.CallID, p.PeerConnectionID)
	case *domain.PeerConnectionDetached:
		return e.firstPeerConnection(e.detached, r, p.CallID, p.PeerConnectionID)
	}
	return true
}

func (e *Engine) firstPeerConnection(byCall map[string]set, r *domain.Record, callID, pcID string) bool {
	pcs, ok := byCall[callID]
	if !ok {
		pcs = set{}
		byCall[callID] = pcs
	}
	_, seen := pcs[pcID]
	pcs[pcID] = struct{}{}
	e.touch(callID)
	if seen {
		e.dropped(r, callID, pcID)
	}
	return !seen
}

func (e *Engine) touch(callID string) {
	if e.cfg.AbandonedCallHorizon > 0 {
		e.touched[callID] = e.counter
	}
}

func (e *Engine) dropped(r *domain.Record, callID, pcID string) {
	fields := logrus.Fields{"kind": r.Type.String(), "call_id": callID, "counter": e.counter}
	if pcID != "" {
		fields["pc_id"] = pcID
	}
	e.log.WithFields(fields).Debug("duplicate record dropped")
}

// Cleanup runs a cleanup pass immediately.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanupLocked()
}

// cleanupLocked evicts every finished call whose last finish is at least
// CleanupThreshold cycles old, and, with an abandoned horizon configured,
// every call left untouched that long. A failing pass is logged and leaves
// the engine usable.
func (e *Engine) cleanupLocked() {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.WithField("panic", rec).Error("dedup cleanup failed")
		}
	}()

	e.passes++
	threshold := max(0, e.counter-*e.cfg.CleanupThreshold)
	var evict []string
	for callID, at := range e.finished {
		if at <= threshold {
			evict = append(evict, callID)
		}
	}
	if e.cfg.AbandonedCallHorizon > 0 {
		horizon := max(0, e.counter-e.cfg.AbandonedCallHorizon)
		for callID, at := range e.touched {
			if _, finished := e.finished[callID]; !finished && at <= horizon {
				evict = append(evict, callID)
			}
		}
	}
	for _, callID := range evict {
		e.forget(callID)
	}
	e.evicted += int64(len(evict))
	if len(evict) > 0 {
		e.log.WithFields(logrus.Fields{"evicted": len(evict), "counter": e.counter}).Debug("dedup cleanup")
	}
}

func (e *Engine) forget(callID string) {
	delete(e.calls, callID)
	delete(e.joined, callID)
	delete(e.detached, callID)
	delete(e.finished, callID)
	delete(e.touched, callID)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Counter:       e.counter,
		Calls:         len(e.calls),
		Joined:        len(e.joined),
		Detached:      len(e.detached),
		Finished:      len(e.finished),
		CleanupPasses: e.passes,
		Evicted:       e.evicted,
	}
}
