// Package pipeline wires Source → Decoder → Transformations → buffer → Sink
// and runs the chain once to completion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// cancelFlushTimeout bounds the final sink write of a cancelled pipeline.
const cancelFlushTimeout = 5 * time.Second

var (
	ErrStageAlreadySet = errors.New("pipeline: stage already set")
	ErrMissingStage    = errors.New("pipeline: missing stage")
	ErrAlreadyStarted  = errors.New("pipeline: already started")
)

// State is the lifecycle position of a pipeline.
type State int32

const (
	Created State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// OnClose is called once when a started pipeline finishes. err is the
// cause of an abnormal finish, nil otherwise.
type OnClose func(p *Pipeline, err error) error

// Pipeline is built with the Set methods and started with Run. Every stage
// can be set once.
type Pipeline struct {
	name string
	log  logrus.FieldLogger
	obs  ports.Observability

	source     ports.Source
	decoder    ports.Decoder
	transforms []ports.Transformation
	buffer     *BufferConfig
	sink       ports.Sink
	onClose    OnClose

	rethrowDecodeErrors bool

	mu    sync.Mutex
	state State
	err   error
	stats stats
}

// New returns an empty pipeline in the CREATED state.
func New(name string, log logrus.FieldLogger, obs ports.Observability) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if obs == nil {
		obs = ports.Nop{}
	}
	return &Pipeline{
		name: name,
		log:  log.WithField("pipeline", name),
		obs:  obs,
	}
}

func (p *Pipeline) Name() string {
	return p.name
}

func stageSet(stage string) error {
	return fmt.Errorf("%w: %s", ErrStageAlreadySet, stage)
}

func (p *Pipeline) SetSource(s ports.Source) error {
	if p.source != nil {
		return stageSet("source")
	}
	p.source = s
	return nil
}

// SetDecoder sets the decoder. With rethrow, a decode failure finishes the
// pipeline instead of dropping the frame.
func (p *Pipeline) SetDecoder(d ports.Decoder, rethrow bool) error {
	if p.decoder != nil {
		return stageSet("decoder")
	}
	p.decoder = d
	p.rethrowDecodeErrors = rethrow
	return nil
}

// AddTransformation appends t to the transformation chain.
func (p *Pipeline) AddTransformation(t ports.Transformation) error {
	if t == nil {
		return errors.New("pipeline: nil transformation")
	}
	p.transforms = append(p.transforms, t)
	return nil
}

func (p *Pipeline) SetBuffer(cfg BufferConfig) error {
	if p.buffer != nil {
		return stageSet("buffer")
	}
	p.buffer = &cfg
	return nil
}

func (p *Pipeline) SetSink(s ports.Sink) error {
	if p.sink != nil {
		return stageSet("sink")
	}
	p.sink = s
	return nil
}

func (p *Pipeline) SetOnClose(fn OnClose) error {
	if p.onClose != nil {
		return stageSet("on_close")
	}
	p.onClose = fn
	return nil
}

// State reports the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err is the cause of an abnormal finish.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipeline) validate() error {
	var missing []error
	if p.source == nil {
		missing = append(missing, fmt.Errorf("%w: source", ErrMissingStage))
	}
	if p.decoder == nil {
		missing = append(missing, fmt.Errorf("%w: decoder", ErrMissingStage))
	}
	if p.sink == nil {
		missing = append(missing, fmt.Errorf("%w: sink", ErrMissingStage))
	}
	return errors.Join(missing...)
}

func (p *Pipeline) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Created {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyStarted, p.name, p.state)
	}
	p.state = Running
	return nil
}

// Run validates the stages and runs the pipeline until the source is
// exhausted, a stage fails fatally, or ctx is cancelled. A pipeline runs at
// most once.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if err := p.validate(); err != nil {
		p.log.WithError(err).Error("pipeline is not runnable")
		return err
	}
	if err := p.start(); err != nil {
		return err
	}
	defer func() { p.finish(err) }()

	buffer := DefaultBufferConfig()
	if p.buffer != nil {
		buffer = p.buffer.withDefaults()
	}
	p.log.WithFields(logrus.Fields{
		"source":    p.source.Name(),
		"sink":      p.sink.Name(),
		"max_items": buffer.MaxItems,
		"max_wait":  buffer.maxWait().String(),
	}).Info("pipeline started")

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan []byte, buffer.MaxItems)
	g.Go(func() error {
		defer close(frames)
		if err := p.source.Start(gctx, frames); err != nil {
			return fmt.Errorf("source %s: %w", p.source.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		return p.process(gctx, frames, newBatcher(buffer))
	})
	return g.Wait()
}

// Discard finishes a pipeline that was never run and invokes its on-close
// callback. It does nothing once Run was called.
func (p *Pipeline) Discard() {
	p.mu.Lock()
	if p.state != Created {
		p.mu.Unlock()
		return
	}
	p.state = Finished
	p.mu.Unlock()

	p.log.Info("pipeline discarded")
	p.close(nil)
}

func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	p.state = Finished
	p.err = err
	p.mu.Unlock()

	entry := p.log.WithFields(p.Stats().LogFields())
	if err != nil {
		entry.WithError(err).Error("pipeline finished with error")
	} else {
		entry.Info("pipeline finished")
	}
	p.close(err)
}

func (p *Pipeline) close(cause error) {
	if p.onClose == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.WithField("panic", rec).Error("on close callback panicked")
		}
	}()
	if err := p.onClose(p, cause); err != nil {
		p.log.WithError(err).Error("on close callback failed")
	}
}

func (p *Pipeline) process(ctx context.Context, frames <-chan []byte, b *batcher) error {
	defer b.stop()
	for {
		select {
		case <-ctx.Done():
			return p.flushCancelled(ctx, frames, b)
		case frame, ok := <-frames:
			if !ok {
				return p.write(ctx, b.take())
			}
			rec, err := p.handle(frame)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if full := b.add(rec); full {
				if err := p.write(ctx, b.take()); err != nil {
					return err
				}
			}
		case <-b.expired():
			if err := p.write(ctx, b.take()); err != nil {
				return err
			}
		}
	}
}

// flushCancelled writes what is buffered, plus frames already handed over by
// the source, after ctx is done. The writes use a detached context bounded
// by cancelFlushTimeout.
func (p *Pipeline) flushCancelled(ctx context.Context, frames <-chan []byte, b *batcher) error {
	cause := ctx.Err()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelFlushTimeout)
	defer cancel()

	flushed := 0
	write := func(batch []*domain.Record) error {
		if err := p.write(wctx, batch); err != nil {
			p.log.WithError(err).WithField("records", len(batch)).Error("buffered records lost on cancellation")
			return errors.Join(cause, err)
		}
		flushed += len(batch)
		return nil
	}
	for pending := true; pending; {
		select {
		case frame, ok := <-frames:
			if !ok {
				pending = false
				break
			}
			rec, err := p.handle(frame)
			if err != nil {
				return errors.Join(cause, err)
			}
			if rec != nil && b.add(rec) {
				if err := write(b.take()); err != nil {
					return err
				}
			}
		default:
			pending = false
		}
	}
	if err := write(b.take()); err != nil {
		return err
	}
	if flushed > 0 {
		p.log.WithField("records", flushed).Info("buffered records flushed on cancellation")
	}
	return cause
}

// handle decodes a frame and runs it through the transformation chain. A
// nil record means the frame was dropped.
func (p *Pipeline) handle(frame []byte) (*domain.Record, error) {
	p.stats.received.Add(1)
	p.obs.IncCounter(ports.MetricRecordsReceived, 1, p.name)

	rec, err := p.decoder.Decode(frame)
	if err != nil {
		if p.rethrowDecodeErrors {
			return nil, fmt.Errorf("decode: %w", err)
		}
		p.drop("decode", nil, err)
		p.log.WithField("stage", "decode").WithField("frame_bytes", len(frame)).WithError(err).Warn("frame dropped")
		return nil, nil
	}
	p.stats.decoded.Add(1)

	for _, t := range p.transforms {
		out, err := p.transform(t, rec)
		if err != nil {
			p.drop(t.Name(), rec, err)
			recordLog(p.log, rec).WithField("stage", t.Name()).WithError(err).Warn("record dropped")
			return nil, nil
		}
		if out == nil {
			p.drop(t.Name(), rec, nil)
			recordLog(p.log, rec).WithField("stage", t.Name()).Debug("record filtered")
			return nil, nil
		}
		rec = out
	}
	return rec, nil
}

func (p *Pipeline) transform(t ports.Transformation, rec *domain.Record) (out *domain.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transformation panicked: %v", r)
		}
	}()
	return t.Transform(rec)
}

func (p *Pipeline) drop(stage string, rec *domain.Record, err error) {
	p.stats.dropped.Add(1)
	p.obs.RecordDropped(p.name, stage, rec, err)
}

func (p *Pipeline) write(ctx context.Context, batch []*domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := p.sink.WriteBatch(ctx, batch); err != nil {
		return fmt.Errorf("sink %s: %w", p.sink.Name(), err)
	}
	p.obs.ObserveLatency(ports.MetricSinkLatency, time.Since(start).Seconds(), p.name)
	p.obs.IncCounter(ports.MetricRecordsWritten, float64(len(batch)), p.name)
	p.obs.IncCounter(ports.MetricBatchesWritten, 1, p.name)
	p.stats.written.Add(int64(len(batch)))
	p.stats.batches.Add(1)
	return nil
}

// recordLog annotates entry with the identifiers of r.
func recordLog(entry logrus.FieldLogger, r *domain.Record) logrus.FieldLogger {
	fields := logrus.Fields{"kind": r.Type.String()}
	if callID, pcID := domain.CallAndPeerConnection(r); callID != "" {
		fields["call_id"] = callID
		if pcID != "" {
			fields["pc_id"] = pcID
		}
	}
	return entry.WithFields(fields)
}

type stats struct {
	received atomic.Int64
	decoded  atomic.Int64
	dropped  atomic.Int64
	written  atomic.Int64
	batches  atomic.Int64
}

// Stats counts frames and records seen by a pipeline.
type Stats struct {
	Received int64
	Decoded  int64
	Dropped  int64
	Written  int64
	Batches  int64
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Received: p.stats.received.Load(),
		Decoded:  p.stats.decoded.Load(),
		Dropped:  p.stats.dropped.Load(),
		Written:  p.stats.written.Load(),
		Batches:  p.stats.batches.Load(),
	}
}

func (s Stats) LogFields() logrus.Fields {
	return logrus.Fields{
		"received": s.Received,
		"decoded":  s.Decoded,
		"dropped":  s.Dropped,
		"written":  s.Written,
		"batches":  s.Batches,
	}
}
