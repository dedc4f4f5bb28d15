package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

type sliceSource struct {
	frames  []string
	starts  atomic.Int32
	hold    chan struct{}
	holdAt  int
	stopped chan error
}

func (s *sliceSource) Name() string {
	return "slice"
}

func (s *sliceSource) Start(ctx context.Context, out chan<- []byte) error {
	s.starts.Add(1)
	for i, f := range s.frames {
		if s.hold != nil && i == s.holdAt {
			select {
			case <-s.hold:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- []byte(f):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// blockingSource emits its frames and then waits for cancellation.
type blockingSource struct {
	sliceSource
}

func (s *blockingSource) Start(ctx context.Context, out chan<- []byte) error {
	if err := s.sliceSource.Start(ctx, out); err != nil {
		return err
	}
	<-ctx.Done()
	if s.stopped != nil {
		s.stopped <- ctx.Err()
	}
	return ctx.Err()
}

// seqDecoder decodes a frame "n" into a Track record with TrackID n.
// Frames starting with "!" fail.
type seqDecoder struct{}

func (seqDecoder) Decode(frame []byte) (*domain.Record, error) {
	if len(frame) > 0 && frame[0] == '!' {
		return nil, errors.New("bad frame")
	}
	return domain.NewRecord(domain.Header{Type: domain.TypeTrack}, &domain.Track{CallID: "c", TrackID: string(frame)})
}

type captureSink struct {
	mu      sync.Mutex
	batches [][]string
	fail    error
	written chan int
}

func (s *captureSink) Name() string {
	return "capture"
}

func (s *captureSink) WriteBatch(_ context.Context, records []*domain.Record) error {
	if s.fail != nil {
		return s.fail
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.Payload.(*domain.Track).TrackID
	}
	s.mu.Lock()
	s.batches = append(s.batches, ids)
	s.mu.Unlock()
	if s.written != nil {
		s.written <- len(ids)
	}
	return nil
}

func (s *captureSink) got() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.batches...)
}

func frames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func build(t *testing.T, src ports.Source, sink ports.Sink, buf BufferConfig) *Pipeline {
	t.Helper()
	p := New("test", quietLogger(), nil)
	if err := p.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := p.SetDecoder(seqDecoder{}, false); err != nil {
		t.Fatalf("SetDecoder: %v", err)
	}
	if err := p.SetBuffer(buf); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	if err := p.SetSink(sink); err != nil {
		t.Fatalf("SetSink: %v", err)
	}
	return p
}

func TestCountBufferingSplitsBatches(t *testing.T) {
	sink := &captureSink{}
	p := build(t, &sliceSource{frames: frames(7)}, sink, BufferConfig{MaxItems: 3, MaxWaitSeconds: 0})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := sink.got()
	want := [][]string{{"1", "2", "3"}, {"4", "5", "6"}, {"7"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d batches, got %v", len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("batch %d: expected %v, got %v", i, want[i], got[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("batch %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	}
	if p.State() != Finished || p.Err() != nil {
		t.Fatalf("expected clean finish, got %s err=%v", p.State(), p.Err())
	}
	if s := p.Stats(); s.Received != 7 || s.Written != 7 || s.Batches != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTimedBufferingFlushesPartialBatch(t *testing.T) {
	hold := make(chan struct{})
	src := &sliceSource{frames: frames(3), hold: hold, holdAt: 2}
	sink := &captureSink{written: make(chan int, 4)}
	p := build(t, src, sink, BufferConfig{MaxItems: 100, MaxWaitSeconds: 1})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case n := <-sink.written:
		if n != 2 {
			t.Fatalf("expected the timer to flush 2 records, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timer never flushed the batch")
	}
	close(hold)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.got(); len(got) != 2 || len(got[1]) != 1 || got[1][0] != "3" {
		t.Fatalf("unexpected batches %v", got)
	}
}

func TestStageCanBeSetOnce(t *testing.T) {
	p := New("p", quietLogger(), nil)
	if err := p.SetSource(&sliceSource{}); err != nil {
		t.Fatalf("first SetSource: %v", err)
	}
	if err := p.SetSource(&sliceSource{}); !errors.Is(err, ErrStageAlreadySet) {
		t.Fatalf("expected ErrStageAlreadySet, got %v", err)
	}
	if err := p.SetSink(&captureSink{}); err != nil {
		t.Fatalf("SetSink: %v", err)
	}
	if err := p.SetSink(&captureSink{}); !errors.Is(err, ErrStageAlreadySet) {
		t.Fatalf("expected ErrStageAlreadySet for sink, got %v", err)
	}
	if err := p.SetBuffer(BufferConfig{}); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	if err := p.SetBuffer(BufferConfig{}); !errors.Is(err, ErrStageAlreadySet) {
		t.Fatalf("expected ErrStageAlreadySet for buffer, got %v", err)
	}
}

func TestMissingSinkFailsBeforeSource(t *testing.T) {
	src := &sliceSource{frames: frames(1)}
	p := New("p", quietLogger(), nil)
	_ = p.SetSource(src)
	_ = p.SetDecoder(seqDecoder{}, false)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrMissingStage) {
		t.Fatalf("expected ErrMissingStage, got %v", err)
	}
	if src.starts.Load() != 0 {
		t.Fatalf("source must not be started")
	}
	if p.State() != Created {
		t.Fatalf("expected CREATED, got %s", p.State())
	}
}

func TestDecodeErrorsDropOrFail(t *testing.T) {
	sink := &captureSink{}
	p := build(t, &sliceSource{frames: []string{"1", "!x", "2"}}, sink, BufferConfig{MaxItems: 10})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.got(); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected the bad frame to be dropped, got %v", got)
	}
	if p.Stats().Dropped != 1 {
		t.Fatalf("expected one drop, got %+v", p.Stats())
	}

	strict := New("strict", quietLogger(), nil)
	_ = strict.SetSource(&sliceSource{frames: []string{"!x"}})
	_ = strict.SetDecoder(seqDecoder{}, true)
	_ = strict.SetSink(&captureSink{})
	if err := strict.Run(context.Background()); err == nil {
		t.Fatalf("expected rethrown decode error")
	}
	if strict.State() != Finished || strict.Err() == nil {
		t.Fatalf("expected FINISHED with error, got %s %v", strict.State(), strict.Err())
	}
}

func TestTransformationsDropAndContinue(t *testing.T) {
	sink := &captureSink{}
	p := build(t, &sliceSource{frames: frames(5)}, sink, BufferConfig{MaxItems: 10})

	_ = p.AddTransformation(ports.TransformFunc{Label: "fail-2", Fn: func(r *domain.Record) (*domain.Record, error) {
		if r.Payload.(*domain.Track).TrackID == "2" {
			return nil, errors.New("nope")
		}
		return r, nil
	}})
	_ = p.AddTransformation(ports.TransformFunc{Label: "panic-3", Fn: func(r *domain.Record) (*domain.Record, error) {
		if r.Payload.(*domain.Track).TrackID == "3" {
			panic("boom")
		}
		return r, nil
	}})
	_ = p.AddTransformation(ports.TransformFunc{Label: "drop-4", Fn: func(r *domain.Record) (*domain.Record, error) {
		if r.Payload.(*domain.Track).TrackID == "4" {
			return nil, nil
		}
		return r, nil
	}})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := sink.got()
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != "1" || got[0][1] != "5" {
		t.Fatalf("expected [[1 5]], got %v", got)
	}
	if p.Stats().Dropped != 3 {
		t.Fatalf("expected 3 drops, got %+v", p.Stats())
	}
}

func TestFilteredRecordsAreLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p := New("filtered", log, nil)
	_ = p.SetSource(&sliceSource{frames: frames(1)})
	_ = p.SetDecoder(seqDecoder{}, false)
	_ = p.SetSink(&captureSink{})
	_ = p.AddTransformation(ports.TransformFunc{Label: "drop-all", Fn: func(*domain.Record) (*domain.Record, error) {
		return nil, nil
	}})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, e := range hook.AllEntries() {
		if e.Message != "record filtered" {
			continue
		}
		if e.Data["pipeline"] != "filtered" || e.Data["stage"] != "drop-all" || e.Data["kind"] != "TRACK" || e.Data["call_id"] != "c" {
			t.Fatalf("unexpected fields %+v", e.Data)
		}
		return
	}
	t.Fatalf("filtered record was not logged")
}

func TestSinkErrorStopsSource(t *testing.T) {
	boom := errors.New("connection refused")
	src := &blockingSource{sliceSource{frames: frames(2), stopped: make(chan error, 1)}}
	p := build(t, src, &captureSink{fail: boom}, BufferConfig{MaxItems: 2})

	err := p.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	select {
	case <-src.stopped:
	case <-time.After(time.Second):
		t.Fatalf("source was not cancelled")
	}
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("expected pipeline error to carry the sink error, got %v", p.Err())
	}
}

func TestOnCloseCalledOnceAndSwallowed(t *testing.T) {
	log, hook := test.NewNullLogger()
	var calls atomic.Int32
	p := New("p", log, nil)
	_ = p.SetSource(&sliceSource{frames: frames(1)})
	_ = p.SetDecoder(seqDecoder{}, false)
	_ = p.SetSink(&captureSink{})
	_ = p.SetOnClose(func(*Pipeline, error) error {
		calls.Add(1)
		panic("callback exploded")
	})
	if err := p.SetOnClose(func(*Pipeline, error) error { return nil }); !errors.Is(err, ErrStageAlreadySet) {
		t.Fatalf("expected ErrStageAlreadySet for on close, got %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one on close call, got %d", calls.Load())
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.ErrorLevel {
		t.Fatalf("expected callback panic to be logged, got %+v", e)
	}
}

func TestOnCloseReceivesCause(t *testing.T) {
	boom := errors.New("write failed")
	var cause error
	p := build(t, &sliceSource{frames: frames(1)}, &captureSink{fail: boom}, BufferConfig{MaxItems: 1})
	_ = p.SetOnClose(func(_ *Pipeline, err error) error {
		cause = err
		return errors.New("ignored")
	})
	_ = p.Run(context.Background())
	if !errors.Is(cause, boom) {
		t.Fatalf("expected on close to receive the sink error, got %v", cause)
	}
}

func TestCancelStopsPipeline(t *testing.T) {
	src := &blockingSource{sliceSource{frames: frames(1)}}
	p := build(t, src, &captureSink{}, BufferConfig{MaxItems: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop on cancel")
	}
}

func TestDiscardClosesUnstartedPipeline(t *testing.T) {
	src := &sliceSource{frames: frames(2)}
	p := build(t, src, &captureSink{}, BufferConfig{})
	var calls atomic.Int32
	_ = p.SetOnClose(func(*Pipeline, error) error {
		calls.Add(1)
		return nil
	})

	p.Discard()
	p.Discard()
	if p.State() != Finished {
		t.Fatalf("expected FINISHED after discard, got %s", p.State())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one on close call, got %d", calls.Load())
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if src.starts.Load() != 0 {
		t.Fatalf("discarded pipeline must not start its source")
	}
}

func TestCancelFlushesBufferedRecords(t *testing.T) {
	src := &blockingSource{sliceSource{frames: frames(5)}}
	sink := &captureSink{}
	p := build(t, src, sink, BufferConfig{MaxItems: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	deadline := time.Now().Add(time.Second)
	for p.Stats().Decoded < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("records not decoded: %+v", p.Stats())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got := sink.got()
	if len(got) != 1 || len(got[0]) != 5 || got[0][0] != "1" || got[0][4] != "5" {
		t.Fatalf("expected one flushed batch of 5, got %v", got)
	}
	if s := p.Stats(); s.Written != 5 {
		t.Fatalf("expected 5 written, got %+v", s)
	}
}
