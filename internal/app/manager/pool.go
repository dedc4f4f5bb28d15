package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

var ErrPoolClosed = errors.New("manager: pool is shut down")

// Job is one unit of work. ctx is cancelled when the pool shuts down.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of workers. Pending jobs wait in an
// unbounded FIFO.
type Pool struct {
	log logrus.FieldLogger
	obs ports.Observability

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Job
	closed  bool
	active  int
}

func NewPool(size int, log logrus.FieldLogger, obs ports.Observability) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if obs == nil {
		obs = ports.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{log: log, obs: obs, ctx: ctx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)
	for range size {
		p.group.Go(func() error {
			p.work()
			return nil
		})
	}
	return p
}

// Submit queues job. It fails once Shutdown was called.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.pending = append(p.pending, job)
	p.obs.SetGauge(ports.MetricPoolQueue, float64(len(p.pending)))
	p.cond.Signal()
	return nil
}

func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.pending) == 0 {
		return nil, false
	}
	job := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	p.active++
	p.obs.SetGauge(ports.MetricPoolQueue, float64(len(p.pending)))
	return job, true
}

func (p *Pool) done() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

func (p *Pool) work() {
	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer p.done()
	defer func() {
		if rec := recover(); rec != nil {
			p.log.WithField("panic", rec).Error("pool job panicked")
		}
	}()
	job(p.ctx)
}

// Pending is the number of queued jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Active is the number of running jobs.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown rejects new jobs and cancels the context handed to jobs. Jobs
// still pending run with the cancelled context. It waits for the workers
// until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if n := len(p.pending); n > 0 {
			p.log.WithField("jobs", n).Warn("shutting down with pending jobs")
		}
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
