package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/app/config"
	"github.com/ObserveRTC/connector-sub000/internal/app/pipeline"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// Manager builds pipelines, keeps the unstarted ones under tokens and starts
// them on the pool, once or on a cron schedule.
type Manager struct {
	reg  *Registry
	pool *Pool
	log  logrus.FieldLogger
	obs  ports.Observability
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	scheduled map[string]*scheduled
	running   map[string]int
	inFlight  int
	stopped   bool
}

type scheduled struct {
	group string
	p     *pipeline.Pipeline
}

func New(reg *Registry, pool *Pool, log logrus.FieldLogger, obs ports.Observability) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if obs == nil {
		obs = ports.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	clog := cronLogger{log: log.WithField("component", "cron")}
	return &Manager{
		reg:       reg,
		pool:      pool,
		log:       log,
		obs:       obs,
		cron:      cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog))),
		ctx:       ctx,
		cancel:    cancel,
		scheduled: make(map[string]*scheduled),
		running:   make(map[string]int),
	}
}

// replicaName is the pipeline name of replica i.
func replicaName(cfg config.PipelineConfig, i int) string {
	if cfg.Replicas <= 1 {
		return cfg.Name
	}
	return fmt.Sprintf("%s-%d", cfg.Name, i)
}

// Build builds every replica of cfg. Replicas that fail to build are left
// out and their errors joined.
func (m *Manager) Build(ctx context.Context, cfg config.PipelineConfig) ([]*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		out  []*pipeline.Pipeline
		errs []error
	)
	for i := range cfg.Replicas {
		p, err := m.buildOne(ctx, cfg, replicaName(cfg, i))
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", replicaName(cfg, i), err))
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func (m *Manager) buildOne(ctx context.Context, cfg config.PipelineConfig, name string) (*pipeline.Pipeline, error) {
	log := m.log.WithField("pipeline", name)
	bc := func(stage config.StageConfig) BuildContext {
		return BuildContext{
			Context:  ctx,
			Pipeline: name,
			Log:      log.WithField("stage", stage.Type),
			Obs:      m.obs,
			config:   copyNode(&stage.Config),
		}
	}

	p := pipeline.New(name, m.log, m.obs)

	srcFactory, err := lookup(&m.reg.mu, m.reg.sources, "source", cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	src, err := srcFactory(bc(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Source.Type, err)
	}
	if err := p.SetSource(src); err != nil {
		return nil, err
	}

	decFactory, err := lookup(&m.reg.mu, m.reg.decoders, "decoder", cfg.Decoder.Type)
	if err != nil {
		return nil, err
	}
	dec, err := decFactory(bc(cfg.Decoder.Stage()))
	if err != nil {
		return nil, fmt.Errorf("decoder %s: %w", cfg.Decoder.Type, err)
	}
	if err := p.SetDecoder(dec, cfg.Decoder.RethrowErrors); err != nil {
		return nil, err
	}

	for _, tc := range cfg.Transformations {
		f, err := lookup(&m.reg.mu, m.reg.transformations, "transformation", tc.Type)
		if err != nil {
			return nil, err
		}
		t, err := f(bc(tc))
		if err != nil {
			return nil, fmt.Errorf("transformation %s: %w", tc.Type, err)
		}
		if err := p.AddTransformation(t); err != nil {
			return nil, err
		}
	}

	if err := p.SetBuffer(cfg.Buffer); err != nil {
		return nil, err
	}

	// Sink last. It is closed by the on-close callback.
	sinkFactory, err := lookup(&m.reg.mu, m.reg.sinks, "sink", cfg.Sink.Type)
	if err != nil {
		return nil, err
	}
	snk, err := sinkFactory(bc(cfg.Sink))
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", cfg.Sink.Type, err)
	}
	if err := p.SetSink(snk); err != nil {
		_ = closeAll(log, snk)
		return nil, err
	}
	if err := p.SetOnClose(func(_ *pipeline.Pipeline, _ error) error {
		return closeAll(log, snk)
	}); err != nil {
		_ = closeAll(log, snk)
		return nil, err
	}
	return p, nil
}

// closeAll closes every value that is an io.Closer.
func closeAll(log logrus.FieldLogger, vs ...any) error {
	var errs []error
	for _, v := range vs {
		c, ok := v.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("close failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule keeps p under a new token until Start or StartAll submits it.
func (m *Manager) Schedule(group string, p *pipeline.Pipeline) string {
	token := uuid.NewString()
	m.mu.Lock()
	m.scheduled[token] = &scheduled{group: group, p: p}
	m.mu.Unlock()
	return token
}

// Start submits the pipeline held under token. A token is consumed once.
func (m *Manager) Start(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}
	s, ok := m.scheduled[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	delete(m.scheduled, token)
	return m.submitLocked(s)
}

// StartAll submits every scheduled pipeline and returns how many were
// submitted.
func (m *Manager) StartAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return 0
	}
	n := 0
	for token, s := range m.scheduled {
		delete(m.scheduled, token)
		if err := m.submitLocked(s); err != nil {
			m.log.WithError(err).WithField("pipeline", s.p.Name()).Error("pipeline not submitted")
			continue
		}
		n++
	}
	return n
}

func (m *Manager) submitLocked(s *scheduled) error {
	m.running[s.group]++
	m.inFlight++
	m.obs.SetGauge(ports.MetricPipelinesActive, float64(m.inFlight))
	err := m.pool.Submit(func(ctx context.Context) {
		defer m.finished(s.group)
		_ = s.p.Run(ctx)
	})
	if err != nil {
		m.running[s.group]--
		m.inFlight--
		m.obs.SetGauge(ports.MetricPipelinesActive, float64(m.inFlight))
	}
	return err
}

func (m *Manager) finished(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[group]--
	if m.running[group] <= 0 {
		delete(m.running, group)
	}
	m.inFlight--
	m.obs.SetGauge(ports.MetricPipelinesActive, float64(m.inFlight))
}

// InFlight is the number of submitted pipelines that have not finished.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Load builds and schedules every enabled pipeline of cfgs. Pipelines with a
// schedule get a cron entry instead and are built on each tick. A pipeline
// that fails to build is logged and skipped.
func (m *Manager) Load(ctx context.Context, cfgs []config.PipelineConfig) []string {
	var tokens []string
	for _, cfg := range cfgs {
		log := m.log.WithField("pipeline", cfg.Name)
		if cfg.Disabled {
			log.Info("pipeline disabled")
			continue
		}
		if cfg.Schedule != "" {
			if _, err := m.cron.AddFunc(cfg.Schedule, func() { m.tick(cfg) }); err != nil {
				log.WithError(err).Error("pipeline not scheduled")
			}
			continue
		}

		ps, err := m.Build(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("pipeline build failed")
		}
		for _, p := range ps {
			tokens = append(tokens, m.Schedule(cfg.Name, p))
		}
	}
	return tokens
}

// tick builds and starts a scheduled pipeline unless its previous run is
// still going.
func (m *Manager) tick(cfg config.PipelineConfig) {
	log := m.log.WithField("pipeline", cfg.Name)
	m.mu.Lock()
	busy := m.running[cfg.Name] > 0
	m.mu.Unlock()
	if busy {
		log.Info("previous run still active, tick skipped")
		return
	}

	ps, err := m.Build(m.ctx, cfg)
	if err != nil {
		log.WithError(err).Error("pipeline build failed")
	}
	for _, p := range ps {
		if err := m.Start(m.Schedule(cfg.Name, p)); err != nil {
			log.WithError(err).Error("pipeline not started")
			p.Discard()
		}
	}
}

// Run starts the scheduled pipelines and the cron trigger and blocks until
// ctx is done. Shutdown releases the resources.
func (m *Manager) Run(ctx context.Context) error {
	n := m.StartAll()
	m.cron.Start()
	m.log.WithFields(logrus.Fields{
		"started":   n,
		"scheduled": len(m.cron.Entries()),
	}).Info("pipelines manager running")
	<-ctx.Done()
	return nil
}

// Shutdown stops the cron trigger, cancels running pipelines and closes the
// sinks of pipelines that never started.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	pending := m.scheduled
	m.scheduled = make(map[string]*scheduled)
	m.mu.Unlock()

	m.cancel()
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}

	for _, s := range pending {
		s.p.Discard()
	}
	if err := m.pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}

// cronLogger routes cron logs to logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
