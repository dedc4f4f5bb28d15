package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/adapters/observability"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/source"
	"github.com/ObserveRTC/connector-sub000/internal/app/manager"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	log             logrus.FieldLogger
	observability   Observability
	registry        *prometheus.Registry
	noMetricsServer bool
	register        []func(*manager.Registry) error
}

// WithLogger replaces the logger built from the log config section.
func WithLogger(log logrus.FieldLogger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.log = log
	}
}

// WithObservability replaces the Prometheus metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithPrometheusRegistry registers the connector metrics on reg and serves
// reg on /metrics.
func WithPrometheusRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithoutMetricsServer keeps the runtime from listening on metrics.addr.
func WithoutMetricsServer() RuntimeOption {
	return func(o *runtimeOverrides) {
		o.noMetricsServer = true
	}
}

// WithSource makes a custom source type available to the pipeline config.
func WithSource(typ string, f SourceFactory) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.register = append(o.register, func(r *manager.Registry) error { return r.RegisterSource(typ, f) })
	}
}

// WithDecoder makes a custom decoder type available to the pipeline config.
func WithDecoder(typ string, f DecoderFactory) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.register = append(o.register, func(r *manager.Registry) error { return r.RegisterDecoder(typ, f) })
	}
}

// WithTransformation makes a custom transformation type available to the
// pipeline config.
func WithTransformation(typ string, f TransformationFactory) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.register = append(o.register, func(r *manager.Registry) error { return r.RegisterTransformation(typ, f) })
	}
}

// WithSink makes a custom sink type available to the pipeline config.
func WithSink(typ string, f SinkFactory) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.register = append(o.register, func(r *manager.Registry) error { return r.RegisterSink(typ, f) })
	}
}

// WithCallbackSink registers a sink type whose pipelines hand every batch
// to fn.
func WithCallbackSink(typ string, fn BatchFunc) RuntimeOption {
	return WithSink(typ, func(bc BuildContext) (Sink, error) {
		return NewCallbackSink(bc.Pipeline, fn), nil
	})
}

// Runtime owns the pipelines manager, its worker pool and the metrics
// server of one configuration.
type Runtime struct {
	cfg        *Config
	log        logrus.FieldLogger
	obs        Observability
	gatherer   prometheus.Gatherer
	hub        *source.Hub
	registry   *manager.Registry
	pool       *manager.Pool
	mgr        *manager.Manager
	serve      bool
	metricsSrv *http.Server
	cancel     context.CancelFunc
	runDone    chan struct{}
}

// NewRuntime wires the built-in stages, the options' custom stages, the
// worker pool and Prometheus metrics. Nothing runs until Start.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	log := overrides.log
	if log == nil {
		l, err := cfg.Log.NewLogger()
		if err != nil {
			return nil, err
		}
		log = l
	}

	var gatherer prometheus.Gatherer
	obs := overrides.observability
	if obs == nil {
		reg := overrides.registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}
		prom, err := observability.NewPromObs(reg, log)
		if err != nil {
			return nil, err
		}
		obs = prom
		gatherer = reg
	}

	hub := source.NewHub(obs)
	registry := manager.NewRegistry()
	if err := manager.RegisterBuiltins(registry, hub); err != nil {
		return nil, err
	}
	for _, register := range overrides.register {
		if err := register(registry); err != nil {
			return nil, err
		}
	}

	pool := manager.NewPool(cfg.Workers.PoolSize, log, obs)
	return &Runtime{
		cfg:      cfg,
		log:      log,
		obs:      obs,
		gatherer: gatherer,
		hub:      hub,
		registry: registry,
		pool:     pool,
		mgr:      manager.New(registry, pool, log, obs),
		serve:    !overrides.noMetricsServer,
	}, nil
}

// Queue returns the memory queue called name, creating it when needed.
// Pipelines with a memory source of that queue consume what is pushed.
func (r *Runtime) Queue(name string) (*MemoryQueue, error) {
	return r.hub.Queue(name, source.MemoryConfig{})
}

// Check reports the stage types of the configured pipelines that no
// factory is registered for.
func (r *Runtime) Check() error {
	var errs []error
	for _, p := range r.cfg.Pipelines {
		if err := r.registry.Check(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InFlight is the number of running pipelines.
func (r *Runtime) InFlight() int {
	return r.mgr.InFlight()
}

// Start builds every configured pipeline, submits the unscheduled ones and
// starts the cron trigger and the metrics server. It returns immediately.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if r.runDone != nil {
		return fmt.Errorf("runtime already started")
	}
	tokens := r.mgr.Load(ctx, r.cfg.Pipelines)
	r.log.WithField("pipelines", len(tokens)).Info("pipelines built")

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.runDone = make(chan struct{})
	go func() {
		defer close(r.runDone)
		_ = r.mgr.Run(runCtx)
	}()

	if r.serve && r.gatherer != nil {
		r.startMetrics()
	}
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled, then shuts down
// gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the pipelines, the memory queues and the metrics server.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.cancel != nil {
		r.cancel()
		<-r.runDone
	}
	if err := r.mgr.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	r.hub.CloseAll()

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.WithError(err).Error("metrics server exited")
		}
	}()
}
