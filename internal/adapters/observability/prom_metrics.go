package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// PromObs exposes pipeline metrics through Prometheus collectors looked up
// by metric name.
type PromObs struct {
	log      logrus.FieldLogger
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]*prometheus.HistogramVec
}

// NewPromObs registers the connector collectors on reg. A nil reg uses the
// default registerer.
func NewPromObs(reg prometheus.Registerer, log logrus.FieldLogger) (*PromObs, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricRecordsReceived,
		Help: "Frames read from pipeline sources.",
	}, []string{"pipeline"})
	written := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricRecordsWritten,
		Help: "Records handed to sinks in successful batches.",
	}, []string{"pipeline"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricRecordsDropped,
		Help: "Records dropped by decoders, transformations or sinks.",
	}, []string{"pipeline", "stage"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricBatchesWritten,
		Help: "Batches written to sinks.",
	}, []string{"pipeline"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    ports.MetricSinkLatency,
		Help:    "Time spent in a sink batch write.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"pipeline"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricPipelinesActive,
		Help: "Pipelines currently running on the worker pool.",
	}, nil)
	poolQueue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricPoolQueue,
		Help: "Pipelines waiting for a free worker.",
	}, nil)
	sourceQueue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricSourceQueue,
		Help: "Frames buffered in in-memory sources.",
	}, []string{"source"})

	for _, c := range []prometheus.Collector{received, written, dropped, batches, latency, inFlight, poolQueue, sourceQueue} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PromObs{
		counters: map[string]*prometheus.CounterVec{
			ports.MetricRecordsReceived: received,
			ports.MetricRecordsWritten:  written,
			ports.MetricRecordsDropped:  dropped,
			ports.MetricBatchesWritten:  batches,
		},
		gauges: map[string]*prometheus.GaugeVec{
			ports.MetricPipelinesActive: inFlight,
			ports.MetricPoolQueue:       poolQueue,
			ports.MetricSourceQueue:     sourceQueue,
		},
		histos: map[string]*prometheus.HistogramVec{
			ports.MetricSinkLatency: latency,
		},
		log: log,
	}, nil
}

func (p *PromObs) IncCounter(name string, v float64, labels ...string) {
	if c, ok := p.counters[name]; ok {
		if m, err := c.GetMetricWithLabelValues(labels...); err == nil {
			m.Add(v)
		}
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64, labels ...string) {
	if h, ok := p.histos[name]; ok {
		if m, err := h.GetMetricWithLabelValues(labels...); err == nil {
			m.Observe(seconds)
		}
	}
}

func (p *PromObs) SetGauge(name string, v float64, labels ...string) {
	if g, ok := p.gauges[name]; ok {
		if m, err := g.GetMetricWithLabelValues(labels...); err == nil {
			m.Set(v)
		}
	}
}

// RecordDropped counts a dropped record and logs it at debug with its
// identifiers. A nil err marks a record filtered out by a transformation.
func (p *PromObs) RecordDropped(pipeline, stage string, r *domain.Record, err error) {
	p.IncCounter(ports.MetricRecordsDropped, 1, pipeline, stage)
	fields := logrus.Fields{"pipeline": pipeline, "stage": stage}
	if r != nil {
		fields["kind"] = r.Type.String()
		fields["origin_id"] = r.OriginID
		if callID, pcID := domain.CallAndPeerConnection(r); callID != "" {
			fields["call_id"] = callID
			if pcID != "" {
				fields["pc_id"] = pcID
			}
		}
	}
	entry := p.log.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("record dropped")
}
