package ports

import "github.com/ObserveRTC/connector-sub000/internal/domain"

// Observability receives pipeline metrics by name. Unknown names are
// ignored.
type Observability interface {
	IncCounter(name string, v float64, labels ...string)
	ObserveLatency(name string, seconds float64, labels ...string)
	SetGauge(name string, v float64, labels ...string)

	RecordDropped(pipeline, stage string, r *domain.Record, err error)
}

// Metric names shared by the observability adapter and its callers.
const (
	MetricRecordsReceived = "connector_records_received_total"
	MetricRecordsWritten  = "connector_records_written_total"
	MetricRecordsDropped  = "connector_records_dropped_total"
	MetricBatchesWritten  = "connector_batches_written_total"
	MetricSinkLatency     = "connector_sink_latency_seconds"
	MetricPipelinesActive = "connector_pipelines_in_flight"
	MetricPoolQueue       = "connector_pool_queue_length"
	MetricSourceQueue     = "connector_source_queue_length"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, ...string) {}

func (Nop) ObserveLatency(string, float64, ...string) {}

func (Nop) SetGauge(string, float64, ...string) {}

func (Nop) RecordDropped(string, string, *domain.Record, error) {}
