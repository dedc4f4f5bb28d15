package connector

import (
	"github.com/ObserveRTC/connector-sub000/internal/adapters/sink"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/source"
	base "github.com/ObserveRTC/connector-sub000/pkg/connector"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = source.ErrQueueFull
	ErrQueueClosed       = source.ErrClosed
	ErrChannelSinkClosed = sink.ErrChannelSinkClosed
)

// Type aliases so consumers can import the module root directly.
type (
	Config                = base.Config
	PipelineConfig        = base.PipelineConfig
	StageConfig           = base.StageConfig
	DecoderConfig         = base.DecoderConfig
	LogConfig             = base.LogConfig
	MetricsConfig         = base.MetricsConfig
	WorkersConfig         = base.WorkersConfig
	Flow                  = base.Flow
	FlowOption            = base.FlowOption
	StreamInOption        = base.StreamInOption
	StreamOutOption       = base.StreamOutOption
	Runtime               = base.Runtime
	RuntimeOption         = base.RuntimeOption
	Publisher             = base.Publisher
	PublisherConfig       = base.PublisherConfig
	Record                = base.Record
	Header                = base.Header
	RecordType            = base.RecordType
	Payload               = base.Payload
	Source                = base.Source
	Decoder               = base.Decoder
	Transformation        = base.Transformation
	Sink                  = base.Sink
	Observability         = base.Observability
	MemoryQueue           = base.MemoryQueue
	BatchFunc             = base.BatchFunc
	BuildContext          = base.BuildContext
	SourceFactory         = base.SourceFactory
	DecoderFactory        = base.DecoderFactory
	TransformationFactory = base.TransformationFactory
	SinkFactory           = base.SinkFactory
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(typ string, f SourceFactory) StreamInOption {
	return base.StreamInSource(typ, f)
}

func StreamInDecoder(typ string, f DecoderFactory) StreamInOption {
	return base.StreamInDecoder(typ, f)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(typ string, f SinkFactory) StreamOutOption {
	return base.StreamOutSink(typ, f)
}

func StreamOutTransformation(typ string, f TransformationFactory) StreamOutOption {
	return base.StreamOutTransformation(typ, f)
}

func StreamOutCallback(typ string, fn BatchFunc) StreamOutOption {
	return base.StreamOutCallback(typ, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithoutMetricsServer() RuntimeOption {
	return base.WithoutMetricsServer()
}

func WithCallbackSink(typ string, fn BatchFunc) RuntimeOption {
	return base.WithCallbackSink(typ, fn)
}

// Records and sink adapters.
func NewRecord(h Header, p Payload) (*Record, error) {
	return base.NewRecord(h, p)
}

func NewCallbackSink(name string, fn BatchFunc) Sink {
	return base.NewCallbackSink(name, fn)
}
