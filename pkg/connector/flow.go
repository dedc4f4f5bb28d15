package connector

import (
	"context"
	"fmt"
)

// Flow collects custom stages and runtime options between Conf and
// StreamOUT.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption adjusts a Flow right after its config is known.
type FlowOption func(*Flow)

// StreamInOption configures the source and decoder side of the pipelines.
type StreamInOption func(*Flow)

// StreamOutOption configures the transformation and sink side of the
// pipelines.
type StreamOutOption func(*Flow)

// Conf loads the config file at path and starts a Flow from it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from cfg.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the configuration the runtime will be built from.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records source-side options.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records sink-side options and builds a Runtime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the runtime with StreamOUT and runs it until ctx is done.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInSource registers a custom source type.
func StreamInSource(typ string, factory SourceFactory) StreamInOption {
	return func(f *Flow) {
		if f != nil && factory != nil {
			f.appendOptions(WithSource(typ, factory))
		}
	}
}

// StreamInDecoder registers a custom decoder type.
func StreamInDecoder(typ string, factory DecoderFactory) StreamInOption {
	return func(f *Flow) {
		if f != nil && factory != nil {
			f.appendOptions(WithDecoder(typ, factory))
		}
	}
}

// StreamInObservability overrides the default Prometheus metrics.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutSink registers a custom sink type.
func StreamOutSink(typ string, factory SinkFactory) StreamOutOption {
	return func(f *Flow) {
		if f != nil && factory != nil {
			f.appendOptions(WithSink(typ, factory))
		}
	}
}

// StreamOutTransformation registers a custom transformation type.
func StreamOutTransformation(typ string, factory TransformationFactory) StreamOutOption {
	return func(f *Flow) {
		if f != nil && factory != nil {
			f.appendOptions(WithTransformation(typ, factory))
		}
	}
}

// StreamOutCallback registers a sink type built from a callback function.
func StreamOutCallback(typ string, fn BatchFunc) StreamOutOption {
	return func(f *Flow) {
		if f != nil && fn != nil {
			f.appendOptions(WithCallbackSink(typ, fn))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
