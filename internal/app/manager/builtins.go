package manager

import (
	"errors"

	"github.com/ObserveRTC/connector-sub000/internal/adapters/decoder"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/sink"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/source"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/transform"
	"github.com/ObserveRTC/connector-sub000/internal/dedup"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// memorySourceConfig selects a hub queue. Queue defaults to the pipeline
// name.
type memorySourceConfig struct {
	Queue               string `yaml:"queue"`
	source.MemoryConfig `yaml:",inline"`
}

// RegisterBuiltins registers the stages shipped with the connector. Memory
// sources are served from hub.
func RegisterBuiltins(r *Registry, hub *source.Hub) error {
	return errors.Join(
		r.RegisterSource("memory", func(bc BuildContext) (ports.Source, error) {
			var cfg memorySourceConfig
			if err := bc.Decode(&cfg); err != nil {
				return nil, err
			}
			if cfg.Queue == "" {
				cfg.Queue = bc.Pipeline
			}
			return hub.Queue(cfg.Queue, cfg.MemoryConfig)
		}),
		r.RegisterSource("framefile", func(bc BuildContext) (ports.Source, error) {
			var cfg source.FrameFileConfig
			if err := bc.Decode(&cfg); err != nil {
				return nil, err
			}
			return source.NewFrameFile(bc.Pipeline, cfg, bc.Log)
		}),

		r.RegisterDecoder("json", func(BuildContext) (ports.Decoder, error) {
			return decoder.JSON{}, nil
		}),
		r.RegisterDecoder("msgpack", func(BuildContext) (ports.Decoder, error) {
			return decoder.Msgpack{}, nil
		}),

		r.RegisterTransformation("dedup", func(bc BuildContext) (ports.Transformation, error) {
			var cfg dedup.Config
			if err := bc.Decode(&cfg); err != nil {
				return nil, err
			}
			return transform.NewDedup(cfg, bc.Log)
		}),
		r.RegisterTransformation("filter", func(bc BuildContext) (ports.Transformation, error) {
			var cfg transform.FilterConfig
			if err := bc.Decode(&cfg); err != nil {
				return nil, err
			}
			return transform.NewFilter(cfg)
		}),

		r.RegisterSink("sql", newSQLSink),
	)
}

// newSQLSink builds the sink, provisions its database and tables and
// connects it.
func newSQLSink(bc BuildContext) (ports.Sink, error) {
	var cfg sink.SQLConfig
	if err := bc.Decode(&cfg); err != nil {
		return nil, err
	}
	s, err := sink.OpenSQLSink(bc.Context, bc.Pipeline, cfg, bc.Log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
