package connector

import "github.com/ObserveRTC/connector-sub000/internal/app/config"

// Config re-exports the root configuration struct so embedding programs can
// build or adjust it in code.
type Config = config.Config

type (
	// PipelineConfig describes one pipeline and its replicas.
	PipelineConfig = config.PipelineConfig
	// StageConfig selects a stage type and carries its config.
	StageConfig = config.StageConfig
	// DecoderConfig selects the decoder.
	DecoderConfig = config.DecoderConfig
	// LogConfig configures the process logger.
	LogConfig = config.LogConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WorkersConfig sizes the pipeline worker pool.
	WorkersConfig = config.WorkersConfig
)

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig parses and validates YAML config bytes.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
