// Package transform holds the record transformations selectable by
// configuration.
package transform

import (
	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/dedup"
	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// Dedup drops duplicate call lifecycle records. Each instance owns its
// engine and must not be shared between pipelines.
type Dedup struct {
	engine *dedup.Engine
}

func NewDedup(cfg dedup.Config, log logrus.FieldLogger) (*Dedup, error) {
	e, err := dedup.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Dedup{engine: e}, nil
}

func (d *Dedup) Name() string {
	return "dedup"
}

func (d *Dedup) Transform(r *domain.Record) (*domain.Record, error) {
	if !d.engine.Keep(r) {
		return nil, nil
	}
	return r, nil
}

// Stats exposes the engine bookkeeping.
func (d *Dedup) Stats() dedup.Stats {
	return d.engine.Stats()
}

var _ ports.Transformation = (*Dedup)(nil)
