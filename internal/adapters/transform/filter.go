package transform

import (
	"errors"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

var ErrEmptyFilter = errors.New("transform: filter needs include or exclude types")

// FilterConfig keeps records whose type is in Include, or drops those in
// Exclude. Include wins when both are set.
type FilterConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type Filter struct {
	keep map[domain.RecordType]bool
	deny bool
}

func NewFilter(cfg FilterConfig) (*Filter, error) {
	names, deny := cfg.Include, false
	if len(names) == 0 {
		names, deny = cfg.Exclude, true
	}
	if len(names) == 0 {
		return nil, ErrEmptyFilter
	}
	f := &Filter{keep: make(map[domain.RecordType]bool, len(names)), deny: deny}
	for _, n := range names {
		k, err := domain.ParseRecordType(n)
		if err != nil {
			return nil, err
		}
		f.keep[k] = true
	}
	return f, nil
}

func (f *Filter) Name() string {
	return "filter"
}

func (f *Filter) Transform(r *domain.Record) (*domain.Record, error) {
	if f.keep[r.Type] != f.deny {
		return r, nil
	}
	return nil, nil
}

var _ ports.Transformation = (*Filter)(nil)
