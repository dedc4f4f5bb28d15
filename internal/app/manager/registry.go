// Package manager builds pipelines from configuration and runs them on a
// shared worker pool.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ObserveRTC/connector-sub000/internal/app/config"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

var (
	ErrUnknownType    = errors.New("manager: unknown type")
	ErrDuplicateType  = errors.New("manager: type already registered")
	ErrNilFactory     = errors.New("manager: nil factory")
	ErrUnknownToken   = errors.New("manager: unknown pipeline token")
	ErrManagerStopped = errors.New("manager: stopped")
)

// BuildContext is handed to every factory call. Each call gets its own copy
// of the stage config.
type BuildContext struct {
	Context  context.Context
	Pipeline string
	Log      logrus.FieldLogger
	Obs      ports.Observability

	config yaml.Node
}

// Decode unmarshals the stage config into v. An absent config leaves v
// untouched.
func (b BuildContext) Decode(v any) error {
	if b.config.Kind == 0 {
		return nil
	}
	return b.config.Decode(v)
}

func copyNode(n *yaml.Node) yaml.Node {
	out := *n
	if len(n.Content) > 0 {
		out.Content = make([]*yaml.Node, len(n.Content))
		for i, c := range n.Content {
			cp := copyNode(c)
			out.Content[i] = &cp
		}
	}
	return out
}

type (
	SourceFactory         func(bc BuildContext) (ports.Source, error)
	DecoderFactory        func(bc BuildContext) (ports.Decoder, error)
	TransformationFactory func(bc BuildContext) (ports.Transformation, error)
	SinkFactory           func(bc BuildContext) (ports.Sink, error)
)

// Registry maps configuration type names to stage factories.
type Registry struct {
	mu              sync.RWMutex
	sources         map[string]SourceFactory
	decoders        map[string]DecoderFactory
	transformations map[string]TransformationFactory
	sinks           map[string]SinkFactory
}

func NewRegistry() *Registry {
	return &Registry{
		sources:         make(map[string]SourceFactory),
		decoders:        make(map[string]DecoderFactory),
		transformations: make(map[string]TransformationFactory),
		sinks:           make(map[string]SinkFactory),
	}
}

func register[F any](mu *sync.RWMutex, m map[string]F, kind, typ string, f F, isNil bool) error {
	if isNil {
		return fmt.Errorf("%w: %s %q", ErrNilFactory, kind, typ)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[typ]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicateType, kind, typ)
	}
	m[typ] = f
	return nil
}

func lookup[F any](mu *sync.RWMutex, m map[string]F, kind, typ string) (F, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := m[typ]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %q", ErrUnknownType, kind, typ)
	}
	return f, nil
}

func (r *Registry) RegisterSource(typ string, f SourceFactory) error {
	return register(&r.mu, r.sources, "source", typ, f, f == nil)
}

func (r *Registry) RegisterDecoder(typ string, f DecoderFactory) error {
	return register(&r.mu, r.decoders, "decoder", typ, f, f == nil)
}

func (r *Registry) RegisterTransformation(typ string, f TransformationFactory) error {
	return register(&r.mu, r.transformations, "transformation", typ, f, f == nil)
}

func (r *Registry) RegisterSink(typ string, f SinkFactory) error {
	return register(&r.mu, r.sinks, "sink", typ, f, f == nil)
}

// Types lists the registered type names per stage, sorted.
func (r *Registry) Types() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"source":         sortedKeys(r.sources),
		"decoder":        sortedKeys(r.decoders),
		"transformation": sortedKeys(r.transformations),
		"sink":           sortedKeys(r.sinks),
	}
}

func sortedKeys[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Check reports every stage type of cfg that is not registered.
func (r *Registry) Check(cfg config.PipelineConfig) error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", cfg.Name, err))
		}
	}
	_, err := lookup(&r.mu, r.sources, "source", cfg.Source.Type)
	check(err)
	_, err = lookup(&r.mu, r.decoders, "decoder", cfg.Decoder.Type)
	check(err)
	for _, t := range cfg.Transformations {
		_, err = lookup(&r.mu, r.transformations, "transformation", t.Type)
		check(err)
	}
	_, err = lookup(&r.mu, r.sinks, "sink", cfg.Sink.Type)
	check(err)
	return errors.Join(errs...)
}
