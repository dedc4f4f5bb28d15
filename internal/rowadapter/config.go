package rowadapter

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownResolver = errors.New("rowadapter: unknown value resolver")

// Config is the YAML form of Options for string-typed column tables.
type Config struct {
	ExcludedFields []string                  `yaml:"excluded_fields"`
	TypeOverrides  map[string]string         `yaml:"type_overrides"`
	Resolvers      map[string]ResolverConfig `yaml:"resolvers"`
	Flatten        map[string]Config         `yaml:"flatten"`
}

// ResolverConfig renames a column and selects a named value converter.
type ResolverConfig struct {
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

var valueResolvers = map[string]Converter{
	"":         nil,
	"identity": Identity,
	"string":   Stringify,
	"json":     JSON,
}

// ValueResolvers lists the converter names accepted in ResolverConfig.Value.
func ValueResolvers() []string {
	out := make([]string, 0, len(valueResolvers))
	for name := range valueResolvers {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// OptionsFromConfig resolves cfg into build options.
func OptionsFromConfig(cfg Config) (Options[string], error) {
	opts := Options[string]{
		Exclude:       append([]string(nil), cfg.ExcludedFields...),
		TypeOverrides: make(map[string]string, len(cfg.TypeOverrides)),
		Resolvers:     make(map[string]Resolver, len(cfg.Resolvers)),
		Flatten:       make(map[string]Options[string], len(cfg.Flatten)),
	}
	for field, t := range cfg.TypeOverrides {
		opts.TypeOverrides[field] = t
	}
	for field, rc := range cfg.Resolvers {
		convert, ok := valueResolvers[rc.Value]
		if !ok {
			return Options[string]{}, fmt.Errorf("%w: %q for field %s", ErrUnknownResolver, rc.Value, field)
		}
		r := Resolver{Value: convert}
		if rc.Column != "" {
			column := rc.Column
			r.Name = func(string) string { return column }
		}
		opts.Resolvers[field] = r
	}
	for field, sub := range cfg.Flatten {
		nested, err := OptionsFromConfig(sub)
		if err != nil {
			return Options[string]{}, fmt.Errorf("flatten %s: %w", field, err)
		}
		opts.Flatten[field] = nested
	}
	return opts, nil
}

// Merge returns o with extra layered on top: exclusions are added and
// map entries in extra win. Flatten options for the same field merge
// recursively.
func (o Options[C]) Merge(extra Options[C]) Options[C] {
	out := Options[C]{
		Exclude:       append(append([]string(nil), o.Exclude...), extra.Exclude...),
		TypeOverrides: make(map[string]C, len(o.TypeOverrides)+len(extra.TypeOverrides)),
		Resolvers:     make(map[string]Resolver, len(o.Resolvers)+len(extra.Resolvers)),
		Flatten:       make(map[string]Options[C], len(o.Flatten)+len(extra.Flatten)),
	}
	for k, v := range o.TypeOverrides {
		out.TypeOverrides[k] = v
	}
	for k, v := range extra.TypeOverrides {
		out.TypeOverrides[k] = v
	}
	for k, v := range o.Resolvers {
		out.Resolvers[k] = v
	}
	for k, v := range extra.Resolvers {
		out.Resolvers[k] = v
	}
	for k, v := range o.Flatten {
		out.Flatten[k] = v
	}
	for k, v := range extra.Flatten {
		if base, ok := out.Flatten[k]; ok {
			v = base.Merge(v)
		}
		out.Flatten[k] = v
	}
	return out
}
