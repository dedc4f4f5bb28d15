// Package rowadapter turns a schema description into column definitions and
// a projector from schema-conforming values to flat column maps. The walk is
// the same for every destination; only the TypeTable differs.
package rowadapter

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ObserveRTC/connector-sub000/internal/schema"
)

var (
	ErrUnmappedType    = errors.New("rowadapter: unmapped schema type")
	ErrNotRecord       = errors.New("rowadapter: schema root is not a record")
	ErrDuplicateColumn = errors.New("rowadapter: duplicate column")
	ErrNotConforming   = errors.New("rowadapter: value does not conform to schema")
)

// Entry is a flat row keyed by lower-cased column name.
type Entry map[string]any

// Converter turns a field value into a column value. It is never called
// with a nil value.
type Converter func(v any) (any, error)

// Column describes one output column.
type Column[C any] struct {
	// Name is the lower-cased column name, and the Entry key.
	Name string
	// Field is the dotted schema path the column is read from.
	Field    string
	Type     C
	Nullable bool
}

// Resolver replaces both the column naming and the value conversion of a
// field. A nil Name keeps the field name.
type Resolver struct {
	Name  func(field string) string
	Value Converter
}

// Options customise a build. Keys are field names at the level the options
// apply to; Flatten entries carry the options of the nested record.
type Options[C any] struct {
	Exclude       []string
	TypeOverrides map[string]C
	Resolvers     map[string]Resolver
	Flatten       map[string]Options[C]
}

type step func(src reflect.Value, out Entry) error

// Adapter is a built projector. It is safe for concurrent use.
type Adapter[C any] struct {
	columns []Column[C]
	steps   []step
}

// Build walks root in declaration order and resolves every field against
// table. Any field whose effective primitive has no table entry fails the
// build.
func Build[C any](root *schema.Type, table TypeTable[C], opts Options[C]) (*Adapter[C], error) {
	if root == nil || root.Primitive != schema.Record {
		return nil, ErrNotRecord
	}
	a := &Adapter[C]{}
	if err := a.build(root, table, opts, ""); err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(a.columns))
	for _, c := range a.columns {
		if prev, ok := seen[c.Name]; ok {
			return nil, fmt.Errorf("%w: %q from %s and %s", ErrDuplicateColumn, c.Name, prev, c.Field)
		}
		seen[c.Name] = c.Field
	}
	return a, nil
}

func (a *Adapter[C]) build(rec *schema.Type, table TypeTable[C], opts Options[C], prefix string) error {
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = true
	}

	for _, f := range rec.Fields {
		if excluded[f.Name] {
			continue
		}
		path := prefix + f.Name

		if sub, ok := opts.Flatten[f.Name]; ok {
			nested := f.Effective()
			if nested == nil || nested.Primitive != schema.Record {
				return fmt.Errorf("%w: %s is %v, only records flatten", ErrUnmappedType, path, primitiveOf(nested))
			}
			inner := &Adapter[C]{}
			if err := inner.build(nested, table, sub, path+"."); err != nil {
				return err
			}
			for _, c := range inner.columns {
				c.Nullable = c.Nullable || f.Nullable()
				a.columns = append(a.columns, c)
			}
			a.steps = append(a.steps, flattenStep(f, inner))
			continue
		}

		eff := f.Effective()
		m, ok := table.Lookup(primitiveOf(eff))
		if !ok {
			return fmt.Errorf("%w: %s is %v", ErrUnmappedType, path, primitiveOf(eff))
		}
		col := Column[C]{Name: f.Name, Field: path, Type: m.Type, Nullable: f.Nullable()}
		if t, ok := opts.TypeOverrides[f.Name]; ok {
			col.Type = t
		}
		convert := m.Convert
		if r, ok := opts.Resolvers[f.Name]; ok {
			if r.Name != nil {
				col.Name = r.Name(f.Name)
			}
			if r.Value != nil {
				convert = r.Value
			}
		}
		if convert == nil {
			convert = Identity
		}
		col.Name = strings.ToLower(col.Name)
		a.columns = append(a.columns, col)
		a.steps = append(a.steps, valueStep(f, col.Name, convert))
	}
	return nil
}

func valueStep(f schema.Field, key string, convert Converter) step {
	return func(src reflect.Value, out Entry) error {
		v, err := fieldValue(src, f)
		if err != nil {
			return err
		}
		if !v.IsValid() {
			out[key] = nil
			return nil
		}
		if !v.CanInterface() {
			return fmt.Errorf("%w: field %s is not exported", ErrNotConforming, f.Name)
		}
		cv, err := convert(v.Interface())
		if err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		out[key] = cv
		return nil
	}
}

func flattenStep[C any](f schema.Field, inner *Adapter[C]) step {
	return func(src reflect.Value, out Entry) error {
		v, err := fieldValue(src, f)
		if err != nil {
			return err
		}
		if !v.IsValid() {
			for _, c := range inner.columns {
				out[c.Name] = nil
			}
			return nil
		}
		return inner.apply(v, out)
	}
}

// Columns returns the output columns in projection order.
func (a *Adapter[C]) Columns() []Column[C] {
	return append([]Column[C](nil), a.columns...)
}

// Apply projects v, a struct (or pointer to one) described by the schema or
// a map[string]any keyed by field name.
func (a *Adapter[C]) Apply(v any) (Entry, error) {
	src := indirect(reflect.ValueOf(v))
	if !src.IsValid() {
		return nil, fmt.Errorf("%w: nil value", ErrNotConforming)
	}
	out := make(Entry, len(a.columns))
	if err := a.apply(src, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter[C]) apply(src reflect.Value, out Entry) error {
	for _, s := range a.steps {
		if err := s(src, out); err != nil {
			return err
		}
	}
	return nil
}

// fieldValue reads f from src. The zero Value stands for null.
func fieldValue(src reflect.Value, f schema.Field) (reflect.Value, error) {
	src = indirect(src)
	if !src.IsValid() {
		return reflect.Value{}, nil
	}
	switch src.Kind() {
	case reflect.Struct:
		if len(f.Index) == 0 {
			return reflect.Value{}, fmt.Errorf("%w: field %s has no struct index", ErrNotConforming, f.Name)
		}
		v := src
		for _, i := range f.Index {
			v = indirect(v)
			if !v.IsValid() {
				return reflect.Value{}, nil
			}
			if v.Kind() != reflect.Struct || i >= v.NumField() {
				return reflect.Value{}, fmt.Errorf("%w: field %s", ErrNotConforming, f.Name)
			}
			v = v.Field(i)
		}
		return indirect(v), nil
	case reflect.Map:
		if src.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("%w: map keys must be strings", ErrNotConforming)
		}
		v := src.MapIndex(reflect.ValueOf(f.Name).Convert(src.Type().Key()))
		return indirect(v), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %v", ErrNotConforming, src.Type())
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func primitiveOf(t *schema.Type) schema.Primitive {
	if t == nil {
		return schema.Null
	}
	return t.Primitive
}
