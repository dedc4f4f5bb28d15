package schema

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// ErrUnsupportedGoType is returned when a Go type has no schema equivalent.
var ErrUnsupportedGoType = errors.New("schema: unsupported go type")

// ErrRecursiveType is returned for a struct that contains itself.
var ErrRecursiveType = errors.New("schema: recursive type")

// Enumerated is implemented by Go types that should be described as
// enumerations. Methods must be declared on the value receiver.
type Enumerated interface {
	Symbols() []string
	String() string
}

var enumType = reflect.TypeOf((*Enumerated)(nil)).Elem()

// FromType derives a record schema from a struct type. Fields are named by
// their `schema` tag, or by the Go name with a lower-cased first letter.
// A `schema:"-"` tag skips the field. Untagged embedded structs are inlined.
func FromType(rt reflect.Type) (*Type, error) {
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct", ErrUnsupportedGoType, rt)
	}
	fields, err := structFields(rt, map[reflect.Type]bool{rt: true})
	if err != nil {
		return nil, err
	}
	return NewRecord(rt.Name(), fields...), nil
}

// FromValue is FromType(reflect.TypeOf(v)).
func FromValue(v any) (*Type, error) {
	return FromType(reflect.TypeOf(v))
}

// structFields lists the fields of rt. seen holds the structs being described
// on the current path.
func structFields(rt reflect.Type, seen map[reflect.Type]bool) ([]Field, error) {
	fields := make([]Field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("schema")
		if tag == "-" {
			continue
		}
		if sf.Anonymous && tag == "" && sf.Type.Kind() == reflect.Struct {
			if seen[sf.Type] {
				return nil, fmt.Errorf("%w: %v", ErrRecursiveType, sf.Type)
			}
			seen[sf.Type] = true
			inner, err := structFields(sf.Type, seen)
			delete(seen, sf.Type)
			if err != nil {
				return nil, err
			}
			for _, f := range inner {
				f.Index = append([]int{i}, f.Index...)
				fields = append(fields, f)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		name := tag
		if name == "" {
			name = lowerFirst(sf.Name)
		}
		t, err := typeOf(sf.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", rt.Name(), sf.Name, err)
		}
		fields = append(fields, Field{Name: name, Type: t, Index: []int{i}})
	}
	return fields, nil
}

func typeOf(rt reflect.Type, seen map[reflect.Type]bool) (*Type, error) {
	if rt.Kind() != reflect.Pointer && rt.Implements(enumType) {
		e := reflect.Zero(rt).Interface().(Enumerated)
		return NewEnum(rt.Name(), e.Symbols()...), nil
	}

	switch rt.Kind() {
	case reflect.Pointer:
		inner, err := typeOf(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Of(Int), nil
	case reflect.Int, reflect.Int64, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Of(Long), nil
	case reflect.Float32:
		return Of(Float), nil
	case reflect.Float64:
		return Of(Double), nil
	case reflect.Bool:
		return Of(Boolean), nil
	case reflect.String:
		return Of(String), nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return Of(Bytes), nil
		}
		items, err := typeOf(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return &Type{Primitive: Array, Items: items}, nil
	case reflect.Map:
		items, err := typeOf(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return &Type{Primitive: Map, Items: items}, nil
	case reflect.Struct:
		if seen[rt] {
			return nil, fmt.Errorf("%w: %v", ErrRecursiveType, rt)
		}
		seen[rt] = true
		defer delete(seen, rt)
		fields, err := structFields(rt, seen)
		if err != nil {
			return nil, err
		}
		return NewRecord(rt.Name(), fields...), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedGoType, rt)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
