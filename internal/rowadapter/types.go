package rowadapter

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ObserveRTC/connector-sub000/internal/schema"
)

var ErrUnknownDialect = errors.New("rowadapter: unknown sql dialect")

// Mapping is the target column type and default converter of a primitive.
type Mapping[C any] struct {
	Type    C
	Convert Converter
}

// TypeTable maps schema primitives to destination column types.
type TypeTable[C any] map[schema.Primitive]Mapping[C]

// Lookup returns the mapping of p. Unions and composites are never mapped
// directly; callers resolve nullable unions to their non-null arm first.
func (t TypeTable[C]) Lookup(p schema.Primitive) (Mapping[C], bool) {
	m, ok := t[p]
	return m, ok
}

// Identity returns v unchanged.
func Identity(v any) (any, error) {
	return v, nil
}

// EnumName converts an enum value to its symbol.
func EnumName(v any) (any, error) {
	switch e := v.(type) {
	case fmt.Stringer:
		return e.String(), nil
	case string:
		return e, nil
	}
	return nil, fmt.Errorf("enum value %T has no name", v)
}

// Stringify formats any value as text, enums by symbol.
func Stringify(v any) (any, error) {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprint(v), nil
}

// JSON encodes v as a JSON document string.
func JSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func table(integer, long, float, double, bytes, boolean, text, enum string) TypeTable[string] {
	return TypeTable[string]{
		schema.Int:     {Type: integer, Convert: Identity},
		schema.Long:    {Type: long, Convert: Identity},
		schema.Float:   {Type: float, Convert: Identity},
		schema.Double:  {Type: double, Convert: Identity},
		schema.Bytes:   {Type: bytes, Convert: Identity},
		schema.Boolean: {Type: boolean, Convert: Identity},
		schema.String:  {Type: text, Convert: Identity},
		schema.Enum:    {Type: enum, Convert: EnumName},
	}
}

// SQLTypes returns the column type table of a SQL dialect: postgres, mysql
// or sqlite.
func SQLTypes(dialect string) (TypeTable[string], error) {
	switch dialect {
	case "postgres":
		return table("INTEGER", "BIGINT", "REAL", "DOUBLE PRECISION", "BYTEA", "BOOLEAN", "TEXT", "TEXT"), nil
	case "mysql":
		return table("INT", "BIGINT", "FLOAT", "DOUBLE", "LONGBLOB", "BOOLEAN", "TEXT", "VARCHAR(64)"), nil
	case "sqlite":
		return table("INTEGER", "INTEGER", "REAL", "REAL", "BLOB", "INTEGER", "TEXT", "TEXT"), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
}

// BigQueryTypes returns the standard SQL column types of a BigQuery table.
func BigQueryTypes() TypeTable[string] {
	return table("INT64", "INT64", "FLOAT64", "FLOAT64", "BYTES", "BOOL", "STRING", "STRING")
}
