// Package schema describes self-describing record shapes: a tree of named
// fields with primitive, nested record, enum and union types. Schemas are
// read-only once built and are consumed by the row adapter to derive column
// definitions and value extractors.
package schema

import "fmt"

// Primitive identifies the shape of a schema node.
type Primitive int

const (
	Null Primitive = iota
	Int
	Long
	Float
	Double
	Bytes
	Boolean
	String
	Enum
	Record
	Array
	Map
	Union
)

var primitiveNames = [...]string{
	Null:    "null",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Bytes:   "bytes",
	Boolean: "boolean",
	String:  "string",
	Enum:    "enum",
	Record:  "record",
	Array:   "array",
	Map:     "map",
	Union:   "union",
}

func (p Primitive) String() string {
	if p < 0 || int(p) >= len(primitiveNames) {
		return fmt.Sprintf("primitive(%d)", int(p))
	}
	return primitiveNames[p]
}

// Type is a node of a schema tree.
type Type struct {
	Primitive Primitive
	// Name is set for records and enums.
	Name string
	// Fields lists record fields in declaration order.
	Fields []Field
	// Symbols lists enum symbols.
	Symbols []string
	// Branches lists union arms.
	Branches []*Type
	// Items is the element type of arrays and the value type of maps.
	Items *Type
}

// Field is a named member of a record.
type Field struct {
	Name string
	Type *Type
	// Index is the reflect field index path used to read the field from a
	// struct-backed value. Empty for schemas not derived from Go types.
	Index []int
}

// Of returns a node for a non-composite primitive.
func Of(p Primitive) *Type {
	return &Type{Primitive: p}
}

// Optional wraps t in a two-branch union with a null arm.
func Optional(t *Type) *Type {
	return &Type{Primitive: Union, Branches: []*Type{Of(Null), t}}
}

// NewRecord returns a record node with the given fields.
func NewRecord(name string, fields ...Field) *Type {
	return &Type{Primitive: Record, Name: name, Fields: fields}
}

// NewEnum returns an enum node.
func NewEnum(name string, symbols ...string) *Type {
	return &Type{Primitive: Enum, Name: name, Symbols: symbols}
}

// Lookup returns the record field with the given name.
func (t *Type) Lookup(name string) (Field, bool) {
	if t == nil {
		return Field{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Nullable reports whether the field is a two-branch union with a null arm.
func (f Field) Nullable() bool {
	_, ok := nonNullArm(f.Type)
	return ok
}

// Effective returns the non-null arm of a nullable field, or the field type
// itself otherwise.
func (f Field) Effective() *Type {
	if arm, ok := nonNullArm(f.Type); ok {
		return arm
	}
	return f.Type
}

func nonNullArm(t *Type) (*Type, bool) {
	if t == nil || t.Primitive != Union || len(t.Branches) != 2 {
		return nil, false
	}
	a, b := t.Branches[0], t.Branches[1]
	switch {
	case a != nil && a.Primitive == Null && b != nil:
		return b, true
	case b != nil && b.Primitive == Null && a != nil:
		return a, true
	}
	return nil, false
}
