package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type color int

func (color) Symbols() []string { return []string{"RED", "GREEN"} }
func (c color) String() string   { return c.Symbols()[c] }

type inner struct {
	Width  int32 `schema:"width"`
	Height *int32
}

type base struct {
	ID string `schema:"id"`
}

type sample struct {
	base
	Name    string            `schema:"name"`
	Count   int64             `schema:"count"`
	Ratio   *float64          `schema:"ratio"`
	Blob    []byte            `schema:"blob"`
	Shade   color             `schema:"shade"`
	MaybeC  *color            `schema:"maybeShade"`
	Size    inner             `schema:"size"`
	Tags    []string          `schema:"tags"`
	Labels  map[string]string `schema:"labels"`
	Skipped string            `schema:"-"`
	private int
}

func TestFromTypeDescribesStruct(t *testing.T) {
	root, err := FromType(reflect.TypeOf(sample{}))
	require.NoError(t, err)
	require.Equal(t, Record, root.Primitive)

	var names []string
	for _, f := range root.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"id", "name", "count", "ratio", "blob", "shade", "maybeShade", "size", "tags", "labels"}, names)

	id, ok := root.Lookup("id")
	require.True(t, ok)
	require.Equal(t, []int{0, 0}, id.Index)

	ratio, _ := root.Lookup("ratio")
	require.True(t, ratio.Nullable())
	require.Equal(t, Double, ratio.Effective().Primitive)

	shade, _ := root.Lookup("shade")
	require.Equal(t, Enum, shade.Type.Primitive)
	require.Equal(t, []string{"RED", "GREEN"}, shade.Type.Symbols)

	maybe, _ := root.Lookup("maybeShade")
	require.True(t, maybe.Nullable())
	require.Equal(t, Enum, maybe.Effective().Primitive)

	blob, _ := root.Lookup("blob")
	require.Equal(t, Bytes, blob.Type.Primitive)

	size, _ := root.Lookup("size")
	require.Equal(t, Record, size.Type.Primitive)
	h, ok := size.Type.Lookup("height")
	require.True(t, ok)
	require.True(t, h.Nullable())

	tags, _ := root.Lookup("tags")
	require.Equal(t, Array, tags.Type.Primitive)
	labels, _ := root.Lookup("labels")
	require.Equal(t, Map, labels.Type.Primitive)
}

func TestFromTypeRejectsNonStruct(t *testing.T) {
	_, err := FromType(reflect.TypeOf(42))
	require.ErrorIs(t, err, ErrUnsupportedGoType)
}

func TestNullableRequiresTwoBranchUnion(t *testing.T) {
	three := Field{Name: "x", Type: &Type{Primitive: Union, Branches: []*Type{Of(Null), Of(Int), Of(String)}}}
	require.False(t, three.Nullable())
	require.Equal(t, Union, three.Effective().Primitive)

	reversed := Field{Name: "y", Type: &Type{Primitive: Union, Branches: []*Type{Of(String), Of(Null)}}}
	require.True(t, reversed.Nullable())
	require.Equal(t, String, reversed.Effective().Primitive)
}

type node struct {
	Value int32 `schema:"value"`
	Next  *node `schema:"next"`
}

type wrapper struct {
	Nodes []node `schema:"nodes"`
}

func TestFromTypeRejectsRecursiveStructs(t *testing.T) {
	_, err := FromType(reflect.TypeOf(node{}))
	require.ErrorIs(t, err, ErrRecursiveType)

	_, err = FromType(reflect.TypeOf(wrapper{}))
	require.ErrorIs(t, err, ErrRecursiveType)
}

func TestFromTypeRejectsUnsigned64(t *testing.T) {
	type counters struct {
		Small uint32 `schema:"small"`
		Big   uint64 `schema:"big"`
	}
	_, err := FromType(reflect.TypeOf(counters{}))
	require.ErrorIs(t, err, ErrUnsupportedGoType)

	type small struct {
		Small uint32 `schema:"small"`
	}
	typ, err := FromType(reflect.TypeOf(small{}))
	require.NoError(t, err)
	require.Equal(t, Long, typ.Fields[0].Type.Primitive)
}
