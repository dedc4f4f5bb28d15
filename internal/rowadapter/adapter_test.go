package rowadapter

import (
	"reflect"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/schema"
)

type shade int

func (s shade) String() string {
	return [...]string{"LIGHT", "DARK"}[s]
}

func (shade) Symbols() []string {
	return []string{"LIGHT", "DARK"}
}

type inner struct {
	Width  int32   `schema:"width"`
	Height *int32  `schema:"height"`
	Label  *string `schema:"label"`
}

type outer struct {
	ID      string  `schema:"ID"`
	Count   int64   `schema:"count"`
	Ratio   float32 `schema:"ratio"`
	Enabled bool    `schema:"enabled"`
	Blob    []byte  `schema:"blob"`
	Shade   shade   `schema:"shade"`
	Size    *inner  `schema:"size"`
}

func sqliteTypes(t *testing.T) TypeTable[string] {
	t.Helper()
	table, err := SQLTypes("sqlite")
	require.NoError(t, err)
	return table
}

func keys(e Entry) []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestBuildFlatSchema(t *testing.T) {
	root, err := schema.FromValue(outer{})
	require.NoError(t, err)

	a, err := Build(root, sqliteTypes(t), Options[string]{Exclude: []string{"size"}})
	require.NoError(t, err)

	cols := a.Columns()
	require.Len(t, cols, 6)
	require.Equal(t, "id", cols[0].Name)
	require.Equal(t, "INTEGER", cols[1].Type)
	require.Equal(t, "BLOB", cols[4].Type)
	require.Equal(t, "TEXT", cols[5].Type)

	e, err := a.Apply(&outer{ID: "x", Count: 7, Ratio: 0.5, Enabled: true, Blob: []byte("b"), Shade: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"blob", "count", "enabled", "id", "ratio", "shade"}, keys(e))
	require.Equal(t, "DARK", e["shade"])
	require.Equal(t, int64(7), e["count"])
	require.Equal(t, float32(0.5), e["ratio"])
}

func TestBuildFlattensNestedRecord(t *testing.T) {
	root, err := schema.FromValue(outer{})
	require.NoError(t, err)

	a, err := Build(root, sqliteTypes(t), Options[string]{
		Flatten: map[string]Options[string]{"size": {}},
	})
	require.NoError(t, err)
	require.Len(t, a.Columns(), (len(root.Fields)-1)+3)
	for _, c := range a.Columns()[6:] {
		require.True(t, c.Nullable, c.Name)
		require.Contains(t, c.Field, "size.")
	}

	h := int32(4)
	e, err := a.Apply(outer{Size: &inner{Width: 3, Height: &h}})
	require.NoError(t, err)
	require.Equal(t, int32(3), e["width"])
	require.Equal(t, int32(4), e["height"])
	require.Contains(t, e, "label")
	require.Nil(t, e["label"])

	e, err = a.Apply(outer{})
	require.NoError(t, err)
	require.Contains(t, e, "width")
	require.Nil(t, e["width"])
}

func TestBuildRejectsUnmappedType(t *testing.T) {
	root, err := schema.FromValue(outer{})
	require.NoError(t, err)

	_, err = Build(root, sqliteTypes(t), Options[string]{})
	require.ErrorIs(t, err, ErrUnmappedType)

	tagged := schema.NewRecord("r", schema.Field{Name: "tags", Type: &schema.Type{Primitive: schema.Array, Items: schema.Of(schema.String)}})
	_, err = Build(tagged, BigQueryTypes(), Options[string]{})
	require.ErrorIs(t, err, ErrUnmappedType)
}

func TestOverridesAndResolvers(t *testing.T) {
	root, err := schema.FromValue(outer{})
	require.NoError(t, err)

	opts, err := OptionsFromConfig(Config{
		ExcludedFields: []string{"blob"},
		TypeOverrides:  map[string]string{"count": "NUMERIC", "shade": "VARCHAR(8)"},
		Resolvers: map[string]ResolverConfig{
			"size":  {Column: "Size_JSON", Value: "json"},
			"ratio": {Value: "string"},
		},
	})
	require.NoError(t, err)

	table := sqliteTypes(t)
	table[schema.Record] = Mapping[string]{Type: "TEXT", Convert: JSON}
	a, err := Build(root, table, opts)
	require.NoError(t, err)

	byName := map[string]Column[string]{}
	for _, c := range a.Columns() {
		byName[c.Name] = c
	}
	require.NotContains(t, byName, "blob")
	require.Equal(t, "NUMERIC", byName["count"].Type)
	require.Equal(t, "VARCHAR(8)", byName["shade"].Type)
	require.Contains(t, byName, "size_json")

	e, err := a.Apply(outer{Ratio: 2, Shade: 0, Size: &inner{Width: 1}})
	require.NoError(t, err)
	require.Equal(t, "2", e["ratio"])
	require.Equal(t, "LIGHT", e["shade"])
	require.JSONEq(t, `{"Width":1,"Height":null,"Label":null}`, e["size_json"].(string))
}

func TestUnknownResolverName(t *testing.T) {
	_, err := OptionsFromConfig(Config{Resolvers: map[string]ResolverConfig{"x": {Value: "rot13"}}})
	require.ErrorIs(t, err, ErrUnknownResolver)
}

func TestDuplicateColumnsFailBuild(t *testing.T) {
	root := schema.NewRecord("r",
		schema.Field{Name: "a", Type: schema.Of(schema.String)},
		schema.Field{Name: "A", Type: schema.Of(schema.String)},
	)
	_, err := Build(root, BigQueryTypes(), Options[string]{})
	require.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestApplyMapValues(t *testing.T) {
	root := schema.NewRecord("r",
		schema.Field{Name: "Name", Type: schema.Of(schema.String)},
		schema.Field{Name: "score", Type: schema.Optional(schema.Of(schema.Double))},
		schema.Field{Name: "nested", Type: schema.NewRecord("n", schema.Field{Name: "v", Type: schema.Of(schema.Long)})},
	)
	a, err := Build(root, BigQueryTypes(), Options[string]{Flatten: map[string]Options[string]{"nested": {}}})
	require.NoError(t, err)
	require.Equal(t, "FLOAT64", a.Columns()[1].Type)
	require.True(t, a.Columns()[1].Nullable)

	e, err := a.Apply(map[string]any{"Name": "n", "nested": map[string]any{"v": int64(1)}})
	require.NoError(t, err)
	require.Equal(t, Entry{"name": "n", "score": nil, "v": int64(1)}, e)
}

func TestTypeLookupIsDeterministic(t *testing.T) {
	for _, table := range []TypeTable[string]{BigQueryTypes(), sqliteTypes(t)} {
		for _, p := range []schema.Primitive{schema.Int, schema.Long, schema.Float, schema.Double, schema.Bytes, schema.Boolean, schema.String, schema.Enum} {
			first, ok := table.Lookup(p)
			require.True(t, ok, p.String())
			second, _ := table.Lookup(p)
			require.Equal(t, first.Type, second.Type)
			require.Equal(t, reflect.ValueOf(first.Convert).Pointer(), reflect.ValueOf(second.Convert).Pointer())
		}
	}
	_, err := SQLTypes("oracle")
	require.ErrorIs(t, err, ErrUnknownDialect)
}

func TestDomainRecordProjectsToOneRow(t *testing.T) {
	s, err := domain.Schema(domain.TypeInboundRTP)
	require.NoError(t, err)
	table, err := SQLTypes("postgres")
	require.NoError(t, err)

	a, err := Build(s, table, Options[string]{Flatten: map[string]Options[string]{domain.PayloadField: {}}})
	require.NoError(t, err)

	jitter := 0.25
	rec, err := domain.NewRecord(
		domain.Header{Version: 1, Type: domain.TypeInboundRTP, OriginID: "o", TimestampMs: 10},
		&domain.InboundRTP{CallID: "c", SSRC: 42, MediaKind: domain.MediaKindAudio, Jitter: &jitter},
	)
	require.NoError(t, err)

	e, err := a.Apply(rec)
	require.NoError(t, err)
	require.Len(t, e, len(a.Columns()))
	require.Equal(t, "INBOUND_RTP", e["type"])
	require.Equal(t, "AUDIO", e["kind"])
	require.Equal(t, 0.25, e["jitter"])
	require.Nil(t, e["marker"])
	require.Nil(t, e["packetslost"])
	require.Equal(t, int64(42), e["ssrc"])
}
