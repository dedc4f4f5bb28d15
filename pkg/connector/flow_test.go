package connector

import (
	"context"
	"slices"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

type stubSource struct{}

func (stubSource) Start(context.Context, chan<- []byte) error { return nil }

func (stubSource) Name() string { return "stub" }

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
pipelines:
  - name: stubbed
    source: {type: stub}
    sink: {type: callback}
`))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	log, _ := test.NewNullLogger()
	rt, err := flow.
		Options(WithLogger(log), WithoutMetricsServer()).
		StreamIN(
			StreamInSource("stub", func(BuildContext) (Source, error) { return stubSource{}, nil }),
		).
		StreamOUT(
			StreamOutCallback("callback", func(context.Context, []*Record) error { return nil }),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}

	types := rt.registry.Types()
	if !slices.Contains(types["source"], "stub") {
		t.Fatalf("expected stub source to be wired, got %v", types["source"])
	}
	if !slices.Contains(types["sink"], "callback") {
		t.Fatalf("expected callback sink to be wired, got %v", types["sink"])
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConfFromConfigRequiresConfig(t *testing.T) {
	if _, err := ConfFromConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	var f *Flow
	if _, err := f.StreamOUT(); err == nil {
		t.Fatalf("expected error for nil flow")
	}
}
