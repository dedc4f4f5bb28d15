package main

import "testing"

func TestParseSample(t *testing.T) {
	cases := []struct {
		line  string
		name  string
		value float64
		ok    bool
	}{
		{`connector_records_written_total{pipeline="calls"} 42`, "connector_records_written_total", 42, true},
		{`connector_pipelines_in_flight 3`, "connector_pipelines_in_flight", 3, true},
		{`connector_sink_latency_seconds_sum{pipeline="a"} 1.5e-3`, "connector_sink_latency_seconds_sum", 0.0015, true},
		{`garbage`, "", 0, false},
		{`name NaNish`, "", 0, false},
	}
	for _, c := range cases {
		name, value, ok := parseSample(c.line)
		if ok != c.ok || name != c.name || value != c.value {
			t.Fatalf("parseSample(%q) = %q, %v, %v; want %q, %v, %v", c.line, name, value, ok, c.name, c.value, c.ok)
		}
	}
}
