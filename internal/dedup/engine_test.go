package dedup

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

func record(t *testing.T, p domain.Payload) *domain.Record {
	t.Helper()
	r, err := domain.NewRecord(domain.Header{Type: p.Kind()}, p)
	require.NoError(t, err)
	return r
}

func initiated(t *testing.T, callID string) *domain.Record {
	return record(t, &domain.CallInitiated{CallID: callID})
}

func finished(t *testing.T, callID string) *domain.Record {
	return record(t, &domain.CallFinished{CallID: callID})
}

func threshold(n int64) *int64 {
	return &n
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	log, _ := test.NewNullLogger()
	e, err := New(cfg, log)
	require.NoError(t, err)
	return e
}

func TestCallInitiatedIsKeptOnce(t *testing.T) {
	e := newEngine(t, Config{})
	require.True(t, e.Keep(initiated(t, "c1")))
	require.False(t, e.Keep(initiated(t, "c1")))
	require.True(t, e.Keep(initiated(t, "c2")))
}

func TestPeerConnectionsPerCallAndDirection(t *testing.T) {
	e := newEngine(t, Config{})
	join := func(pc string) *domain.Record {
		return record(t, &domain.PeerConnectionJoined{CallID: "c", PeerConnectionID: pc})
	}
	detach := func(pc string) *domain.Record {
		return record(t, &domain.PeerConnectionDetached{CallID: "c", PeerConnectionID: pc})
	}

	require.True(t, e.Keep(join("p1")))
	require.False(t, e.Keep(join("p1")))
	require.True(t, e.Keep(join("p2")))

	require.True(t, e.Keep(detach("p1")))
	require.False(t, e.Keep(detach("p1")))

	other := record(t, &domain.PeerConnectionJoined{CallID: "other", PeerConnectionID: "p1"})
	require.True(t, e.Keep(other))
}

func TestFinishedRefreshesHorizon(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(5), CleanupPeriodInCycles: 1000})
	require.True(t, e.Keep(finished(t, "c")))
	require.False(t, e.Keep(finished(t, "c")))
	require.Equal(t, int64(2), e.finished["c"])
}

func TestOtherKindsAlwaysKept(t *testing.T) {
	e := newEngine(t, Config{})
	r := record(t, &domain.InboundRTP{CallID: "c", SSRC: 1})
	for i := 0; i < 3; i++ {
		require.True(t, e.Keep(r))
	}
	require.Equal(t, int64(3), e.Stats().Counter)
}

func TestCleanupEvictsOldFinishedCalls(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(10), CleanupPeriodInCycles: 1 << 30})
	const k = 5
	for i := 0; i < k; i++ {
		id := fmt.Sprintf("old-%d", i)
		e.Keep(initiated(t, id))
		e.Keep(record(t, &domain.PeerConnectionJoined{CallID: id, PeerConnectionID: "p"}))
		e.Keep(finished(t, id))
	}
	for i := 0; i < 10; i++ {
		e.Keep(record(t, &domain.Track{CallID: "x"}))
	}
	e.Keep(initiated(t, "fresh"))
	e.Keep(finished(t, "fresh"))

	e.Cleanup()
	s := e.Stats()
	require.Equal(t, 1, s.Finished)
	require.Equal(t, 1, s.Calls)
	require.Equal(t, 0, s.Joined)
	require.Equal(t, int64(k), s.Evicted)
	require.Contains(t, e.finished, "fresh")

	// evicted ids are new again
	require.True(t, e.Keep(initiated(t, "old-0")))
}

func TestZeroThresholdEvictsOnEveryPass(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(0), CleanupPeriodInCycles: 1})
	require.True(t, e.Keep(finished(t, "a")))
	s := e.Stats()
	require.Equal(t, 0, s.Finished)
	require.Equal(t, int64(1), s.Evicted)
	require.True(t, e.Keep(finished(t, "a")))
}

func TestThresholdFromYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("cleanup_threshold: 0"), &cfg))
	require.NotNil(t, cfg.CleanupThreshold)
	require.Zero(t, *cfg.CleanupThreshold)

	e := newEngine(t, Config{})
	require.Equal(t, int64(DefaultCleanupThreshold), *e.cfg.CleanupThreshold)
}

func TestCleanupRunsEveryPeriod(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(1), CleanupPeriodInCycles: 4})
	e.Keep(finished(t, "c"))
	for i := 0; i < 3; i++ {
		e.Keep(record(t, &domain.Track{}))
	}
	s := e.Stats()
	require.Equal(t, int64(1), s.CleanupPasses)
	require.Equal(t, 0, s.Finished)
}

func TestAbandonedCallsKeptByDefault(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(1), CleanupPeriodInCycles: 1})
	e.Keep(initiated(t, "abandoned"))
	for i := 0; i < 10; i++ {
		e.Keep(record(t, &domain.Track{}))
	}
	require.Equal(t, 1, e.Stats().Calls)
}

func TestAbandonedCallHorizon(t *testing.T) {
	e := newEngine(t, Config{CleanupThreshold: threshold(100), CleanupPeriodInCycles: 1, AbandonedCallHorizon: 3})
	e.Keep(initiated(t, "abandoned"))
	e.Keep(record(t, &domain.PeerConnectionJoined{CallID: "abandoned", PeerConnectionID: "p"}))
	e.Keep(initiated(t, "done"))
	e.Keep(finished(t, "done"))
	for i := 0; i < 3; i++ {
		e.Keep(record(t, &domain.Track{}))
	}
	s := e.Stats()
	require.Equal(t, 1, s.Calls)
	require.Equal(t, 0, s.Joined)
	require.Equal(t, 1, s.Finished)
}

func TestDuplicatesAreLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	e, err := New(Config{}, log)
	require.NoError(t, err)

	e.Keep(record(t, &domain.PeerConnectionDetached{CallID: "c", PeerConnectionID: "p"}))
	e.Keep(record(t, &domain.PeerConnectionDetached{CallID: "c", PeerConnectionID: "p"}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "PEER_CONNECTION_DETACHED", entry.Data["kind"])
	require.Equal(t, "c", entry.Data["call_id"])
	require.Equal(t, "p", entry.Data["pc_id"])
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{CleanupPeriodInCycles: -1}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
