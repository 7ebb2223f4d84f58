package tabs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type verdictLog struct {
	mu       sync.Mutex
	verdicts []Verdict
}

func (l *verdictLog) record(v Verdict) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verdicts = append(l.verdicts, v)
}

func (l *verdictLog) last() (Verdict, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.verdicts) == 0 {
		return Verdict{}, false
	}
	return l.verdicts[len(l.verdicts)-1], true
}

// waitFor polls a condition driven by coordinator goroutines so tests never
// hang on a missed signal.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCoordinatorSoloTabIsPrimary(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	log := &verdictLog{}

	c := NewCoordinator(store, DefaultCoordinatorConfig(), fc, log.record)
	c.Start(context.Background())
	defer c.Stop()

	v, ok := log.last()
	require.True(t, ok, "initial verdict must be delivered on start")
	require.True(t, v.IsPrimary)
	require.False(t, v.ShouldWarn)

	reg, err := store.Read()
	require.NoError(t, err)
	require.Contains(t, reg.Tabs, c.ID())
}

func TestCoordinatorStopUnregisters(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()

	c := NewCoordinator(store, DefaultCoordinatorConfig(), fc, nil)
	c.Start(context.Background())
	c.Stop()

	reg, err := store.Read()
	require.NoError(t, err)
	require.NotContains(t, reg.Tabs, c.ID())
}

func TestSecondTabIsDemoted(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	logA := &verdictLog{}
	logB := &verdictLog{}

	a := NewCoordinator(store, DefaultCoordinatorConfig(), fc, logA.record)
	a.Start(context.Background())
	defer a.Stop()

	fc.Advance(100 * time.Millisecond)

	b := NewCoordinator(store, DefaultCoordinatorConfig(), fc, logB.record)
	b.Start(context.Background())
	defer b.Stop()

	vb, ok := logB.last()
	require.True(t, ok)
	require.False(t, vb.IsPrimary, "younger tab must be secondary")
	require.True(t, vb.ShouldWarn)

	// The older tab keeps its role.
	waitFor(t, func() bool {
		va, _ := logA.last()
		return va.IsPrimary
	}, "older tab must stay primary")
}

func TestPromotionWhenPrimaryStops(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	logB := &verdictLog{}

	a := NewCoordinator(store, DefaultCoordinatorConfig(), fc, nil)
	a.Start(context.Background())

	fc.Advance(100 * time.Millisecond)

	b := NewCoordinator(store, DefaultCoordinatorConfig(), fc, logB.record)
	b.Start(context.Background())
	defer b.Stop()

	vb, _ := logB.last()
	require.False(t, vb.IsPrimary)

	a.Stop()

	waitFor(t, func() bool {
		v, _ := logB.last()
		return v.IsPrimary
	}, "surviving tab must be promoted after the primary unregisters")
}

func TestDemotionOnChangeNotification(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	log := &verdictLog{}

	c := NewCoordinator(store, DefaultCoordinatorConfig(), fc, log.record)
	c.Start(context.Background())
	defer c.Stop()

	// Another tab with an older registration appears in the shared store.
	reg, err := store.Read()
	require.NoError(t, err)
	reg.Tabs["intruder"] = TabInfo{
		ID:        "intruder",
		Timestamp: millis(fc.Now().Add(-time.Second)),
		IsVisible: true,
	}
	require.NoError(t, store.Write(reg))

	waitFor(t, func() bool {
		v, _ := log.last()
		return !v.IsPrimary && v.ShouldWarn
	}, "tab must be demoted promptly on a storage change, not at the next heartbeat")
}

func TestStalePrimaryIsReclaimedByHeartbeat(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	logB := &verdictLog{}

	ctxA, cancelA := context.WithCancel(context.Background())
	a := NewCoordinator(store, DefaultCoordinatorConfig(), fc, nil)
	a.Start(ctxA)

	fc.Advance(100 * time.Millisecond)

	b := NewCoordinator(store, DefaultCoordinatorConfig(), fc, logB.record)
	b.Start(context.Background())
	defer b.Stop()

	vb, _ := logB.last()
	require.False(t, vb.IsPrimary)

	// Kill A without unregistering; its entry must go stale rather than hold
	// the lease forever.
	cancelA()
	<-a.done

	fc.BlockUntil(1)
	fc.Advance(DefaultStaleAfter + time.Second)

	waitFor(t, func() bool {
		v, _ := logB.last()
		return v.IsPrimary
	}, "survivor must be promoted once the dead tab goes stale")
}

type failingStore struct{}

func (failingStore) Read() (TabRegistry, error) {
	return TabRegistry{}, errors.New("storage unavailable")
}

func (failingStore) Write(TabRegistry) error { return errors.New("storage unavailable") }
func (failingStore) Watch() <-chan struct{}  { return make(chan struct{}) }
func (failingStore) Close() error            { return nil }

func TestFailOpenWhenStorageUnavailable(t *testing.T) {
	fc := clockwork.NewFakeClock()
	log := &verdictLog{}

	c := NewCoordinator(failingStore{}, DefaultCoordinatorConfig(), fc, log.record)
	c.Start(context.Background())
	defer c.Stop()

	v, ok := log.last()
	require.True(t, ok)
	require.True(t, v.IsPrimary, "storage failure must fail open to primary")
	require.False(t, v.ShouldWarn)
}

func TestHeartbeatRefreshesOwnEntry(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()
	cfg := DefaultCoordinatorConfig()

	c := NewCoordinator(store, cfg, fc, nil)
	c.Start(context.Background())
	defer c.Stop()

	reg, _ := store.Read()
	before := reg.Tabs[c.ID()].Timestamp

	fc.BlockUntil(1)
	fc.Advance(cfg.HeartbeatInterval)

	waitFor(t, func() bool {
		reg, _ := store.Read()
		return reg.Tabs[c.ID()].Timestamp > before
	}, "heartbeat must refresh the tab's own timestamp")
}

func TestVisibilityChangeIsRecorded(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()

	c := NewCoordinator(store, DefaultCoordinatorConfig(), fc, nil)
	c.Start(context.Background())
	defer c.Stop()

	c.SetVisible(false)

	waitFor(t, func() bool {
		reg, _ := store.Read()
		info, ok := reg.Tabs[c.ID()]
		return ok && !info.IsVisible
	}, "visibility change must be written to the registry")
}

func TestGameIDIsRecorded(t *testing.T) {
	store := NewMemoryStore()
	fc := clockwork.NewFakeClock()

	c := NewCoordinator(store, DefaultCoordinatorConfig(), fc, nil)
	c.Start(context.Background())
	defer c.Stop()

	c.SetGameID("g42")

	waitFor(t, func() bool {
		reg, _ := store.Read()
		return reg.Tabs[c.ID()].GameID == "g42"
	}, "controlled game id must be written to the registry")
}
