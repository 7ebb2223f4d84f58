package tabs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.UnixMilli(1_700_000_000_000)

func registryWith(entries ...TabInfo) TabRegistry {
	reg := EmptyRegistry()
	for _, e := range entries {
		reg.Tabs[e.ID] = e
	}
	return reg
}

func TestFilterActiveIdempotent(t *testing.T) {
	reg := registryWith(
		TabInfo{ID: "a", Timestamp: millis(base)},
		TabInfo{ID: "b", Timestamp: millis(base.Add(-20 * time.Second))},
		TabInfo{ID: "c", Timestamp: millis(base.Add(-10 * time.Second))},
	)

	once := FilterActive(reg, base, DefaultStaleAfter)
	twice := FilterActive(once, base, DefaultStaleAfter)

	require.Len(t, once.Tabs, 2)
	require.NotContains(t, once.Tabs, "b")
	assert.Equal(t, once, twice, "filtering a filtered registry must be a no-op")
}

func TestCleanupRemovesOnlyBeyondRemovalThreshold(t *testing.T) {
	reg := registryWith(
		TabInfo{ID: "fresh", Timestamp: millis(base)},
		TabInfo{ID: "stale", Timestamp: millis(base.Add(-30 * time.Second))},
		TabInfo{ID: "dead", Timestamp: millis(base.Add(-90 * time.Second))},
	)

	cleaned := Cleanup(reg, base, DefaultRemoveAfter)
	require.Len(t, cleaned.Tabs, 2)
	require.Contains(t, cleaned.Tabs, "stale", "stale but not dead entries survive cleanup")
	require.NotContains(t, cleaned.Tabs, "dead")
}

func TestUpdateTabDoesNotMutateInput(t *testing.T) {
	reg := registryWith(TabInfo{ID: "a", Timestamp: millis(base), IsVisible: true})

	visible := false
	out := UpdateTab(reg, "a", base.Add(time.Second), TabPatch{IsVisible: &visible})

	require.True(t, reg.Tabs["a"].IsVisible, "input registry must not change")
	require.Equal(t, millis(base), reg.Tabs["a"].Timestamp)
	require.False(t, out.Tabs["a"].IsVisible)
	require.Equal(t, millis(base.Add(time.Second)), out.Tabs["a"].Timestamp)
	require.Equal(t, millis(base.Add(time.Second)), out.LastUpdate)
}

func TestUpdateTabCreatesWithDefaults(t *testing.T) {
	out := UpdateTab(EmptyRegistry(), "fresh", base, TabPatch{})

	info := out.Tabs["fresh"]
	require.Equal(t, "fresh", info.ID)
	require.True(t, info.IsVisible)
	require.Equal(t, millis(base), info.Timestamp)
}

func TestRemoveTab(t *testing.T) {
	reg := registryWith(
		TabInfo{ID: "a", Timestamp: millis(base)},
		TabInfo{ID: "b", Timestamp: millis(base)},
	)

	out := RemoveTab(reg, "a", base)
	require.NotContains(t, out.Tabs, "a")
	require.Contains(t, out.Tabs, "b")
	require.Contains(t, reg.Tabs, "a", "input registry must not change")
}

func TestDeterminePrimarySoleTab(t *testing.T) {
	reg := registryWith(TabInfo{ID: "a", Timestamp: millis(base)})

	v := DeterminePrimary("a", reg, base, DefaultStaleAfter)
	require.True(t, v.IsPrimary)
	require.False(t, v.ShouldWarn)
}

func TestDeterminePrimaryOldestWins(t *testing.T) {
	// Tab A registered at t=0, tab B at t=100; both heartbeating.
	reg := registryWith(
		TabInfo{ID: "a", Timestamp: millis(base)},
		TabInfo{ID: "b", Timestamp: millis(base.Add(100 * time.Millisecond))},
	)
	now := base.Add(200 * time.Millisecond)

	va := DeterminePrimary("a", reg, now, DefaultStaleAfter)
	require.True(t, va.IsPrimary)
	require.False(t, va.ShouldWarn)

	vb := DeterminePrimary("b", reg, now, DefaultStaleAfter)
	require.False(t, vb.IsPrimary)
	require.True(t, vb.ShouldWarn)
	require.NotEmpty(t, vb.Message)
}

func TestDeterminePrimaryIsDeterministic(t *testing.T) {
	reg := registryWith(
		TabInfo{ID: "a", Timestamp: millis(base)},
		TabInfo{ID: "b", Timestamp: millis(base)},
		TabInfo{ID: "c", Timestamp: millis(base.Add(time.Second))},
	)

	first := DeterminePrimary("b", reg, base, DefaultStaleAfter)
	second := DeterminePrimary("b", reg, base, DefaultStaleAfter)
	assert.Equal(t, first, second, "identical input must yield identical output")

	// Exactly one tab among the active set is primary.
	primaries := 0
	for _, id := range []string{"a", "b", "c"} {
		if DeterminePrimary(id, reg, base, DefaultStaleAfter).IsPrimary {
			primaries++
		}
	}
	require.Equal(t, 1, primaries)
}

func TestDeterminePrimaryIgnoresStaleTabs(t *testing.T) {
	// An older but stale tab must not hold the lease forever.
	reg := registryWith(
		TabInfo{ID: "crashed", Timestamp: millis(base.Add(-time.Minute))},
		TabInfo{ID: "live", Timestamp: millis(base)},
	)

	v := DeterminePrimary("live", reg, base, DefaultStaleAfter)
	require.True(t, v.IsPrimary)
	require.False(t, v.ShouldWarn)
}

func TestDecodeRegistryCorruptData(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("{not json")},
		{"wrong shape", []byte(`{"tabs": 42}`)},
		{"null tabs", []byte(`{"tabs": null}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := decodeRegistry(tc.data)
			require.NotNil(t, reg.Tabs)
			require.Empty(t, reg.Tabs)
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	reg, err := store.Read()
	require.NoError(t, err)
	require.Empty(t, reg.Tabs)

	watch := store.Watch()
	reg = UpdateTab(reg, "a", base, TabPatch{})
	require.NoError(t, store.Write(reg))

	select {
	case <-watch:
	default:
		t.Fatal("expected a change notification after write")
	}

	got, err := store.Read()
	require.NoError(t, err)
	require.Contains(t, got.Tabs, "a")
}
