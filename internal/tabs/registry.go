package tabs

import (
	"time"
)

const (
	// DefaultStaleAfter is the age beyond which a tab's heartbeat is ignored
	// when computing the active tab set.
	DefaultStaleAfter = 15 * time.Second

	// DefaultRemoveAfter is the age beyond which a cleanup pass physically
	// removes an entry from the registry.
	DefaultRemoveAfter = 60 * time.Second
)

// TabInfo describes one client tab in the shared registry. Each entry is
// mutated only by its owning tab.
type TabInfo struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // last heartbeat, unix milliseconds
	IsVisible bool   `json:"is_visible"`
	GameID    string `json:"game_id,omitempty"`
}

// TabRegistry is the shared snapshot of all known tabs. It is read-modify-
// written without a lock; correctness relies on deterministic election over
// whatever snapshot a tab last observed, not on mutual exclusion.
type TabRegistry struct {
	Tabs       map[string]TabInfo `json:"tabs"`
	LastUpdate int64              `json:"last_update"`
}

// EmptyRegistry returns a registry with no tabs. Corrupt or absent store
// data decodes to this.
func EmptyRegistry() TabRegistry {
	return TabRegistry{Tabs: map[string]TabInfo{}}
}

// TabPatch is a partial update to a tab's own entry. Nil fields keep the
// merged defaults (current timestamp, visible).
type TabPatch struct {
	IsVisible *bool
	GameID    *string
}

// Verdict is the outcome of leader election for one tab.
type Verdict struct {
	IsPrimary  bool
	ShouldWarn bool
	Message    string
}

func millis(t time.Time) int64 { return t.UnixMilli() }

// FilterActive returns a registry containing only entries whose heartbeat is
// within staleAfter of now. Filtering an already-filtered registry is a
// no-op.
func FilterActive(reg TabRegistry, now time.Time, staleAfter time.Duration) TabRegistry {
	cutoff := millis(now.Add(-staleAfter))
	out := TabRegistry{
		Tabs:       make(map[string]TabInfo, len(reg.Tabs)),
		LastUpdate: reg.LastUpdate,
	}
	for id, info := range reg.Tabs {
		if info.Timestamp >= cutoff {
			out.Tabs[id] = info
		}
	}
	return out
}

// Cleanup returns a registry with entries stale beyond removeAfter removed.
// Tabs that crashed without unregistering are reclaimed here.
func Cleanup(reg TabRegistry, now time.Time, removeAfter time.Duration) TabRegistry {
	return FilterActive(reg, now, removeAfter)
}

// UpdateTab returns a new registry with the tab's entry merged. A missing
// entry is created with the defaults; the heartbeat timestamp is always
// bumped to now. The input registry is never mutated.
func UpdateTab(reg TabRegistry, id string, now time.Time, patch TabPatch) TabRegistry {
	out := TabRegistry{
		Tabs:       make(map[string]TabInfo, len(reg.Tabs)+1),
		LastUpdate: millis(now),
	}
	for k, v := range reg.Tabs {
		out.Tabs[k] = v
	}

	info, ok := out.Tabs[id]
	if !ok {
		info = TabInfo{ID: id, IsVisible: true}
	}
	info.Timestamp = millis(now)
	if patch.IsVisible != nil {
		info.IsVisible = *patch.IsVisible
	}
	if patch.GameID != nil {
		info.GameID = *patch.GameID
	}
	out.Tabs[id] = info
	return out
}

// RemoveTab returns a new registry without the given tab.
func RemoveTab(reg TabRegistry, id string, now time.Time) TabRegistry {
	out := TabRegistry{
		Tabs:       make(map[string]TabInfo, len(reg.Tabs)),
		LastUpdate: millis(now),
	}
	for k, v := range reg.Tabs {
		if k != id {
			out.Tabs[k] = v
		}
	}
	return out
}

// DeterminePrimary decides whether the given tab is allowed to drive an
// active game. With at most one active tab the tab is primary with no
// warning. Otherwise the tab with the oldest heartbeat registration wins;
// ties break on the smallest id so every tab computes the same winner from
// the same snapshot, with no consensus round-trip.
func DeterminePrimary(id string, reg TabRegistry, now time.Time, staleAfter time.Duration) Verdict {
	active := FilterActive(reg, now, staleAfter)
	if len(active.Tabs) <= 1 {
		return Verdict{IsPrimary: true}
	}

	var winner TabInfo
	first := true
	for _, info := range active.Tabs {
		if first || older(info, winner) {
			winner = info
			first = false
		}
	}

	if winner.ID == id {
		return Verdict{IsPrimary: true}
	}
	return Verdict{
		IsPrimary:  false,
		ShouldWarn: true,
		Message:    "the game is open in another tab; this tab is read-only",
	}
}

func older(a, b TabInfo) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}
