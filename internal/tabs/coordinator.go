package tabs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CoordinatorConfig holds timing configuration for one tab's registry
// participation.
type CoordinatorConfig struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	RemoveAfter       time.Duration
}

// DefaultCoordinatorConfig returns the default heartbeat and staleness
// thresholds.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		HeartbeatInterval: 5 * time.Second,
		StaleAfter:        DefaultStaleAfter,
		RemoveAfter:       DefaultRemoveAfter,
	}
}

// RoleChange is invoked whenever this tab's election verdict changes,
// including the first evaluation after Start.
type RoleChange func(Verdict)

// Coordinator drives one tab's participation in leader election: it
// registers the tab, rewrites its heartbeat on a fixed interval, reclaims
// stale entries, and re-evaluates the election on every heartbeat, on
// visibility changes, and on change notifications from other tabs. The
// push-based wakeup is layered on top of the pull-based heartbeat so a
// demotion is detected promptly rather than at the next tick.
type Coordinator struct {
	store  RegistryStore
	clock  clockwork.Clock
	cfg    CoordinatorConfig
	tabID  string
	onRole RoleChange

	mu         sync.Mutex
	visible    bool
	gameID     string
	verdict    Verdict
	hasVerdict bool

	pokeCh chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a coordinator for a freshly loaded tab with a
// generated tab id.
func NewCoordinator(store RegistryStore, cfg CoordinatorConfig, clock clockwork.Clock, onRole RoleChange) *Coordinator {
	return &Coordinator{
		store:   store,
		clock:   clock,
		cfg:     cfg,
		tabID:   uuid.New().String(),
		onRole:  onRole,
		visible: true,
		pokeCh:  make(chan struct{}, 1),
	}
}

// ID returns this tab's registry id.
func (c *Coordinator) ID() string { return c.tabID }

// Verdict returns the most recent election outcome for this tab.
func (c *Coordinator) Verdict() Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict
}

// Start registers the tab, evaluates the initial verdict, and begins the
// heartbeat loop. It returns once the tab is registered.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	// Subscribe before the first heartbeat; a write landing between
	// registration and the loop picking up the channel would otherwise be
	// lost until the next tick.
	changes := c.store.Watch()

	c.heartbeat()

	go c.run(runCtx, changes)

	log.Info().Str("tab_id", c.tabID).Msg("tab coordinator started")
}

// Stop removes this tab's entry best-effort and stops the heartbeat loop.
// If the removal write fails the staleness thresholds reclaim the entry.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done

	reg, err := c.store.Read()
	if err == nil {
		if err := c.store.Write(RemoveTab(reg, c.tabID, c.clock.Now())); err != nil {
			log.Warn().Err(err).Str("tab_id", c.tabID).Msg("failed to unregister tab")
		}
	}
	log.Info().Str("tab_id", c.tabID).Msg("tab coordinator stopped")
}

// SetVisible records a visibility change and re-evaluates the election.
func (c *Coordinator) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
	c.Poke()
}

// SetGameID records which game this tab currently controls.
func (c *Coordinator) SetGameID(gameID string) {
	c.mu.Lock()
	c.gameID = gameID
	c.mu.Unlock()
	c.Poke()
}

// Poke forces an immediate heartbeat and re-election, e.g. on focus.
func (c *Coordinator) Poke() {
	select {
	case c.pokeCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context, changes <-chan struct{}) {
	defer close(c.done)

	ticker := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.heartbeat()
		case <-changes:
			// Another tab wrote the registry. Re-evaluate only; writing here
			// would signal every other tab and echo forever.
			c.evaluate()
		case <-c.pokeCh:
			c.heartbeat()
		}
	}
}

// heartbeat rewrites this tab's entry, runs the cleanup pass, and
// re-evaluates the election from the resulting snapshot. Any other tab may
// interleave a write between our read and write; the next heartbeat or
// change notification converges on the union.
func (c *Coordinator) heartbeat() {
	now := c.clock.Now()

	reg, err := c.store.Read()
	if err != nil {
		// Storage unavailable: fail open and assume this is the sole tab.
		// Blocking the user is worse than an undetected conflict.
		log.Warn().Err(err).Str("tab_id", c.tabID).Msg("registry read failed, assuming primary")
		c.setVerdict(Verdict{IsPrimary: true})
		return
	}

	reg = Cleanup(reg, now, c.cfg.RemoveAfter)

	c.mu.Lock()
	visible := c.visible
	gameID := c.gameID
	c.mu.Unlock()

	reg = UpdateTab(reg, c.tabID, now, TabPatch{IsVisible: &visible, GameID: &gameID})

	if err := c.store.Write(reg); err != nil {
		log.Warn().Err(err).Str("tab_id", c.tabID).Msg("registry write failed, assuming primary")
		c.setVerdict(Verdict{IsPrimary: true})
		return
	}

	c.setVerdict(DeterminePrimary(c.tabID, reg, now, c.cfg.StaleAfter))
}

// evaluate recomputes the election from the latest snapshot without writing.
func (c *Coordinator) evaluate() {
	now := c.clock.Now()
	reg, err := c.store.Read()
	if err != nil {
		c.setVerdict(Verdict{IsPrimary: true})
		return
	}
	c.setVerdict(DeterminePrimary(c.tabID, reg, now, c.cfg.StaleAfter))
}

func (c *Coordinator) setVerdict(v Verdict) {
	c.mu.Lock()
	changed := !c.hasVerdict || v != c.verdict
	c.verdict = v
	c.hasVerdict = true
	c.mu.Unlock()

	if !changed {
		return
	}

	log.Info().
		Str("tab_id", c.tabID).
		Bool("is_primary", v.IsPrimary).
		Bool("should_warn", v.ShouldWarn).
		Msg("tab role changed")

	if c.onRole != nil {
		c.onRole(v)
	}
}
