package tabs

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// RegistryStore is the only channel available between independent tabs: a
// shared blob holding one serialized TabRegistry plus a change notification.
// Any backing store satisfying this interface is substitutable.
type RegistryStore interface {
	// Read returns the current registry. Corrupt or absent data decodes to
	// an empty registry rather than an error.
	Read() (TabRegistry, error)

	// Write replaces the shared registry blob.
	Write(TabRegistry) error

	// Watch returns a channel that receives a signal after the registry is
	// written, including by other tabs. Signals may be coalesced.
	Watch() <-chan struct{}

	// Close releases the store's resources.
	Close() error
}

// MemoryStore is an in-process RegistryStore. It round-trips the registry
// through JSON so that several simulated tabs in one process observe the
// same serialization behavior as a real shared store.
type MemoryStore struct {
	mu       sync.Mutex
	data     []byte
	watchers []chan struct{}
	closed   bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read() (TabRegistry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeRegistry(m.data), nil
}

func (m *MemoryStore) Write(reg TabRegistry) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data = data
	watchers := make([]chan struct{}, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.watchers = nil
	return nil
}

// Corrupt registry data is treated as an empty registry, not as an error.
func decodeRegistry(data []byte) TabRegistry {
	if len(data) == 0 {
		return EmptyRegistry()
	}
	var reg TabRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		log.Warn().Err(err).Msg("corrupt tab registry data, starting from empty")
		return EmptyRegistry()
	}
	if reg.Tabs == nil {
		reg.Tabs = map[string]TabInfo{}
	}
	return reg
}
