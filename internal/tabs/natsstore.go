package tabs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSStoreConfig holds configuration for the NATS-backed registry store.
type NATSStoreConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSStoreConfig returns default NATS registry store configuration.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		URL:           nats.DefaultURL,
		Subject:       "boardsync.tabs.registry",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSStore is a RegistryStore backed by a NATS subject. Every write
// publishes the full registry blob; every instance keeps a last-write-wins
// local cache fed by its subscription, which doubles as the cross-tab change
// notification. This gives the same eventual-consistency model as a shared
// browser store: readers see the latest observed snapshot, never a lock.
type NATSStore struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	ownsNC  bool

	mu       sync.Mutex
	cache    []byte
	watchers []chan struct{}
}

// DialNATSStore connects to NATS and opens a registry store on the
// configured subject.
func DialNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("registry store NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("registry store NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	store, err := NewNATSStore(nc, cfg.Subject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	store.ownsNC = true
	return store, nil
}

// NewNATSStore opens a registry store over an existing NATS connection.
func NewNATSStore(nc *nats.Conn, subject string) (*NATSStore, error) {
	s := &NATSStore{nc: nc, subject: subject}

	sub, err := nc.Subscribe(subject, s.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribe to registry subject: %w", err)
	}
	s.sub = sub
	return s, nil
}

func (s *NATSStore) handleMessage(msg *nats.Msg) {
	s.mu.Lock()
	s.cache = msg.Data
	watchers := make([]chan struct{}, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *NATSStore) Read() (TabRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeRegistry(s.cache), nil
}

func (s *NATSStore) Write(reg TabRegistry) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	// Update the cache before publishing so a Read immediately after Write
	// observes our own write even if the loopback message is delayed.
	s.mu.Lock()
	s.cache = data
	s.mu.Unlock()

	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish registry: %w", err)
	}
	return nil
}

func (s *NATSStore) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *NATSStore) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe registry store")
		}
	}
	if s.ownsNC && s.nc != nil {
		s.nc.Close()
	}
	s.mu.Lock()
	s.watchers = nil
	s.mu.Unlock()
	return nil
}
