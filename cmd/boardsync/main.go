package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/playforge/boardsync/internal/appstate"
	"github.com/playforge/boardsync/internal/config"
	"github.com/playforge/boardsync/internal/conn"
	"github.com/playforge/boardsync/internal/tabs"
)

func main() {
	configPath := flag.String("config", "boardsync.yaml", "path to config file")
	useNATS := flag.Bool("nats", false, "use the NATS-backed tab registry store")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	store := appstate.NewStore()
	manager := conn.NewManager(cfg.ConnManagerConfig(), store, clock)

	registry, err := openRegistryStore(cfg, *useNATS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open tab registry store")
	}
	defer registry.Close()

	// Demotion must disable game-driving interaction and pause the link;
	// promotion clears the warning and restores it.
	var demoted atomic.Bool
	coordinator := tabs.NewCoordinator(registry, cfg.CoordinatorConfig(), clock, func(v tabs.Verdict) {
		if v.IsPrimary {
			store.Dispatch(appstate.TabPromoted{})
			if demoted.CompareAndSwap(true, false) {
				if err := manager.Connect(ctx); err != nil {
					log.Warn().Err(err).Msg("reconnect after promotion failed")
				}
			}
			return
		}
		store.Dispatch(appstate.TabDemoted{Message: v.Message})
		if demoted.CompareAndSwap(false, true) {
			manager.Disconnect()
		}
	})

	// Keep the registry's view of the controlled game current.
	store.Subscribe(func(s appstate.AppState) {
		coordinator.SetGameID(s.Session.GameID)
	})

	coordinator.Start(ctx)
	defer coordinator.Stop()

	go manager.RunMonitor(ctx)

	if coordinator.Verdict().IsPrimary {
		if err := manager.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("initial connect failed, monitor will retry")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	manager.Disconnect()
}

func openRegistryStore(cfg config.Config, useNATS bool) (tabs.RegistryStore, error) {
	if useNATS {
		return tabs.DialNATSStore(cfg.NATSStoreConfig())
	}
	return tabs.NewMemoryStore(), nil
}
