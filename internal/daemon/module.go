// Package daemon composes the worker: config, store, WhatsApp adapter,
// session manager, outbox sender and HTTP gateway, wired through fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/config"
	"github.com/rgdental/wawork/internal/gateway"
	"github.com/rgdental/wawork/internal/lock"
	"github.com/rgdental/wawork/internal/logging"
	"github.com/rgdental/wawork/internal/manager"
	"github.com/rgdental/wawork/internal/outbox"
	"github.com/rgdental/wawork/internal/state"
	"github.com/rgdental/wawork/internal/store"
	"github.com/rgdental/wawork/internal/wa"
	"github.com/rgdental/wawork/internal/workdir"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	WorkDir string
	Addr    string // optional override for the configured listen address
}

// Module returns the fx module for the worker, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			providePersister,
			provideManager,
			provideSender,
			provideGateway,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(workdir.ConfigPath(p.WorkDir))
	if err != nil {
		return nil, err
	}
	if p.Addr != "" {
		cfg.Server.Addr = p.Addr
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := workdir.EnsureDirs(p.WorkDir); err != nil {
		return nil, err
	}
	return logging.New(workdir.LogPath(p.WorkDir), "waworkd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *state.Machine {
	return state.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring work directory lock", zap.String("dir", p.WorkDir))
	l, err := lock.Acquire(workdir.LockPath(p.WorkDir))
	if err != nil {
		return nil, err
	}
	logger.Info("work directory lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := workdir.AppDBPath(p.WorkDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), workdir.AuthDir(p.WorkDir), logger)
}

func providePersister(cfg *config.Config, db *store.DB, logger *zap.Logger) manager.Persister {
	return &storePersister{
		db:         db,
		maxPerChat: cfg.Cache.MaxMessagesPerChat,
		logger:     logger,
	}
}

func provideManager(cfg *config.Config, machine *state.Machine, adapter *wa.Adapter, b *bus.Bus, persist manager.Persister, logger *zap.Logger) *manager.Manager {
	mcfg := manager.Config{
		HandshakeTimeout:   cfg.HandshakeTimeout(),
		SendTimeout:        cfg.SendTimeout(),
		MaxChats:           cfg.Cache.MaxChats,
		MaxMessagesPerChat: cfg.Cache.MaxMessagesPerChat,
		Backoff: manager.BackoffConfig{
			Initial: cfg.BackoffInitial(),
			Max:     cfg.BackoffMax(),
			Factor:  cfg.Backoff.Factor,
			Jitter:  cfg.Backoff.Jitter,
		},
	}
	return manager.New(mcfg, machine, adapter, b, persist, logger)
}

func provideSender(cfg *config.Config, db *store.DB, mgr *manager.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	ocfg := outbox.Config{
		PollInterval: cfg.OutboxPollInterval(),
		RetryDelay:   cfg.OutboxRetryDelay(),
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}
	return outbox.NewSender(ocfg, db, mgr, b, logger)
}

func provideGateway(cfg *config.Config, mgr *manager.Manager, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *gateway.Server {
	gcfg := gateway.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	return gateway.NewServer(gcfg, mgr, sender, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *gateway.Server, lk *lock.Lock, db *store.DB, adapter *wa.Adapter, mgr *manager.Manager, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Preload chats and messages persisted by a previous run so
			// the frontend sees history before WhatsApp delivers anything.
			warmManager(db, mgr, cfg, logger)

			adapter.OnEvent(mgr.Dispatch)
			mgr.Start()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gateway server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())

			if adapter.HasCredentials() {
				logger.Info("saved credentials found, connecting")
			} else {
				logger.Info("no credentials found, pairing required")
			}
			if err := mgr.Connect(context.Background()); err != nil {
				logger.Error("initial connect failed", zap.Error(err))
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			srv.Stop(ctx)
			mgr.Stop()
			adapter.Disconnect()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("worker stopped")
			return nil
		},
	})
}
