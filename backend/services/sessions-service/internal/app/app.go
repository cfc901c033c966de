package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "chargepark/backend/libs/db"
	libredis "chargepark/backend/libs/redis"
	"chargepark/backend/services/sessions-service/internal/config"
	"chargepark/backend/services/sessions-service/internal/db"
	httpserver "chargepark/backend/services/sessions-service/internal/http"
	"chargepark/backend/services/sessions-service/internal/http/handlers"
	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/monitor"
	redisstore "chargepark/backend/services/sessions-service/internal/redis"
	"chargepark/backend/services/sessions-service/internal/repository"
	"chargepark/backend/services/sessions-service/internal/service"
)

// App wires sessions-service dependencies.
type App struct {
	cfg         *config.Config
	db          *sql.DB
	redisClient *redis.Client
	registry    *prometheus.Registry
	sessions    *service.SessionsService
	penalties   *service.PenaltyService
	runner      *monitor.Runner
	inbox       handlers.Inbox
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New constructs the application graph. Redis is optional: without it
// notifications are logged and deduplicated in process.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN, cfg.PoolOptions())
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, db: sqlDB, registry: prometheus.NewRegistry(), logger: logger}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics = m

	clock := service.SystemClock{}
	rules := cfg.ServiceRules()

	var (
		notifier service.Notifier   = service.NewLogNotifier(logger)
		dedup    service.DedupStore = service.NewMemoryDedupStore(clock.Now)
	)
	if cfg.RedisEnabled() {
		client, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = client
		store := redisstore.NewNotificationStore(client, cfg.Redis.InboxSize, cfg.Redis.InboxTTL)
		notifier, dedup, a.inbox = store, redisstore.NewDedupStore(client), store
	} else {
		logger.Warn("redis disabled, notifications are logged only")
	}

	tx := libdb.NewTxManager(sqlDB)
	orders := repository.NewOrderRepository(sqlDB)
	sessions := repository.NewSessionRepository(sqlDB)
	fees := repository.NewFeeRepository(sqlDB)
	users := repository.NewUserRepository(sqlDB)
	catalog := repository.NewCatalogRepository(sqlDB)

	dispatcher := service.NewNotificationDispatcher(notifier, dedup, clock, rules, logger, m)
	a.penalties = service.NewPenaltyService(service.PenaltyDeps{
		Tx:         tx,
		Orders:     orders,
		Sessions:   sessions,
		Fees:       fees,
		Users:      users,
		Dispatcher: dispatcher,
		Clock:      clock,
		Rules:      rules,
		Schedule:   cfg.FeeSchedule(),
		Logger:     logger,
		Metrics:    m,
	})
	a.sessions = service.NewSessionsService(service.SessionsDeps{
		Tx:         tx,
		Orders:     orders,
		Sessions:   sessions,
		Users:      users,
		Catalog:    catalog,
		Penalties:  a.penalties,
		Dispatcher: dispatcher,
		Clock:      clock,
		Rules:      rules,
		Logger:     logger,
		Metrics:    m,
	})
	a.runner = monitor.NewRunner(monitor.New(monitor.Deps{
		Orders:     orders,
		Sessions:   sessions,
		Lifecycle:  a.sessions,
		Penalties:  a.penalties,
		Dispatcher: dispatcher,
		Clock:      clock,
		Rules:      rules,
		Config:     cfg.MonitorConfig(),
		Logger:     logger,
		Metrics:    m,
	}))
	return a, nil
}

// Run starts the HTTP server and, when enabled, the monitors. It returns when
// ctx is canceled or either component fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if a.cfg.Metrics.Enabled {
		gatherer = a.registry
	}
	router := httpserver.NewRouter(httpserver.Routes{
		Orders:        handlers.NewOrdersHandler(a.sessions, a.logger),
		Sessions:      handlers.NewSessionsHandler(a.sessions, a.logger),
		Fees:          handlers.NewFeesHandler(a.penalties, a.logger),
		Notifications: handlers.NewNotificationsHandler(a.inbox, a.logger),
		Health:        handlers.NewHealthHandler(a.ping),
	}, httpserver.RouterConfig{JWTSecret: a.cfg.Auth.JWTSecret, Metrics: a.metrics, Gatherer: gatherer})
	server := httpserver.NewServer(a.cfg.HTTPAddress(), router, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	if a.cfg.Monitors.Enabled {
		g.Go(func() error { return a.runner.Run(ctx) })
	} else {
		a.logger.Info("monitors disabled")
	}
	return g.Wait()
}

// Sweep runs one monitor sweep.
func (a *App) Sweep(ctx context.Context, name string) (monitor.Result, error) {
	return a.runner.RunOnce(ctx, name)
}

func (a *App) ping(ctx context.Context) error {
	err := a.db.PingContext(ctx)
	if a.redisClient != nil {
		err = errors.Join(err, a.redisClient.Ping(ctx).Err())
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
