package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/broker/kafka"
	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage/memory"
	"github.com/xenking/bistro/internal/storage/postgres"
	"github.com/xenking/bistro/internal/storage/redisstore"
	"github.com/xenking/bistro/pkg/health"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("cart_backend", cfg.Cart.Backend),
		zap.String("transition_policy", cfg.Lifecycle.Policy),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	carts, closeCarts, err := newCartRepository(pool, healthSvc, lg, cfg.Cart)
	if err != nil {
		return err
	}
	defer closeCarts()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Order events.
	meter := m.MeterProvider().Meter("bistro")
	policy, err := order.ParsePolicy(cfg.Lifecycle.Policy)
	if err != nil {
		return errors.Wrap(err, "parse lifecycle policy")
	}
	orderOpts := []order.Option{
		order.WithPolicy(policy),
		order.WithMeter(meter),
		order.WithPublishTimeout(cfg.Events.Timeout),
	}
	if len(cfg.Events.Brokers) > 0 {
		// Each attempt gets half the budget so that retries fit in it.
		writer := kafka.NewWriter(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Timeout/2)
		publisher := kafka.NewPublisher(writer)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithPublisher(publisher))
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	}

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	promotionRepo := postgres.NewPromotionRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	staffRepo := postgres.NewStaffRepository(pool)
	directory := postgres.NewDirectory(pool)

	// Domain services.
	cartService := cart.NewService(catalogRepo, promotionRepo, carts, cart.WithMeter(meter))
	orderService := order.NewService(carts, orderRepo, directory, staffRepo,
		order.NewFactory(cfg.Pricing.Calculator()),
		orderOpts...,
	)

	// HTTP handlers.
	h := handler.NewHandler(cartService, orderService)
	authn := handler.NewAuthenticator(apikeyRepo, handler.AuthConfig{
		APIKeyPepper: []byte(cfg.APIKeyPepper),
		JWTSecret:    []byte(cfg.JWT.Secret),
		JWTIssuer:    cfg.JWT.Issuer,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           wrapHandler(ctx, newRouter(h, authn, healthSvc), m, cfg),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newCartRepository builds the configured cart store. The returned func
// releases its resources.
func newCartRepository(pool *pgxpool.Pool, hs *health.Health, lg *zap.Logger, cfg CartConfig) (cart.Repository, func(), error) {
	switch cfg.Backend {
	case CartBackendRedis:
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		if cfg.RedisURL != "" {
			parsed, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, nil, errors.Wrap(err, "parse redis url")
			}
			opts = parsed
		}
		rdb := redis.NewClient(opts)
		hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		return redisstore.NewCartRepository(rdb, cfg.TTL), closer(lg, "redis", rdb), nil
	case CartBackendMemory:
		lg.Warn("Carts are kept in process memory and lost on restart")
		return memory.NewCartRepository(), func() {}, nil
	default:
		return postgres.NewCartRepository(pool), func() {}, nil
	}
}

func closer(lg *zap.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			lg.Warn("Close failed", zap.String("resource", name), zap.Error(err))
		}
	}
}
