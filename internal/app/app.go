package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/kafka"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	storeredis "github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// repositories is the storage backend selected by configuration.
type repositories struct {
	carts      cart.Repository
	orders     order.Repository
	deliveries delivery.Repository
	products   product.Repository
	catalog    product.Writer
}

// openStorage connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory store otherwise.
func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*repositories, func(), error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("No database configured, using in-memory storage")
		store := memory.New()
		catalog := memory.NewCatalog()
		return &repositories{
			carts:      store,
			orders:     store,
			deliveries: store,
			products:   catalog,
			catalog:    catalog,
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	hs.Add(health.Readiness, "postgres", 5*time.Second, health.Ping(pool))

	products := postgres.NewProductRepository(pool)
	return &repositories{
		carts:      postgres.NewCartRepository(pool),
		orders:     postgres.NewOrderRepository(pool),
		deliveries: postgres.NewDeliveryRepository(pool),
		products:   products,
		catalog:    products,
	}, pool.Close, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	healthSvc := health.New()
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc-pause", time.Second, health.GCPauseCheck(time.Second))

	repos, closeStorage, err := openStorage(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.CatalogFile != "" {
		products, err := product.LoadFile(cfg.CatalogFile)
		if err != nil {
			return errors.Wrap(err, "load catalog")
		}
		if err := repos.catalog.Upsert(ctx, products); err != nil {
			return errors.Wrap(err, "store catalog")
		}
		lg.Info("Catalog loaded", zap.Int("products", len(products)), zap.String("path", cfg.CatalogFile))
	}

	opts := handler.Options{
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		idem := storeredis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.Ping(idem))
		opts.Idempotency = idem
	}

	// A nil interface, not a nil *kafka.Publisher, disables events.
	var events order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(lg.Named("events"), cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		events = pub
	}

	cartService := cart.NewService(repos.carts)
	orderService := order.NewService(repos.orders, repos.carts, repos.products, events)
	deliveryService := delivery.NewService(repos.deliveries)

	h, err := handler.NewHandler(
		cartService,
		orderService,
		deliveryService,
		auth.NewTokens([]byte(cfg.JWTSecret)),
		opts,
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	gin.SetMode(gin.ReleaseMode)
	router := h.Router("storefront-api")
	router.GET("/livez", gin.WrapF(healthSvc.Handler(health.Liveness)))
	router.GET("/readyz", gin.WrapF(healthSvc.Handler(health.Readiness)))

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type", "Authorization",
					handler.HeaderIdempotencyKey, httpmiddleware.HeaderRequestID,
				},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.BearerOrIP,
			}),
		),
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
