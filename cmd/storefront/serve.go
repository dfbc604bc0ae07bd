package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/backend/cart"
	"github.com/fjod/storefront/internal/backend/catalog"
	backendhttp "github.com/fjod/storefront/internal/backend/http"
	"github.com/fjod/storefront/internal/backend/orders"
	"github.com/fjod/storefront/internal/backend/users"
	"github.com/fjod/storefront/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference REST backend",
		Long: `Runs the storefront backend. Stores default to in-memory; set CART_STORE=mongo,
ORDERS_STORE=postgres, REDIS_ADDR and KAFKA_BROKERS to use the real ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, a.cfg, a.log)
		},
	}
}

// backend is the assembled server with everything that must be closed.
type backend struct {
	handler http.Handler
	workers []func(context.Context)
	closers []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func buildBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	rules, err := cfg.PricingRules()
	if err != nil {
		return nil, err
	}
	promos, err := cfg.PromotionTable()
	if err != nil {
		return nil, err
	}

	products, err := catalog.NewSQLiteRepository(cfg.Catalog.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	b.closers = append(b.closers, products.Close)
	if err := products.RunMigrations(); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	cartRepo, err := buildCartRepository(ctx, cfg, b)
	if err != nil {
		return nil, err
	}

	var cache cart.Cache = cart.NoopCache{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		cache = cart.NewRedisCache(client)
		log.Info("cart cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	carts := cart.NewService(cartRepo, cache, products, promos, log.Named("cart"))

	orderRepo, err := buildOrderRepository(cfg, b)
	if err != nil {
		return nil, err
	}
	orderSvc := orders.NewService(orderRepo, carts, rules, promos, log.Named("orders"))

	if len(cfg.Kafka.Brokers) > 0 {
		writer := orders.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		poller := orders.NewOutboxPoller(orderRepo, writer, cfg.Kafka.PollInterval, log.Named("outbox"))
		b.closers = append(b.closers, poller.Close)
		b.workers = append(b.workers, poller.Run)

		reader := cart.NewKafkaReader(cfg.Kafka.Topic, "storefront-cart", cfg.Kafka.Brokers...)
		consumer := cart.NewOrderConsumer(carts, reader, log.Named("cart-consumer"))
		b.closers = append(b.closers, func() error { consumer.Close(); return nil })
		b.workers = append(b.workers, consumer.Run)
		log.Info("order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	tokens := users.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userSvc := users.NewService(users.NewMemoryStore(), tokens, log.Named("users"))
	if err := userSvc.SeedAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return nil, err
	}

	b.handler = backendhttp.NewRouter(backendhttp.Deps{
		Carts:   carts,
		Catalog: products,
		Orders:  orderSvc,
		Users:   userSvc,
		Tokens:  tokens,
		Log:     log.Named("http"),
	}, backendhttp.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	return b, nil
}

func buildCartRepository(ctx context.Context, cfg *config.Config, b *backend) (cart.Repository, error) {
	if cfg.Cart.Store != "mongo" {
		return cart.NewMemoryRepository(), nil
	}
	db, err := cart.ConnectMongoDB(ctx, cfg.Cart.MongoURI, cfg.Cart.MongoDB)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.Client().Disconnect(ctx)
	})
	repo := cart.NewMongoRepository(db)
	if err := repo.CreateIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create cart indexes: %w", err)
	}
	return repo, nil
}

func buildOrderRepository(cfg *config.Config, b *backend) (orders.Repository, error) {
	if cfg.Orders.Store != "postgres" {
		return orders.NewMemoryRepository(), nil
	}
	repo, err := orders.NewPostgresRepository(cfg.Orders.Postgres.DSN())
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, repo.Close)
	if err := repo.RunMigrations(); err != nil {
		return nil, fmt.Errorf("migrate orders: %w", err)
	}
	return repo, nil
}

func runServer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	b, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	for _, run := range b.workers {
		go run(workerCtx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      b.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("storefront backend starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	cancelWorkers()
	log.Info("server exited")
	return nil
}
