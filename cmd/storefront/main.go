package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/orders"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Env: cfg.AppEnv})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info("store ready", zap.String("driver", cfg.StoreDriver))

	cartCache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	catalogService := service.NewCatalogService(repo)
	cartService := service.NewCartService(repo, cartCache, log)
	checkoutService := service.NewCheckoutService(repo, cartCache, log, cfg.Currency)

	var (
		wg        sync.WaitGroup
		orderRepo orders.OrderRepository
	)
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo,
			publisher.NewKafkaWriter(cfg.OrdersTopic, cfg.KafkaBrokers...),
			cfg.OutboxInterval, log.Named("outbox"))
		defer poller.Close()

		repoForOrders, closeOrders, err := openOrderHistory(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeOrders()
		orderRepo = repoForOrders

		consumer := orders.NewConsumer(orderRepo,
			orders.NewKafkaReader(cfg.OrdersTopic, cfg.OrdersGroupID, cfg.KafkaBrokers...),
			log.Named("orders"))
		defer consumer.Close()

		wg.Add(2)
		go func() {
			defer wg.Done()
			poller.Run(bgCtx)
		}()
		go func() {
			defer wg.Done()
			consumer.Run(bgCtx)
		}()
		log.Info("order events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.OrdersTopic))
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events stay unpublished and order history is disabled")
	}

	router := h.NewRouter(h.RouterConfig{
		Catalog:        catalogService,
		Carts:          cartService,
		Checkout:       checkoutService,
		Orders:         orderRepo,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("storefront", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(serveErr))
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	bgCancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("background workers did not stop in time")
	}

	log.Info("storefront stopped")
	return serveErr
}

func openStore(ctx context.Context, cfg config.Config) (repository.Repository, error) {
	switch cfg.StoreDriver {
	case repository.DriverMemory:
		store := repository.NewMemoryStore()
		if err := seedCatalog(ctx, store); err != nil {
			return nil, err
		}
		return store, nil
	case repository.DriverPostgres:
		repo, err := repository.NewPostgresRepository(&repository.Credentials{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
			DBName:   cfg.DB.Name,
		})
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(filepath.Join(cfg.MigrationsPath, repository.DriverPostgres)); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	case repository.DriverSQLite:
		repo, err := repository.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(filepath.Join(cfg.MigrationsPath, repository.DriverSQLite)); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// seedCatalog gives the memory store the same products the SQL migrations insert.
func seedCatalog(ctx context.Context, store repository.CatalogQueries) error {
	products := []domain.Product{
		{Name: "Kopi Susu", Description: "Iced milk coffee with palm sugar", Price: 2.50, Stock: 50, ImageURL: "https://example.com/kopi-susu.jpg"},
		{Name: "Espresso", Description: "Double shot, single origin", Price: 3.00, Stock: 40, ImageURL: "https://example.com/espresso.jpg"},
		{Name: "Cappuccino", Description: "Espresso with steamed milk foam", Price: 3.75, Stock: 30, ImageURL: "https://example.com/cappuccino.jpg"},
		{Name: "Cold Brew", Description: "Steeped for eighteen hours", Price: 4.25, Stock: 20, ImageURL: "https://example.com/cold-brew.jpg"},
		{Name: "Arabica Beans 250g", Description: "Whole beans from Gayo", Price: 12.00, Stock: 10, ImageURL: "https://example.com/arabica.jpg"},
	}
	for i := range products {
		if err := store.CreateProduct(ctx, &products[i]); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	return nil
}

func openCache(ctx context.Context, cfg config.Config) (cache.CartCache, func(), error) {
	if cfg.RedisAddr == "" {
		return cache.NopCache{}, func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return cache.NewRedisCache(redisClient, cfg.CartCacheTTL), func() { redisClient.Close() }, nil
}

func openOrderHistory(ctx context.Context, cfg config.Config) (orders.OrderRepository, func(), error) {
	if cfg.MongoURI == "" {
		return orders.NewMemoryRepository(), func() {}, nil
	}

	db, err := orders.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	repo := orders.NewMongoRepository(db)
	if err := repo.CreateIndexes(ctx); err != nil {
		disconnect(db.Client())
		return nil, nil, err
	}

	return repo, func() { disconnect(db.Client()) }, nil
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Disconnect(ctx)
}
