package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront-orders/internal/adapter/handler"
	"github.com/rl1809/storefront-orders/internal/adapter/messaging"
	"github.com/rl1809/storefront-orders/internal/adapter/shipping"
	"github.com/rl1809/storefront-orders/internal/adapter/storage"
	"github.com/rl1809/storefront-orders/internal/config"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/logging"
	"github.com/rl1809/storefront-orders/internal/metrics"
	"github.com/rl1809/storefront-orders/internal/port"
)

const serviceName = "storefront-orders"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional config file (.env, yaml or json)")
	flag.Parse()

	loader, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	logger := logging.New(cfg.LogLevel, serviceName)

	if err := run(cfg, loader, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg *config.Config, loader *config.Loader, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader.Watch(func(c *config.Config) {
		lvl := logging.SetLevel(c.LogLevel)
		logger.Info().Str("level", lvl.String()).Msg("config reloaded")
	}, func(err error) {
		logger.Error().Err(err).Msg("config reload rejected")
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repo, closeRepo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	opts := []service.Option{
		service.WithMetrics(m),
		service.WithLogger(logger.With().Str("component", "orders").Logger()),
		service.WithForcedRestock(cfg.AdminForceRestock),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		opts = append(opts, service.WithIdempotency(storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)))
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, Idempotency-Key is ignored")
	}

	var events port.EventPublisher = messaging.NopPublisher{}
	if brokers := messaging.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		events = messaging.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing order events")
	}
	defer events.Close()
	opts = append(opts, service.WithEvents(events))

	orderService := service.NewOrderService(repo, opts...)
	shippingService := service.NewShippingService(shipping.NewClient(shipping.Config{
		BaseURL:        cfg.ShippingBaseURL,
		Token:          cfg.ShippingToken,
		ShopID:         cfg.ShippingShopID,
		FromDistrictID: cfg.ShippingFromDistrictID,
		FromWardCode:   cfg.ShippingFromWardCode,
		ServiceTypeID:  cfg.ShippingServiceTypeID,
		Timeout:        cfg.ShippingTimeout,
	}), m, logger.With().Str("component", "shipping").Logger())

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.LoggingInterceptor(logger)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, shippingService))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewHTTPHandler(orderService, shippingService, m, logger).Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown incomplete")
		}
		logger.Info().Msg("HTTP server stopped")

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		logger.Info().Msg("gRPC server stopped")
		return nil
	})

	return g.Wait()
}

// openStore returns the order repository selected by STORE_DRIVER and a
// function that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (port.OrderRepository, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info().Msg("connected to mysql")

	if cfg.MigrateOnStart {
		if err := storage.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("schema up to date")
	}

	return storage.NewMySQLAdapter(db), func() {
		db.Close()
		logger.Info().Msg("mysql connection closed")
	}, nil
}
