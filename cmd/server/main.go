package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/marketplace/internal/adapter/auth"
	"github.com/rl1809/marketplace/internal/adapter/events"
	"github.com/rl1809/marketplace/internal/adapter/handler"
	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/config"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/metrics"
	"github.com/rl1809/marketplace/internal/port"
	"github.com/rl1809/marketplace/internal/tracing"
)

const (
	eventQueueSize = 10000
	eventWorkers   = 4
	devJWTSecret   = "dev-only-secret"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logging.SetService(cfg.ServiceName)

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	log.Printf("connected to %s store", cfg.StoreDriver)

	// Initialize idempotency keys
	var idem port.IdempotencyRepository = storage.NewMemoryIdempotency(24 * time.Hour)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		idem = storage.NewRedisAdapter(rdb)
		log.Println("connected to redis")
	}

	// Initialize event publishing
	var sink port.EventPublisher = events.LogPublisher{}
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sink = kafkaPublisher
		log.Printf("publishing events to kafka topic %s", cfg.KafkaTopic)
	}
	dispatcher := events.NewDispatcher(sink, eventQueueSize, eventWorkers)
	log.Printf("started %d event workers", eventWorkers)

	serverMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer, "server")

	// Initialize services
	svc := handler.NewServices(service.Deps{
		Store:         store,
		Idempotency:   idem,
		Events:        dispatcher,
		Metrics:       serverMetrics,
		TxMaxAttempts: cfg.TxMaxAttempts,
	})

	secret := cfg.JWTSecret
	if secret == "" {
		log.Println("WARNING: JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	verifier := auth.NewVerifier(secret)

	// Initialize gRPC server
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(svc, verifier))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(svc, verifier, serverMetrics)
	routerCfg := handler.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.OTLPEndpoint != "" {
		routerCfg.ServiceName = cfg.ServiceName
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Router(routerCfg),
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Drain queued events, then close the writer
	dispatcher.Close()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Printf("failed to close kafka writer: %v", err)
		}
	}
	log.Println("event workers stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("failed to flush traces: %v", err)
	}

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	log.Println("connections closed")
}

// openStore connects the configured driver and applies its schema.
func openStore(ctx context.Context, cfg config.Config) (port.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return storage.NewMemoryAdapter(), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return adapter, pool.Close, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return adapter, func() { db.Close() }, nil
}
