package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/rl1809/nft-market/internal/adapter/events"
	"github.com/rl1809/nft-market/internal/adapter/handler"
	"github.com/rl1809/nft-market/internal/adapter/handler/pb"
	"github.com/rl1809/nft-market/internal/adapter/storage"
	"github.com/rl1809/nft-market/internal/clock"
	"github.com/rl1809/nft-market/internal/config"
	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/ledger"
	"github.com/rl1809/nft-market/internal/core/service"
	"github.com/rl1809/nft-market/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("market-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvConfigPath+")")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal
	var db *sql.DB
	if cfg.Journal.Driver == "mysql" {
		db, err = openMySQL(ctx, cfg.MySQL)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to mysql")
	}
	journal, err := openJournal(ctx, cfg.Journal, db)
	if err != nil {
		return err
	}
	defer journal.Close()
	logger.Info("opened journal", "driver", cfg.Journal.Driver)

	var snapshots port.SnapshotStore
	if cfg.Snapshot.Interval > 0 {
		snapshots, err = storage.NewFileSnapshotStore(cfg.Snapshot.Dir)
		if err != nil {
			return err
		}
	}

	// Ledger
	l, err := ledger.New(ledger.Config{
		EscrowIdentity: domain.Identity(cfg.Ledger.EscrowIdentity),
		TreasuryOwner:  domain.Identity(cfg.Ledger.TreasuryOwner),
		ListingFee:     cfg.ListingFee(),
	}, journal)
	if err != nil {
		return err
	}
	if err := recoverLedger(ctx, l, snapshots, logger); err != nil {
		return err
	}

	// Idempotency cache
	var cache port.IdempotencyCache
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		cache = storage.NewRedisAdapter(rdb).WithTTL(cfg.Redis.IdempotencyTTL)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		memCache := storage.NewMemoryCache(clock.Real(), cfg.Redis.IdempotencyTTL)
		go sweepLoop(ctx, memCache, time.Minute)
		cache = memCache
		logger.Info("using in-memory idempotency cache")
	}

	// Service and event workers
	marketService := service.NewMarketService(l, cache, cfg.Events.QueueSize, logger)

	publisher, err := openPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	workers := events.RunWorkers(cfg.Events.Workers, marketService.Events(), publisher, logger)

	// Snapshot job
	var jobs sync.WaitGroup
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	var snap *snapshotter
	if snapshots != nil {
		snap = newSnapshotter(l, snapshots, journal, logger)
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			snap.run(jobCtx, cfg.Snapshot.Interval)
		}()
	}

	// gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(logger)))
		pb.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(marketService, logger))

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	// HTTP server
	var httpServer *http.Server
	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		handler.NewHTTPHandler(marketService, logger).Register(mux)
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("HTTP server stopped")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}

	cancelJobs()
	jobs.Wait()
	if snap != nil {
		if err := snap.take(context.Background()); err != nil {
			logger.Error("final snapshot failed", "error", err)
		}
	}

	// Close event queue and wait for workers
	marketService.Close()
	workers.Wait()
	logger.Info("workers stopped", "dropped_events", marketService.Dropped())

	return nil
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig, db *sql.DB) (port.Journal, error) {
	switch cfg.Driver {
	case "wal":
		return storage.OpenFileJournal(storage.WALConfig{
			Dir:         cfg.Dir,
			SegmentSize: cfg.SegmentSize,
			NoSync:      cfg.NoSync,
		})
	case "pebble":
		return storage.OpenPebbleJournal(cfg.Dir, cfg.NoSync)
	case "mysql":
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Init(ctx); err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

func openPublisher(cfg config.EventsConfig, logger *slog.Logger) (port.EventPublisher, error) {
	switch cfg.Driver {
	case "kafka-go":
		return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	case "sarama":
		return events.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
	case "log":
		return events.NewLogPublisher(logger), nil
	case "none":
		return events.NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

func recoverLedger(ctx context.Context, l *ledger.Ledger, snapshots port.SnapshotStore, logger *slog.Logger) error {
	var state *domain.LedgerState
	if snapshots != nil {
		var err error
		state, err = snapshots.Load(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
	}

	replayed, err := l.Recover(ctx, state)
	if err != nil {
		return fmt.Errorf("recover ledger: %w", err)
	}

	attrs := []any{"replayed", replayed, "last_seq", l.LastSeq(), "items", l.Count()}
	if state != nil {
		attrs = append(attrs, "snapshot_seq", state.Seq)
	}
	logger.Info("ledger recovered", attrs...)
	return nil
}

func sweepLoop(ctx context.Context, cache *storage.MemoryCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cache.Sweep()
		}
	}
}
