// Package config loads the server configuration.
//
// Configuration comes from a YAML file named by the --config flag or the
// MARKET_CONFIG environment variable. Without either, defaults are used.
// A small set of MARKET_* variables override file values so containers can
// inject endpoints and secrets without rewriting the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rl1809/nft-market/internal/core/domain"
)

const EnvConfigPath = "MARKET_CONFIG"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     ServerConfig   `yaml:"http"`
	GRPC     ServerConfig   `yaml:"grpc"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Journal  JournalConfig  `yaml:"journal"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LedgerConfig struct {
	EscrowIdentity string `yaml:"escrow_identity"`
	TreasuryOwner  string `yaml:"treasury_owner"`

	// ListingFee is a decimal amount, e.g. "0.025".
	ListingFee string `yaml:"listing_fee"`
}

type JournalConfig struct {
	// Driver is wal, pebble or mysql.
	Driver      string `yaml:"driver"`
	Dir         string `yaml:"dir"`
	SegmentSize int64  `yaml:"segment_size"`
	NoSync      bool   `yaml:"no_sync"`
}

type SnapshotConfig struct {
	Dir string `yaml:"dir"`

	// Interval between snapshots. Zero disables the snapshot job.
	Interval time.Duration `yaml:"interval"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Addr empty selects the in-memory idempotency cache.
	Addr           string        `yaml:"addr"`
	PoolSize       int           `yaml:"pool_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type EventsConfig struct {
	// Driver is kafka-go, sarama, log or none.
	Driver    string   `yaml:"driver"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Workers   int      `yaml:"workers"`
	QueueSize int      `yaml:"queue_size"`
}

func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: ServerConfig{Addr: ":8080"},
		GRPC: ServerConfig{Addr: ":50051"},
		Ledger: LedgerConfig{
			EscrowIdentity: "market",
			TreasuryOwner:  "treasury",
			ListingFee:     "0.025",
		},
		Journal: JournalConfig{
			Driver:      "wal",
			Dir:         "data/journal",
			SegmentSize: 4 << 20,
		},
		Snapshot: SnapshotConfig{
			Dir:      "data/snapshots",
			Interval: 5 * time.Minute,
		},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/nftmarket?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:       100,
			IdempotencyTTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			Driver:    "log",
			Topic:     "market.ledger.events",
			Workers:   4,
			QueueSize: 10000,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path falls back to MARKET_CONFIG, and
// to defaults alone when that is unset too.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("MARKET_HTTP_ADDR", &c.HTTP.Addr)
	str("MARKET_GRPC_ADDR", &c.GRPC.Addr)
	str("MARKET_MYSQL_DSN", &c.MySQL.DSN)
	str("MARKET_REDIS_ADDR", &c.Redis.Addr)
	str("MARKET_LOG_LEVEL", &c.Log.Level)
	str("MARKET_JOURNAL_DRIVER", &c.Journal.Driver)
	str("MARKET_EVENTS_DRIVER", &c.Events.Driver)

	if v, ok := lookup("MARKET_KAFKA_BROKERS"); ok && v != "" {
		c.Events.Brokers = strings.Split(v, ",")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.HTTP.Addr == "" && c.GRPC.Addr == "" {
		errs = append(errs, errors.New("at least one of http.addr and grpc.addr is required"))
	}

	if strings.TrimSpace(c.Ledger.EscrowIdentity) == "" {
		errs = append(errs, errors.New("ledger.escrow_identity is required"))
	}
	if strings.TrimSpace(c.Ledger.TreasuryOwner) == "" {
		errs = append(errs, errors.New("ledger.treasury_owner is required"))
	}
	if fee, err := domain.ParseAmount(c.Ledger.ListingFee); err != nil {
		errs = append(errs, fmt.Errorf("ledger.listing_fee: %w", err))
	} else if fee < 0 {
		errs = append(errs, errors.New("ledger.listing_fee must not be negative"))
	}

	switch c.Journal.Driver {
	case "wal", "pebble":
		if c.Journal.Dir == "" {
			errs = append(errs, fmt.Errorf("journal.dir is required for driver %s", c.Journal.Driver))
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn is required for journal driver mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.driver must be wal, pebble or mysql, got %q", c.Journal.Driver))
	}

	if c.Snapshot.Interval < 0 {
		errs = append(errs, errors.New("snapshot.interval must not be negative"))
	}
	if c.Snapshot.Interval > 0 && c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot.dir is required when snapshots are enabled"))
	}

	switch c.Events.Driver {
	case "kafka-go", "sarama":
		if len(c.Events.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("events.brokers is required for driver %s", c.Events.Driver))
		}
		if c.Events.Topic == "" {
			errs = append(errs, errors.New("events.topic is required"))
		}
	case "log", "none":
	default:
		errs = append(errs, fmt.Errorf("events.driver must be kafka-go, sarama, log or none, got %q", c.Events.Driver))
	}
	if c.Events.Workers <= 0 {
		errs = append(errs, errors.New("events.workers must be positive"))
	}
	if c.Events.QueueSize <= 0 {
		errs = append(errs, errors.New("events.queue_size must be positive"))
	}

	return errors.Join(errs...)
}

// ListingFee returns the parsed ledger.listing_fee. Call after Validate.
func (c *Config) ListingFee() domain.Amount {
	fee, _ := domain.ParseAmount(c.Ledger.ListingFee)
	return fee
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
