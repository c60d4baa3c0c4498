package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	ServerAddr  string
	LogLevel    string
	CatalogPath string

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	SQLitePath  string

	TxAutoResolve      bool
	TxAutoResolveDelay time.Duration
	LedgerLatency      time.Duration
	LedgerFailureRate  float64
	LedgerSimulated    bool

	HistorySigningKey []byte
	SessionIdleTTL    time.Duration

	OTelEnabled bool
	OTelStdout  bool
}

// Load reads configuration from the environment and, when NEXUS_CONFIG
// names a file, from that YAML file. Environment values win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("NEXUS_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", "0.0.0.0:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("POSTGRES_USER", "nexus")
	v.SetDefault("POSTGRES_PASSWORD", "nexus_pass")
	v.SetDefault("POSTGRES_DB", "nexus")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 0)
	v.SetDefault("SQLITE_PATH", "nexus.db")
	v.SetDefault("TX_AUTO_RESOLVE", true)
	v.SetDefault("TX_AUTO_RESOLVE_DELAY", "3s")
	v.SetDefault("LEDGER_SIMULATED", false)
	v.SetDefault("LEDGER_LATENCY", "1500ms")
	v.SetDefault("LEDGER_FAILURE_RATE", 0.0)
	v.SetDefault("SESSION_IDLE_TTL", "1h")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_STDOUT", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerAddr:         v.GetString("SERVER_ADDR"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		CatalogPath:        v.GetString("NEXUS_CATALOG"),
		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMaxConns:         v.GetInt32("DB_MAX_CONNS"),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		TxAutoResolve:      v.GetBool("TX_AUTO_RESOLVE"),
		TxAutoResolveDelay: v.GetDuration("TX_AUTO_RESOLVE_DELAY"),
		LedgerSimulated:    v.GetBool("LEDGER_SIMULATED"),
		LedgerLatency:      v.GetDuration("LEDGER_LATENCY"),
		LedgerFailureRate:  v.GetFloat64("LEDGER_FAILURE_RATE"),
		SessionIdleTTL:     v.GetDuration("SESSION_IDLE_TTL"),
		OTelEnabled:        v.GetBool("OTEL_ENABLED"),
		OTelStdout:         v.GetBool("OTEL_STDOUT"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("POSTGRES_USER"), v.GetString("POSTGRES_PASSWORD"),
			v.GetString("POSTGRES_HOST"), v.GetString("POSTGRES_PORT"),
			v.GetString("POSTGRES_DB"), v.GetString("DATABASE_SSLMODE"))
	}

	switch cfg.StoreDriver {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.LedgerFailureRate < 0 || cfg.LedgerFailureRate > 1 {
		return nil, fmt.Errorf("LEDGER_FAILURE_RATE must be within [0,1], got %v", cfg.LedgerFailureRate)
	}
	if cfg.TxAutoResolveDelay < 0 {
		return nil, fmt.Errorf("TX_AUTO_RESOLVE_DELAY must not be negative")
	}

	if raw := v.GetString("HISTORY_SIGNING_KEY"); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("HISTORY_SIGNING_KEY must be hex: %w", err)
		}
		cfg.HistorySigningKey = key
	}
	return cfg, nil
}
