package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	StoreDriver    string
	MySQLDSN       string
	DatabaseURL    string
	RedisAddr      string
	JWTSecret      string
	KafkaBrokers   []string
	KafkaTopic     string
	OTLPEndpoint   string
	ServiceName    string
	TxMaxAttempts  int
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Load reads the process environment, after applying a .env file if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(lookup func(string) string) (Config, error) {
	get := func(k, def string) string {
		v := strings.TrimSpace(lookup(k))
		if v == "" {
			return def
		}
		return v
	}

	cfg := Config{
		HTTPAddr:     get("HTTP_ADDR", ":8080"),
		GRPCAddr:     get("GRPC_ADDR", ":50051"),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", DriverMySQL)),
		MySQLDSN:     get("MYSQL_DSN", "root:root@tcp(localhost:3306)/marketplace?parseTime=true"),
		DatabaseURL:  get("DATABASE_URL", ""),
		RedisAddr:    get("REDIS_ADDR", ""),
		JWTSecret:    get("JWT_SECRET", ""),
		KafkaBrokers: splitCSV(get("KAFKA_BROKERS", "")),
		KafkaTopic:   get("KAFKA_TOPIC", "marketplace.events"),
		OTLPEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  get("SERVICE_NAME", "marketplace"),
		CORSOrigins:  splitCSV(get("CORS_ORIGINS", "*")),
	}

	attempts, err := strconv.Atoi(get("TX_MAX_ATTEMPTS", "2"))
	if err != nil || attempts < 1 {
		return Config{}, fmt.Errorf("TX_MAX_ATTEMPTS must be a positive integer, got %q", lookup("TX_MAX_ATTEMPTS"))
	}
	cfg.TxMaxAttempts = attempts

	timeoutMS, err := strconv.Atoi(get("REQUEST_TIMEOUT_MS", "5000"))
	if err != nil || timeoutMS <= 0 {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT_MS must be a positive integer, got %q", lookup("REQUEST_TIMEOUT_MS"))
	}
	cfg.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond

	switch cfg.StoreDriver {
	case DriverMySQL, DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" && cfg.StoreDriver != DriverMemory {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
