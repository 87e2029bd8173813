package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Log       Log
	Tracking  Tracking
	RateLimit RateLimit
	Carriers  Carriers
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration

	// AdminToken guards the operator routes (enroll, manual cycle).
	// Empty leaves them open.
	AdminToken string
}

type Log struct {
	Level  slog.Level
	Format string
}

// Tracking configures the tracking cycle.
type Tracking struct {
	// Interval between scheduled cycles. Zero disables the scheduler.
	Interval time.Duration
	// EntryTimeout bounds each fetch and each status write. A rate limit
	// wait may take up to one carrier window longer.
	EntryTimeout time.Duration
	// NonBlocking defers rate-limited entries to the next cycle instead of waiting.
	NonBlocking bool
	// MappingFile optionally overrides built-in status tables.
	MappingFile string
	// StaticOrdersFile seeds enrollment from a JSON file when no database is configured.
	StaticOrdersFile string
}

// RateLimit holds per-carrier requests per minute.
type RateLimit struct {
	AmazonPerMinute     int
	XpressbeesPerMinute int
	ShiprocketPerMinute int
}

type Carriers struct {
	AmazonURL        string
	XpressbeesURL    string
	XpressbeesToken  string
	ShiprocketURL    string
	ShiprocketToken  string
	Timeout          time.Duration
	BreakerFailures  int
	BreakerSuccesses int
	BreakerCooldown  time.Duration
}

// PostgresConfig is empty when the in-memory store should be used.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is empty when the limiter should keep its window in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is empty when status events should not be published.
type KafkaConfig struct {
	Brokers     []string
	StatusTopic string
	ClientID    string
}

// Load reads an optional .env file and then builds Config from the
// environment. Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	r := &reader{}
	cfg := Config{
		Server: Server{
			Addr:            r.str("SHIPTRACK_ADDR", ":8080"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AdminToken:      r.str("ADMIN_TOKEN", ""),
		},
		Log: Log{
			Level:  r.level("LOG_LEVEL", slog.LevelInfo),
			Format: r.str("LOG_FORMAT", "json"),
		},
		Tracking: Tracking{
			Interval:         r.duration("TRACKING_INTERVAL", time.Hour),
			EntryTimeout:     r.duration("TRACKING_ENTRY_TIMEOUT", 30*time.Second),
			NonBlocking:      r.boolean("TRACKING_NON_BLOCKING", false),
			MappingFile:      r.str("STATUS_MAPPING_FILE", ""),
			StaticOrdersFile: r.str("STATIC_ORDERS_FILE", ""),
		},
		RateLimit: RateLimit{
			AmazonPerMinute:     r.integer("RATE_LIMIT_AMAZON_PER_MINUTE", 30),
			XpressbeesPerMinute: r.integer("RATE_LIMIT_XPRESSBEES_PER_MINUTE", 60),
			ShiprocketPerMinute: r.integer("RATE_LIMIT_SHIPROCKET_PER_MINUTE", 100),
		},
		Carriers: Carriers{
			AmazonURL:        r.str("AMAZON_TRACKING_URL", "https://track.amazon.com/api/tracker"),
			XpressbeesURL:    r.str("XPRESSBEES_API_URL", "https://www.xpressbees.com/api"),
			XpressbeesToken:  r.str("XPRESSBEES_TOKEN", ""),
			ShiprocketURL:    r.str("SHIPROCKET_API_URL", "https://apiv2.shiprocket.in/v1/external"),
			ShiprocketToken:  r.str("SHIPROCKET_TOKEN", ""),
			Timeout:          r.duration("CARRIER_TIMEOUT", 10*time.Second),
			BreakerFailures:  r.integer("CARRIER_BREAKER_FAILURES", 5),
			BreakerSuccesses: r.integer("CARRIER_BREAKER_SUCCESSES", 2),
			BreakerCooldown:  r.duration("CARRIER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          r.str("DATABASE_URL", ""),
			MaxOpenConns: r.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: r.integer("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     r.list("KAFKA_BROKERS"),
			StatusTopic: r.str("KAFKA_STATUS_TOPIC", "tracking.status_changed"),
			ClientID:    r.str("KAFKA_CLIENT_ID", "shiptrack"),
		},
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for name, n := range map[string]int{
		"RATE_LIMIT_AMAZON_PER_MINUTE":     c.RateLimit.AmazonPerMinute,
		"RATE_LIMIT_XPRESSBEES_PER_MINUTE": c.RateLimit.XpressbeesPerMinute,
		"RATE_LIMIT_SHIPROCKET_PER_MINUTE": c.RateLimit.ShiprocketPerMinute,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	if c.Tracking.EntryTimeout <= 0 {
		return fmt.Errorf("TRACKING_ENTRY_TIMEOUT must be positive")
	}
	if c.Tracking.Interval < 0 {
		return fmt.Errorf("TRACKING_INTERVAL cannot be negative")
	}
	return nil
}

// reader collects the first parse error so FromEnv can report it once.
type reader struct {
	err error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.fail(key, v, err)
		return def
	}
	return lvl
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
