package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	SocialPostgres = "postgres"
	SocialSupabase = "supabase"
	SocialNone     = "none"
)

// StoreConfig selects the key/value backend the ledger persists into.
type StoreConfig struct {
	Kind          string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SocialConfig selects the remote store for posts, respects and users.
type SocialConfig struct {
	Kind            string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	Migrate         bool
	MaxConns        int
}

type APIConfig struct {
	Addr              string
	Store             StoreConfig
	Social            SocialConfig
	CrashMultiplier   float64
	DiscordWebhookURL string
}

type WorkerConfig struct {
	Store             StoreConfig
	SettleEvery       time.Duration
	RankingTop        int
	DiscordWebhookURL string
	MetricsAddr       string
	RunOnce           bool
}

type CLIConfig struct {
	APIBaseURL string
}

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	loadDotEnv()
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("PROMOTION_API_ADDR", ":8080")
	}

	store, err := loadStore()
	if err != nil {
		return APIConfig{}, err
	}
	social, err := loadSocial()
	if err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		Addr:              addr,
		Store:             store,
		Social:            social,
		CrashMultiplier:   envFloatDefault("PROMOTION_CRASH_MULTIPLIER", 0.5),
		DiscordWebhookURL: strings.TrimSpace(os.Getenv("PROMOTION_DISCORD_WEBHOOK_URL")),
	}, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	loadDotEnv()
	store, err := loadStore()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		Store:             store,
		SettleEvery:       envDurationDefault("PROMOTION_SETTLE_EVERY", time.Hour),
		RankingTop:        envIntDefault("PROMOTION_RANKING_TOP", 5),
		DiscordWebhookURL: strings.TrimSpace(os.Getenv("PROMOTION_DISCORD_WEBHOOK_URL")),
		MetricsAddr:       strings.TrimSpace(os.Getenv("PROMOTION_WORKER_METRICS_ADDR")),
		RunOnce:           envBoolDefault("PROMOTION_WORKER_RUN_ONCE", false),
	}
	if cfg.SettleEvery <= 0 {
		return cfg, fmt.Errorf("PROMOTION_SETTLE_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	loadDotEnv()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("PROMO_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Kind:          strings.ToLower(envDefault("PROMOTION_STORE", StoreFile)),
		Path:          strings.TrimSpace(os.Getenv("PROMOTION_STORE_PATH")),
		RedisAddr:     envDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntDefault("REDIS_DB", 0),
	}
	switch cfg.Kind {
	case StoreFile, StoreRedis, StoreMemory:
		return cfg, nil
	default:
		return cfg, fmt.Errorf("PROMOTION_STORE must be file, redis or memory, got %q", cfg.Kind)
	}
}

func loadSocial() (SocialConfig, error) {
	cfg := SocialConfig{
		Kind:            strings.ToLower(envDefault("PROMOTION_SOCIAL", SocialNone)),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		Migrate:         envBoolDefault("PROMOTION_MIGRATE", true),
		MaxConns:        envIntDefault("DATABASE_MAX_CONNS", 10),
	}
	switch cfg.Kind {
	case SocialNone:
	case SocialPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case SocialSupabase:
		if cfg.SupabaseURL == "" {
			return cfg, fmt.Errorf("SUPABASE_URL is required")
		}
		if cfg.SupabaseAnonKey == "" {
			return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
		}
	default:
		return cfg, fmt.Errorf("PROMOTION_SOCIAL must be postgres, supabase or none, got %q", cfg.Kind)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
