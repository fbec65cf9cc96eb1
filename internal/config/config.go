// Package config loads the oracle layer configuration from the environment,
// an optional .env file and an optional YAML tuning file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rub-lamp/oracle_layer/internal/guard"
	"github.com/rub-lamp/oracle_layer/internal/payout"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Solana   SolanaConfig
	Judge    JudgeConfig
	Auth     AuthConfig
	Cron     CronConfig

	TuningFile string `env:"ORACLE_TUNING_FILE"`
	Tuning     Tuning
}

type ServerConfig struct {
	Addr            string        `env:"ORACLE_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"ORACLE_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"ORACLE_WRITE_TIMEOUT,default=90s"`
	ShutdownTimeout time.Duration `env:"ORACLE_SHUTDOWN_TIMEOUT,default=15s"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=10"`
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// DatabaseConfig selects the store. Driver is memory, postgres or sqlite.
type DatabaseConfig struct {
	Driver      string `env:"DATABASE_DRIVER,default=memory"`
	DSN         string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE,default=true"`
}

type RedisConfig struct {
	URL    string `env:"REDIS_URL"`
	Prefix string `env:"REDIS_LOCK_PREFIX,default=oracle:lock:"`
}

type SolanaConfig struct {
	RPCURL             string `env:"SOLANA_RPC_URL"`
	Commitment         string `env:"SOLANA_COMMITMENT,default=confirmed"`
	TokenMint          string `env:"TOKEN_MINT_ADDRESS"`
	TreasuryWallet     string `env:"TREASURY_WALLET_ADDRESS"`
	TreasuryPrivateKey string `env:"TREASURY_PRIVATE_KEY"`
	ProgramID          string `env:"ORACLE_PROGRAM_ID"`
	HoardAccount       string `env:"HOARD_ACCOUNT"`
	PriorityFeeMicro   uint64 `env:"PRIORITY_FEE_MICROLAMPORTS,default=150000"`
	// MockSettlement pays claims with the in-memory driver.
	MockSettlement bool `env:"SETTLEMENT_MOCK,default=false"`
}

type JudgeConfig struct {
	Backend          string        `env:"JUDGE_BACKEND,default=anthropic"`
	AnthropicAPIKey  string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel   string        `env:"ANTHROPIC_MODEL,default=claude-sonnet-4-20250514"`
	AnthropicBaseURL string        `env:"ANTHROPIC_BASE_URL"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	GeminiModel      string        `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	Timeout          time.Duration `env:"JUDGE_TIMEOUT,default=30s"`
}

// AuthConfig protects the /admin routes. A public key file takes precedence over the secret.
type AuthConfig struct {
	JWTSecret        string `env:"ADMIN_JWT_SECRET"`
	JWTPublicKeyFile string `env:"ADMIN_JWT_PUBLIC_KEY_FILE"`
}

// Enabled reports whether admin routes can be authenticated.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.JWTPublicKeyFile != ""
}

type CronConfig struct {
	TreasuryRefresh string `env:"CRON_TREASURY_REFRESH,default=@every 30s"`
	LimiterCleanup  string `env:"CRON_LIMITER_CLEANUP,default=@every 5m"`
	HoardReconcile  string `env:"CRON_HOARD_RECONCILE,default=@every 10m"`
}

// Tuning holds the guard and payout knobs that operators adjust without a rebuild.
type Tuning struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	HypeWindow       time.Duration `yaml:"hype_window"`
	HypeLimit        uint64        `yaml:"hype_limit"`
	BreakerCooling   time.Duration `yaml:"breaker_cooling"`
	TreasuryMinimum  uint64        `yaml:"treasury_minimum"`
	WorthyThreshold  int           `yaml:"worthy_threshold"`
	TreasuryCacheTTL time.Duration `yaml:"treasury_cache_ttl"`
	ClaimLockTTL     time.Duration `yaml:"claim_lock_ttl"`
	LiveWinnerDelay  time.Duration `yaml:"live_winner_delay"`
}

// DefaultTuning returns the production defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Cooldown:         guard.DefaultCooldown,
		HypeWindow:       guard.DefaultHypeWindow,
		HypeLimit:        guard.DefaultHypeLimit,
		BreakerCooling:   guard.DefaultBreakerCooling,
		TreasuryMinimum:  payout.TreasuryMinimum,
		WorthyThreshold:  payout.WorthyThreshold,
		TreasuryCacheTTL: 10 * time.Second,
		ClaimLockTTL:     2 * time.Minute,
		LiveWinnerDelay:  6 * time.Second,
	}
}

// Load reads envFile (when it exists), the environment and the tuning file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{Tuning: DefaultTuning()}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.TuningFile != "" {
		if err := cfg.loadTuning(cfg.TuningFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadTuning(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.Tuning); err != nil {
		return fmt.Errorf("parse tuning file: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}

	switch c.Judge.Backend {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported JUDGE_BACKEND %q", c.Judge.Backend)
	}

	t := c.Tuning
	if t.WorthyThreshold < payout.MinPayingScore || t.WorthyThreshold > payout.MaxScore {
		return fmt.Errorf("worthy_threshold must be within %d..%d", payout.MinPayingScore, payout.MaxScore)
	}
	if t.Cooldown < 0 || t.HypeWindow <= 0 || t.BreakerCooling < 0 {
		return fmt.Errorf("tuning durations must not be negative")
	}
	if t.TreasuryMinimum > payout.HoardCap {
		return fmt.Errorf("treasury_minimum exceeds the hoard cap")
	}
	return nil
}
