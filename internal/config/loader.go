package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WATTSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WATTSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject credentials at deploy time without
// touching the TOML file. Market sections have no env form; they only come
// from the file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WATTSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WATTSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WATTSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WATTSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WATTSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WATTSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WATTSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WATTSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WATTSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WATTSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WATTSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WATTSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WATTSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WATTSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WATTSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WATTSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WATTSIM_REDIS_MAX_RETRIES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WATTSIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WATTSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WATTSIM_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WATTSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WATTSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WATTSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WATTSIM_NOTIFY_EVENTS")

	// ── Simulation ──
	setStr(&cfg.Simulation.Start, "WATTSIM_SIMULATION_START")
	setStr(&cfg.Simulation.End, "WATTSIM_SIMULATION_END")
	setFloat64(&cfg.Simulation.Demand, "WATTSIM_SIMULATION_DEMAND")
	setFloat64(&cfg.Simulation.Capacity, "WATTSIM_SIMULATION_CAPACITY")

	// ── Top-level ──
	setStr(&cfg.Mode, "WATTSIM_MODE")
	setStr(&cfg.LogLevel, "WATTSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
