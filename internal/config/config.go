// Package config defines the top-level configuration for the wattsim engine
// and compiles market sections into runnable market definitions.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
	"github.com/wattsim/wattsim/internal/schedule"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WATTSIM_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Simulation SimulationConfig `toml:"simulation"`
	Markets    []MarketConfig   `toml:"markets"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled, prices are
// kept in process memory and broadcasts use the in-process bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// ServerConfig holds HTTP/WebSocket gateway parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SimulationConfig controls the simulated clock used in sim mode. Start is
// required in sim mode; End bounds how far the simulation may fast-forward.
type SimulationConfig struct {
	Start    string  `toml:"start"` // RFC 3339
	End      string  `toml:"end"`   // RFC 3339, empty = run until rules exhaust
	Demand   float64 `toml:"demand"`
	Capacity float64 `toml:"capacity"`
}

// MarketConfig is the TOML shape of one market definition.
type MarketConfig struct {
	Name            string   `toml:"name"`
	Mechanism       string   `toml:"mechanism"`
	OpeningDuration duration `toml:"opening_duration"`

	// Opening recurrence.
	Frequency string   `toml:"frequency"` // daily, hourly, minutely, weekly, monthly
	Interval  int      `toml:"interval"`
	ByHour    []int    `toml:"by_hour"`
	ByWeekday []string `toml:"by_weekday"` // mon..sun
	Start     string   `toml:"start"`      // RFC 3339
	Until     string   `toml:"until"`      // RFC 3339, empty = unbounded

	MaximumBid      float64 `toml:"maximum_bid"`
	MinimumBid      float64 `toml:"minimum_bid"`
	MaximumVolume   float64 `toml:"maximum_volume"`
	MaximumGradient float64 `toml:"maximum_gradient"`

	AmountUnit string  `toml:"amount_unit"`
	AmountTick float64 `toml:"amount_tick"`
	PriceUnit  string  `toml:"price_unit"`
	PriceTick  float64 `toml:"price_tick"`

	AdditionalFields []string        `toml:"additional_fields"`
	Products         []ProductConfig `toml:"products"`
}

// ProductConfig is the TOML shape of one product template. Exactly one of
// Count and CountRule must be set; a negative Duration makes the template
// deliver backward from the opening (after-market correction products).
type ProductConfig struct {
	Duration      duration `toml:"duration"`
	Count         int      `toml:"count"`
	CountRule     string   `toml:"count_rule"` // see schedule.CountRuleNames
	FirstDelivery duration `toml:"first_delivery_after_start"`
	OnlyHours     string   `toml:"only_hours"` // "from-to", e.g. "20-8"
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "-1h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in configs/wattsim.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "wattsim",
			User:          "wattsim",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"startup", "invariant_violation", "error"},
		},
		Simulation: SimulationConfig{
			Demand:   1000,
			Capacity: 1200,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sim":   true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Market sections are only
// shallow-checked here; Compile performs the full per-market validation.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sim, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one market must be configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("markets[%d]: name must not be empty", i))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate market name %q", i, m.Name))
		}
		seen[m.Name] = true
	}

	if strings.EqualFold(c.Mode, "sim") || strings.EqualFold(c.Mode, "full") {
		if c.Simulation.Start == "" {
			errs = append(errs, "simulation: start is required for mode "+c.Mode)
		} else if _, err := time.Parse(time.RFC3339, c.Simulation.Start); err != nil {
			errs = append(errs, "simulation: start must be RFC 3339: "+err.Error())
		}
		if c.Simulation.End != "" {
			if _, err := time.Parse(time.RFC3339, c.Simulation.End); err != nil {
				errs = append(errs, "simulation: end must be RFC 3339: "+err.Error())
			}
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Compile converts every market section into a domain.MarketDef, resolving
// dynamic count rules and recurrence bounds. Any malformed section is a
// setup-time error.
func (c *Config) Compile() ([]domain.MarketDef, error) {
	defs := make([]domain.MarketDef, 0, len(c.Markets))
	for _, m := range c.Markets {
		def, err := m.compile()
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (m *MarketConfig) compile() (domain.MarketDef, error) {
	start, err := time.Parse(time.RFC3339, m.Start)
	if err != nil {
		return domain.MarketDef{}, fmt.Errorf("start must be RFC 3339: %w", err)
	}
	var until time.Time
	if m.Until != "" {
		until, err = time.Parse(time.RFC3339, m.Until)
		if err != nil {
			return domain.MarketDef{}, fmt.Errorf("until must be RFC 3339: %w", err)
		}
	}

	weekdays := make([]time.Weekday, 0, len(m.ByWeekday))
	for _, name := range m.ByWeekday {
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return domain.MarketDef{}, fmt.Errorf("unknown weekday %q", name)
		}
		weekdays = append(weekdays, wd)
	}

	templates := make([]domain.ProductTemplate, 0, len(m.Products))
	for i, p := range m.Products {
		tpl, err := p.compile()
		if err != nil {
			return domain.MarketDef{}, fmt.Errorf("products[%d]: %w", i, err)
		}
		templates = append(templates, tpl)
	}

	def := domain.MarketDef{
		Name: m.Name,
		Opening: domain.RecurrenceRule{
			Frequency: m.Frequency,
			Interval:  m.Interval,
			ByHour:    m.ByHour,
			ByWeekday: weekdays,
			Start:     start,
			Until:     until,
		},
		OpeningDuration:  m.OpeningDuration.Duration,
		Mechanism:        domain.Mechanism(m.Mechanism),
		MaximumBid:       m.MaximumBid,
		MinimumBid:       m.MinimumBid,
		MaximumVolume:    m.MaximumVolume,
		MaximumGradient:  m.MaximumGradient,
		AmountUnit:       m.AmountUnit,
		AmountTick:       m.AmountTick,
		PriceUnit:        m.PriceUnit,
		PriceTick:        m.PriceTick,
		AdditionalFields: m.AdditionalFields,
		Products:         templates,
	}
	applyMarketDefDefaults(&def)
	return def, nil
}

// applyMarketDefDefaults fills the bid and tick limits left at zero. The
// values mirror common power exchange conventions.
func applyMarketDefDefaults(def *domain.MarketDef) {
	if def.MaximumBid == 0 && def.MinimumBid == 0 {
		def.MaximumBid = 9999
		def.MinimumBid = -500
	}
	if def.MaximumVolume == 0 {
		def.MaximumVolume = 500
	}
	if def.AmountTick == 0 {
		def.AmountTick = 0.1
	}
	if def.PriceTick == 0 {
		def.PriceTick = 0.1
	}
	if def.AmountUnit == "" {
		def.AmountUnit = "MWh"
	}
	if def.PriceUnit == "" {
		def.PriceUnit = "EUR/MWh"
	}
}

func (p *ProductConfig) compile() (domain.ProductTemplate, error) {
	if p.Duration.Duration == 0 {
		return domain.ProductTemplate{}, fmt.Errorf("duration must not be zero")
	}
	if p.Count > 0 && p.CountRule != "" {
		return domain.ProductTemplate{}, fmt.Errorf("count and count_rule are mutually exclusive")
	}

	tpl := domain.ProductTemplate{
		Duration:                p.Duration.Duration,
		FirstDeliveryAfterStart: domain.OffsetSpec{Fixed: p.FirstDelivery.Duration},
	}

	switch {
	case p.CountRule != "":
		spec, err := schedule.CountRule(p.CountRule, p.Duration.Duration, p.FirstDelivery.Duration)
		if err != nil {
			return domain.ProductTemplate{}, err
		}
		tpl.Count = spec
	case p.Count > 0:
		tpl.Count = domain.CountSpec{Fixed: p.Count}
	default:
		return domain.ProductTemplate{}, fmt.Errorf("either count or count_rule is required")
	}

	if p.OnlyHours != "" {
		hr, err := parseHourRange(p.OnlyHours)
		if err != nil {
			return domain.ProductTemplate{}, err
		}
		tpl.OnlyHours = &hr
	}
	return tpl, nil
}

// parseHourRange parses "from-to" with both bounds in 0..23. The range may
// wrap around midnight, e.g. "20-8".
func parseHourRange(s string) (domain.HourRange, error) {
	var from, to int
	if _, err := fmt.Sscanf(s, "%d-%d", &from, &to); err != nil {
		return domain.HourRange{}, fmt.Errorf("only_hours %q: want \"from-to\"", s)
	}
	if from < 0 || from > 23 || to < 0 || to > 23 {
		return domain.HourRange{}, fmt.Errorf("only_hours %q: hours must be 0-23", s)
	}
	return domain.HourRange{From: from, To: to}, nil
}
