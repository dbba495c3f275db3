package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/medtrack/medtrack/internal/domain/followup"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSignKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	Timezone       string        `mapstructure:"TIMEZONE"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	RedThresholdDays         int    `mapstructure:"RED_THRESHOLD_DAYS"`
	LookaheadDays            int    `mapstructure:"LOOKAHEAD_DAYS"`
	SurveillanceIntervalDays int    `mapstructure:"SURVEILLANCE_INTERVAL_DAYS"`
	ANCGraceDays             int    `mapstructure:"ANC_GRACE_DAYS"`
	ANCMilestoneWeeks        string `mapstructure:"ANC_MILESTONE_WEEKS"`
	PolicyFile               string `mapstructure:"POLICY_FILE"`
	RoleSeedFile             string `mapstructure:"ROLE_SEED_FILE"`

	PGDumpPath    string `mapstructure:"PG_DUMP_PATH"`
	PGRestorePath string `mapstructure:"PG_RESTORE_PATH"`
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"TIMEZONE", "REQUEST_TIMEOUT", "RED_THRESHOLD_DAYS", "LOOKAHEAD_DAYS",
	"SURVEILLANCE_INTERVAL_DAYS", "ANC_GRACE_DAYS", "ANC_MILESTONE_WEEKS", "POLICY_FILE",
	"ROLE_SEED_FILE", "PG_DUMP_PATH", "PG_RESTORE_PATH",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	def := followup.DefaultPolicy()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV when empty
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RED_THRESHOLD_DAYS", def.RedThresholdDays)
	v.SetDefault("LOOKAHEAD_DAYS", def.LookaheadDays)
	v.SetDefault("SURVEILLANCE_INTERVAL_DAYS", def.SurveillanceIntervalDays)
	v.SetDefault("ANC_GRACE_DAYS", def.ANCGraceDays)
	v.SetDefault("ANC_MILESTONE_WEEKS", "12,20,28,36")
	v.SetDefault("PG_DUMP_PATH", "pg_dump")
	v.SetDefault("PG_RESTORE_PATH", "pg_restore")

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns AUTH_MODE, or "development" in a development
// environment and "jwt" otherwise.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate refuses to start with settings that would disable authentication
// outside development or break scheduling.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if !c.IsDev() {
			return fmt.Errorf("AUTH_MODE=development is only allowed with ENV=development (got ENV=%q)", c.Env)
		}
	case "jwt":
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set when AUTH_MODE is \"jwt\"")
		}
		if c.AuthJWKSURL == "" && c.AuthSignKey == "" {
			return fmt.Errorf("one of AUTH_JWKS_URL or AUTH_SIGNING_KEY is required when AUTH_MODE is \"jwt\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE, the clinic's local time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Clock returns the current time in the clinic's time zone, so "today"
// follows the local calendar.
func (c *Config) Clock() func() time.Time {
	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// Policy builds the scheduling constants from the environment and overlays
// POLICY_FILE when set.
func (c *Config) Policy() (followup.Policy, error) {
	p := followup.DefaultPolicy()
	p.RedThresholdDays = c.RedThresholdDays
	p.LookaheadDays = c.LookaheadDays
	p.SurveillanceIntervalDays = c.SurveillanceIntervalDays
	p.ANCGraceDays = c.ANCGraceDays

	if c.ANCMilestoneWeeks != "" {
		var weeks []int
		for _, s := range splitList(c.ANCMilestoneWeeks) {
			w, err := strconv.Atoi(s)
			if err != nil {
				return followup.Policy{}, fmt.Errorf("ANC_MILESTONE_WEEKS: %q is not a number", s)
			}
			weeks = append(weeks, w)
		}
		p = p.WithMilestoneWeeks(weeks)
	}

	if c.PolicyFile != "" {
		return followup.LoadPolicyFile(c.PolicyFile, p)
	}
	if err := p.Validate(); err != nil {
		return followup.Policy{}, err
	}
	return p, nil
}
