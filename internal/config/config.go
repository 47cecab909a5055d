package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	ProviderBaseURL string        `mapstructure:"PROVIDER_BASE_URL"`
	ProviderName    string        `mapstructure:"PROVIDER_NAME"`
	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	EmulateDir      string        `mapstructure:"EMULATE_DIR"`

	ScrapeSchedule        string        `mapstructure:"SCRAPE_SCHEDULE"`
	ConfigRefreshSchedule string        `mapstructure:"CONFIG_REFRESH_SCHEDULE"`
	HorizonDays           int           `mapstructure:"HORIZON_DAYS"`
	CutoffGrace           time.Duration `mapstructure:"CUTOFF_GRACE"`
	SlotLength            time.Duration `mapstructure:"SLOT_LENGTH"`
	PublicOnly            bool          `mapstructure:"PUBLIC_ONLY"`
	StaffRemap            string        `mapstructure:"STAFF_REMAP"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	ArtifactDir string `mapstructure:"ARTIFACT_DIR"`

	AlertsEnabled  bool   `mapstructure:"ALERTS_ENABLED"`
	AlertThreshold int    `mapstructure:"ALERT_THRESHOLD"`
	AlertFrom      string `mapstructure:"ALERT_FROM"`
	AlertTo        string `mapstructure:"ALERT_TO"`
	SMTPAddr       string `mapstructure:"SMTP_ADDR"`
	BookingURL     string `mapstructure:"BOOKING_URL"`
	DashboardURL   string `mapstructure:"DASHBOARD_URL"`

	AdminTokenSecret string `mapstructure:"ADMIN_TOKEN_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("PROVIDER_NAME", "the booking system")
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("SCRAPE_SCHEDULE", "0 */5 * * * *")
	v.SetDefault("CONFIG_REFRESH_SCHEDULE", "0 14,29,44,59 * * * *")
	v.SetDefault("HORIZON_DAYS", 30)
	v.SetDefault("CUTOFF_GRACE", "30m")
	v.SetDefault("SLOT_LENGTH", "15m")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("ARTIFACT_DIR", "generated")
	v.SetDefault("ALERT_THRESHOLD", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("PROVIDER_BASE_URL")
	v.BindEnv("PROVIDER_NAME")
	v.BindEnv("PROVIDER_TIMEOUT")
	v.BindEnv("EMULATE_DIR")
	v.BindEnv("SCRAPE_SCHEDULE")
	v.BindEnv("CONFIG_REFRESH_SCHEDULE")
	v.BindEnv("HORIZON_DAYS")
	v.BindEnv("CUTOFF_GRACE")
	v.BindEnv("SLOT_LENGTH")
	v.BindEnv("PUBLIC_ONLY")
	v.BindEnv("STAFF_REMAP")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("ARTIFACT_DIR")
	v.BindEnv("ALERTS_ENABLED")
	v.BindEnv("ALERT_THRESHOLD")
	v.BindEnv("ALERT_FROM")
	v.BindEnv("ALERT_TO")
	v.BindEnv("SMTP_ADDR")
	v.BindEnv("BOOKING_URL")
	v.BindEnv("DASHBOARD_URL")
	v.BindEnv("ADMIN_TOKEN_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	if c.ProviderBaseURL == "" && c.EmulateDir == "" {
		return fmt.Errorf("PROVIDER_BASE_URL is required unless EMULATE_DIR is set")
	}
	if c.AlertsEnabled {
		if c.SMTPAddr == "" || c.AlertFrom == "" || c.AlertTo == "" {
			return fmt.Errorf("ALERTS_ENABLED requires SMTP_ADDR, ALERT_FROM and ALERT_TO")
		}
	}
	if !c.IsDev() && c.AdminTokenSecret == "" {
		return fmt.Errorf("ADMIN_TOKEN_SECRET is required outside development")
	}
	if c.HorizonDays <= 0 {
		return fmt.Errorf("HORIZON_DAYS must be positive, got %d", c.HorizonDays)
	}
	if _, err := c.ParsedStaffRemap(); err != nil {
		return err
	}
	return nil
}

// ParsedStaffRemap parses STAFF_REMAP entries of the form
// "staffID:locationID,staffID:locationID". Empty means: use the built-in
// table of known broken identifiers.
func (c *Config) ParsedStaffRemap() (map[int]int, error) {
	if strings.TrimSpace(c.StaffRemap) == "" {
		return nil, nil
	}

	out := make(map[int]int)
	for _, pair := range strings.Split(c.StaffRemap, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("STAFF_REMAP entry %q is not staffID:locationID", pair)
		}
		staffID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("STAFF_REMAP entry %q: bad staff id", pair)
		}
		locationID, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("STAFF_REMAP entry %q: bad location id", pair)
		}
		out[staffID] = locationID
	}
	return out, nil
}
