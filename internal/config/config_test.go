package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("port: want 8000, got %s", cfg.Port)
	}
	if cfg.Env != "development" || !cfg.IsDev() {
		t.Errorf("env: want development, got %s", cfg.Env)
	}
	if cfg.ScrapeSchedule != "0 */5 * * * *" {
		t.Errorf("scrape schedule: got %s", cfg.ScrapeSchedule)
	}
	if cfg.ConfigRefreshSchedule != "0 14,29,44,59 * * * *" {
		t.Errorf("config refresh schedule: got %s", cfg.ConfigRefreshSchedule)
	}
	if cfg.HorizonDays != 30 {
		t.Errorf("horizon: want 30, got %d", cfg.HorizonDays)
	}
	if cfg.CutoffGrace != 30*time.Minute || cfg.SlotLength != 15*time.Minute {
		t.Errorf("grid defaults: grace=%v slot=%v", cfg.CutoffGrace, cfg.SlotLength)
	}
	if cfg.AlertThreshold != 3 {
		t.Errorf("alert threshold: want 3, got %d", cfg.AlertThreshold)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PROVIDER_BASE_URL", "https://clinic.example.org")
	t.Setenv("HORIZON_DAYS", "7")
	t.Setenv("PUBLIC_ONLY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("port: want 9999, got %s", cfg.Port)
	}
	if cfg.ProviderBaseURL != "https://clinic.example.org" {
		t.Errorf("base url: got %s", cfg.ProviderBaseURL)
	}
	if cfg.HorizonDays != 7 {
		t.Errorf("horizon: want 7, got %d", cfg.HorizonDays)
	}
	if !cfg.PublicOnly {
		t.Error("public only: want true")
	}
}

func validConfig() *Config {
	return &Config{
		Env:             "development",
		ProviderBaseURL: "https://clinic.example.org",
		HorizonDays:     30,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no source", func(c *Config) { c.ProviderBaseURL = "" }, "PROVIDER_BASE_URL"},
		{"emulate dir suffices", func(c *Config) { c.ProviderBaseURL = ""; c.EmulateDir = "testdata" }, ""},
		{"alerts missing smtp", func(c *Config) { c.AlertsEnabled = true; c.AlertTo = "ops@example.org" }, "ALERTS_ENABLED"},
		{"alerts complete", func(c *Config) {
			c.AlertsEnabled = true
			c.SMTPAddr = "mail:25"
			c.AlertFrom = "bot@example.org"
			c.AlertTo = "ops@example.org"
		}, ""},
		{"prod needs admin secret", func(c *Config) { c.Env = "production" }, "ADMIN_TOKEN_SECRET"},
		{"prod with secret", func(c *Config) { c.Env = "production"; c.AdminTokenSecret = "s3cret" }, ""},
		{"zero horizon", func(c *Config) { c.HorizonDays = 0 }, "HORIZON_DAYS"},
		{"bad remap", func(c *Config) { c.StaffRemap = "1301=29" }, "STAFF_REMAP"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error mentioning %s, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParsedStaffRemap(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    map[int]int
		wantErr bool
	}{
		{"empty means built-in", "", nil, false},
		{"single pair", "1301:29", map[int]int{1301: 29}, false},
		{"multiple pairs with spaces", " 1301:29 , 1761:28 ", map[int]int{1301: 29, 1761: 28}, false},
		{"missing colon", "1301", nil, true},
		{"bad staff id", "x:29", nil, true},
		{"bad location id", "1301:y", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{StaffRemap: tc.raw}
			got, err := cfg.ParsedStaffRemap()
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("remap[%d]: want %d, got %d", k, v, got[k])
				}
			}
		})
	}
}
