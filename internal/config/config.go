// Package config loads the frontend service configuration from YAML with
// ${ENV_VAR} expansion.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int `yaml:"port"`
		ReadTimeoutSec  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSec int `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	API struct {
		BaseURL         string `yaml:"base_url"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"api"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Session struct {
		TTLHours     int `yaml:"ttl_hours"`
		IdleMinutes  int `yaml:"idle_minutes"`
		SweepMinutes int `yaml:"sweep_minutes"`
	} `yaml:"session"`

	Booking struct {
		OTPPerMinute     float64 `yaml:"otp_per_minute"`
		OTPBurst         int     `yaml:"otp_burst"`
		DefaultRangeDays int     `yaml:"default_range_days"`
	} `yaml:"booking"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsPath string `yaml:"credentials_path"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	LogLevel string `yaml:"log_level"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/glowdesk.db"
	}
	if cfg.Sheets.SheetName == "" {
		cfg.Sheets.SheetName = "Bookings"
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "data/backups"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) APICacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Session.TTLHours) * time.Hour
}

func (c *Config) SessionIdle() time.Duration {
	if c.Session.IdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Session.IdleMinutes) * time.Minute
}

func (c *Config) SessionSweep() time.Duration {
	if c.Session.SweepMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Session.SweepMinutes) * time.Minute
}

// OTPRate returns how many one-time code requests one contact may issue
// per minute.
func (c *Config) OTPRate() float64 {
	if c.Booking.OTPPerMinute <= 0 {
		return 1
	}
	return c.Booking.OTPPerMinute
}

func (c *Config) OTPBurst() int {
	if c.Booking.OTPBurst <= 0 {
		return 3
	}
	return c.Booking.OTPBurst
}

// DefaultRangeDays is the calendar window requested when the client does
// not name one.
func (c *Config) DefaultRangeDays() int {
	if c.Booking.DefaultRangeDays <= 0 {
		return 7
	}
	return c.Booking.DefaultRangeDays
}
