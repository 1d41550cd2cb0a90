package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"arenakiosk/internal/osctl"
	libconfig "arenakiosk/libs/config"
)

// State backends.
const (
	StateSQLite = "sqlite"
	StateRedis  = "redis"
	StateMemory = "memory"
)

// Geometry is a window rectangle.
type Geometry struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config defines kiosk client configuration.
type Config struct {
	Device struct {
		ID           string        `yaml:"id" env:"KIOSK_DEVICE_ID"`
		PollInterval time.Duration `yaml:"pollInterval" env:"KIOSK_DEVICE_POLL_INTERVAL"`
	} `yaml:"device"`
	Store struct {
		URL                 string        `yaml:"url" env:"KIOSK_STORE_URL"`
		Token               string        `yaml:"token" env:"KIOSK_STORE_TOKEN"`
		Timeout             time.Duration `yaml:"timeout" env:"KIOSK_STORE_TIMEOUT"`
		IdentityCollections []string      `yaml:"identityCollections" env:"KIOSK_STORE_IDENTITY_COLLECTIONS"`
		Realtime            bool          `yaml:"realtime" env:"KIOSK_STORE_REALTIME"`
	} `yaml:"store"`
	HTTP struct {
		Addr   string `yaml:"addr" env:"KIOSK_HTTP_ADDR"`
		APIKey string `yaml:"apiKey" env:"KIOSK_HTTP_API_KEY"`
	} `yaml:"http"`
	Session struct {
		TickInterval time.Duration `yaml:"tickInterval" env:"KIOSK_SESSION_TICK_INTERVAL"`
		PollInterval time.Duration `yaml:"pollInterval" env:"KIOSK_SESSION_POLL_INTERVAL"`
		LogoutGrace  time.Duration `yaml:"logoutGrace" env:"KIOSK_SESSION_LOGOUT_GRACE"`
	} `yaml:"session"`
	Venue struct {
		Timezone string `yaml:"timezone" env:"KIOSK_VENUE_TIMEZONE"`
	} `yaml:"venue"`
	Pricing struct {
		CacheTTL time.Duration `yaml:"cacheTTL" env:"KIOSK_PRICING_CACHE_TTL"`
	} `yaml:"pricing"`
	Kiosk struct {
		AdminPINHash string   `yaml:"adminPinHash" env:"KIOSK_ADMIN_PIN_HASH"`
		QueueSize    int      `yaml:"queueSize" env:"KIOSK_LOCK_QUEUE_SIZE"`
		Locked       Geometry `yaml:"locked" env:"KIOSK_LOCK_GEOMETRY"`
		Normal       Geometry `yaml:"normal" env:"KIOSK_NORMAL_GEOMETRY"`
	} `yaml:"kiosk"`
	Screenshot struct {
		Cooldown time.Duration `yaml:"cooldown" env:"KIOSK_SCREENSHOT_COOLDOWN"`
	} `yaml:"screenshot"`
	State struct {
		Backend string `yaml:"backend" env:"KIOSK_STATE_BACKEND"`
		Path    string `yaml:"path" env:"KIOSK_STATE_PATH"`
	} `yaml:"state"`
	Redis struct {
		Addr     string `yaml:"addr" env:"KIOSK_REDIS_ADDR"`
		Password string `yaml:"password" env:"KIOSK_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"KIOSK_REDIS_DB"`
	} `yaml:"redis"`
	OS struct {
		Enabled  bool           `yaml:"enabled" env:"KIOSK_OS_ENABLED"`
		Timeout  time.Duration  `yaml:"timeout" env:"KIOSK_OS_TIMEOUT"`
		Commands osctl.Commands `yaml:"commands" env:"KIOSK_OS"`
	} `yaml:"os"`
	Log struct {
		Level    string `yaml:"level" env:"KIOSK_LOG_LEVEL"`
		Encoding string `yaml:"encoding" env:"KIOSK_LOG_ENCODING"`
	} `yaml:"log"`
}

// Default returns configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Device.PollInterval = 30 * time.Second
	cfg.Store.Timeout = 10 * time.Second
	cfg.Store.IdentityCollections = []string{"users", "customers"}
	cfg.Store.Realtime = true
	cfg.HTTP.Addr = "127.0.0.1:8790"
	cfg.Session.TickInterval = time.Second
	cfg.Session.PollInterval = 30 * time.Second
	cfg.Session.LogoutGrace = 5 * time.Second
	cfg.Venue.Timezone = "Local"
	cfg.Pricing.CacheTTL = time.Minute
	cfg.Kiosk.QueueSize = 8
	cfg.Kiosk.Locked = Geometry{Width: 1920, Height: 1080}
	cfg.Kiosk.Normal = Geometry{X: 100, Y: 100, Width: 1280, Height: 720}
	cfg.Screenshot.Cooldown = 30 * time.Second
	cfg.State.Backend = StateSQLite
	cfg.State.Path = "kiosk-state.db"
	cfg.Redis.Addr = "localhost:6379"
	cfg.OS.Timeout = 15 * time.Second
	cfg.Log.Encoding = "json"
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from path, then the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings. The device id may be empty when it was persisted earlier.
func (c *Config) Validate() error {
	raw := strings.TrimSpace(c.Store.URL)
	if raw == "" {
		return errors.New("config: store url required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: store url %q must be an http(s) url", raw)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.State.Backend {
	case StateSQLite:
		if strings.TrimSpace(c.State.Path) == "" {
			return errors.New("config: state path required for sqlite backend")
		}
	case StateRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("config: redis addr required for redis backend")
		}
	case StateMemory:
	default:
		return fmt.Errorf("config: unknown state backend %q", c.State.Backend)
	}
	if len(c.Store.IdentityCollections) == 0 {
		return errors.New("config: at least one identity collection required")
	}
	return nil
}

// Location resolves the venue timezone used for weekdays, clock times and calendar days.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Venue.Timezone)
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: venue timezone: %w", err)
	}
	return loc, nil
}

// StoreURL returns the store base url without trailing slash.
func (c *Config) StoreURL() string {
	return strings.TrimRight(strings.TrimSpace(c.Store.URL), "/")
}

// LockedGeometry returns the kiosk-mode window rectangle.
func (c *Config) LockedGeometry() osctl.Geometry {
	return osctl.Geometry(c.Kiosk.Locked)
}

// NormalGeometry returns the unlocked window rectangle.
func (c *Config) NormalGeometry() osctl.Geometry {
	return osctl.Geometry(c.Kiosk.Normal)
}
