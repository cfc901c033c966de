package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargepark/backend/libs/config"
	libdb "chargepark/backend/libs/db"
	"chargepark/backend/services/sessions-service/internal/monitor"
	"chargepark/backend/services/sessions-service/internal/service"
)

const defaultPort = "8082"

// Config defines sessions service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Rules    RulesConfig    `yaml:"rules"`
	Fees     FeesConfig     `yaml:"fees"`
	Monitors MonitorsConfig `yaml:"monitors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port string `yaml:"port" env:"SESSIONS_HTTP_PORT"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn" env:"SESSIONS_POSTGRES_DSN"`
	MaxOpenConns int           `yaml:"maxOpenConns" env:"SESSIONS_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"maxIdleConns" env:"SESSIONS_POSTGRES_MAX_IDLE_CONNS"`
	ConnLifetime time.Duration `yaml:"connLifetime" env:"SESSIONS_POSTGRES_CONN_LIFETIME"`
}

// RedisConfig configures notification dedup and the inbox. An empty Addr
// disables redis.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"SESSIONS_REDIS_ADDR"`
	Password  string        `yaml:"password" env:"SESSIONS_REDIS_PASSWORD"`
	DB        int           `yaml:"db" env:"SESSIONS_REDIS_DB"`
	InboxSize int           `yaml:"inboxSize" env:"SESSIONS_REDIS_INBOX_SIZE"`
	InboxTTL  time.Duration `yaml:"inboxTTL" env:"SESSIONS_REDIS_INBOX_TTL"`
}

// AuthConfig holds the HMAC secret of bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"SESSIONS_JWT_SECRET"`
}

// RulesConfig overrides lifecycle thresholds. Zero values keep defaults.
type RulesConfig struct {
	LateCancelThreshold       time.Duration `yaml:"lateCancelThreshold" env:"SESSIONS_LATE_CANCEL_THRESHOLD"`
	NoShowThreshold           time.Duration `yaml:"noShowThreshold" env:"SESSIONS_NO_SHOW_THRESHOLD"`
	ParkingGrace              time.Duration `yaml:"parkingGrace" env:"SESSIONS_PARKING_GRACE"`
	ParkingEscalation         time.Duration `yaml:"parkingEscalation" env:"SESSIONS_PARKING_ESCALATION"`
	MaxChargingDuration       time.Duration `yaml:"maxChargingDuration" env:"SESSIONS_MAX_CHARGING_DURATION"`
	ProximityRadiusMeters     float64       `yaml:"proximityRadiusMeters" env:"SESSIONS_PROXIMITY_RADIUS_METERS"`
	BanThreshold              int           `yaml:"banThreshold" env:"SESSIONS_BAN_THRESHOLD"`
	PenaltyNotificationWindow time.Duration `yaml:"penaltyNotificationWindow" env:"SESSIONS_PENALTY_NOTIFICATION_WINDOW"`
	GeneralNotificationWindow time.Duration `yaml:"generalNotificationWindow" env:"SESSIONS_GENERAL_NOTIFICATION_WINDOW"`
}

// FeesConfig overrides fee rates. Zero values keep defaults.
type FeesConfig struct {
	Cancel            float64 `yaml:"cancel" env:"SESSIONS_FEE_CANCEL"`
	NoShow            float64 `yaml:"noShow" env:"SESSIONS_FEE_NO_SHOW"`
	OvertimePerMinute float64 `yaml:"overtimePerMinute" env:"SESSIONS_FEE_OVERTIME_PER_MINUTE"`
	ParkingPerMinute  float64 `yaml:"parkingPerMinute" env:"SESSIONS_FEE_PARKING_PER_MINUTE"`
}

// MonitorsConfig tunes the background sweeps.
type MonitorsConfig struct {
	Enabled         bool          `yaml:"enabled" env:"SESSIONS_MONITORS_ENABLED"`
	NoShowInterval  time.Duration `yaml:"noShowInterval" env:"SESSIONS_MONITOR_NO_SHOW_INTERVAL"`
	TargetInterval  time.Duration `yaml:"targetInterval" env:"SESSIONS_MONITOR_TARGET_INTERVAL"`
	ParkingInterval time.Duration `yaml:"parkingInterval" env:"SESSIONS_MONITOR_PARKING_INTERVAL"`
	StuckInterval   time.Duration `yaml:"stuckInterval" env:"SESSIONS_MONITOR_STUCK_INTERVAL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" env:"SESSIONS_MONITOR_CLEANUP_INTERVAL"`
	BatchSize       int           `yaml:"batchSize" env:"SESSIONS_MONITOR_BATCH_SIZE"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"SESSIONS_METRICS_ENABLED"`
}

// Load reads configuration via shared helper. An empty path falls back to
// CONFIG_FILE.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTP:     HTTPConfig{Port: defaultPort},
		Monitors: MonitorsConfig{Enabled: true},
		Metrics:  MetricsConfig{Enabled: true},
	}

	var err error
	if strings.TrimSpace(path) != "" {
		err = libconfig.LoadConfigFile(path, cfg)
	} else {
		err = libconfig.LoadConfig(cfg)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	return cfg, nil
}

// ValidateServe checks settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth jwtSecret required")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// RedisEnabled reports whether a redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// PoolOptions maps database settings onto the shared pool options.
func (c *Config) PoolOptions() libdb.PoolOptions {
	return libdb.PoolOptions{
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		ConnLifetime: c.Database.ConnLifetime,
	}
}

// ServiceRules returns lifecycle rules with defaults applied.
func (c *Config) ServiceRules() service.Rules {
	r := c.Rules
	return service.Rules{
		LateCancelThreshold:       r.LateCancelThreshold,
		NoShowThreshold:           r.NoShowThreshold,
		ParkingGrace:              r.ParkingGrace,
		ParkingEscalation:         r.ParkingEscalation,
		MaxChargingDuration:       r.MaxChargingDuration,
		ProximityRadiusMeters:     r.ProximityRadiusMeters,
		BanThreshold:              r.BanThreshold,
		PenaltyNotificationWindow: r.PenaltyNotificationWindow,
		GeneralNotificationWindow: r.GeneralNotificationWindow,
	}.WithDefaults()
}

// FeeSchedule returns fee rates with defaults applied.
func (c *Config) FeeSchedule() service.FeeSchedule {
	s := service.DefaultFeeSchedule()
	if c.Fees.Cancel > 0 {
		s.CancelFee = c.Fees.Cancel
	}
	if c.Fees.NoShow > 0 {
		s.NoShowFee = c.Fees.NoShow
	}
	if c.Fees.OvertimePerMinute > 0 {
		s.OvertimePerMinute = c.Fees.OvertimePerMinute
	}
	if c.Fees.ParkingPerMinute > 0 {
		s.ParkingPerMinute = c.Fees.ParkingPerMinute
	}
	return s
}

// MonitorConfig returns sweep settings; zero values are defaulted by the monitor package.
func (c *Config) MonitorConfig() monitor.Config {
	m := c.Monitors
	return monitor.Config{
		NoShowInterval:  m.NoShowInterval,
		TargetInterval:  m.TargetInterval,
		ParkingInterval: m.ParkingInterval,
		StuckInterval:   m.StuckInterval,
		CleanupInterval: m.CleanupInterval,
		BatchSize:       m.BatchSize,
	}
}
