package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address              string   `yaml:"address"`
	SwaggerDir           string   `yaml:"swagger_dir"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	ReserveRatePerMinute int      `yaml:"reserve_rate_per_minute"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	SlotMinutes           int    `yaml:"slot_minutes"`
	ReservationTTLMinutes int    `yaml:"reservation_ttl_minutes"`
	MaxCallAttempts       int    `yaml:"max_call_attempts"`
	DisplayTimezone       string `yaml:"display_timezone"`
	StrictReserveLock     bool   `yaml:"strict_reserve_lock"`
	GridCacheTTLSeconds   int    `yaml:"grid_cache_ttl_seconds"`
}

func (b BookingConfig) SlotStep() time.Duration {
	return time.Duration(b.SlotMinutes) * time.Minute
}

func (b BookingConfig) ReservationTTL() time.Duration {
	return time.Duration(b.ReservationTTLMinutes) * time.Minute
}

func (b BookingConfig) GridCacheTTL() time.Duration {
	return time.Duration(b.GridCacheTTLSeconds) * time.Second
}

// DisplayLocation is the zone slot listings are labelled in.
func (b BookingConfig) DisplayLocation() (*time.Location, error) {
	return time.LoadLocation(b.DisplayTimezone)
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the
// environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = 5
	}
	if c.Booking.ReservationTTLMinutes == 0 {
		c.Booking.ReservationTTLMinutes = 10
	}
	if c.Booking.MaxCallAttempts == 0 {
		c.Booking.MaxCallAttempts = 3
	}
	if c.Booking.DisplayTimezone == "" {
		c.Booking.DisplayTimezone = "UTC"
	}
	if c.Booking.GridCacheTTLSeconds == 0 {
		c.Booking.GridCacheTTLSeconds = 3600
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 1
	}
	if c.Log.Env == "" {
		c.Log.Env = "production"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Booking.SlotMinutes < 1 || 60%c.Booking.SlotMinutes != 0 {
		errs = append(errs, fmt.Errorf("booking.slot_minutes must divide 60, got %d", c.Booking.SlotMinutes))
	}
	if c.Booking.ReservationTTLMinutes < 1 {
		errs = append(errs, errors.New("booking.reservation_ttl_minutes must be positive"))
	}
	if c.Booking.MaxCallAttempts < 1 {
		errs = append(errs, errors.New("booking.max_call_attempts must be positive"))
	}
	if _, err := c.Booking.DisplayLocation(); err != nil {
		errs = append(errs, fmt.Errorf("booking.display_timezone: %w", err))
	}
	if c.Worker.ExpirationSweepMinutes < 1 {
		errs = append(errs, errors.New("worker.expiration_sweep_minutes must be positive"))
	}
	if c.HTTP.ReserveRatePerMinute < 0 {
		errs = append(errs, errors.New("http.reserve_rate_per_minute must not be negative"))
	}
	return errors.Join(errs...)
}
