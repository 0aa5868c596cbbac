// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Notification gateway modes.
const (
	NotifyLog      = "log"
	NotifyTelegram = "telegram"
	NotifyKafka    = "kafka"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"eventbot"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Config is the full process configuration, parsed once at startup.
type Config struct {
	DB Database `envPrefix:"DB_"`

	Addr     string  `env:"ADDR" envDefault:":8080"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	ReminderHour int           `env:"REMINDER_HOUR" envDefault:"9"`
	SendTimeout  time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`

	NotifyMode    string `env:"NOTIFY_MODE" envDefault:"log"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	KafkaBroker   string `env:"KAFKA_BROKER" envDefault:"localhost:9092"`
	KafkaTopic    string `env:"KAFKA_TOPIC" envDefault:"reminders"`
}

// Parse reads configuration from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		return Config{}, fmt.Errorf("reminder hour %d out of range", cfg.ReminderHour)
	}
	return cfg, nil
}

// AdminSet is the static admin allow-list, built once from configuration
// and never mutated afterwards. Admin-ness is not persisted on users.
type AdminSet map[int64]struct{}

// NewAdminSet builds an AdminSet from a list of telegram IDs.
func NewAdminSet(ids []int64) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the allow-list.
func (s AdminSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}
