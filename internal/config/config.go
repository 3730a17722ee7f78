package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Pages   PagesConfig   `mapstructure:"pages"`
	Routes  RoutesConfig  `mapstructure:"routes"`
	Log     LogConfig     `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CacheConfig struct {
	StaleSeconds                int `mapstructure:"stale_seconds"`
	SpecializationsStaleSeconds int `mapstructure:"specializations_stale_seconds"`
	EvictionMinutes             int `mapstructure:"eviction_minutes"`
}

type SessionConfig struct {
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
	FilePath string `mapstructure:"file_path"`
}

type PagesConfig struct {
	DoctorsLimit             int `mapstructure:"doctors_limit"`
	PatientAppointmentsLimit int `mapstructure:"patient_appointments_limit"`
	DoctorAppointmentsLimit  int `mapstructure:"doctor_appointments_limit"`
}

type RoutesConfig struct {
	AuthPrefix     string `mapstructure:"auth_prefix"`
	LoginPath      string `mapstructure:"login_path"`
	DoctorLanding  string `mapstructure:"doctor_landing"`
	PatientLanding string `mapstructure:"patient_landing"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults() {
	viper.SetDefault("api.base_url", "https://appointment-manager-node.onrender.com/api/v1")
	viper.SetDefault("api.timeout_seconds", 15)
	viper.SetDefault("api.requests_per_second", 10.0)
	viper.SetDefault("api.burst", 20)

	viper.SetDefault("cache.stale_seconds", 30)
	viper.SetDefault("cache.specializations_stale_seconds", 60)
	viper.SetDefault("cache.eviction_minutes", 15)

	viper.SetDefault("session.backend", "file")
	viper.SetDefault("session.file_path", ".booking-session.json")

	viper.SetDefault("pages.doctors_limit", 6)
	viper.SetDefault("pages.patient_appointments_limit", 6)
	viper.SetDefault("pages.doctor_appointments_limit", 8)

	viper.SetDefault("routes.auth_prefix", "/auth/")
	viper.SetDefault("routes.login_path", "/auth/login")
	viper.SetDefault("routes.doctor_landing", "/doctors/dashboard")
	viper.SetDefault("routes.patient_landing", "/patient/dashboard")

	viper.SetDefault("log.level", "info")
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("BOOKING")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A config file is optional; defaults plus env cover the common case.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.Session.Backend {
	case "memory", "file":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}
