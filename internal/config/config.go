package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port" validate:"omitempty,numeric"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"server"`
	Redis struct {
		Addr           string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db" validate:"gte=0"`
		TTL            string `yaml:"ttl"`
		Channel        string `yaml:"channel"`
		PublishTimeout string `yaml:"publishTimeout"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Deck struct {
		TTL string `yaml:"ttl"`
	} `yaml:"deck"`
	Auth struct {
		JWTSecret    string   `yaml:"jwtSecret" validate:"required"`
		HostRoles    []string `yaml:"hostRoles"`
		TeacherRoles []string `yaml:"teacherRoles"`
	} `yaml:"auth"`
	Blitz    Blitz    `yaml:"blitz"`
	Realtime Realtime `yaml:"realtime"`
}

// Blitz holds the game rules. Zero values fall back to the coordinator defaults.
type Blitz struct {
	MinPlayers           int    `yaml:"minPlayers" validate:"gte=0"`
	AllowSolo            bool   `yaml:"allowSolo"`
	MaxPlayers           int    `yaml:"maxPlayers" validate:"gte=0"`
	DefaultQuestionCount int    `yaml:"defaultQuestionCount" validate:"gte=0"`
	MaxQuestionCount     int    `yaml:"maxQuestionCount" validate:"gte=0"`
	MaxTimeLimitMinutes  int    `yaml:"maxTimeLimitMinutes" validate:"gte=0"`
	PointsCorrect        int    `yaml:"pointsCorrect" validate:"gte=0"`
	PointsIncorrect      int    `yaml:"pointsIncorrect" validate:"lte=0"`
	CodeRetries          int    `yaml:"codeRetries" validate:"gte=0"`
	SweepInterval        string `yaml:"sweepInterval"`
}

type Realtime struct {
	SubscriberBuffer int    `yaml:"subscriberBuffer" validate:"gte=0"`
	WriteTimeout     string `yaml:"writeTimeout"`
	PingInterval     string `yaml:"pingInterval"`
	PollInterval     string `yaml:"pollInterval"`
}

// Load reads YAML config from path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployment secrets live outside the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

// Validate checks field constraints and duration syntax.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	durations := map[string]string{
		"server.readTimeout":    cfg.Server.ReadTimeout,
		"server.writeTimeout":   cfg.Server.WriteTimeout,
		"redis.ttl":             cfg.Redis.TTL,
		"redis.publishTimeout":  cfg.Redis.PublishTimeout,
		"deck.ttl":              cfg.Deck.TTL,
		"blitz.sweepInterval":   cfg.Blitz.SweepInterval,
		"realtime.writeTimeout": cfg.Realtime.WriteTimeout,
		"realtime.pingInterval": cfg.Realtime.PingInterval,
		"realtime.pollInterval": cfg.Realtime.PollInterval,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
