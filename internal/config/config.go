package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session struct {
		TTL             string `yaml:"ttl"`
		GraceWindow     string `yaml:"graceWindow"`
		CleanupInterval string `yaml:"cleanupInterval"`
		MaxAge          string `yaml:"maxAge"`
	} `yaml:"session"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// QuizTTL is how long loaded quizzes stay cached.
func (c Config) QuizTTL() time.Duration {
	return duration(c.Quiz.TTL, 10*time.Minute)
}

// SessionTTL bounds how long a stored session lives.
func (c Config) SessionTTL() time.Duration {
	return duration(c.Session.TTL, 24*time.Hour)
}

// GraceWindow is the pause between question results and the next question.
func (c Config) GraceWindow() time.Duration {
	return duration(c.Session.GraceWindow, 5*time.Second)
}

// CleanupInterval is how often stale finished sessions are swept.
func (c Config) CleanupInterval() time.Duration {
	return duration(c.Session.CleanupInterval, time.Hour)
}

// SessionMaxAge is the age past which a finished session is swept.
func (c Config) SessionMaxAge() time.Duration {
	return duration(c.Session.MaxAge, 24*time.Hour)
}

func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
