package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/game"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		PublicURL string `yaml:"publicURL"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Content struct {
		File string `yaml:"file"`
	} `yaml:"content"`
	Game     game.Settings `yaml:"game"`
	Sessions struct {
		MaxAge                string `yaml:"maxAge"`
		SweepInterval         string `yaml:"sweepInterval"`
		HostGrace             string `yaml:"hostGrace"`
		FinalLeaderboardDelay string `yaml:"finalLeaderboardDelay"`
	} `yaml:"sessions"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{Game: game.DefaultSettings()}
	cfg.Server.Port = "8080"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
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
