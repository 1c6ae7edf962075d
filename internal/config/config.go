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
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Local struct {
		Path string `yaml:"path"`
	} `yaml:"local"`
	Flags struct {
		TTL            string `yaml:"ttl"`
		PollInterval   string `yaml:"pollInterval"`
		QualifierLevel int    `yaml:"qualifierLevel"`
		FinalLevel     int    `yaml:"finalLevel"`
	} `yaml:"flags"`
	Content struct {
		TTL string `yaml:"ttl"`
	} `yaml:"content"`
	Game struct {
		QuestionCount  int    `yaml:"questionCount"`
		ClockSeconds   int    `yaml:"clockSeconds"`
		CountdownTicks int    `yaml:"countdownTicks"`
		ResaveInterval string `yaml:"resaveInterval"`
		TeamSize       int    `yaml:"teamSize"`
		SaveDebounce   string `yaml:"saveDebounce"`

		ViolationPoints int `yaml:"violationPoints"`
		RootCausePoints int `yaml:"rootCausePoints"`
		SolutionPoints  int `yaml:"solutionPoints"`
	} `yaml:"game"`
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
