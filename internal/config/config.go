// Package config reads service settings from the environment and run
// requests from YAML job files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Config holds all process settings, populated from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string

	// DefaultEPSG is the CRS written when neither the terrain nor the result
	// store carries one.
	DefaultEPSG         int
	ExtrapolationFactor float64

	HTTPAddr        string
	ShutdownTimeout time.Duration
	// DataDir is the absolute directory that paths in HTTP run requests
	// resolve against and must stay inside.
	DataDir string

	// Optional summary sinks. Empty values disable them.
	KafkaBrokers      []string
	KafkaSummaryTopic string
	LedgerPath        string
	PushgatewayURL    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	epsg, err := strconv.Atoi(envOrDefault("DEFAULT_EPSG", "28992"))
	if err != nil || epsg <= 0 {
		return nil, errors.New("invalid DEFAULT_EPSG")
	}

	factor, err := strconv.ParseFloat(envOrDefault("EXTRAPOLATION_FACTOR", strconv.FormatFloat(domain.DefaultExtrapolationFactor, 'g', -1, 64)), 64)
	if err != nil || factor < 0 {
		return nil, errors.New("invalid EXTRAPOLATION_FACTOR")
	}

	dataDir, err := filepath.Abs(envOrDefault("DATA_DIR", "."))
	if err != nil {
		return nil, errors.New("invalid DATA_DIR")
	}

	cfg := &Config{
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LOG_FORMAT", "json"),
		DefaultEPSG:         epsg,
		ExtrapolationFactor: factor,
		HTTPAddr:            envOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout:     shutdownTimeout,
		DataDir:             dataDir,
		KafkaBrokers:        parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSummaryTopic:   envOrDefault("KAFKA_SUMMARY_TOPIC", "inundation-runs"),
		LedgerPath:          os.Getenv("LEDGER_PATH"),
		PushgatewayURL:      os.Getenv("PUSHGATEWAY_URL"),
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSummaryTopic == "" {
		return nil, errors.New("KAFKA_SUMMARY_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether run summaries should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
