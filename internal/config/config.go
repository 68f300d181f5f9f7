// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	SnapshotPath  string
	DatabasePath  string
	CatalogPath   string
	LogLevel      string
	LogFormat     string
	WatchDebounce time.Duration

	Waste     WasteConfig
	Reconcile ReconcileConfig
	Forecast  ForecastConfig
	Recommend RecommendConfig
}

// WasteConfig holds license waste thresholds.
type WasteConfig struct {
	CriticalDays         int
	HighDays             int
	MediumDays           int
	UtilizationThreshold float64
	MinPrepaid           int64
}

// ReconcileConfig holds ledger variance thresholds.
type ReconcileConfig struct {
	OverThreshold  float64
	UnderThreshold float64
	CreditPolicy   string
}

// ForecastConfig holds forecast defaults.
type ForecastConfig struct {
	Method  string
	Horizon int
	Alpha   float64
}

// RecommendConfig holds recommendation rule knobs.
type RecommendConfig struct {
	InactiveCriticalCount int
	DevTestDiscount       float64
	AnomalySensitivity    string
}

// Default values
const (
	defaultCriticalDays          = 90
	defaultHighDays              = 60
	defaultMediumDays            = 30
	defaultUtilizationThreshold  = 0.70
	defaultMinPrepaid            = 5
	defaultMatchThreshold        = 0.10
	defaultCreditPolicy          = "csp-only"
	defaultForecastMethod        = "linear-regression"
	defaultForecastHorizon       = 3
	defaultForecastAlpha         = 0.3
	defaultInactiveCriticalCount = 10
	defaultDevTestDiscount       = 0.30
	defaultAnomalySensitivity    = "medium"
	defaultWatchDebounce         = 250 * time.Millisecond
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	match := getEnvFloat("RECONCILE_MATCH_THRESHOLD", defaultMatchThreshold)

	cfg := &Config{
		SnapshotPath:  getEnvString("SNAPSHOT_PATH", getDefaultSnapshotPath()),
		DatabasePath:  getEnvString("DATABASE_PATH", ""),
		CatalogPath:   getEnvString("CATALOG_PATH", ""),
		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFormat:     getEnvString("LOG_FORMAT", "text"),
		WatchDebounce: getEnvDuration("WATCH_DEBOUNCE", defaultWatchDebounce),
		Waste: WasteConfig{
			CriticalDays:         getEnvInt("WASTE_CRITICAL_DAYS", defaultCriticalDays),
			HighDays:             getEnvInt("WASTE_HIGH_DAYS", defaultHighDays),
			MediumDays:           getEnvInt("WASTE_MEDIUM_DAYS", defaultMediumDays),
			UtilizationThreshold: getEnvFloat("SKU_UTILIZATION_THRESHOLD", defaultUtilizationThreshold),
			MinPrepaid:           int64(getEnvInt("SKU_MIN_PREPAID", defaultMinPrepaid)),
		},
		Reconcile: ReconcileConfig{
			OverThreshold:  getEnvFloat("RECONCILE_OVER_THRESHOLD", match),
			UnderThreshold: getEnvFloat("RECONCILE_UNDER_THRESHOLD", match),
			CreditPolicy:   strings.ToLower(getEnvString("RECONCILE_CREDIT_POLICY", defaultCreditPolicy)),
		},
		Forecast: ForecastConfig{
			Method:  getEnvString("FORECAST_METHOD", defaultForecastMethod),
			Horizon: getEnvInt("FORECAST_HORIZON", defaultForecastHorizon),
			Alpha:   getEnvFloat("FORECAST_ALPHA", defaultForecastAlpha),
		},
		Recommend: RecommendConfig{
			InactiveCriticalCount: getEnvInt("RECOMMEND_INACTIVE_CRITICAL_COUNT", defaultInactiveCriticalCount),
			DevTestDiscount:       getEnvFloat("RECOMMEND_DEVTEST_DISCOUNT", defaultDevTestDiscount),
			AnomalySensitivity:    strings.ToLower(getEnvString("ANOMALY_SENSITIVITY", defaultAnomalySensitivity)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that thresholds are usable.
func (c *Config) Validate() error {
	w := c.Waste
	if !(w.CriticalDays > w.HighDays && w.HighDays > w.MediumDays && w.MediumDays > 0) {
		return fmt.Errorf("waste thresholds must be strictly descending and positive (critical=%d high=%d medium=%d)",
			w.CriticalDays, w.HighDays, w.MediumDays)
	}
	if w.UtilizationThreshold <= 0 || w.UtilizationThreshold > 1 {
		return fmt.Errorf("SKU_UTILIZATION_THRESHOLD must be in (0,1], got %v", w.UtilizationThreshold)
	}
	if w.MinPrepaid < 0 {
		return fmt.Errorf("SKU_MIN_PREPAID must not be negative, got %d", w.MinPrepaid)
	}
	r := c.Reconcile
	if r.OverThreshold <= 0 || r.OverThreshold > 1 || r.UnderThreshold <= 0 || r.UnderThreshold > 1 {
		return fmt.Errorf("reconciliation thresholds must be in (0,1], got over=%v under=%v",
			r.OverThreshold, r.UnderThreshold)
	}
	if r.CreditPolicy != "csp-only" && r.CreditPolicy != "all" {
		return fmt.Errorf("RECONCILE_CREDIT_POLICY must be csp-only or all, got %q", r.CreditPolicy)
	}
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("FORECAST_HORIZON must be at least 1, got %d", c.Forecast.Horizon)
	}
	if c.Forecast.Alpha <= 0 || c.Forecast.Alpha > 1 {
		return fmt.Errorf("FORECAST_ALPHA must be in (0,1], got %v", c.Forecast.Alpha)
	}
	if c.Recommend.DevTestDiscount < 0 || c.Recommend.DevTestDiscount > 1 {
		return fmt.Errorf("RECOMMEND_DEVTEST_DISCOUNT must be in [0,1], got %v", c.Recommend.DevTestDiscount)
	}
	return nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spendlens", ".env"))
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
	}

	return paths
}

// getDefaultSnapshotPath returns the default path for the raw snapshot file.
func getDefaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "snapshot.json"
	}
	return filepath.Join(home, ".config", "spendlens", "snapshot.json")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns the default.
// A trailing "%" is accepted, so "70%" and "0.7" mean the same thing.
func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if pct, ok := strings.CutSuffix(value, "%"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64); err == nil {
			return f / 100
		}
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as milliseconds if no unit specified
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
