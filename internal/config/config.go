package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the inventory engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	Storage   StorageConfig   `yaml:"storage"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rules     RulesConfig     `yaml:"rules"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups integrations with external collaborators.
type ClientsConfig struct {
	POS      POSClientConfig      `yaml:"pos"`
	Embedder EmbedderClientConfig `yaml:"embedder"`
}

// POSClientConfig configures access to the point-of-sale data APIs.
type POSClientConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	TransactionsPath string        `yaml:"transactionsPath"`
	SnapshotPath     string        `yaml:"snapshotPath"`
	ProductsPath     string        `yaml:"productsPath"`
	Timeout          time.Duration `yaml:"timeout"`
	// MaxRetries bounds retries of transient read failures; RetryBackoff is
	// the base delay, doubled per attempt.
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// EmbedderClientConfig configures the embedding model endpoint.
type EmbedderClientConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig controls the SQLite data directory.
type StorageConfig struct {
	// DataDir holds the database file; ":memory:" selects an in-memory
	// database (used by tests).
	DataDir string `yaml:"dataDir"`
}

// ForecastConfig pins the demand forecaster's numeric behaviour.
type ForecastConfig struct {
	// Granularity is the fixed period length demand is bucketed into.
	Granularity time.Duration `yaml:"granularity"`
	// SeasonLength is the number of periods in one seasonal cycle.
	SeasonLength int `yaml:"seasonLength"`
	// MinHistoryCycles is the minimum history required before forecasting,
	// expressed in whole seasonal cycles.
	MinHistoryCycles int `yaml:"minHistoryCycles"`
	// DefaultHorizon and MaxHorizon bound the number of future periods a
	// forecast covers.
	DefaultHorizon int `yaml:"defaultHorizon"`
	MaxHorizon     int `yaml:"maxHorizon"`
	// IntervalZ scales the residual standard deviation into prediction
	// interval bounds (1.96 ~ 95%).
	IntervalZ float64 `yaml:"intervalZ"`
	// HistoryPeriods is how many trailing periods the scheduler aggregates
	// before forecasting.
	HistoryPeriods int           `yaml:"historyPeriods"`
	Timeout        time.Duration `yaml:"timeout"`
}

// AlertsConfig pins the stockout severity boundaries as fractions of the
// forecast horizon. A projected stockout at period p (1-based) of horizon h is
// critical when p <= ceil(h*criticalFraction), warning when
// p <= ceil(h*warningFraction), watch otherwise.
type AlertsConfig struct {
	CriticalFraction float64 `yaml:"criticalFraction"`
	WarningFraction  float64 `yaml:"warningFraction"`
	// TrackNegative emits an explicit "no risk" record per evaluation so
	// absence of an alert is distinguishable from "not yet evaluated".
	TrackNegative bool `yaml:"trackNegative"`
}

// RetrievalConfig bounds the product search path.
type RetrievalConfig struct {
	// MaxTopK caps the k accepted by search requests.
	MaxTopK int `yaml:"maxTopK"`
	// SnippetLength truncates source text returned with matches.
	SnippetLength int           `yaml:"snippetLength"`
	Timeout       time.Duration `yaml:"timeout"`
	// ResultTTL enables caching of retrieval results when > 0.
	ResultTTL time.Duration `yaml:"resultTTL"`
}

// SchedulerConfig controls the periodic forecast/alert evaluation loop.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Parallelism bounds concurrent evaluations across product/store pairs.
	Parallelism int `yaml:"parallelism"`
	// StoreIDs lists the stores the loop sweeps each interval.
	StoreIDs []string `yaml:"storeIDs"`
}

// RulesConfig controls rule-pack loading for restock recommendations.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of collaborator reads.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
	CatalogTTL   time.Duration `yaml:"catalogTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MODULARAI_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			POS: POSClientConfig{
				TransactionsPath: "/api/v1/pos/transactions",
				SnapshotPath:     "/api/v1/pos/snapshot",
				ProductsPath:     "/api/v1/pos/products",
				Timeout:          5 * time.Second,
				MaxRetries:       2,
				RetryBackoff:     200 * time.Millisecond,
			},
			Embedder: EmbedderClientConfig{Timeout: 10 * time.Second},
		},
		Storage: StorageConfig{DataDir: "data"},
		Forecast: ForecastConfig{
			Granularity:      24 * time.Hour,
			SeasonLength:     7,
			MinHistoryCycles: 2,
			DefaultHorizon:   7,
			MaxHorizon:       30,
			IntervalZ:        1.96,
			HistoryPeriods:   56,
			Timeout:          10 * time.Second,
		},
		Alerts: AlertsConfig{
			CriticalFraction: 0.4,
			WarningFraction:  0.6,
			TrackNegative:    true,
		},
		Retrieval: RetrievalConfig{
			MaxTopK:       25,
			SnippetLength: 160,
			Timeout:       5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    15 * time.Minute,
			Parallelism: 4,
		},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SnapshotTTL:  time.Minute,
			CatalogTTL:   5 * time.Minute,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Forecast.Granularity <= 0 {
		return fmt.Errorf("forecast.granularity must be positive")
	}
	if cfg.Forecast.SeasonLength < 1 {
		return fmt.Errorf("forecast.seasonLength must be at least 1")
	}
	if cfg.Forecast.MaxHorizon < cfg.Forecast.DefaultHorizon {
		return fmt.Errorf("forecast.maxHorizon %d below defaultHorizon %d", cfg.Forecast.MaxHorizon, cfg.Forecast.DefaultHorizon)
	}
	if cfg.Alerts.CriticalFraction < 0 || cfg.Alerts.CriticalFraction > 1 {
		return fmt.Errorf("alerts.criticalFraction must be in [0,1]")
	}
	if cfg.Alerts.WarningFraction < cfg.Alerts.CriticalFraction || cfg.Alerts.WarningFraction > 1 {
		return fmt.Errorf("alerts.warningFraction must be in [criticalFraction,1]")
	}
	if cfg.Retrieval.MaxTopK < 1 {
		return fmt.Errorf("retrieval.maxTopK must be at least 1")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODULARAI_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MODULARAI_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MODULARAI_POS_BASE_URL"); v != "" {
		cfg.Clients.POS.BaseURL = v
	}
	if v := os.Getenv("MODULARAI_EMBEDDER_URL"); v != "" {
		cfg.Clients.Embedder.Endpoint = v
	}
	if v := os.Getenv("MODULARAI_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MODULARAI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MODULARAI_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MODULARAI_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MODULARAI_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MODULARAI_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.Interval = d
		}
	}
	if v := os.Getenv("MODULARAI_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MODULARAI_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MODULARAI_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MODULARAI_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MODULARAI_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MODULARAI_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MODULARAI_MAX_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Retrieval.MaxTopK = k
		}
	}
	if v := os.Getenv("MODULARAI_DEFAULT_HORIZON"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			cfg.Forecast.DefaultHorizon = h
		}
	}
}
