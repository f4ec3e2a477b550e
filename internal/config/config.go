// Package config loads service settings from a YAML or JSON file with
// VISITPLAN_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "VISITPLAN_"

type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`
	Visits    VisitsConfig    `json:"visits" yaml:"visits"`
	Distance  DistanceConfig  `json:"distance" yaml:"distance"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	Webhooks  WebhooksConfig  `json:"webhooks" yaml:"webhooks"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Addr               string `json:"addr" yaml:"addr"`
	ReadTimeoutSec     int    `json:"readTimeoutSec" yaml:"readTimeoutSec"`
	WriteTimeoutSec    int    `json:"writeTimeoutSec" yaml:"writeTimeoutSec"`
	ShutdownTimeoutSec int    `json:"shutdownTimeoutSec" yaml:"shutdownTimeoutSec"`
	MaxBodyBytes       int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	StatsRetention     int    `json:"statsRetention" yaml:"statsRetention"`
}

// OptimizerConfig holds the solver defaults a request may narrow.
type OptimizerConfig struct {
	TimeBudgetSec    float64 `json:"timeBudgetSec" yaml:"timeBudgetSec"`
	MaxTimeBudgetSec float64 `json:"maxTimeBudgetSec" yaml:"maxTimeBudgetSec"`
	MaxIterations    int     `json:"maxIterations" yaml:"maxIterations"`
	Seed             int64   `json:"seed" yaml:"seed"`
	Workers          int     `json:"workers" yaml:"workers"`
	NominalDayMin    float64 `json:"nominalDayMin" yaml:"nominalDayMin"`
	PenaltyFactor    float64 `json:"penaltyFactor" yaml:"penaltyFactor"`
	Strategy         string  `json:"strategy" yaml:"strategy"` // gls or local
}

// VisitsConfig maps visit types to their default service minutes.
type VisitsConfig struct {
	ServiceMin map[string]float64 `json:"serviceMin" yaml:"serviceMin"`
}

type DistanceConfig struct {
	Provider   string  `json:"provider" yaml:"provider"` // haversine or ors
	SpeedKph   float64 `json:"speedKph" yaml:"speedKph"`
	Detour     float64 `json:"detour" yaml:"detour"`
	ORSBaseURL string  `json:"orsBaseUrl" yaml:"orsBaseUrl"`
	ORSProfile string  `json:"orsProfile" yaml:"orsProfile"`
	ORSAPIKey  string  `json:"orsApiKey" yaml:"orsApiKey"`
	ORSRPS     float64 `json:"orsRps" yaml:"orsRps"`
	TimeoutSec int     `json:"timeoutSec" yaml:"timeoutSec"`
}

type CacheConfig struct {
	Driver      string `json:"driver" yaml:"driver"` // none, memory, redis, postgres
	RedisURL    string `json:"redisUrl" yaml:"redisUrl"`
	DatabaseURL string `json:"databaseUrl" yaml:"databaseUrl"`
	TTLHours    int    `json:"ttlHours" yaml:"ttlHours"`
}

type BrokerConfig struct {
	Driver   string `json:"driver" yaml:"driver"` // memory or redis
	RedisURL string `json:"redisUrl" yaml:"redisUrl"`
}

type RateLimitConfig struct {
	OptimizePerSec float64 `json:"optimizePerSec" yaml:"optimizePerSec"`
	Burst          int     `json:"burst" yaml:"burst"`
}

// WebhooksConfig enables run.completed notifications when URL is set.
type WebhooksConfig struct {
	URL         string `json:"url" yaml:"url"`
	Secret      string `json:"secret" yaml:"secret"`
	MaxAttempts int    `json:"maxAttempts" yaml:"maxAttempts"`
	QueueSize   int    `json:"queueSize" yaml:"queueSize"`
	TimeoutSec  int    `json:"timeoutSec" yaml:"timeoutSec"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Load reads path when it is non-empty, applies env overrides, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	// VISITPLAN_OPTIMIZER__TIMEBUDGETSEC=2 sets optimizer.timeBudgetSec. Env
	// keys are folded onto keys the file already set so they override them.
	if err := k.Load(env.Provider(envPrefix, "__", func(s string) string {
		key := strings.ReplaceAll(strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix)), "__", ".")
		for _, known := range k.Keys() {
			if strings.EqualFold(known, key) {
				return known
			}
		}
		return key
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Visits.SetDefaults()
	c.Distance.SetDefaults()
	c.Cache.SetDefaults()
	c.Broker.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Webhooks.SetDefaults()
	c.Logging.SetDefaults()
}

func (c *Config) Validate() error {
	return errors.Join(
		c.Optimizer.Validate(),
		c.Visits.Validate(),
		c.Distance.Validate(),
		c.Cache.Validate(),
		c.Broker.Validate(),
		c.Webhooks.Validate(),
		c.Logging.Validate(),
	)
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeoutSec <= 0 {
		c.ReadTimeoutSec = 15
	}
	if c.WriteTimeoutSec <= 0 {
		c.WriteTimeoutSec = 120
	}
	if c.ShutdownTimeoutSec <= 0 {
		c.ShutdownTimeoutSec = 10
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 4 << 20
	}
	if c.StatsRetention <= 0 {
		c.StatsRetention = 256
	}
}

func (c *OptimizerConfig) SetDefaults() {
	if c.TimeBudgetSec <= 0 {
		c.TimeBudgetSec = 5
	}
	if c.MaxTimeBudgetSec <= 0 {
		c.MaxTimeBudgetSec = 60
	}
	if c.NominalDayMin <= 0 {
		c.NominalDayMin = 480
	}
	if c.PenaltyFactor <= 0 {
		c.PenaltyFactor = 0.1
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Strategy == "" {
		c.Strategy = "gls"
	}
}

func (c OptimizerConfig) Validate() error {
	switch c.Strategy {
	case "gls", "local":
	default:
		return fmt.Errorf("optimizer.strategy %q: want gls or local", c.Strategy)
	}
	if c.TimeBudgetSec > c.MaxTimeBudgetSec {
		return fmt.Errorf("optimizer.timeBudgetSec %g exceeds maxTimeBudgetSec %g", c.TimeBudgetSec, c.MaxTimeBudgetSec)
	}
	if c.MaxIterations < 0 {
		return errors.New("optimizer.maxIterations must be >= 0")
	}
	return nil
}

// TimeBudget is the default improvement budget.
func (c OptimizerConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetSec * float64(time.Second))
}

// Default service minutes per visit type.
const (
	VisitHome         = "HB"
	VisitAdmission    = "Neuaufnahme"
	VisitPhoneConsult = "TK"
)

func (c *VisitsConfig) SetDefaults() {
	defaults := map[string]float64{VisitHome: 30, VisitAdmission: 60, VisitPhoneConsult: 15}
	if c.ServiceMin == nil {
		c.ServiceMin = map[string]float64{}
	}
	for k, v := range defaults {
		if _, ok := c.ServiceMin[k]; !ok {
			c.ServiceMin[k] = v
		}
	}
}

func (c VisitsConfig) Validate() error {
	for k, v := range c.ServiceMin {
		if v < 0 {
			return fmt.Errorf("visits.serviceMin.%s must be >= 0", k)
		}
	}
	return nil
}

func (c *DistanceConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "haversine"
	}
	if c.SpeedKph <= 0 {
		c.SpeedKph = 30
	}
	if c.Detour < 1 {
		c.Detour = 1.3
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 15
	}
}

func (c DistanceConfig) Validate() error {
	switch c.Provider {
	case "haversine":
	case "ors":
		if c.ORSAPIKey == "" {
			return errors.New("distance.orsApiKey is required for the ors provider")
		}
	default:
		return fmt.Errorf("distance.provider %q: want haversine or ors", c.Provider)
	}
	return nil
}

func (c *CacheConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.TTLHours <= 0 {
		c.TTLHours = 24 * 7
	}
}

func (c CacheConfig) Validate() error {
	switch c.Driver {
	case "none", "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("cache.redisUrl is required for the redis driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("cache.databaseUrl is required for the postgres driver")
		}
	default:
		return fmt.Errorf("cache.driver %q: want none, memory, redis or postgres", c.Driver)
	}
	return nil
}

func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

func (c *BrokerConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
}

func (c BrokerConfig) Validate() error {
	switch c.Driver {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("broker.redisUrl is required for the redis driver")
		}
	default:
		return fmt.Errorf("broker.driver %q: want memory or redis", c.Driver)
	}
	return nil
}

func (c *RateLimitConfig) SetDefaults() {
	if c.OptimizePerSec <= 0 {
		c.OptimizePerSec = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
}

func (c *WebhooksConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 5
	}
}

func (c WebhooksConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhooks.url %q must be an absolute http(s) URL", c.URL)
	}
	return nil
}

func (c WebhooksConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("logging.level %q is not supported", c.Level)
}
