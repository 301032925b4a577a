package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/log/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/Gaurav-Gosain/cfproblem/cache"
	"github.com/Gaurav-Gosain/cfproblem/fetch"
	"github.com/Gaurav-Gosain/cfproblem/harvest"
)

const envPrefix = "CFPROBLEM"

// Config is the effective runtime configuration. Precedence, lowest first:
// defaults, the YAML file, CFPROBLEM_* environment variables, then flags set
// on the command line.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Cache   CacheConfig   `koanf:"cache"`
	Fetch   FetchConfig   `koanf:"fetch"`
	Harvest HarvestConfig `koanf:"harvest"`
	Metrics MetricsConfig `koanf:"metrics"`
	Output  OutputConfig  `koanf:"output"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	Backend string      `koanf:"backend"`
	Redis   RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Address   string `koanf:"address"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"keyprefix"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type FetchConfig struct {
	BaseURL   string        `koanf:"baseurl"`
	APIURL    string        `koanf:"apiurl"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"useragent"`
}

type HarvestConfig struct {
	Parallelism  int           `koanf:"parallelism"`
	MaxAttempts  int           `koanf:"maxattempts"`
	InitialDelay time.Duration `koanf:"initialdelay"`
	MaxDelay     time.Duration `koanf:"maxdelay"`
}

type MetricsConfig struct {
	Address string `koanf:"address"`
}

type OutputConfig struct {
	WordWrap int `koanf:"wordwrap"`
}

func DefaultConfig() Config {
	return Config{
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Backend: "memory"},
		Cache: CacheConfig{TTL: cache.DefaultTTL},
		Fetch: FetchConfig{
			BaseURL:   fetch.DefaultBaseURL,
			APIURL:    fetch.DefaultAPIURL,
			Timeout:   fetch.DefaultTimeout,
			UserAgent: fetch.DefaultUserAgent,
		},
		Harvest: HarvestConfig{
			Parallelism:  harvest.DefaultParallelism,
			MaxAttempts:  harvest.DefaultMaxAttempts,
			InitialDelay: harvest.DefaultInitialDelay,
			MaxDelay:     harvest.DefaultMaxDelay,
		},
		Output: OutputConfig{WordWrap: 80},
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Address == "" {
			errs = append(errs, errors.New("store.redis.address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Harvest.Parallelism < 1 {
		errs = append(errs, errors.New("harvest.parallelism must be at least 1"))
	}
	if c.Harvest.MaxAttempts < 1 {
		errs = append(errs, errors.New("harvest.maxattempts must be at least 1"))
	}
	return errors.Join(errs...)
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"store":        "store.backend",
	"redis-addr":   "store.redis.address",
	"ttl":          "cache.ttl",
	"timeout":      "fetch.timeout",
	"base-url":     "fetch.baseurl",
	"api-url":      "fetch.apiurl",
	"parallelism":  "harvest.parallelism",
	"attempts":     "harvest.maxattempts",
	"metrics-addr": "metrics.address",
	"word-wrap":    "output.wordwrap",
}

// LoadConfig resolves the configuration for one invocation. path may be
// empty; a named file that does not exist is an error.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		// CFPROBLEM_STORE__REDIS__ADDRESS -> store.redis.address
		key := strings.TrimPrefix(s, envPrefix+"_")
		key = strings.ReplaceAll(key, "__", ".")
		key = strings.ReplaceAll(key, "_", "")
		return strings.ToLower(key)
	}
	if err := k.Load(env.Provider(envPrefix+"_", ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	if flags != nil {
		overrides := map[string]any{}
		flags.Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				overrides[key] = f.Value.String()
			}
		})
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return Config{}, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaultsMap(cfg Config) map[string]any {
	return map[string]any{
		"log.level":             cfg.Log.Level,
		"store.backend":         cfg.Store.Backend,
		"store.redis.address":   cfg.Store.Redis.Address,
		"store.redis.username":  cfg.Store.Redis.Username,
		"store.redis.password":  cfg.Store.Redis.Password,
		"store.redis.db":        cfg.Store.Redis.DB,
		"store.redis.keyprefix": cfg.Store.Redis.KeyPrefix,
		"cache.ttl":             cfg.Cache.TTL.String(),
		"fetch.baseurl":         cfg.Fetch.BaseURL,
		"fetch.apiurl":          cfg.Fetch.APIURL,
		"fetch.timeout":         cfg.Fetch.Timeout.String(),
		"fetch.useragent":       cfg.Fetch.UserAgent,
		"harvest.parallelism":   cfg.Harvest.Parallelism,
		"harvest.maxattempts":   cfg.Harvest.MaxAttempts,
		"harvest.initialdelay":  cfg.Harvest.InitialDelay.String(),
		"harvest.maxdelay":      cfg.Harvest.MaxDelay.String(),
		"metrics.address":       cfg.Metrics.Address,
		"output.wordwrap":       cfg.Output.WordWrap,
	}
}
