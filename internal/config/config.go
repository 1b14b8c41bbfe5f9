package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WECANFARM_"

// Config holds all configurable wecanfarm settings. Zero values mean
// "not set" for Merge; BypassHeader and SeedMarket are pointers because
// their zero values are meaningful.
type Config struct {
	BaseURL               string        `json:"base_url" mapstructure:"base_url"`
	BypassHeader          *string       `json:"bypass_header,omitempty" mapstructure:"bypass_header"` // "" omits the header
	Environment           string        `json:"environment" mapstructure:"environment"`               // "development" | "production"
	HistoryCapacity       int           `json:"history_capacity" mapstructure:"history_capacity"`
	SeedMarket            *bool         `json:"seed_market,omitempty" mapstructure:"seed_market"`
	AuthConnectTimeout    time.Duration `json:"auth_connect_timeout" mapstructure:"auth_connect_timeout"`
	AuthReadTimeout       time.Duration `json:"auth_read_timeout" mapstructure:"auth_read_timeout"`
	AnalyzeConnectTimeout time.Duration `json:"analyze_connect_timeout" mapstructure:"analyze_connect_timeout"`
	AnalyzeReadTimeout    time.Duration `json:"analyze_read_timeout" mapstructure:"analyze_read_timeout"`
	LogFile               string        `json:"log_file" mapstructure:"log_file"`
}

// Defaults returns the default configuration values.
func Defaults() Config {
	bypass := "ngrok-skip-browser-warning"
	seed := true
	return Config{
		BypassHeader:          &bypass,
		Environment:           "development",
		HistoryCapacity:       50,
		SeedMarket:            &seed,
		AuthConnectTimeout:    15 * time.Second,
		AuthReadTimeout:       30 * time.Second,
		AnalyzeConnectTimeout: 30 * time.Second,
		AnalyzeReadTimeout:    60 * time.Second,
	}
}

// Bypass returns the interstitial bypass header name, "" when disabled.
func (c Config) Bypass() string {
	if c.BypassHeader == nil {
		return ""
	}
	return *c.BypassHeader
}

// Seed reports whether the marketplace starts with sample listings.
func (c Config) Seed() bool {
	return c.SeedMarket == nil || *c.SeedMarket
}

// GlobalPath returns ~/.config/wecanfarm/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wecanfarm", "config.json"), nil
}

// LoadGlobal reads ~/.config/wecanfarm/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .wecanfarmconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".wecanfarmconfig", false)
}

// loadFile reads a JSON config file at path through viper.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	if global != nil {
		overlay(&result, global)
	}
	if project != nil {
		overlay(&result, project)
	}
	return result
}

func overlay(dst, src *Config) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.BypassHeader != nil {
		v := *src.BypassHeader
		dst.BypassHeader = &v
	}
	if src.Environment != "" {
		dst.Environment = src.Environment
	}
	if src.HistoryCapacity > 0 {
		dst.HistoryCapacity = src.HistoryCapacity
	}
	if src.SeedMarket != nil {
		v := *src.SeedMarket
		dst.SeedMarket = &v
	}
	if src.AuthConnectTimeout > 0 {
		dst.AuthConnectTimeout = src.AuthConnectTimeout
	}
	if src.AuthReadTimeout > 0 {
		dst.AuthReadTimeout = src.AuthReadTimeout
	}
	if src.AnalyzeConnectTimeout > 0 {
		dst.AnalyzeConnectTimeout = src.AnalyzeConnectTimeout
	}
	if src.AnalyzeReadTimeout > 0 {
		dst.AnalyzeReadTimeout = src.AnalyzeReadTimeout
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
}

// envKeys maps config keys to their variable names without EnvPrefix.
var envKeys = []struct{ key, name string }{
	{"base_url", "BASE_URL"},
	{"bypass_header", "BYPASS_HEADER"},
	{"environment", "ENV"},
	{"history_capacity", "HISTORY_CAPACITY"},
	{"seed_market", "SEED_MARKET"},
	{"auth_connect_timeout", "AUTH_CONNECT_TIMEOUT"},
	{"auth_read_timeout", "AUTH_READ_TIMEOUT"},
	{"analyze_connect_timeout", "ANALYZE_CONNECT_TIMEOUT"},
	{"analyze_read_timeout", "ANALYZE_READ_TIMEOUT"},
	{"log_file", "LOG_FILE"},
}

// ApplyEnv overrides cfg from WECANFARM_* environment variables. Empty
// variables are ignored, except WECANFARM_BYPASS_HEADER where set but empty
// disables the header.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.AllowEmptyEnv(true)
	for _, k := range envKeys {
		if err := v.BindEnv(k.key, EnvPrefix+k.name); err != nil {
			return err
		}
	}

	set := make(map[string]any)
	for _, k := range envKeys {
		if !v.IsSet(k.key) {
			continue
		}
		val := strings.TrimSpace(v.GetString(k.key))
		if val == "" && k.key != "bypass_header" {
			continue
		}
		set[k.key] = val
	}
	if len(set) == 0 {
		return nil
	}

	var env Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &env,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(set); err != nil {
		return fmt.Errorf("%s* environment: %w", EnvPrefix, err)
	}
	if _, ok := set["history_capacity"]; ok && env.HistoryCapacity <= 0 {
		return fmt.Errorf("%sHISTORY_CAPACITY: want a positive integer, got %v", EnvPrefix, set["history_capacity"])
	}
	overlay(cfg, &env)
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
