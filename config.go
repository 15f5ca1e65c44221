package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/dnldd/screener/fetch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	defaultRefreshIntervalMs = 60000
	defaultPacingDelayMs     = 1200
	defaultListenAddr        = ":8080"
	defaultRedisPrefix       = "screener"
	defaultLogLevel          = "info"
)

// Config is the configuration struct for the service.
type Config struct {
	// AlphaVantageAPIKey is the Alpha Vantage API key. Static data is served without it.
	AlphaVantageAPIKey string
	// AlphaVantageBaseURL is the Alpha Vantage query endpoint.
	AlphaVantageBaseURL string
	// RefreshIntervalMs is the interval between refresh pass starts in milliseconds.
	RefreshIntervalMs int
	// PacingDelayMs is the minimum delay between provider requests in milliseconds.
	PacingDelayMs int
	// RegistryFilepath is the filepath to the instrument registry.
	RegistryFilepath string
	// ListenAddr is the address the api server listens on.
	ListenAddr string
	// RQLiteEndpoint is the pass journal endpoint.
	RQLiteEndpoint string
	// RQLiteUser is the pass journal user.
	RQLiteUser string
	// RQLitePass is the pass journal user pass.
	RQLitePass string
	// RedisAddr is the snapshot mirror address.
	RedisAddr string
	// RedisPrefix is the snapshot mirror key prefix.
	RedisPrefix string
	// LogLevel is the global log level.
	LogLevel string

	registeredFlags map[string]bool
}

// applyDefaults sets default values for unset optional fields.
func (cfg *Config) applyDefaults() {
	if cfg.AlphaVantageBaseURL == "" {
		cfg.AlphaVantageBaseURL = fetch.BaseURL
	}
	if cfg.RefreshIntervalMs == 0 {
		cfg.RefreshIntervalMs = defaultRefreshIntervalMs
	}
	if cfg.PacingDelayMs == 0 {
		cfg.PacingDelayMs = defaultPacingDelayMs
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaultRedisPrefix
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

// Validate asserts the config sane inputs. A missing api key is valid, the
// screener serves static instrument data without it.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.RefreshIntervalMs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("refresh interval must be positive"))
	}
	if cfg.PacingDelayMs < 0 {
		errs = errors.Join(errs, fmt.Errorf("pacing delay cannot be negative"))
	}
	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.RQLiteUser != "" && cfg.RQLiteEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("rqlite user provided without an rqlite endpoint"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = errors.Join(errs, fmt.Errorf("parsing log level: %w", err))
	}

	return errs
}

// registerFlag registers a string or int command line argument, defaulting to the
// environment variable of the same name. Flags are tracked to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	defValue := strings.TrimSpace(os.Getenv(name))
	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			var err error
			def, err = strconv.Atoi(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing environment value %q: %w", name, defValue, err)
			}
		}
		flag.IntVar(value.(*int), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	cfg.registeredFlags[name] = true

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("alphavantageapikey", &cfg.AlphaVantageAPIKey, "the alpha vantage api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("alphavantagebaseurl", &cfg.AlphaVantageBaseURL, "the alpha vantage query endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("refreshintervalms", &cfg.RefreshIntervalMs, "the refresh interval in milliseconds")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("pacingdelayms", &cfg.PacingDelayMs, "the provider request pacing delay in milliseconds")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("registryfilepath", &cfg.RegistryFilepath, "the instrument registry filepath")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("listenaddr", &cfg.ListenAddr, "the api server listen address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("rqliteendpoint", &cfg.RQLiteEndpoint, "the rqlite pass journal endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("rqliteuser", &cfg.RQLiteUser, "the rqlite user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("rqlitepass", &cfg.RQLitePass, "the rqlite user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("redisaddr", &cfg.RedisAddr, "the redis snapshot mirror address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("redisprefix", &cfg.RedisPrefix, "the redis key prefix")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("loglevel", &cfg.LogLevel, "the log level")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
