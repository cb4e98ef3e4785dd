// Package config loads the wizard configuration from an optional YAML file, WIZARD_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/amp-labs/wizard/flows"
	"github.com/amp-labs/wizard/flows/auth"
	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/stage"
	"github.com/amp-labs/wizard/telemetry"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "WIZARD"

var ErrInvalid = errors.New("invalid configuration")

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Actions struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

type Sessions struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Latency holds the simulated collaborator delays.
type Latency struct {
	Passkey time.Duration `mapstructure:"passkey"`
	Import  time.Duration `mapstructure:"import"`
	Email   time.Duration `mapstructure:"email"`
	Submit  time.Duration `mapstructure:"submit"`
}

// Wallet is the simulator's practice wallet.
type Wallet struct {
	Balance float64 `mapstructure:"balance"`
	Fee     float64 `mapstructure:"fee"`
	Rate    float64 `mapstructure:"rate"`
}

type Auth struct {
	// TokenSecret signs session tokens. Empty means a random secret per process.
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type Telemetry struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Logs        bool   `mapstructure:"logs"`
}

// Config is the whole configuration.
type Config struct {
	// Environment names the deployment stage; see package stage.
	Environment string `mapstructure:"environment"`

	Log       Log       `mapstructure:"log"`
	HTTP      HTTP      `mapstructure:"http"`
	Actions   Actions   `mapstructure:"actions"`
	Sessions  Sessions  `mapstructure:"sessions"`
	Latency   Latency   `mapstructure:"latency"`
	Wallet    Wallet    `mapstructure:"wallet"`
	Auth      Auth      `mapstructure:"auth"`
	Telemetry Telemetry `mapstructure:"telemetry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("actions.timeout", 10*time.Second)
	v.SetDefault("actions.workers", 16)
	v.SetDefault("sessions.ttl", 30*time.Minute)
	v.SetDefault("latency.passkey", 2*time.Second)
	v.SetDefault("latency.import", 2*time.Second)
	v.SetDefault("latency.email", 1500*time.Millisecond)
	v.SetDefault("latency.submit", 3*time.Second)
	v.SetDefault("wallet.balance", 125.06)
	v.SetDefault("wallet.fee", 0.000125)
	v.SetDefault("wallet.rate", 0.125)
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)
	v.SetDefault("telemetry.logs", false)
}

// Default returns the built-in configuration, ignoring files, environment and flags.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// Load reads path from fsys when path is not empty, then applies WIZARD_* environment variables
// and the flags in flags whose names are configuration keys (e.g. "http.addr").
func Load(fsys afero.Fs, path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		keys := v.AllKeys()

		var bindErr error

		flags.VisitAll(func(f *pflag.Flag) {
			if slices.Contains(keys, f.Name) {
				bindErr = errors.Join(bindErr, v.BindPFlag(f.Name, f))
			}
		})

		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if _, err := stage.Parse(c.Environment); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	if c.Actions.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: actions.timeout must be positive", ErrInvalid))
	}

	if c.Actions.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: actions.workers must be positive", ErrInvalid))
	}

	if c.Sessions.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: sessions.ttl must be positive", ErrInvalid))
	}

	for name, d := range map[string]time.Duration{
		"latency.passkey": c.Latency.Passkey,
		"latency.import":  c.Latency.Import,
		"latency.email":   c.Latency.Email,
		"latency.submit":  c.Latency.Submit,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative", ErrInvalid, name))
		}
	}

	if c.Wallet.Balance < 0 || c.Wallet.Fee < 0 {
		errs = append(errs, fmt.Errorf("%w: wallet balance and fee must not be negative", ErrInvalid))
	}

	if c.Wallet.Rate <= 0 {
		errs = append(errs, fmt.Errorf("%w: wallet.rate must be positive", ErrInvalid))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level {
	level, _ := logger.ParseLevel(c.Log.Level)

	return level
}

// Stage returns the parsed environment.
func (c *Config) Stage() stage.Stage {
	s, _ := stage.Parse(c.Environment)

	return s
}

// TelemetryConfig converts the telemetry section.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:     c.Telemetry.Enabled,
		ServiceName: c.Telemetry.ServiceName,
		Environment: c.Stage().String(),
		Endpoint:    c.Telemetry.Endpoint,
		Logs:        c.Telemetry.Logs,
	}
}

// TokenIssuer builds the session token issuer.
func (c *Config) TokenIssuer() (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer([]byte(c.Auth.TokenSecret), c.Auth.TokenTTL)
}

// FlowOptions converts the latency and wallet sections for the built-in flows.
func (c *Config) FlowOptions(tokens *auth.TokenIssuer) flows.Options {
	opts := flows.DefaultOptions(tokens)

	opts.SubmitLatency = c.Latency.Submit
	opts.Auth.PasskeyLatency = c.Latency.Passkey
	opts.Auth.ImportLatency = c.Latency.Import
	opts.Auth.EmailLatency = c.Latency.Email
	opts.Wallet.Balance = c.Wallet.Balance
	opts.Wallet.Fee = c.Wallet.Fee
	opts.Wallet.Rate = c.Wallet.Rate

	return opts
}
