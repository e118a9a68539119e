package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// MinPollInterval is the shortest poll period the service accepts.
const MinPollInterval = time.Second

type Config struct {
	BackendURL         string        `mapstructure:"BACKEND_URL"`
	Port               string        `mapstructure:"PORT"`
	PollInterval       time.Duration `mapstructure:"POLL_INTERVAL"`
	PollRequestTimeout time.Duration `mapstructure:"POLL_REQUEST_TIMEOUT"`
	PollMaxDuration    time.Duration `mapstructure:"POLL_MAX_DURATION"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxUploadSize      int64         `mapstructure:"MAX_UPLOAD_SIZE"`
	ThrottleFreeMem    int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk   int64         `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable         bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey            string        `mapstructure:"AUTH_KEY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFormat          string        `mapstructure:"LOG_FORMAT"`
	SpoolDir           string        `mapstructure:"SPOOL_DIR"`
}

// stringToDurationHookFunc parses Go duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "500MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size, let the next parser try.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("BACKEND_URL", "http://localhost:8080")
	vp.SetDefault("PORT", "8090")
	vp.SetDefault("POLL_INTERVAL", "5s")
	vp.SetDefault("POLL_REQUEST_TIMEOUT", "30s")
	vp.SetDefault("POLL_MAX_DURATION", "0s")
	vp.SetDefault("REQUEST_TIMEOUT", "10m")
	vp.SetDefault("MAX_UPLOAD_SIZE", "500MB")
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "1GB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("CORS_ORIGINS", "*")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "json")
	vp.SetDefault("SPOOL_DIR", "")

	vp.SetConfigName("marketingflow_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/marketingflow/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("MARKETINGFLOW")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts a value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, err
	}

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	} else if u, err := url.Parse(c.BackendURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_URL %q is not an http(s) URL", c.BackendURL))
	}
	if c.PollInterval < MinPollInterval {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least %s, got %s", MinPollInterval, c.PollInterval))
	}
	if c.PollRequestTimeout < 0 || c.PollMaxDuration < 0 || c.RequestTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.AuthEnable && c.AuthKey == "" {
		errs = append(errs, errors.New("AUTH_KEY is required when AUTH_ENABLE is set"))
	}
	return errors.Join(errs...)
}
