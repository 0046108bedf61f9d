package commands

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/vkngwrapper/accel/backend/soft"
)

// Config is assembled from flags, ACCEL_* environment variables and an optional config file, in that
// order of precedence
type Config struct {
	LogLevel               string        `mapstructure:"log-level"`
	Profile                string        `mapstructure:"profile"`
	Timeout                time.Duration `mapstructure:"timeout"`
	ExternallySynchronized bool          `mapstructure:"externally-synchronized"`
	QueueDepth             int           `mapstructure:"queue-depth"`
	HeapSizeLimits         []uint64      `mapstructure:"heap-size-limits"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("log-level", "info")
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("queue-depth", 0)

	v.SetEnvPrefix("ACCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("raytrace")
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	return nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if config.Timeout <= 0 {
		return Config{}, errors.Newf("timeout must be positive, got %s", config.Timeout)
	}
	return config, nil
}

func (c Config) softOptions() soft.CreateOptions {
	return soft.CreateOptions{
		ExternallySynchronized: c.ExternallySynchronized,
		HeapSizeLimits:         c.HeapSizeLimits,
		SubmissionQueueDepth:   c.QueueDepth,
	}
}

// loadProfile returns the configured device profile, or the built-in one
func (c Config) loadProfile() (soft.Profile, error) {
	if c.Profile == "" {
		return soft.DefaultProfile(), nil
	}
	return soft.LoadProfile(c.Profile)
}

// newLogger returns a slog logger writing through a charm logger
func newLogger(out io.Writer, level string) (*slog.Logger, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "bad log level %q", level)
	}

	handler := log.NewWithOptions(out, log.Options{
		Level:           parsed,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "raytrace",
	})
	return slog.New(handler), nil
}
