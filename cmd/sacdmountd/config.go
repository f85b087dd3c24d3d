package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the sacdmountd daemon's configuration (SPEC_FULL.md §2.3):
// host directory root, area visibility defaults, idle-mount timeout, MT
// pipeline sizing, and the log file location.
type Config struct {
	Root    RootConfig    `mapstructure:"root"`
	Areas   AreasConfig   `mapstructure:"areas"`
	Mounts  MountsConfig  `mapstructure:"mounts"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RootConfig identifies the host directory the overlay layer scans for
// ".iso" files (spec.md §4.7).
type RootConfig struct {
	HostDir string `mapstructure:"host_dir"`
}

// AreasConfig holds the default area visibility policy (spec.md §4.6).
// The daemon loads these values but does not pass them to the mount table,
// so every mounted ISO uses vfscontext's own defaults (both areas visible).
type AreasConfig struct {
	StereoVisible       bool `mapstructure:"stereo_visible"`
	MultiChannelVisible bool `mapstructure:"multi_channel_visible"`
}

// MountsConfig bounds the ISO mount table (overlay/mounts.go).
type MountsConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// WorkerConfig sizes the shared MT DST pipeline worker pool
// (mtpipeline/pool.go).
type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

// LoggingConfig selects the log file directory (empty = stderr).
type LoggingConfig struct {
	Dir string `mapstructure:"dir"`
}

// loadConfig reads configuration from configFile (if non-empty) or the
// default search path, applies SACDMOUNT_-prefixed environment overrides,
// and fills in defaults, mirroring dbehnke-dmr-nexus's pkg/config.Load.
func loadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sacdmountd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sacdmountd")
	}

	v.SetEnvPrefix("SACDMOUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// root.host_dir has no default, so it is bound explicitly for Unmarshal
	// to pick up SACDMOUNT_ROOT_HOST_DIR.
	_ = v.BindEnv("root.host_dir")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file present: defaults and env vars stand alone.
		} else if os.IsNotExist(err) {
			// an explicitly named file that doesn't exist is likewise non-fatal.
		} else {
			return nil, fmt.Errorf("sacdmountd: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("sacdmountd: unmarshal config: %w", err)
	}
	if cfg.Root.HostDir == "" {
		return nil, fmt.Errorf("sacdmountd: root.host_dir is required")
	}
	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("areas.stereo_visible", true)
	v.SetDefault("areas.multi_channel_visible", true)
	v.SetDefault("mounts.max_open", 64)
	v.SetDefault("mounts.idle_timeout", 10*time.Minute)
	v.SetDefault("worker.count", 4)
	v.SetDefault("logging.dir", "")
}
