// Package config reads the small set of environment overrides the store
// honors, through github.com/spf13/viper the way
// maulikxg-ReportDB/poller/utils/config_receiver.go uses viper as its
// environment reader. There is no config file: all persistent state lives
// in segment files inside the target directory, so this package only
// binds env vars and applies defaults.
package config

import "github.com/spf13/viper"

// Config holds the resolved runtime settings.
type Config struct {
	// Dir is the directory holding (or to hold) the inodeseg*/dataseg*
	// segment files.
	Dir string

	// LogLevel is passed through to internal/obs.
	LogLevel string
}

// Load resolves Config from the environment, defaulting Dir to the
// current directory and LogLevel to "info".
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix("exfs2")
	v.AutomaticEnv()
	v.SetDefault("dir", ".")
	v.SetDefault("log_level", "info")

	return Config{
		Dir:      v.GetString("dir"),
		LogLevel: v.GetString("log_level"),
	}
}
