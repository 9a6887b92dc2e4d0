package config

import (
	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the query API server.
type ServeConfig struct {
	Listen    string
	Input     string
	PGDSN     string
	StateFile string
	Authority string
	Depositor string
	LogLevel  string
}

// LoadServe merges config file, environment variables, and flags into
// ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := newViper()

	v.SetDefault("listen", ":8080")
	v.SetDefault("in", "./data/actions.jsonl")
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:    v.GetString("listen"),
		Input:     v.GetString("in"),
		PGDSN:     v.GetString("pg-dsn"),
		StateFile: v.GetString("state-file"),
		Authority: v.GetString("authority"),
		Depositor: v.GetString("depositor"),
		LogLevel:  v.GetString("log-level"),
	}

	return cfg, nil
}
