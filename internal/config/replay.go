package config

import (
	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for journal replay.
type ReplayConfig struct {
	Input      string
	PGDSN      string
	BatchSize  int
	StateFile  string
	ReplayFrom uint64
	Authority  string
	Depositor  string
	LogLevel   string
}

// LoadReplay merges config file, environment variables, and flags into
// ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := newViper()

	v.SetDefault("in", "./data/actions.jsonl")
	v.SetDefault("batch-size", 1000)
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		Input:      v.GetString("in"),
		PGDSN:      v.GetString("pg-dsn"),
		BatchSize:  v.GetInt("batch-size"),
		StateFile:  v.GetString("state-file"),
		ReplayFrom: v.GetUint64("replay-from"),
		Authority:  v.GetString("authority"),
		Depositor:  v.GetString("depositor"),
		LogLevel:   v.GetString("log-level"),
	}

	return cfg, nil
}
