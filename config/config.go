// Package config loads EngineConfig from file or environment via viper,
// the same library the pack's REPL-shell repo carries for this purpose.
package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/relcore/coredb/txn"
)

// EngineConfig holds every startup knob for a coredb engine instance.
type EngineConfig struct {
	PoolSize              int
	LeafMaxSize           int32
	InternalMaxSize       int32
	DataFilePath          string
	InMemory              bool
	DefaultIsolation      txn.IsolationLevel
	DeadlockDetectorPeriod time.Duration
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("pool_size", 64)
	v.SetDefault("leaf_max_size", 128)
	v.SetDefault("internal_max_size", 128)
	v.SetDefault("data_file_path", "coredb.data")
	v.SetDefault("in_memory", true)
	v.SetDefault("default_isolation", "repeatable_read")
	v.SetDefault("deadlock_detector_period", "500ms")
	v.SetEnvPrefix("COREDB")
	v.AutomaticEnv()
	return v
}

// Load reads EngineConfig from path (if non-empty and found) layered over
// environment variables and built-in defaults.
func Load(path string) (*EngineConfig, error) {
	v := defaults()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	isolation, err := parseIsolation(v.GetString("default_isolation"))
	if err != nil {
		return nil, err
	}

	return &EngineConfig{
		PoolSize:               v.GetInt("pool_size"),
		LeafMaxSize:            int32(v.GetInt("leaf_max_size")),
		InternalMaxSize:        int32(v.GetInt("internal_max_size")),
		DataFilePath:           v.GetString("data_file_path"),
		InMemory:               v.GetBool("in_memory"),
		DefaultIsolation:       isolation,
		DeadlockDetectorPeriod: v.GetDuration("deadlock_detector_period"),
	}, nil
}

func parseIsolation(s string) (txn.IsolationLevel, error) {
	switch s {
	case "read_uncommitted":
		return txn.ReadUncommitted, nil
	case "read_committed":
		return txn.ReadCommitted, nil
	case "repeatable_read", "":
		return txn.RepeatableRead, nil
	default:
		return txn.RepeatableRead, nil
	}
}
