// Package config loads KageDB's YAML configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/sushant-115/kagedb/pkg/logger"
	"github.com/sushant-115/kagedb/pkg/telemetry"
)

// StorageConfig carries the storage-core tunables.
type StorageConfig struct {
	// DataDir is the directory holding database files.
	DataDir string `mapstructure:"data_dir"`
	// PoolSize is the number of buffer pool frames.
	PoolSize int `mapstructure:"pool_size"`
	// ReplacerK is the K of the LRU-K eviction policy.
	ReplacerK int `mapstructure:"replacer_k"`
	// HashBucketSize bounds entries per extendible-hash bucket.
	HashBucketSize int `mapstructure:"hash_bucket_size"`
	// LeafMaxSize and InternalMaxSize bound B+tree node occupancy.
	LeafMaxSize     int `mapstructure:"leaf_max_size"`
	InternalMaxSize int `mapstructure:"internal_max_size"`
}

// Config is the root configuration document.
type Config struct {
	AppName   string           `mapstructure:"app_name"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Logger    logger.Config    `mapstructure:"logger"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "kagedb")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.pool_size", 64)
	v.SetDefault("storage.replacer_k", 2)
	v.SetDefault("storage.hash_bucket_size", 4)
	v.SetDefault("storage.leaf_max_size", 32)
	v.SetDefault("storage.internal_max_size", 32)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_file", "stdout")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "kagedb")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.trace_sample_ratio", 1.0)
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
