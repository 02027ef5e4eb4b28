package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads the YAML config at path, applies defaults and
// JUSTPOS_* environment overrides, and unmarshals into Config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("JUSTPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.db_path", "justpos.db")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.interval", "@every 1m")
	v.SetDefault("sync.reconnect_min", "1s")
	v.SetDefault("sync.reconnect_max", "1m")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("cloud.cdc.server_id", 100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
