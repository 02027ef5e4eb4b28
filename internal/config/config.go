package config

import (
	"time"
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Cloud   CloudConfig   `mapstructure:"cloud"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig identifies this store installation and how it reaches the cloud.
type StoreConfig struct {
	ID       string `mapstructure:"id"`
	APIURL   string `mapstructure:"api_url"`
	APIToken string `mapstructure:"api_token"`
	DBPath   string `mapstructure:"db_path"`
}

type SyncConfig struct {
	BatchSize    int    `mapstructure:"batch_size"`
	Interval     string `mapstructure:"interval"`
	ReconnectMin string `mapstructure:"reconnect_min"`
	ReconnectMax string `mapstructure:"reconnect_max"`
}

func (s SyncConfig) GetReconnectMin() time.Duration {
	d, err := time.ParseDuration(s.ReconnectMin)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func (s SyncConfig) GetReconnectMax() time.Duration {
	d, err := time.ParseDuration(s.ReconnectMax)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

type CloudConfig struct {
	Database DatabaseConnection `mapstructure:"database"`
	CDC      CDCConfig          `mapstructure:"cdc"`
}

type DatabaseConnection struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	Database            string `mapstructure:"database"`
	ReplicationUser     string `mapstructure:"replication_user"`
	ReplicationPassword string `mapstructure:"replication_password"`
}

// CDCConfig controls the binlog watcher on the cloud server.
type CDCConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	ServerID uint32 `mapstructure:"server_id"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
