package config

import (
	"fmt"
	"strings"
	"time"
)

// Config defines the OCPP server configuration.
type Config struct {
	HTTP struct {
		Port       string `yaml:"port" env:"OCPP_HTTP_PORT"`
		PathPrefix string `yaml:"pathPrefix" env:"OCPP_PATH_PREFIX"`
	} `yaml:"http"`
	Database struct {
		DSN                      string `yaml:"dsn" env:"OCPP_POSTGRES_DSN"`
		ReconnectIntervalSeconds int    `yaml:"reconnectIntervalSeconds" env:"OCPP_DB_RECONNECT_INTERVAL"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"OCPP_REDIS_ADDR"`
		Password string `yaml:"password" env:"OCPP_REDIS_PASSWORD"`
	} `yaml:"redis"`
	OCPP struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"OCPP_HEARTBEAT_INTERVAL"`
		WriteTimeoutSeconds      int `yaml:"writeTimeoutSeconds" env:"OCPP_WRITE_TIMEOUT"`
	} `yaml:"ocpp"`
}

// Load uses the shared loader and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.OCPP.HeartbeatIntervalSeconds = 300
	cfg.OCPP.WriteTimeoutSeconds = 15
	cfg.Database.ReconnectIntervalSeconds = 5

	if err := load(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// HeartbeatInterval returns the interval stations are told to heartbeat at.
func (c *Config) HeartbeatInterval() int {
	if c.OCPP.HeartbeatIntervalSeconds <= 0 {
		return 300
	}
	return c.OCPP.HeartbeatIntervalSeconds
}

// WriteTimeout returns the socket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.OCPP.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.OCPP.WriteTimeoutSeconds) * time.Second
}

// ReconnectInterval returns the durable store retry interval.
func (c *Config) ReconnectInterval() time.Duration {
	if c.Database.ReconnectIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Database.ReconnectIntervalSeconds) * time.Second
}
