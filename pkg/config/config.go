// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads the gateway configuration.
// Priority: config file > GATEWAY_* environment variables > defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/archestra-ai/gateway/pkg/types"
)

// DefaultConfigFileName is the config file base name (gateway.yaml).
const DefaultConfigFileName = "gateway"

// Config holds all gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retention RetentionConfig `mapstructure:"retention"`

	// DefaultOrganization is the fallback organization for agents
	// without team memberships.
	DefaultOrganization string `mapstructure:"default_organization"`

	// file is the config file actually read, "" when none was found.
	file string
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr is the host:port the server binds.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FeaturesConfig are the runtime-toggleable pipeline stages. These are
// hot-reloadable; see Watcher.
type FeaturesConfig struct {
	ToonCompression bool `mapstructure:"toon_compression"`
	DualLLM         bool `mapstructure:"dual_llm"`
	ImageConversion bool `mapstructure:"image_conversion"`
}

// ProvidersConfig overrides upstream endpoints per provider.
type ProvidersConfig struct {
	// BaseURLs maps provider name to upstream base URL. Providers
	// absent from the map use their public endpoint.
	BaseURLs map[string]string `mapstructure:"base_urls"`
}

// RetentionConfig controls the interaction-record cleanup job.
type RetentionConfig struct {
	// Days is the retention window; 0 disables cleanup.
	Days int `mapstructure:"days"`

	// Schedule is a cron expression; empty uses the nightly default.
	Schedule string `mapstructure:"schedule"`
}

// File reports the config file that was read, "" when running on
// defaults and environment only.
func (c *Config) File() string { return c.file }

// BaseURL returns the configured upstream override for provider, ""
// when none is set.
func (c *Config) BaseURL(provider types.Provider) string {
	return c.Providers.BaseURLs[string(provider)]
}

// Load reads configuration. path pins an explicit config file; empty
// searches gateway.yaml in the working directory and /etc/archestra.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/archestra/")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// A missing file in the search path is fine; an explicit path
	// that cannot be read is not.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9000)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("features.toon_compression", true)
	v.SetDefault("features.dual_llm", true)
	v.SetDefault("features.image_conversion", true)

	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.schedule", "")

	v.SetDefault("default_organization", "default")
}
