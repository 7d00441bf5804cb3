package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Engine struct {
		// Backend selects the workflow engine persistence: postgres,
		// sqlite, or memory (tests/dev).
		Backend    string `mapstructure:"backend"`
		SqlitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"engine"`
	Memory struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"memory"`
	Agents struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"agents"`
	Streaming struct {
		// CompletionTimeout bounds how long a workflow waits for a
		// streaming result before surfacing a stream error.
		CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	} `mapstructure:"streaming"`
	Workflow struct {
		// DefinitionFile points at the YAML step definitions.
		DefinitionFile string `mapstructure:"definition_file"`
	} `mapstructure:"workflow"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("engine.backend", "postgres")
	viper.SetDefault("engine.sqlite_path", "onboardflow.sqlite")
	viper.SetDefault("streaming.completion_timeout", 5*time.Minute)
	viper.SetDefault("workflow.definition_file", "config/onboarding.yaml")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
