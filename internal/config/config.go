package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	S3       S3Config       `mapstructure:"s3"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// JWTConfig defines token validation configuration. Tokens are issued by
// the external auth service; this service only verifies them, so the
// shared secret is all that is needed.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// RecorderConfig points at the external workout-recording service that
// turns finished sessions into permanent workout records.
type RecorderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ServiceToken string        `mapstructure:"service_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// S3Config configures the object store holding checkpoint archives.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment overrides, e.g. server.address -> SERVER_ADDRESS,
	// recorder.base_url -> RECORDER_BASE_URL.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "session_tracker")
	viper.SetDefault("recorder.timeout", "10s")
	viper.SetDefault("s3.use_ssl", true)

	err = viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No config file; defaults and env vars are enough.
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
