// Copyright 2025 Foodie Chat Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Responder ResponderConfig `mapstructure:"responder"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey         string `mapstructure:"apikey"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// PineconeConfig contains similarity-index configuration. Each index is
// addressed by its own host URL, the way Pinecone serves them.
type PineconeConfig struct {
	APIKey         string `mapstructure:"apikey"`
	MessagesHost   string `mapstructure:"messages_host"`
	ChunksHost     string `mapstructure:"chunks_host"`
	SummariesHost  string `mapstructure:"summaries_host"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StoreConfig contains relational store configuration
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// RedisConfig contains the realtime fan-out configuration
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// AudioConfig contains text-to-speech and artifact cache configuration
type AudioConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"apikey"`
	VoiceID      string `mapstructure:"voice_id"`
	BucketName   string `mapstructure:"bucket_name"`
	URLTTLHours  int    `mapstructure:"url_ttl_hours"`
	BaseEndpoint string `mapstructure:"base_endpoint"`
}

// RetrievalConfig contains retrieval-specific settings
type RetrievalConfig struct {
	VariationLimit   int     `mapstructure:"variation_limit"`
	PerVariationTopK int     `mapstructure:"per_variation_top_k"`
	ChunkTopK        int     `mapstructure:"chunk_top_k"`
	SummaryTopK      int     `mapstructure:"summary_top_k"`
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
}

// ResponderConfig contains automated-responder settings
type ResponderConfig struct {
	BotUserID        string  `mapstructure:"bot_user_id"`
	BotDisplayName   string  `mapstructure:"bot_display_name"`
	LockStaleSeconds int     `mapstructure:"lock_stale_seconds"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature"`
}

// JobsConfig contains background task queue configuration
type JobsConfig struct {
	Workers     int `mapstructure:"workers"`
	QueueSize   int `mapstructure:"queue_size"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FOODIE")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// OpenAI defaults
	v.SetDefault("openai.chat_model", "gpt-3.5-turbo")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")

	// Pinecone defaults
	v.SetDefault("pinecone.timeout_seconds", 30)

	// Store defaults
	v.SetDefault("store.db_path", "./foodie.db")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel_prefix", "conversation")

	// Audio defaults
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.url_ttl_hours", 24)
	v.SetDefault("audio.base_endpoint", "https://api.elevenlabs.io")

	// Retrieval defaults
	v.SetDefault("retrieval.variation_limit", 5)
	v.SetDefault("retrieval.per_variation_top_k", 2)
	v.SetDefault("retrieval.chunk_top_k", 3)
	v.SetDefault("retrieval.summary_top_k", 1)
	v.SetDefault("retrieval.overlap_threshold", 0.7)

	// Responder defaults
	v.SetDefault("responder.bot_user_id", "user_ai")
	v.SetDefault("responder.bot_display_name", "Piggy")
	v.SetDefault("responder.lock_stale_seconds", 30)
	v.SetDefault("responder.max_tokens", 500)
	v.SetDefault("responder.temperature", 0.7)

	// Jobs defaults
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.max_attempts", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Server defaults
	v.SetDefault("server.port", 8080)
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			return nil
		}
	}

	// Default fallback locations; a missing file is tolerated because the
	// full configuration can come from the environment.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":          "openai.apikey",
		"PINECONE_API_KEY":        "pinecone.apikey",
		"PINECONE_MESSAGES_HOST":  "pinecone.messages_host",
		"PINECONE_CHUNKS_HOST":    "pinecone.chunks_host",
		"PINECONE_SUMMARIES_HOST": "pinecone.summaries_host",
		"REDIS_ADDR":              "redis.addr",
		"ELEVEN_LABS_API_KEY":     "audio.apikey",
		"ELEVEN_LABS_VOICE_ID":    "audio.voice_id",
		"GCS_BUCKET_NAME":         "audio.bucket_name",
		"STORE_DB_PATH":           "store.db_path",
		"LOG_LEVEL":               "logging.level",
		"LOG_FORMAT":              "logging.format",
		"LOG_OUTPUT":              "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.OpenAI.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "openai.apikey",
			Message: "OpenAI API key is required. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if config.Pinecone.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "pinecone.apikey",
			Message: "Pinecone API key is required. Set via config file or PINECONE_API_KEY environment variable",
		})
	}

	if config.Pinecone.MessagesHost == "" {
		errs = append(errs, ValidationError{
			Field:   "pinecone.messages_host",
			Message: "messages index host is required",
		})
	}

	if config.Retrieval.VariationLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.variation_limit",
			Message: "variation_limit must be greater than 0",
		})
	}

	if config.Retrieval.PerVariationTopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.per_variation_top_k",
			Message: "per_variation_top_k must be greater than 0",
		})
	}

	if config.Retrieval.OverlapThreshold <= 0 || config.Retrieval.OverlapThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.overlap_threshold",
			Message: "overlap_threshold must be between 0 and 1",
		})
	}

	if config.Responder.BotUserID == "" {
		errs = append(errs, ValidationError{
			Field:   "responder.bot_user_id",
			Message: "bot_user_id is required",
		})
	}

	if config.Responder.LockStaleSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "responder.lock_stale_seconds",
			Message: "lock_stale_seconds must be greater than 0",
		})
	}

	if config.Responder.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "responder.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Responder.Temperature < 0 || config.Responder.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "responder.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if config.Audio.Enabled {
		if config.Audio.APIKey == "" {
			errs = append(errs, ValidationError{
				Field:   "audio.apikey",
				Message: "audio synthesis is enabled but no API key is set",
			})
		}
		if config.Audio.VoiceID == "" {
			errs = append(errs, ValidationError{
				Field:   "audio.voice_id",
				Message: "audio synthesis is enabled but no voice id is set",
			})
		}
		if config.Audio.BucketName == "" {
			errs = append(errs, ValidationError{
				Field:   "audio.bucket_name",
				Message: "audio synthesis is enabled but no bucket name is set",
			})
		}
	}

	if config.Jobs.Workers <= 0 {
		errs = append(errs, ValidationError{
			Field:   "jobs.workers",
			Message: "workers must be greater than 0",
		})
	}

	if config.Jobs.MaxAttempts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "jobs.max_attempts",
			Message: "max_attempts must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if config.Store.DBPath == "" {
		errs = append(errs, ValidationError{
			Field:   "store.db_path",
			Message: "store database path is required",
		})
	}

	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	if masked.Pinecone.APIKey != "" {
		masked.Pinecone.APIKey = maskValue(masked.Pinecone.APIKey)
	}
	if masked.Audio.APIKey != "" {
		masked.Audio.APIKey = maskValue(masked.Audio.APIKey)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			ValidateRequired: true,
		})
		if err != nil {
			fmt.Printf("Failed to reload config after change to %s: %v\n", e.Name, err)
			return
		}
		callback(config)
	})

	return nil
}
