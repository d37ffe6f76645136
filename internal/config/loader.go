package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string

	Store  StoreConfig
	Import ImportConfig
}

// StoreConfig configures the remote membership data store connection.
type StoreConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ImportConfig configures the import pipeline.
type ImportConfig struct {
	ChunkSize      int
	ScoreThreshold float64
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		Store: StoreConfig{
			BaseURL: "http://localhost:3001",
			Timeout: 30 * time.Second,
		},
		Import: ImportConfig{
			ChunkSize:      30,
			ScoreThreshold: 0.8,
		},
	}
}

// Load reads config.yaml from configPath with environment overrides
// (prefix UNIONDB, e.g. UNIONDB_STORE_BASE_URL).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("UNIONDB")

	v.BindEnv("server.listen_addr")
	v.BindEnv("server.allowed_origins")
	v.BindEnv("store.base_url")
	v.BindEnv("store.api_key")
	v.BindEnv("store.timeout_seconds")
	v.BindEnv("import.chunk_size")
	v.BindEnv("import.score_threshold")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.listen_addr") {
		cfg.ListenAddr = v.GetString("server.listen_addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("store.base_url") {
		cfg.Store.BaseURL = v.GetString("store.base_url")
	}
	if v.IsSet("store.api_key") {
		cfg.Store.APIKey = v.GetString("store.api_key")
	}
	if v.IsSet("store.timeout_seconds") {
		cfg.Store.Timeout = time.Duration(v.GetInt("store.timeout_seconds")) * time.Second
	}
	if v.IsSet("import.chunk_size") {
		cfg.Import.ChunkSize = v.GetInt("import.chunk_size")
	}
	if v.IsSet("import.score_threshold") {
		cfg.Import.ScoreThreshold = v.GetFloat64("import.score_threshold")
	}

	return cfg, nil
}
