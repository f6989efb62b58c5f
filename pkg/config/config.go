package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Provider  ProviderConfig  `json:"provider"`
	Engine    EngineConfig    `json:"engine"`
	Session   SessionConfig   `json:"session"`
	Fridge    FridgeConfig    `json:"fridge"`
	Store     StoreConfig     `json:"store"`
	Embedding EmbeddingConfig `json:"embedding"`
	Channels  ChannelsConfig  `json:"channels"`
	Log       LogConfig       `json:"log"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"CHEFMATE_GATEWAY_HOST"`
	Port int    `json:"port" env:"CHEFMATE_GATEWAY_PORT"`
}

type ProviderConfig struct {
	APIKey         string  `json:"api_key" env:"CHEFMATE_PROVIDER_API_KEY"`
	APIBase        string  `json:"api_base" env:"CHEFMATE_PROVIDER_API_BASE"`
	Model          string  `json:"model" env:"CHEFMATE_PROVIDER_MODEL"`
	Temperature    float64 `json:"temperature" env:"CHEFMATE_PROVIDER_TEMPERATURE"`
	Proxy          string  `json:"proxy,omitempty" env:"CHEFMATE_PROVIDER_PROXY"`
	TimeoutSeconds int     `json:"timeout_seconds" env:"CHEFMATE_PROVIDER_TIMEOUT_SECONDS"`
}

type EngineConfig struct {
	RetrieveK   int    `json:"retrieve_k" env:"CHEFMATE_ENGINE_RETRIEVE_K"`
	TopN        int    `json:"top_n" env:"CHEFMATE_ENGINE_TOP_N"`
	RecipesPath string `json:"recipes_path" env:"CHEFMATE_ENGINE_RECIPES_PATH"`
}

type SessionConfig struct {
	WindowSize     int  `json:"window_size" env:"CHEFMATE_SESSION_WINDOW_SIZE"`
	SummaryEnabled bool `json:"summary_enabled" env:"CHEFMATE_SESSION_SUMMARY_ENABLED"`
}

type FridgeConfig struct {
	DefaultMode      string `json:"default_mode" env:"CHEFMATE_FRIDGE_DEFAULT_MODE"`
	SnapshotPath     string `json:"snapshot_path" env:"CHEFMATE_FRIDGE_SNAPSHOT_PATH"`
	AutosaveSchedule string `json:"autosave_schedule" env:"CHEFMATE_FRIDGE_AUTOSAVE_SCHEDULE"`
}

type StoreConfig struct {
	Path string `json:"path" env:"CHEFMATE_STORE_PATH"`
}

type EmbeddingConfig struct {
	Model string `json:"model" env:"CHEFMATE_EMBEDDING_MODEL"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Enabled   bool     `json:"enabled" env:"CHEFMATE_CHANNELS_DISCORD_ENABLED"`
	Token     string   `json:"token" env:"CHEFMATE_CHANNELS_DISCORD_TOKEN"`
	AllowFrom []string `json:"allow_from" env:"CHEFMATE_CHANNELS_DISCORD_ALLOW_FROM"`
}

type LogConfig struct {
	Level  string `json:"level" env:"CHEFMATE_LOG_LEVEL"`
	Pretty bool   `json:"pretty" env:"CHEFMATE_LOG_PRETTY"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18200,
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		Engine: EngineConfig{
			RetrieveK:   5,
			TopN:        3,
			RecipesPath: "~/.chefmate/recipes.json",
		},
		Session: SessionConfig{
			WindowSize:     50,
			SummaryEnabled: true,
		},
		Fridge: FridgeConfig{
			DefaultMode:      "flexible",
			SnapshotPath:     "~/.chefmate/state/fridges.json",
			AutosaveSchedule: "*/10 * * * *",
		},
		Store: StoreConfig{
			Path: "~/.chefmate/state/preferences.db",
		},
		Embedding: EmbeddingConfig{
			Model: "chefmate-chargram-384-v1",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{},
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env overrides still apply without a config file.
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// FridgeSnapshotPath returns the fridge snapshot path with ~ expanded.
func (c *Config) FridgeSnapshotPath() string {
	return expandHome(c.Fridge.SnapshotPath)
}

// StorePath returns the preference database path with ~ expanded.
func (c *Config) StorePath() string {
	return expandHome(c.Store.Path)
}

// RecipesPath returns the recipe seed file path with ~ expanded.
func (c *Config) RecipesPath() string {
	return expandHome(c.Engine.RecipesPath)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
