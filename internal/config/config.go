package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	DefaultModel           = "gemma2:2b"
	DefaultMaxChunkSize    = 4096
	DefaultTemperature     = 0.5
	DefaultMaxOutputTokens = 4096
	DefaultMaxConcurrent   = 1
	DefaultBufSize         = 100
	DefaultDumpChunkSize   = 4096
	DefaultTopN            = 10
	DefaultDigestSchedule  = "0 0 9 * * *"

	DefaultSystemMessage = `You condense chat logs. Answer only from the text you are given, ` +
		`keep names exactly as written and never invent messages.`

	DefaultInstruction = "Summarise the following conversation in a concise manner. " +
		"Summarise in a purely factual manner, without any opinions or conversation.\n\n"

	// DefaultQueryInstruction takes the user's question as its single argument.
	DefaultQueryInstruction = "%s\nAnswer using only the following conversation.\n\n"
)

type Config struct {
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Summary  SummaryConfig  `json:"summary" yaml:"summary"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Digest   DigestConfig   `json:"digest" yaml:"digest"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"` // "ollama" (default), "openai" or "anthropic"
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
}

type SummaryConfig struct {
	Model            string   `json:"model" yaml:"model"`
	MaxChunkSize     int      `json:"maxChunkSize" yaml:"maxChunkSize"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"` // nil means DefaultTemperature
	MaxOutputTokens  int      `json:"maxOutputTokens" yaml:"maxOutputTokens"`
	Terminators      []string `json:"terminators,omitempty" yaml:"terminators,omitempty"`
	Seed             *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	TimeoutSec       int      `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
	SystemMessage    string   `json:"systemMessage,omitempty" yaml:"systemMessage,omitempty"`
	Instruction      string   `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	QueryInstruction string   `json:"queryInstruction,omitempty" yaml:"queryInstruction,omitempty"`
	MaxConcurrent    int      `json:"maxConcurrent" yaml:"maxConcurrent"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty" yaml:"dbPath,omitempty"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

type AnalysisConfig struct {
	DumpChunkSize int `json:"dumpChunkSize" yaml:"dumpChunkSize"`
	TopN          int `json:"topN" yaml:"topN"`
}

func DefaultConfig() *Config {
	temperature := DefaultTemperature
	return &Config{
		Provider: ProviderConfig{Type: ProviderOllama},
		Summary: SummaryConfig{
			Model:            DefaultModel,
			MaxChunkSize:     DefaultMaxChunkSize,
			Temperature:      &temperature,
			MaxOutputTokens:  DefaultMaxOutputTokens,
			SystemMessage:    DefaultSystemMessage,
			Instruction:      DefaultInstruction,
			QueryInstruction: DefaultQueryInstruction,
			MaxConcurrent:    DefaultMaxConcurrent,
		},
		Channels: ChannelsConfig{},
		Digest: DigestConfig{
			Schedule: DefaultDigestSchedule,
		},
		Analysis: AnalysisConfig{
			DumpChunkSize: DefaultDumpChunkSize,
			TopN:          DefaultTopN,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".chatscribe")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// YAMLConfigPath is read instead of ConfigPath when it exists.
func YAMLConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func DefaultDBPath() string {
	return filepath.Join(ConfigDir(), "data", "chatscribe.db")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Values already present in the process environment take precedence over .env.
	if err := godotenv.Load(filepath.Join(ConfigDir(), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if data, err := os.ReadFile(YAMLConfigPath()); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read yaml config: %w", err)
	} else {
		data, err := os.ReadFile(ConfigPath())
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if provider := os.Getenv("CHATSCRIBE_PROVIDER"); provider != "" {
		cfg.Provider.Type = provider
	}
	if key := os.Getenv("CHATSCRIBE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" && cfg.Provider.Type == ProviderOpenAI {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" && cfg.Provider.Type == ProviderAnthropic {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("CHATSCRIBE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("CHATSCRIBE_MODEL"); model != "" {
		cfg.Summary.Model = model
	}
	if size := os.Getenv("CHATSCRIBE_MAX_CHUNK_SIZE"); size != "" {
		if parsed, err := strconv.Atoi(size); err == nil {
			cfg.Summary.MaxChunkSize = parsed
		}
	}
	if token := os.Getenv("CHATSCRIBE_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("CHATSCRIBE_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = ProviderOllama
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = defaults.Summary.Model
	}
	if cfg.Summary.MaxChunkSize <= 0 {
		cfg.Summary.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.Summary.MaxOutputTokens <= 0 {
		cfg.Summary.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Summary.Instruction == "" {
		cfg.Summary.Instruction = DefaultInstruction
	}
	if cfg.Summary.QueryInstruction == "" {
		cfg.Summary.QueryInstruction = DefaultQueryInstruction
	}
	if cfg.Summary.MaxConcurrent <= 0 {
		cfg.Summary.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = DefaultDBPath()
	}
	if cfg.Digest.Schedule == "" {
		cfg.Digest.Schedule = DefaultDigestSchedule
	}
	if cfg.Analysis.DumpChunkSize <= 0 {
		cfg.Analysis.DumpChunkSize = DefaultDumpChunkSize
	}
	if cfg.Analysis.TopN <= 0 {
		cfg.Analysis.TopN = DefaultTopN
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
