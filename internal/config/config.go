// Package config loads configuration from YAML files, .env files and
// environment variables, with env vars taking precedence. Credentials can
// also come from the OS keychain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Graph      GraphConfig      `mapstructure:"graph" yaml:"graph"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Federation FederationConfig `mapstructure:"federation" yaml:"federation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Sources    SourcesConfig    `mapstructure:"sources" yaml:"sources"`
}

type StorageConfig struct {
	Type           string `mapstructure:"type" yaml:"type"` // "postgres", "sqlite"
	PostgresDSN    string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	LocalPath      string `mapstructure:"local_path" yaml:"local_path"`
	CheckpointPath string `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
}

type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url"`
	ResponseTTL time.Duration `mapstructure:"response_ttl" yaml:"response_ttl"`
}

type GraphConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

type LLMConfig struct {
	Provider    string `mapstructure:"provider" yaml:"provider"` // "openai", "gemini", "" disables the fallback
	Model       string `mapstructure:"model" yaml:"model"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	UseKeychain bool   `mapstructure:"use_keychain" yaml:"use_keychain"`
	// Rate limits shared across processes via redis
	RPM int `mapstructure:"rpm" yaml:"rpm"`
	TPM int `mapstructure:"tpm" yaml:"tpm"`
	RPD int `mapstructure:"rpd" yaml:"rpd"`
}

type FederationConfig struct {
	AdapterTimeout   time.Duration `mapstructure:"adapter_timeout" yaml:"adapter_timeout"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerWindow    time.Duration `mapstructure:"breaker_window" yaml:"breaker_window"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

type PipelineConfig struct {
	OverallTimeout time.Duration `mapstructure:"overall_timeout" yaml:"overall_timeout"`
}

// SourceConfig configures one public-spending source adapter
type SourceConfig struct {
	BaseURL        string         `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string         `mapstructure:"api_key" yaml:"api_key"`
	RateLimit      float64        `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	DefaultFilters map[string]any `mapstructure:"default_filters" yaml:"default_filters"`
}

type SourcesConfig struct {
	PortalTransparencia SourceConfig `mapstructure:"portal_transparencia" yaml:"portal_transparencia"`
	ComprasGov          SourceConfig `mapstructure:"compras_gov" yaml:"compras_gov"`
	TCU                 SourceConfig `mapstructure:"tcu" yaml:"tcu"`
	IBGE                SourceConfig `mapstructure:"ibge" yaml:"ibge"`
	CNPJRegistry        SourceConfig `mapstructure:"cnpj_registry" yaml:"cnpj_registry"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Type:           "sqlite",
			LocalPath:      filepath.Join(homeDir, ".sentinela", "local.db"),
			CheckpointPath: filepath.Join(homeDir, ".sentinela", "checkpoints.db"),
		},
		Cache: CacheConfig{
			ResponseTTL: 15 * time.Minute,
		},
		Graph: GraphConfig{
			Database: "neo4j",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			RPM:      500,
			TPM:      500_000,
			RPD:      10_000,
		},
		Federation: FederationConfig{
			AdapterTimeout:   8 * time.Second,
			StageTimeout:     30 * time.Second,
			RetryMaxAttempts: 3,
			RetryBaseDelay:   200 * time.Millisecond,
			RetryMaxDelay:    2 * time.Second,
			BreakerThreshold: 5,
			BreakerWindow:    time.Minute,
			BreakerCooldown:  30 * time.Second,
		},
		Pipeline: PipelineConfig{
			OverallTimeout: 2 * time.Minute,
		},
		Sources: SourcesConfig{
			PortalTransparencia: SourceConfig{
				BaseURL:   "https://api.portaldatransparencia.gov.br/api-de-dados",
				RateLimit: 1,
			},
			ComprasGov: SourceConfig{
				BaseURL:   "https://compras.dados.gov.br",
				RateLimit: 2,
				DefaultFilters: map[string]any{
					"codigoOrgao": "26000",
				},
			},
			TCU: SourceConfig{
				BaseURL:   "https://contas.tcu.gov.br/ords",
				RateLimit: 1,
			},
			IBGE: SourceConfig{
				BaseURL:   "https://servicodados.ibge.gov.br/api/v3",
				RateLimit: 2,
			},
			CNPJRegistry: SourceConfig{
				BaseURL:   "https://minhareceita.org",
				RateLimit: 1,
			},
		},
	}
}

// Load loads configuration from file, .env files and environment
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("federation", cfg.Federation)
	v.SetDefault("pipeline", cfg.Pipeline)
	v.SetDefault("sources", cfg.Sources)

	v.SetEnvPrefix("SENTINELA")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".sentinela")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".sentinela"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults apply
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".sentinela", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides.
// Credential precedence: env var, then OS keychain, then config file.
func applyEnvOverrides(cfg *Config) {
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}
	if path := os.Getenv("CHECKPOINT_PATH"); path != "" {
		cfg.Storage.CheckpointPath = expandPath(path)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Cache.RedisURL = url
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.URI = uri
		cfg.Graph.Enabled = true
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Graph.Password = password
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.LLM.Provider = provider
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.LLM.Provider == "gemini" {
		cfg.LLM.APIKey = key
	}
	if cfg.LLM.APIKey == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if key, err := km.GetAPIKey(cfg.LLM.Provider); err == nil && key != "" {
				cfg.LLM.APIKey = key
			}
		}
	}

	if attempts := os.Getenv("FEDERATION_RETRY_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Federation.RetryMaxAttempts = n
		}
	}
	if threshold := os.Getenv("FEDERATION_BREAKER_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			cfg.Federation.BreakerThreshold = n
		}
	}
	if timeout := os.Getenv("PIPELINE_OVERALL_TIMEOUT_SECONDS"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil {
			cfg.Pipeline.OverallTimeout = time.Duration(n) * time.Second
		}
	}

	if key := os.Getenv("PORTAL_TRANSPARENCIA_API_KEY"); key != "" {
		cfg.Sources.PortalTransparencia.APIKey = key
	}
}

// expandPath expands ~ to the home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("storage", c.Storage)
	v.Set("cache", c.Cache)
	v.Set("graph", c.Graph)
	v.Set("llm", c.LLM)
	v.Set("federation", c.Federation)
	v.Set("pipeline", c.Pipeline)
	v.Set("sources", c.Sources)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
