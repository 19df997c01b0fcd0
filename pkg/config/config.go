package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/nexus/pkg/registry"
)

// Config holds the application configuration.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	SerpAPIKey      string
	DatabaseURL     string
	Database        DatabaseConfig
	Credits         CreditsConfig
	Log             LogConfig
	Engine          *EngineConfig
	ConfigDir       string
}

// FileConfig represents the structure of ~/.nexus/config.yaml
type FileConfig struct {
	APIKeys  APIKeysConfig  `yaml:"api_keys"`
	Database DatabaseConfig `yaml:"database"`
	Credits  CreditsConfig  `yaml:"credits"`
	Log      LogConfig      `yaml:"log"`
	Engine   EngineConfig   `yaml:"engine"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	OpenAI    string `yaml:"openai"`
	Anthropic string `yaml:"anthropic"`
	Google    string `yaml:"google"`
	SerpAPI   string `yaml:"serpapi"`
}

// DatabaseConfig selects the conversation store. An empty URL keeps
// conversations in memory.
type DatabaseConfig struct {
	URL               string `yaml:"url,omitempty"`
	MaxOpenConns      int    `yaml:"max_open_conns,omitempty"`
	MaxIdleConns      int    `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms,omitempty"`
}

// CreditsConfig points at the auth backend that owns credit balances.
type CreditsConfig struct {
	BaseURL      string `yaml:"base_url,omitempty"`
	ServiceToken string `yaml:"service_token,omitempty"`
	Simulate     bool   `yaml:"simulate,omitempty"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
}

// Enabled reports whether a credits client can be built.
func (c CreditsConfig) Enabled() bool {
	return c.Simulate || c.BaseURL != ""
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load reads ~/.nexus/config.yaml, a .env file in the working directory and
// the environment. Environment variables take precedence over the file.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return load(filepath.Join(configDir, "config.yaml"), configDir, false)
}

// LoadFile loads configuration from an explicit file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, filepath.Dir(path), true)
}

func load(path, configDir string, required bool) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	fileConfig, err := loadFileConfig(path, required)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg := &Config{
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		SerpAPIKey:      getEnvOrDefault("SERPAPI_API_KEY", fileConfig.APIKeys.SerpAPI),
		Database:        fileConfig.Database,
		Credits:         fileConfig.Credits,
		Log:             fileConfig.Log,
		ConfigDir:       configDir,
	}
	cfg.Database.URL = getEnvOrDefault("DATABASE_URL", fileConfig.Database.URL)
	cfg.DatabaseURL = cfg.Database.URL
	cfg.Credits.BaseURL = getEnvOrDefault("BACKEND_AUTH_BASE_URL", fileConfig.Credits.BaseURL)
	cfg.Credits.ServiceToken = getEnvOrDefault("INTERNAL_SERVICE_TOKEN", fileConfig.Credits.ServiceToken)
	cfg.Log.Level = getEnvOrDefault("NEXUS_LOG_LEVEL", fileConfig.Log.Level)
	cfg.Log.Format = getEnvOrDefault("NEXUS_LOG_FORMAT", fileConfig.Log.Format)

	if v := os.Getenv("ENABLE_CREDIT_SIMULATION"); v != "" {
		simulate, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_CREDIT_SIMULATION %q: %w", v, err)
		}
		cfg.Credits.Simulate = simulate
	}
	if v := os.Getenv("BACKEND_AUTH_TIMEOUT"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid BACKEND_AUTH_TIMEOUT %q: %w", v, err)
		}
		cfg.Credits.TimeoutMs = int(secs * 1000)
	}

	engine := fileConfig.Engine
	applyEngineDefaults(&engine)
	cfg.Engine = &engine
	applyLogDefaults(&cfg.Log)

	return cfg, nil
}

// HasProvider returns true if the API key for the given provider is configured.
func (c *Config) HasProvider(kind registry.ProviderKind) bool {
	return c.APIKey(kind) != ""
}

// APIKey returns the configured key for a provider.
func (c *Config) APIKey(kind registry.ProviderKind) string {
	switch kind {
	case registry.ProviderOpenAI:
		return c.OpenAIAPIKey
	case registry.ProviderAnthropic:
		return c.AnthropicAPIKey
	case registry.ProviderGoogle:
		return c.GoogleAPIKey
	default:
		return ""
	}
}

// loadFileConfig reads the config file. A missing file yields an empty
// config unless required is set.
func loadFileConfig(path string, required bool) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports the variables of a .env file without overriding those
// already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := strings.TrimSpace(os.Getenv(envVar)); val != "" {
		return val
	}
	return defaultValue
}

func applyLogDefaults(cfg *LogConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "console"
	}
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".nexus")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
