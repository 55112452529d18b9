// Package config holds process configuration for the refresh pipeline.
// A single Config is loaded at startup from a YAML file with environment
// overrides; per-run credentials are assembled once into a Credentials
// value and passed explicitly (no implicit global environment reads in
// the pipeline itself).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Model identifiers used for token-ceiling lookup and summary prefixes.
const (
	ModelGPT4o        = "gpt-4o"
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelClaudeSonnet = "claude-sonnet-4-5"
	ModelGeminiFlash  = "gemini-2.0-flash"
	ModelLlama3       = "llama3"
)

// Summarizer backend names.
const (
	ProviderService   = "service"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// ModelContextTokens maps a model to its context-window ceiling. Models not
// listed fall back to DefaultContextTokens.
var ModelContextTokens = map[string]int{
	ModelGPT4o:        128000,
	ModelGPT4oMini:    128000,
	ModelClaudeSonnet: 200000,
	ModelGeminiFlash:  1000000,
	ModelLlama3:       8192,
}

const (
	// DefaultContextTokens is the ceiling assumed for unknown models.
	DefaultContextTokens = 8192
	// CompletionReserveTokens is subtracted from the context ceiling to
	// leave room for the summary itself.
	CompletionReserveTokens = 1024
)

// JiraConfig configures the issue tracker endpoint.
type JiraConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Username   string        `yaml:"username"`
	APIToken   string        `yaml:"api_token"`
	APIVersion string        `yaml:"api_version"` // "2" or "3", default "2"
	Timeout    time.Duration `yaml:"timeout"`
	PageSize   int           `yaml:"page_size"`
}

// SharePointConfig configures the Microsoft Graph workbook surface.
type SharePointConfig struct {
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
	BatchSize   int           `yaml:"batch_size"` // sub-requests per $batch, default 5
}

// GoogleConfig configures the Google Sheets surface.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	AccessToken     string `yaml:"access_token"`
}

// LLMConfig selects the summarization backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // service|openai|anthropic|ollama|gemini
	Model       string        `yaml:"model"`
	Endpoint    string        `yaml:"endpoint"` // summarization service or ollama host
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"` // completion budget per request
	Temperature float32       `yaml:"temperature"`
}

// MailConfig configures SMTP delivery of AI briefs.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Config is the full process configuration.
type Config struct {
	Jira       JiraConfig       `yaml:"jira"`
	SharePoint SharePointConfig `yaml:"sharepoint"`
	Google     GoogleConfig     `yaml:"google"`
	LLM        LLMConfig        `yaml:"llm"`
	Mail       MailConfig       `yaml:"mail"`

	// LogsRoot is the directory holding logs/{user}/{runId} working trees.
	LogsRoot string `yaml:"logs_root"`
	// ShortenerURL is the external URL-shortening service endpoint.
	ShortenerURL string `yaml:"shortener_url"`
	// ArtifactTTL controls working-directory cleanup age.
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
	// ConflictRetryDelay is the wait between optimistic-lock retries.
	ConflictRetryDelay time.Duration `yaml:"conflict_retry_delay"`
}

// Load reads the YAML config file at path and applies environment
// overrides, then validates and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHEETPULSE_JIRA_URL"); v != "" {
		c.Jira.BaseURL = v
	}
	if v := os.Getenv("SHEETPULSE_JIRA_USER"); v != "" {
		c.Jira.Username = v
	}
	if v := os.Getenv("SHEETPULSE_JIRA_TOKEN"); v != "" {
		c.Jira.APIToken = v
	}
	if v := os.Getenv("SHEETPULSE_GRAPH_TOKEN"); v != "" {
		c.SharePoint.AccessToken = v
	}
	if v := os.Getenv("SHEETPULSE_GOOGLE_CREDENTIALS"); v != "" {
		c.Google.CredentialsFile = v
	}
	if v := os.Getenv("SHEETPULSE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SHEETPULSE_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
}

func (c *Config) applyDefaults() {
	if c.Jira.APIVersion == "" {
		c.Jira.APIVersion = "2"
	}
	if c.Jira.Timeout == 0 {
		c.Jira.Timeout = 30 * time.Second
	}
	if c.Jira.PageSize == 0 {
		c.Jira.PageSize = 100
	}
	if c.SharePoint.Timeout == 0 {
		c.SharePoint.Timeout = 30 * time.Second
	}
	if c.SharePoint.BatchSize == 0 {
		c.SharePoint.BatchSize = 5
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderService
	}
	if c.LLM.Model == "" {
		c.LLM.Model = ModelGPT4oMini
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 5 * time.Minute
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = CompletionReserveTokens
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.LogsRoot == "" {
		c.LogsRoot = "logs"
	}
	if c.ArtifactTTL == 0 {
		c.ArtifactTTL = 24 * time.Hour
	}
	if c.ConflictRetryDelay == 0 {
		c.ConflictRetryDelay = 30 * time.Second
	}
}

// Validate checks the fields required before a refresh may start.
func (c *Config) Validate() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("jira.base_url is required")
	}
	switch c.LLM.Provider {
	case ProviderService:
		if c.LLM.Endpoint == "" {
			return fmt.Errorf("llm.endpoint is required for the service provider")
		}
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
		}
	case ProviderOllama:
		// Local daemon, no key needed.
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

// ContextTokensFor returns the context ceiling for a model.
func ContextTokensFor(model string) int {
	if n, ok := ModelContextTokens[model]; ok {
		return n
	}
	return DefaultContextTokens
}

// Credentials is the explicit per-run credential set assembled from Config
// once at run start. The pipeline never reads the environment after this.
type Credentials struct {
	JiraBaseURL  string
	JiraUsername string
	JiraToken    string
	GraphToken   string
	GoogleCreds  string
	User         string // identity owning logs/{user}/{runId}
	Delegated    bool   // true when acting on behalf of a signed-in user
}

// CredentialsFromConfig builds the per-run credential set for a user.
func CredentialsFromConfig(c *Config, user string, delegated bool) Credentials {
	return Credentials{
		JiraBaseURL:  c.Jira.BaseURL,
		JiraUsername: c.Jira.Username,
		JiraToken:    c.Jira.APIToken,
		GraphToken:   c.SharePoint.AccessToken,
		GoogleCreds:  c.Google.CredentialsFile,
		User:         user,
		Delegated:    delegated,
	}
}
