package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ragdesk/internal/domain"
)

// Config is the root configuration for ragdesk.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Backend  BackendConfig  `json:"backend"`
	Agent    AgentConfig    `json:"agent"`
	Channels ChannelsConfig `json:"channels"`
	Browser  BrowserConfig  `json:"browser"`
	Journal  JournalConfig  `json:"journal"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel      string `json:"logLevel"`
	NotifyUploads bool   `json:"notifyUploads"` // show uploading/uploaded status around file uploads
}

// BackendConfig points at the remote assistant.
type BackendConfig struct {
	BaseURL        string          `json:"baseURL"`
	TimeoutSeconds int             `json:"timeoutSeconds"`
	Endpoints      EndpointsConfig `json:"endpoints"`
}

type EndpointsConfig struct {
	Send       string `json:"send"`
	UploadFile string `json:"uploadFile"`
	UploadText string `json:"uploadText"`
	Scrape     string `json:"scrape"`
	Plan       string `json:"plan"`
	Health     string `json:"health"`
}

// AgentConfig is the agent configuration a session starts with.
type AgentConfig struct {
	VectorDB      string `json:"vectordb"`
	RetrieverType string `json:"retrieverType"`
	ParserType    string `json:"parserType"`
}

// Domain converts the file form into the value passed with every action.
func (a AgentConfig) Domain() domain.AgentConfig {
	return domain.AgentConfig{
		RetrievalBackend:  domain.RetrievalBackend(a.VectorDB),
		RetrieverStrategy: domain.RetrieverStrategy(a.RetrieverType),
		ParserStrategy:    domain.ParserStrategy(a.ParserType),
	}
}

type ChannelsConfig struct {
	CLI      CLIConfig      `json:"cli"`
	Telegram TelegramConfig `json:"telegram"`
}

type CLIConfig struct {
	Color bool `json:"color"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// BrowserConfig configures page rendering for /render.
type BrowserConfig struct {
	Enabled        bool   `json:"enabled"`
	Headless       bool   `json:"headless"`
	ProfileDir     string `json:"profileDir,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// JournalConfig configures the SQLite dispatch journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.ragdesk).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragdesk"
	}
	return filepath.Join(home, ".ragdesk")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML config file, overlays it onto the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// json struct tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or as YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("cannot marshal config as yaml: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.baseURL must be an absolute http(s) URL (got %q)", cfg.Backend.BaseURL))
	}
	if cfg.Backend.TimeoutSeconds < 1 || cfg.Backend.TimeoutSeconds > 3600 {
		errs = append(errs, "backend.timeoutSeconds must be between 1 and 3600")
	}
	for name, ep := range map[string]string{
		"send": cfg.Backend.Endpoints.Send, "uploadFile": cfg.Backend.Endpoints.UploadFile,
		"uploadText": cfg.Backend.Endpoints.UploadText, "scrape": cfg.Backend.Endpoints.Scrape,
		"plan": cfg.Backend.Endpoints.Plan, "health": cfg.Backend.Endpoints.Health,
	} {
		if !strings.HasPrefix(ep, "/") {
			errs = append(errs, fmt.Sprintf("backend.endpoints.%s must start with '/'", name))
		}
	}

	if err := cfg.Agent.Domain().Validate(); err != nil {
		errs = append(errs, "agent: "+err.Error())
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	switch cfg.Channels.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		errs = append(errs, "channels.telegram.parseMode must be one of: Markdown, MarkdownV2, HTML")
	}

	if cfg.Browser.TimeoutSeconds < 1 {
		errs = append(errs, "browser.timeoutSeconds must be >= 1")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}
	if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with '/'")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
