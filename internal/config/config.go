package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for wagate.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	Session  SessionConfig  `json:"session"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Phone    PhoneConfig    `json:"phone"`
	Commands CommandsConfig `json:"commands"`
	Media    MediaConfig    `json:"media"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path, rotated
	DataDir  string `json:"dataDir"`
}

type ServerConfig struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	Auth         WebAuth `json:"auth"`
	MaxBodyBytes int64   `json:"maxBodyBytes"`
}

// WebAuth configures HTTP basic auth on the delivery endpoints and the console stream.
type WebAuth struct {
	Enabled      bool   `json:"enabled"`
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"` // hex sha256 of the password
}

// SessionConfig tunes reconnects. Zero values reconnect immediately.
type SessionConfig struct {
	ReconnectBackoff    int `json:"reconnectBackoff"`    // seconds
	MaxReconnectBackoff int `json:"maxReconnectBackoff"` // seconds
}

type WhatsAppConfig struct {
	AccessToken   string `json:"accessToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	AppSecret     string `json:"appSecret,omitempty"`
	APIBase       string `json:"apiBase,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
	DBPath        string `json:"dbPath"`

	MaxRetries        int     `json:"maxRetries"`        // sends answered with 429/5xx; negative disables
	SendRatePerMinute float64 `json:"sendRatePerMinute"` // 0 = unthrottled
	SendBurst         int     `json:"sendBurst"`
}

type PhoneConfig struct {
	CountryCode string `json:"countryCode"`
}

type CommandsConfig struct {
	Enabled     bool   `json:"enabled"`
	RejectCalls bool   `json:"rejectCalls"`
	NoticesPath string `json:"noticesPath,omitempty"` // YAML overrides for the notice catalog
}

type MediaConfig struct {
	MaxBytes        int64  `json:"maxBytes"`
	FetchTimeout    int    `json:"fetchTimeout"` // seconds
	DefaultFilename string `json:"defaultFilename"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfigDir returns the default config directory (~/.wagate).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wagate"
	}
	return filepath.Join(home, ".wagate")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies environment overrides, expands paths and validates cfg.
// Load calls it; callers running on Defaults() without a file call it directly.
func Finalize(cfg *Config) error {
	if err := ApplyEnv(cfg); err != nil {
		return err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.WhatsApp.DBPath = ExpandPath(cfg.WhatsApp.DBPath)
	cfg.Commands.NoticesPath = ExpandPath(cfg.Commands.NoticesPath)

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from well-known environment variables.
// PORT wins over server.port so the service runs unchanged on PaaS hosts.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
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
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// 0600: the file carries the Cloud API token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.Auth.Enabled && (cfg.Server.Auth.Username == "" || cfg.Server.Auth.PasswordHash == "") {
		errs = append(errs, "server.auth requires username and passwordHash when enabled")
	}

	if cfg.Session.ReconnectBackoff < 0 {
		errs = append(errs, "session.reconnectBackoff must be >= 0")
	}
	if cfg.Session.MaxReconnectBackoff < 0 {
		errs = append(errs, "session.maxReconnectBackoff must be >= 0")
	}

	if cfg.WhatsApp.WebhookPath != "" && !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
		errs = append(errs, "whatsapp.webhookPath must start with /")
	}
	if cfg.WhatsApp.SendRatePerMinute < 0 {
		errs = append(errs, "whatsapp.sendRatePerMinute must be >= 0")
	}
	if cfg.WhatsApp.DBPath == "" {
		errs = append(errs, "whatsapp.dbPath is required")
	}

	if cfg.Phone.CountryCode == "" {
		errs = append(errs, "phone.countryCode is required")
	} else if strings.Trim(cfg.Phone.CountryCode, "0123456789") != "" {
		errs = append(errs, "phone.countryCode must contain digits only")
	}

	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Media.FetchTimeout < 1 {
		errs = append(errs, "media.fetchTimeout must be >= 1")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
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
