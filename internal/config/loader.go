package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandReferences resolves ${ENV_VAR} references in fields that commonly
// carry deployment-specific values.
func expandReferences(cfg *Config) {
	cfg.Tunnel.URL = expandEnvVars(cfg.Tunnel.URL)
	cfg.Tunnel.AgentAPI = expandEnvVars(cfg.Tunnel.AgentAPI)
	cfg.Tunnel.Authtoken = expandEnvVars(cfg.Tunnel.Authtoken)
	cfg.Server.StaticDir = expandEnvVars(cfg.Server.StaticDir)
	cfg.Media.UploadDir = expandEnvVars(cfg.Media.UploadDir)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandReferences(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "lan"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "development"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 15 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleLevel == "" {
		cfg.Logging.ConsoleLevel = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = "whatsapp"
	}
	if cfg.Provider.SendRatePerSecond == 0 {
		cfg.Provider.SendRatePerSecond = 2
	}
	if cfg.Provider.SendBurst == 0 {
		cfg.Provider.SendBurst = 5
	}
	if cfg.Media.URLPrefix == "" {
		cfg.Media.URLPrefix = "/uploads"
	}
	if cfg.Media.ImageMaxWidth == 0 {
		cfg.Media.ImageMaxWidth = 800
	}
	if cfg.Media.JPEGQuality == 0 {
		cfg.Media.JPEGQuality = 80
	}
	if cfg.Bot.KeywordDelayMs == 0 {
		cfg.Bot.KeywordDelayMs = 1500
	}
	if cfg.Bot.GreetingDelayMs == 0 {
		cfg.Bot.GreetingDelayMs = 1000
	}
	if cfg.Session.ReconnectDelayMs == 0 {
		cfg.Session.ReconnectDelayMs = 5000
	}
	if cfg.Session.AuthFailureDelayMs == 0 {
		cfg.Session.AuthFailureDelayMs = 10000
	}
	if cfg.Session.InitErrorDelayMs == 0 {
		cfg.Session.InitErrorDelayMs = 10000
	}
	if cfg.Session.HistoryLimit == 0 {
		cfg.Session.HistoryLimit = 50
	}
	if cfg.Session.ChatListLimit == 0 {
		cfg.Session.ChatListLimit = 30
	}
	if cfg.Session.CallTimeoutMs == 0 {
		cfg.Session.CallTimeoutMs = 30000
	}
	if cfg.Tunnel.Kind == "" {
		cfg.Tunnel.Kind = "none"
	}
	if cfg.Tunnel.AgentAPI == "" {
		cfg.Tunnel.AgentAPI = "http://127.0.0.1:4040"
	}
	if cfg.Tunnel.PollIntervalMs == 0 {
		cfg.Tunnel.PollIntervalMs = 2000
	}
	if cfg.Tunnel.Attempts == 0 {
		cfg.Tunnel.Attempts = 15
	}
}

// applyEnvOverrides reads WADESK_* environment variables and overrides config
// values. PORT and NODE_ENV are honored for existing deployments.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WADESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WADESK_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("NODE_ENV"); v == "production" {
		cfg.Server.Mode = "production"
	}
	if v := os.Getenv("WADESK_MODE"); v != "" {
		cfg.Server.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("WADESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("WADESK_TUNNEL_URL"); v != "" {
		cfg.Tunnel.Kind = "static"
		cfg.Tunnel.URL = v
	}
}
