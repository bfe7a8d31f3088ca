package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const defaultBaseDir = ".wadesk"

// Paths holds resolved filesystem paths for wadesk data.
type Paths struct {
	Base      string // ~/.wadesk
	Config    string // ~/.wadesk/config.yaml
	BotConfig string // ~/.wadesk/bot-config.json
	Data      string // ~/.wadesk/data
	Uploads   string // ~/.wadesk/uploads
	Logs      string // ~/.wadesk/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If WADESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("WADESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:      base,
		Config:    filepath.Join(base, "config.yaml"),
		BotConfig: filepath.Join(base, "bot-config.json"),
		Data:      filepath.Join(base, "data"),
		Uploads:   filepath.Join(base, "uploads"),
		Logs:      filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Uploads, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// FillLocations points unset file locations in cfg at the standard paths.
func (p Paths) FillLocations(cfg *Config) {
	if cfg.Media.UploadDir == "" {
		cfg.Media.UploadDir = p.Uploads
	}
	if cfg.Bot.ConfigFile == "" {
		cfg.Bot.ConfigFile = p.BotConfig
	}
	if cfg.Provider.SessionDB == "" {
		cfg.Provider.SessionDB = filepath.Join(p.Data, "session.db")
	}
	if cfg.Provider.JournalDB == "" {
		cfg.Provider.JournalDB = filepath.Join(p.Data, "journal.db")
	}
}

// blockedKeys never appear in a config path. Dashboards written in JS read
// the same file.
var blockedKeys = []string{"__proto__", "prototype", "constructor"}

// ParseConfigPath splits a dotted key such as "bot.keywordDelayMs".
func ParseConfigPath(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		switch {
		case p == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case slices.Contains(blockedKeys, p):
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// parentOf walks root along all but the last segment of path and returns
// the map holding the final key. With create set, missing or non-map
// intermediate values are replaced by empty maps.
func parentOf(root map[string]any, path []string, create bool) (map[string]any, bool) {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	return current, true
}

// GetValueAtPath returns the value at path in a nested map.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return root, true
	}
	parent, ok := parentOf(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath sets the value at path, creating intermediate maps.
func SetValueAtPath(root map[string]any, path []string, value any) {
	parent, _ := parentOf(root, path, true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath removes the value at path and reports whether it existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	parent, ok := parentOf(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}
