package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "server", []string{"server"}, false},
		{"two segments", "server.port", []string{"server", "port"}, false},
		{"three segments", "tunnel.agentApi.host", []string{"tunnel", "agentApi", "host"}, false},
		{"empty", "", nil, true},
		{"blank", "  ", nil, true},
		{"empty segment", "server..port", nil, true},
		{"leading dot", ".server", nil, true},
		{"trailing dot", "server.", nil, true},
		{"blocked __proto__", "foo.__proto__.bar", nil, true},
		{"blocked prototype", "prototype.x", nil, true},
		{"blocked constructor", "constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGetValueAtPath(t *testing.T) {
	root := map[string]any{
		"server": map[string]any{
			"port": 3000,
			"limits": map[string]any{
				"maxUploadBytes": 1024,
			},
		},
		"simple": "value",
	}

	tests := []struct {
		name string
		path []string
		want any
		ok   bool
	}{
		{"nested value", []string{"server", "port"}, 3000, true},
		{"deeply nested", []string{"server", "limits", "maxUploadBytes"}, 1024, true},
		{"top level", []string{"simple"}, "value", true},
		{"missing key", []string{"nonexistent"}, nil, false},
		{"missing nested", []string{"server", "nonexistent"}, nil, false},
		{"non-map intermediate", []string{"simple", "sub"}, nil, false},
		{"missing intermediate", []string{"tunnel", "agentApi", "host"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := GetValueAtPath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, val)
			}
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	tests := []struct {
		name string
		root map[string]any
		path []string
	}{
		{"update", map[string]any{"server": map[string]any{"port": 3000}}, []string{"server", "port"}},
		{"creates intermediates", map[string]any{}, []string{"tunnel", "agentApi", "host"}},
		{"replaces non-map", map[string]any{"server": "lan"}, []string{"server", "port"}},
		{"single key", map[string]any{}, []string{"version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetValueAtPath(tt.root, tt.path, 9999)
			val, ok := GetValueAtPath(tt.root, tt.path)
			assert.True(t, ok)
			assert.Equal(t, 9999, val)
		})
	}
}

func TestUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"server": map[string]any{"port": 3000, "mode": "production"},
		"bind":   "lan",
	}

	assert.True(t, UnsetValueAtPath(root, []string{"server", "port"}))
	_, found := GetValueAtPath(root, []string{"server", "port"})
	assert.False(t, found)
	val, found := GetValueAtPath(root, []string{"server", "mode"})
	assert.True(t, found)
	assert.Equal(t, "production", val)

	assert.False(t, UnsetValueAtPath(root, []string{"server", "port"}), "already gone")
	assert.False(t, UnsetValueAtPath(root, []string{"a", "b", "c"}))
	assert.False(t, UnsetValueAtPath(root, []string{"bind", "host"}))
}

func TestResolvePaths_AllFields(t *testing.T) {
	t.Setenv("WADESK_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".wadesk")
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(base, "bot-config.json"), paths.BotConfig)
	assert.Equal(t, filepath.Join(base, "data"), paths.Data)
	assert.Equal(t, filepath.Join(base, "uploads"), paths.Uploads)
	assert.Equal(t, filepath.Join(base, "logs"), paths.Logs)
}

func TestResolvePaths_CustomHome(t *testing.T) {
	t.Setenv("WADESK_HOME", "/tmp/wadesk-test")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/wadesk-test", paths.Base)
	assert.Equal(t, "/tmp/wadesk-test/config.yaml", paths.Config)
	assert.Equal(t, "/tmp/wadesk-test/bot-config.json", paths.BotConfig)
	assert.Equal(t, "/tmp/wadesk-test/uploads", paths.Uploads)
}

func testPaths(dir string) Paths {
	return Paths{
		Base:      dir,
		Config:    filepath.Join(dir, "config.yaml"),
		BotConfig: filepath.Join(dir, "bot-config.json"),
		Data:      filepath.Join(dir, "data"),
		Uploads:   filepath.Join(dir, "uploads"),
		Logs:      filepath.Join(dir, "logs"),
	}
}

func TestEnsureDirs_CreatesAll(t *testing.T) {
	paths := testPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirs())

	for _, dir := range []string{paths.Base, paths.Data, paths.Uploads, paths.Logs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirs_Idempotent(t *testing.T) {
	paths := testPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs())
}

func TestFillLocations(t *testing.T) {
	paths := testPaths("/srv/wadesk")
	cfg := Defaults()
	paths.FillLocations(&cfg)

	assert.Equal(t, "/srv/wadesk/uploads", cfg.Media.UploadDir)
	assert.Equal(t, "/srv/wadesk/bot-config.json", cfg.Bot.ConfigFile)
	assert.Equal(t, "/srv/wadesk/data/session.db", cfg.Provider.SessionDB)
	assert.Equal(t, "/srv/wadesk/data/journal.db", cfg.Provider.JournalDB)
}

func TestFillLocations_KeepsExplicit(t *testing.T) {
	paths := testPaths("/srv/wadesk")
	cfg := Defaults()
	cfg.Media.UploadDir = "/var/media"
	cfg.Provider.SessionDB = "/var/lib/session.db"
	paths.FillLocations(&cfg)

	assert.Equal(t, "/var/media", cfg.Media.UploadDir)
	assert.Equal(t, "/var/lib/session.db", cfg.Provider.SessionDB)
	assert.Equal(t, "/srv/wadesk/data/journal.db", cfg.Provider.JournalDB)
}
