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
		{"single segment", "api", []string{"api"}, false},
		{"two segments", "api.baseUrl", []string{"api", "baseUrl"}, false},
		{"three segments", "hooks.streamEnd.0", []string{"hooks", "streamEnd", "0"}, false},
		{"empty", "", nil, true},
		{"empty segment", "api..baseUrl", nil, true},
		{"leading dot", ".api", nil, true},
		{"trailing dot", "api.", nil, true},
		{"blocked token", "auth.token", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetSetUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"api": map[string]any{
			"baseUrl": "http://localhost:8000",
			"burst":   5,
		},
		"simple": "value",
	}

	val, ok := GetValueAtPath(root, []string{"api", "baseUrl"})
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:8000", val)

	_, ok = GetValueAtPath(root, []string{"simple", "sub"})
	assert.False(t, ok, "non-map intermediate")

	SetValueAtPath(root, []string{"chat", "render"}, "plain")
	val, ok = GetValueAtPath(root, []string{"chat", "render"})
	assert.True(t, ok)
	assert.Equal(t, "plain", val)

	SetValueAtPath(root, []string{"simple", "nested"}, 1)
	val, ok = GetValueAtPath(root, []string{"simple", "nested"})
	assert.True(t, ok, "scalar intermediate is replaced by a map")
	assert.Equal(t, 1, val)

	assert.True(t, UnsetValueAtPath(root, []string{"api", "burst"}))
	_, ok = GetValueAtPath(root, []string{"api", "burst"})
	assert.False(t, ok)
	assert.False(t, UnsetValueAtPath(root, []string{"api", "burst"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "key"}))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{"api": map[string]any{"burst": 9}}
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"api", "burst"})
	assert.True(t, ok)
	assert.Equal(t, 9, val)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestResolvePathsCustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("AGENTDESK_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(tmp, "credentials", "token"), paths.TokenFile)
	assert.Equal(t, filepath.Join(tmp, "data", "agentdesk.db"), paths.Database)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("AGENTDESK_HOME", t.TempDir())

	paths, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())

	for _, d := range []string{paths.Credentials, paths.Logs, paths.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
