package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeTempYAML(t, `
server:
  admin_addr: ":9090"
bridge:
  url: "ws://example/ws"
executor:
  listen_addr: ":9001"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.AdminAddr)
	assert.Equal(t, "ws://example/ws", cfg.Bridge.URL)
	assert.Equal(t, ":9001", cfg.Executor.ListenAddr)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := writeTempYAML(t, `
bridge:
  url: "ws://from-yaml/ws"
`)
	t.Setenv("BRIDGE_URL", "ws://from-env/ws")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "ws://from-env/ws", cfg.Bridge.URL)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadPromptsFromInline(t *testing.T) {
	ps, err := LoadPrompts(PromptsConfig{Inline: map[string]string{"classifier": "classify this"}})
	require.NoError(t, err)
	assert.Equal(t, "classify this", ps.Prompt("classifier"))
	assert.Equal(t, "", ps.Prompt("missing"))
}

func TestLoadPromptsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("git: \"summarize the readme\"\n"), 0o644))

	ps, err := LoadPrompts(PromptsConfig{Path: path})

	require.NoError(t, err)
	assert.Equal(t, "summarize the readme", ps.Prompt("git"))
}
