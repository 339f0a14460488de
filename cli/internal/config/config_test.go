package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_WithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `current_profile: staging
profiles:
  staging:
    server_url: https://investigate.staging.example.com
    token: abc123
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.CurrentProfile)
	require.Contains(t, cfg.Profiles, "staging")
	assert.Equal(t, "https://investigate.staging.example.com", cfg.Profiles["staging"].ServerURL)
	assert.Equal(t, "abc123", cfg.Profiles["staging"].Token)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: [unclosed"), 0600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("prod", "https://inv.example.com", "tok"))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "prod", reloaded.CurrentProfile)

	p, err := reloaded.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "https://inv.example.com", p.ServerURL)
	assert.Equal(t, "tok", p.Token)
}

func TestRemoveProfile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("prod", "https://inv.example.com", ""))

	require.NoError(t, cfg.RemoveProfile("prod"))
	assert.Empty(t, cfg.CurrentProfile)
	assert.ErrorIs(t, cfg.RemoveProfile("prod"), ErrProfileNotFound)
}

func TestSaveProfile_RejectsBadURL(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	for _, u := range []string{"", "localhost:8090", "ftp://inv.example.com", "http://"} {
		assert.Error(t, cfg.SaveProfile("bad", u, ""), u)
	}
	assert.Empty(t, cfg.Profiles)
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Profiles["prod"] = &Profile{ServerURL: "https://inv.example.com", Token: "tok"}
	cfg.Profiles["bare"] = &Profile{Token: "only-token"}

	tests := []struct {
		name      string
		profile   string
		wantURL   string
		wantToken string
	}{
		{"configured profile", "prod", "https://inv.example.com", "tok"},
		{"profile without url", "bare", DefaultServerURL, "only-token"},
		{"unknown profile", "missing", DefaultServerURL, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, token := cfg.Resolve(tt.profile)
			assert.Equal(t, tt.wantURL, url)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
