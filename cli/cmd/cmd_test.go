package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/config"
)

func TestCommandsRegistered(t *testing.T) {
	registered := map[string]*cobra.Command{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = c
	}

	for _, name := range []string{"investigations", "timeline", "entities", "seed", "profile"} {
		assert.Contains(t, registered, name)
	}

	subcommands := func(parent *cobra.Command) []string {
		var out []string
		for _, c := range parent.Commands() {
			out = append(out, c.Name())
		}
		return out
	}
	assert.ElementsMatch(t,
		[]string{"list", "get", "link", "update", "analyze", "escalate", "verify"},
		subcommands(investigationsCmd))
	assert.ElementsMatch(t,
		[]string{"get", "linked", "investigation", "export"},
		subcommands(timelineCmd))
}

func TestParseEntities(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    []string
		wantErr bool
	}{
		{"single", []string{"wallet:0xabc"}, []string{"wallet=0xabc"}, false},
		{"value with colons", []string{"IP:2001:db8::1"}, []string{"ip=2001:db8::1"}, false},
		{"missing separator", []string{"wallet"}, nil, true},
		{"empty value", []string{"email:"}, nil, true},
		{"none", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEntities(tt.specs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var flat []string
			for _, e := range got {
				flat = append(flat, e.Type+"="+e.Value)
			}
			assert.Equal(t, tt.want, flat)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

// runCLI executes the root command against args with a fresh config file.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	return rootCmd.Execute()
}

// resetFlags restores flag defaults between executions of the shared tree.
func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestLinkCommand(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/investigations/link", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"id":"inv-1","human_code":"INV-20240301-ABCDEF"}}`))
	}))
	defer server.Close()

	err := runCLI(t, "--server", server.URL, "--token", "secret", "-o", "json",
		"investigations", "link", "-e", "wallet:0xabc", "-e", "ip:203.0.113.7", "--title", "Giveaway scam")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Len(t, got["entities"], 2)
	assert.Equal(t, "Giveaway scam", got["metadata"].(map[string]interface{})["title"])
}

func TestUpdateCommand_SendsOnlyChangedFields(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"id":"inv-1","status":"closed"}}`))
	}))
	defer server.Close()

	err := runCLI(t, "--server", server.URL, "-o", "json",
		"investigations", "update", "inv-1", "--status", "closed", "--resolution", "false_positive")
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"status": "closed", "resolution": "false_positive"}, got)
}

func TestVerifyCommand_FailsOnBrokenChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"investigation_id":"inv-1","entries":3,"valid":false,"broken_at":2}}`))
	}))
	defer server.Close()

	err := runCLI(t, "--server", server.URL, "investigations", "verify", "inv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed verification")
}

func TestExportCommand_WritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="timeline_CASE-1.csv"`)
		w.Write([]byte("Sequence,Timestamp\n"))
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "export.csv")
	err := runCLI(t, "--server", server.URL, "timeline", "export", "--case", "CASE-1", "--format", "csv", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Sequence,Timestamp"))
}

func TestSeedCommand_DryRunDoesNotCallServer(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	err := runCLI(t, "--server", server.URL, "seed", "--entities", "3", "--seed", "9", "--dry-run")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestProfileSet(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	rootCmd.SetArgs([]string{"--config", cfgPath, "--server", "https://inv.example.com", "profile", "set", "prod"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	require.NoError(t, rootCmd.Execute())

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "prod", saved.CurrentProfile)
	assert.Equal(t, "https://inv.example.com", saved.Profiles["prod"].ServerURL)
}
