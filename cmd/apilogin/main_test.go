package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/signing"
	"github.com/platinummonkey/apilogin/pkg/storage"
	"github.com/platinummonkey/apilogin/pkg/tokens"
)

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		seedSettings, seedWWWRoot, seedAPIKey = false, "", ""
		siteURL, apiKey, userIDField = "", "", ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// useSQLite points the process configuration at a fresh sqlite file
func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apilogin.db")
	t.Setenv("APILOGIN_DB_DRIVER", string(storage.DriverSQLite))
	t.Setenv("APILOGIN_DB_URL", path)
	t.Setenv("APILOGIN_LOG_LEVEL", "error")
	return path
}

func openSQLite(t *testing.T, path string) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{
		Driver:   storage.DriverSQLite,
		URL:      path,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "apilogin version dev")
	assert.Contains(t, out, "Go version:")
}

func TestSchemaCommand_Seed(t *testing.T) {
	path := useSQLite(t)

	out, err := execute(t, "schema", "--seed",
		"--wwwroot", "https://learn.example.com/",
		"--allow-ip", "10.0.0.5", "--allow-ip", "10.0.0.6",
		"--api-key", "seeded-key")
	require.NoError(t, err)
	assert.Equal(t, "API key: seeded-key\n", out)

	// applying twice is harmless
	_, err = execute(t, "schema")
	require.NoError(t, err)

	settings, err := config.NewSQLSettings(openSQLite(t, path)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seeded-key", settings.APIKey)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, settings.AllowIPAddr)
	assert.Equal(t, "https://learn.example.com", settings.WWWRoot)
}

func TestSchemaCommand_SeedRequiresWWWRoot(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "schema", "--seed", "--wwwroot", "")
	assert.EqualError(t, err, "--wwwroot is required")
}

func TestPurgeCommand(t *testing.T) {
	path := useSQLite(t)
	_, err := execute(t, "schema")
	require.NoError(t, err)

	store := tokens.NewSQLStore(openSQLite(t, path))
	require.NoError(t, store.Issue(context.Background(), &tokens.LoginToken{
		Token:     strings.Repeat("a", 32),
		UserID:    3,
		UserAgent: "agent",
		Expires:   time.Now().Add(-time.Minute),
	}))

	out, err := execute(t, "purge")
	require.NoError(t, err)
	assert.Equal(t, "Purged 1 expired login token(s)\n", out)
}

// fakeSite answers signed service calls with reply
func fakeSite(t *testing.T, reply func(params signing.Params) string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		params := signing.FromValues(r.PostForm)
		if !signing.Verify(params.Without(signing.SignatureKey), params[signing.SignatureKey], "cli-key") {
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid signature."}`))
			return
		}
		_, _ = w.Write([]byte(reply(params)))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClientCommand_GetUser(t *testing.T) {
	var got signing.Params
	ts := fakeSite(t, func(params signing.Params) string {
		got = params
		return `{"success":true,"data":{"id":42,"username":"jdoe"}}`
	})

	out, err := execute(t, "client", "get-user", "A-17", "--site", ts.URL, "--key", "cli-key", "--field", "username")
	require.NoError(t, err)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "jdoe", record["username"])
	assert.Equal(t, "getUser", got[signing.MethodKey])
	assert.Equal(t, "A-17", got["userid"])
	assert.Equal(t, "username", got["useridfield"])
}

func TestClientCommand_CreateUser(t *testing.T) {
	var got signing.Params
	ts := fakeSite(t, func(params signing.Params) string {
		got = params
		return `{"success":true,"data":"12"}`
	})

	out, err := execute(t, "client", "create-user", "--site", ts.URL, "--key", "cli-key",
		"--set", "username=jdoe", "--set", "email=jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "12\n", out)
	assert.Equal(t, "jdoe", got["userdata[username]"])
	assert.Equal(t, "jdoe@example.com", got["userdata[email]"])
}

func TestClientCommand_Refused(t *testing.T) {
	ts := fakeSite(t, func(signing.Params) string {
		return `{"success":false,"message":"No user found with idnumber = X."}`
	})

	_, err := execute(t, "client", "suspend-user", "X", "--site", ts.URL, "--key", "cli-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No user found")
}

func TestClientCommand_RequiresSite(t *testing.T) {
	_, err := execute(t, "client", "delete-user", "X", "--site", "", "--key", "cli-key")
	assert.EqualError(t, err, "--site is required")
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: map[string]string{}},
		{name: "pairs", pairs: []string{"username=jdoe", " city = Paris"}, want: map[string]string{"username": "jdoe", "city": " Paris"}},
		{name: "value with equals", pairs: []string{"password=a=b"}, want: map[string]string{"password": "a=b"}},
		{name: "empty value", pairs: []string{"idnumber="}, want: map[string]string{"idnumber": ""}},
		{name: "missing equals", pairs: []string{"username"}, wantErr: true},
		{name: "missing name", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
