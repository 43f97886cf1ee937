package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/client"
	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/httputil"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/service"
	"github.com/platinummonkey/apilogin/pkg/signing"
	"github.com/platinummonkey/apilogin/pkg/storage"
	"github.com/platinummonkey/apilogin/pkg/tokens"
	"github.com/platinummonkey/apilogin/pkg/users"
)

const (
	testKey     = "shared-secret"
	testWWWRoot = "https://learn.example.com"
	browserUA   = "Mozilla/5.0 browser"
)

// testEnv is a full bridge on an in-memory sqlite database
type testEnv struct {
	t        *testing.T
	db       *storage.DB
	settings *config.SQLSettings
	users    *users.SQLStore
	sessions *MemorySessions
	metrics  *observability.Metrics
	logs     *bytes.Buffer
	server   *Server
	http     *httptest.Server
	client   *client.Client
}

type envOption func(*Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.Open(ctx, storage.Config{
		Driver:   storage.DriverSQLite,
		URL:      "file:" + name + "?mode=memory&cache=shared",
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var ddl []string
	ddl = append(ddl, users.Schema(db.Driver)...)
	ddl = append(ddl, tokens.Schema(db.Driver)...)
	ddl = append(ddl, config.Schema(db.Driver)...)
	require.NoError(t, storage.ApplySchema(ctx, db, ddl...))

	settings := config.NewSQLSettings(db)
	require.NoError(t, settings.Save(ctx, map[string]string{
		config.KeyAPIKey:      testKey,
		config.KeyAllowIPAddr: "127.0.0.1",
	}))
	require.NoError(t, settings.SaveSite(ctx, map[string]string{
		config.KeyWWWRoot: testWWWRoot,
	}))

	logs := &bytes.Buffer{}
	logger := observability.NewLogger(observability.DebugLevel, logs)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	generator, err := tokens.NewGenerator()
	require.NoError(t, err)

	userStore := users.NewSQLStore(db)
	svc, err := service.New(service.Config{
		Users:     userStore,
		Tokens:    tokens.NewSQLStore(db),
		Settings:  settings,
		Generator: generator,
		Logger:    logger,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	sessions := NewMemorySessions(SessionOptions{})
	cfg := Config{
		Service:      svc,
		Sessions:     sessions,
		Logger:       logger,
		Metrics:      metrics,
		MaxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	c, err := client.New(client.Config{SiteURL: ts.URL, APIKey: testKey})
	require.NoError(t, err)

	return &testEnv{
		t:        t,
		db:       db,
		settings: settings,
		users:    userStore,
		sessions: sessions,
		metrics:  metrics,
		logs:     logs,
		server:   server,
		http:     ts,
		client:   c,
	}
}

func withRateLimit(perSecond float64, burst int) envOption {
	return func(cfg *Config) {
		cfg.RateLimiter = httputil.NewIPRateLimiter(perSecond, burst, 0, 0)
	}
}

func withFallback(h http.Handler) envOption {
	return func(cfg *Config) { cfg.FallbackLogin = h }
}

// setPlugin changes one plugin setting
func (e *testEnv) setPlugin(name, value string) {
	e.t.Helper()
	require.NoError(e.t, e.settings.Save(context.Background(), map[string]string{name: value}))
}

// createUser creates a user through the signed service endpoint
func (e *testEnv) createUser(username, idnumber string) int64 {
	e.t.Helper()
	id, err := e.client.CreateUser(context.Background(), map[string]string{
		"username":  username,
		"firstname": "Test",
		"lastname":  "User",
		"email":     username + "@example.com",
		"idnumber":  idnumber,
		"password":  "correct horse",
	})
	require.NoError(e.t, err)
	return id
}

// loginURL asks for a login token for the browser agent
func (e *testEnv) loginURL(idnumber, redirect string) string {
	e.t.Helper()
	target, err := e.client.LoginURL(context.Background(), idnumber, browserUA, client.LogUserOptions{Redirect: redirect})
	require.NoError(e.t, err)
	return target
}

// browse issues a browser request without following redirects
func (e *testEnv) browse(method, target string, form url.Values, cookies ...*http.Cookie) *http.Response {
	e.t.Helper()

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequest(method, target, strings.NewReader(form.Encode()))
		require.NoError(e.t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequest(method, target, nil)
		require.NoError(e.t, err)
	}
	req.Header.Set("User-Agent", browserUA)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	browser := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := browser.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "APILOGINSESSION" {
			return c
		}
	}
	return nil
}

// signedForm builds a signed service request body
func signedForm(t *testing.T, method string) io.Reader {
	t.Helper()
	params := signing.Params{
		signing.MethodKey: method,
		signing.TimeKey:   strconv.FormatInt(time.Now().Unix(), 10),
	}
	params[signing.SignatureKey] = signing.Sign(params, testKey)
	return strings.NewReader(params.Values().Encode())
}

func testIdentity() *users.Identity {
	return &users.Identity{ID: 7, Username: "jdoe", Auth: users.AuthAPILogin}
}
