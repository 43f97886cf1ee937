package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/signing"
	"github.com/platinummonkey/apilogin/pkg/tokens"
	"github.com/platinummonkey/apilogin/pkg/users"
)

const (
	testKey    = "shared-secret"
	testIP     = "10.0.0.5"
	testAgent  = "Mozilla/5.0 test"
	signedTime = "1700000000"
)

var testNow = time.Unix(1_700_000_000, 0)

// memUsers is an in-memory users.Store
type memUsers struct {
	mu     sync.Mutex
	rows   map[int64]map[string]interface{}
	nextID int64
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[int64]map[string]interface{}), nextID: 1}
}

func (m *memUsers) add(values map[string]interface{}) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	row := map[string]interface{}{
		"id": id, "auth": "manual", "deleted": 0, "suspended": 0,
		"username": "", "email": "", "idnumber": "", "password": "",
	}
	for k, v := range values {
		row[k] = v
	}
	m.rows[id] = row
	return id
}

func (m *memUsers) row(id int64) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func identityOf(row map[string]interface{}) *users.Identity {
	return &users.Identity{
		ID:        row["id"].(int64),
		Auth:      str(row["auth"]),
		Username:  str(row["username"]),
		Email:     str(row["email"]),
		IDNumber:  str(row["idnumber"]),
		Deleted:   str(row["deleted"]) == "1",
		Suspended: str(row["suspended"]) == "1",
	}
}

func (m *memUsers) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memUsers) Resolve(ctx context.Context, field users.LookupField, value string) (*users.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, id := range m.sortedIDs() {
		if str(m.rows[id][string(field)]) == value {
			return identityOf(m.rows[id]), nil
		}
	}
	return nil, users.ErrNotFound
}

func project(row map[string]interface{}, fields []string) users.Record {
	record := users.Record{}
	for _, name := range users.ReadableFields(fields) {
		if v, ok := row[name]; ok {
			record[name] = v
		}
	}
	return record
}

func (m *memUsers) Get(ctx context.Context, id int64, fields []string) (users.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return project(row, fields), nil
}

func (m *memUsers) List(ctx context.Context, fields []string) ([]users.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []users.Record{}
	for _, id := range m.sortedIDs() {
		if str(m.rows[id]["deleted"]) != "1" {
			out = append(out, project(m.rows[id], fields))
		}
	}
	return out, nil
}

func (m *memUsers) FindConflicts(ctx context.Context, username, email, idnumber string) ([]users.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []users.Identity
	for _, id := range m.sortedIDs() {
		ident := identityOf(m.rows[id])
		if ident.Username == username || ident.Email == email || (idnumber != "" && ident.IDNumber == idnumber) {
			found = append(found, *ident)
		}
	}
	return found, nil
}

func (m *memUsers) Insert(ctx context.Context, values map[string]string) (int64, error) {
	row := make(map[string]interface{}, len(values))
	for k, v := range values {
		row[k] = v
	}
	return m.add(row), nil
}

func (m *memUsers) Update(ctx context.Context, id int64, values map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return users.ErrNotFound
	}
	for k, v := range values {
		row[k] = v
	}
	return nil
}

func (m *memUsers) PasswordHash(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return "", users.ErrNotFound
	}
	return str(row["password"]), nil
}

// memTokens is an in-memory tokens.Store
type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*tokens.LoginToken
	err    error
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]*tokens.LoginToken)}
}

func (m *memTokens) Issue(ctx context.Context, t *tokens.LoginToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for key, existing := range m.tokens {
		if existing.UserID == t.UserID {
			delete(m.tokens, key)
		}
	}
	copied := *t
	m.tokens[t.Token] = &copied
	return nil
}

func (m *memTokens) Claim(ctx context.Context, token string) (*tokens.LoginToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tokens[token]
	if !ok {
		return nil, tokens.ErrNotFound
	}
	delete(m.tokens, token)
	return t, nil
}

func (m *memTokens) Purge(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// staticSettings serves fixed settings
type staticSettings struct {
	settings *config.Settings
	err      error
}

func (s *staticSettings) Load(ctx context.Context) (*config.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.settings
	return &copied, nil
}

type fixture struct {
	svc      *Service
	users    *memUsers
	tokens   *memTokens
	settings *staticSettings
	metrics  *observability.Metrics
	logs     *bytes.Buffer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	generator, err := tokens.NewGenerator()
	require.NoError(t, err)

	f := &fixture{
		users:  newMemUsers(),
		tokens: newMemTokens(),
		settings: &staticSettings{settings: &config.Settings{
			APIKey:      testKey,
			AllowIPAddr: []string{"127.0.0.1", testIP},
			SiteGuest:   1,
			SiteAdmins:  []int64{2},
			WWWRoot:     "https://learn.example.com",
		}},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
		now:     testNow,
	}

	f.svc, err = New(Config{
		Users:     f.users,
		Tokens:    f.tokens,
		Settings:  f.settings,
		Generator: generator,
		Clock:     func() time.Time { return f.now },
		Logger:    observability.NewLogger(observability.DebugLevel, f.logs),
		Metrics:   f.metrics,
	})
	require.NoError(t, err)

	f.users.add(map[string]interface{}{"username": "guest", "email": "root@localhost"})
	f.users.add(map[string]interface{}{"username": "admin", "email": "admin@example.com"})
	return f
}

// addUser creates a regular account and returns its id
func (f *fixture) addUser(username, email, idnumber string) int64 {
	return f.users.add(map[string]interface{}{
		"username": username, "email": email, "idnumber": idnumber,
		"firstname": "Jane", "lastname": "Doe", "city": "Portland",
		"password": "$2a$10$notarealhash", "secret": "s3cr3t",
	})
}

// sign builds a signed request for method
func sign(method string, extra signing.Params) signing.Params {
	p := signing.Params{signing.MethodKey: method, signing.TimeKey: signedTime}
	p.Merge(extra)
	p[signing.SignatureKey] = signing.Sign(p, testKey)
	return p
}

func (f *fixture) call(method string, extra signing.Params) Response {
	return f.svc.Handle(context.Background(), RequestContext{RemoteAddr: testIP, UserAgent: "caller"}, sign(method, extra))
}

var errBoom = errors.New("boom")
