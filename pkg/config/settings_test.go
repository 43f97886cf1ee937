package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, SplitList("10.0.0.1 , 10.0.0.2;10.0.0.3"))
	assert.Equal(t, []string{"a"}, SplitList(" a ; "))
	assert.Empty(t, SplitList(""))
	assert.Empty(t, SplitList("  "))
}

func TestFromMap(t *testing.T) {
	s, err := FromMap(map[string]string{
		KeyAPIKey:        " k ",
		KeyAllowIPAddr:   "127.0.0.1; 10.0.0.1",
		KeyLoginRedirect: "https://portal.example.com/login",
		KeyMaxRequestAge: "300",
		KeySiteGuest:     "1",
		KeySiteAdmins:    "2,5",
		KeyWWWRoot:       "https://learn.example.com/",
	})
	require.NoError(t, err)

	assert.Equal(t, "k", s.APIKey)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.1"}, s.AllowIPAddr)
	assert.Equal(t, 5*time.Minute, s.MaxRequestAge)
	assert.Equal(t, int64(1), s.SiteGuest)
	assert.Equal(t, []int64{2, 5}, s.SiteAdmins)
	assert.Equal(t, "https://learn.example.com", s.WWWRoot)
	assert.Equal(t, "https://learn.example.com/my/", s.DashboardURL())
}

func TestFromMap_Errors(t *testing.T) {
	_, err := FromMap(map[string]string{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = FromMap(map[string]string{KeyAPIKey: "k", KeyMaxRequestAge: "soon"})
	assert.Error(t, err)

	_, err = FromMap(map[string]string{KeyAPIKey: "k", KeySiteAdmins: "2,x"})
	assert.Error(t, err)

	_, err = FromMap(map[string]string{KeyAPIKey: "k", KeySiteGuest: "guest"})
	assert.Error(t, err)
}

func TestSettings_IPAllowed(t *testing.T) {
	s := &Settings{AllowIPAddr: []string{"10.0.0.1"}}
	assert.True(t, s.IPAllowed("10.0.0.1"))
	assert.False(t, s.IPAllowed("10.0.0.2"))

	empty := &Settings{}
	assert.False(t, empty.IPAllowed("10.0.0.1"))
	assert.False(t, empty.IPAllowed(""))
}

func TestSettings_Accounts(t *testing.T) {
	s := &Settings{SiteGuest: 1, SiteAdmins: []int64{2}}
	assert.True(t, s.IsGuest(1, "anyone"))
	assert.True(t, s.IsGuest(9, "guest"))
	assert.False(t, s.IsGuest(9, "jdoe"))
	assert.True(t, s.IsSiteAdmin(2))
	assert.False(t, s.IsSiteAdmin(3))

	noGuest := &Settings{}
	assert.False(t, noGuest.IsGuest(0, "jdoe"))
}

func TestSettings_URLHooks(t *testing.T) {
	s := &Settings{WWWRoot: "https://learn.example.com"}
	assert.True(t, s.CanChangePassword())
	assert.True(t, s.CanEditProfile())

	s.PasswordURL = "/password/reset"
	s.ProfileURL = "https://id.example.com/profile"
	assert.False(t, s.CanChangePassword())
	assert.False(t, s.CanEditProfile())
	assert.Equal(t, "https://learn.example.com/password/reset", s.ResolveURL(s.PasswordURL))
	assert.Equal(t, "https://id.example.com/profile", s.ResolveURL(s.ProfileURL))
	assert.Equal(t, "", s.ResolveURL(""))
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestParseYAML(t *testing.T) {
	s, err := ParseYAML([]byte(`
apikey: secret
allowipaddr:
  - 10.0.0.5
  - 10.0.0.6
siteguest: 1
siteadmins: "2"
maxrequestage: 60
wwwroot: https://learn.example.com
`))
	require.NoError(t, err)
	assert.Equal(t, "secret", s.APIKey)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, s.AllowIPAddr)
	assert.Equal(t, int64(1), s.SiteGuest)
	assert.Equal(t, []int64{2}, s.SiteAdmins)
	assert.Equal(t, time.Minute, s.MaxRequestAge)
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML([]byte(""))
	assert.ErrorIs(t, err, ErrNoSettings)

	_, err = ParseYAML([]byte("apikey: [unterminated"))
	assert.Error(t, err)
}

func TestFileSettings_RereadsOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apikey: first\nallowipaddr: 10.0.0.1\n"), 0o600))

	reader := NewFileSettings(path)
	s, err := reader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", s.APIKey)

	require.NoError(t, os.WriteFile(path, []byte("apikey: second\n"), 0o600))
	s, err = reader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", s.APIKey)
	assert.Empty(t, s.AllowIPAddr)
}

func TestFileSettings_MissingFile(t *testing.T) {
	_, err := NewFileSettings(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func newMockSettings(t *testing.T) (*SQLSettings, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLSettings(storage.Wrap(db, storage.DriverPostgres)), mock
}

func TestSQLSettings_Load(t *testing.T) {
	reader, mock := newMockSettings(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, value FROM config_plugins WHERE plugin = $1")).
		WithArgs(PluginName).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("apikey", "k").
			AddRow("allowipaddr", "127.0.0.1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, value FROM config WHERE name IN ($1, $2, $3)")).
		WithArgs("siteguest", "siteadmins", "wwwroot").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("siteguest", "1").
			AddRow("siteadmins", "2").
			AddRow("wwwroot", "https://learn.example.com"))

	s, err := reader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", s.APIKey)
	assert.Equal(t, []string{"127.0.0.1"}, s.AllowIPAddr)
	assert.Equal(t, int64(1), s.SiteGuest)
	assert.Equal(t, []int64{2}, s.SiteAdmins)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSettings_Load_NoRows(t *testing.T) {
	reader, mock := newMockSettings(t)

	mock.ExpectQuery("SELECT name, value FROM config_plugins").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}))

	_, err := reader.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSettings)
}

func TestSQLSettings_Load_DatabaseError(t *testing.T) {
	reader, mock := newMockSettings(t)

	mock.ExpectQuery("SELECT name, value FROM config_plugins").
		WillReturnError(errors.New("connection refused"))

	_, err := reader.Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSettings)
}

func TestSQLSettings_Save(t *testing.T) {
	reader, mock := newMockSettings(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO config_plugins (.+) ON CONFLICT \\(plugin, name\\)").
		WithArgs(PluginName, "apikey", "k").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, reader.Save(context.Background(), map[string]string{"apikey": "k"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSettings_SaveSite(t *testing.T) {
	reader, mock := newMockSettings(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO config \\(name, value\\) (.+) ON CONFLICT \\(name\\)").
		WithArgs("wwwroot", "https://learn.example.com").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, reader.SaveSite(context.Background(), map[string]string{"wwwroot": "https://learn.example.com"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
