package tokens

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

func newMockSQLStore(t *testing.T, driver storage.Driver) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(storage.Wrap(db, driver)), mock
}

func TestSQLStore_Issue_Upserts(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverPostgres)
	expires := time.Unix(1_700_000_300, 0)

	mock.ExpectExec("INSERT INTO apilogin_tokens (.+) ON CONFLICT \\(userid\\) DO UPDATE").
		WithArgs("abc", int64(42), "UA-1", expires.Unix(), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Issue(context.Background(), &LoginToken{
		Token:     "abc",
		UserID:    42,
		UserAgent: "UA-1",
		Expires:   expires,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Issue_SQLitePlaceholders(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverSQLite)

	mock.ExpectExec(regexp.QuoteMeta("VALUES (?1, ?2, ?3, ?4, ?5)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Issue(context.Background(), &LoginToken{Token: "abc", UserID: 1, Expires: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Issue_Error(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverPostgres)

	mock.ExpectExec("INSERT INTO apilogin_tokens").
		WillReturnError(errors.New("connection reset"))

	err := store.Issue(context.Background(), &LoginToken{Token: "abc", UserID: 1, Expires: time.Now()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to issue login token")
}

func TestSQLStore_Claim(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverPostgres)

	mock.ExpectQuery("DELETE FROM apilogin_tokens\\s+WHERE token = \\$1\\s+RETURNING userid, useragent, expires, redirect").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"userid", "useragent", "expires", "redirect"}).
			AddRow(int64(42), "UA-1", int64(1_700_000_300), "/my/courses"))

	tok, err := store.Claim(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Token)
	assert.Equal(t, int64(42), tok.UserID)
	assert.Equal(t, "UA-1", tok.UserAgent)
	assert.Equal(t, time.Unix(1_700_000_300, 0), tok.Expires)
	assert.Equal(t, "/my/courses", tok.Redirect)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Claim_SecondClaimMisses(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverPostgres)
	cols := []string{"userid", "useragent", "expires", "redirect"}

	mock.ExpectQuery("DELETE FROM apilogin_tokens").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(42), "UA-1", int64(1_700_000_300), nil))
	mock.ExpectQuery("DELETE FROM apilogin_tokens").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cols))

	first, err := store.Claim(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "", first.Redirect)

	_, err = store.Claim(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Purge(t *testing.T) {
	store, mock := newMockSQLStore(t, storage.DriverPostgres)
	now := time.Unix(1_700_000_000, 0)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM apilogin_tokens WHERE expires <= $1")).
		WithArgs(now.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Purge(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema(t *testing.T) {
	stmts := Schema(storage.DriverPostgres)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "CREATE UNIQUE INDEX")
	assert.Contains(t, stmts[1], "(userid)")
}
