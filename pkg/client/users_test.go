package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apilogin/pkg/signing"
)

func TestLogUser_Redirects(t *testing.T) {
	c, site := newTestClient(t, func(p signing.Params) interface{} {
		return map[string]interface{}{"success": true, "data": 7, "token": "0123456789abcdef0123456789abcdef"}
	})

	r := httptest.NewRequest(http.MethodGet, "/sso", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 browser")
	w := httptest.NewRecorder()

	err := c.LogUser(context.Background(), w, r, "EXT-1", LogUserOptions{Redirect: "/course/view.php?id=4"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, c.siteURL+"/login/index.php?token=0123456789abcdef0123456789abcdef", w.Header().Get("Location"))

	assert.Equal(t, "EXT-1", site.params["userid"])
	assert.Equal(t, "idnumber", site.params["useridfield"])
	assert.Equal(t, "Mozilla/5.0 browser", site.params["useragent"])
	assert.Equal(t, c.siteURL+"/course/view.php?id=4", site.params["redirect"])
}

func TestLogUser_FailureWritesNothing(t *testing.T) {
	c, _ := newTestClient(t, func(signing.Params) interface{} {
		return map[string]interface{}{"success": false, "message": "User not found with idnumber equal to X."}
	})

	w := httptest.NewRecorder()
	err := c.LogUser(context.Background(), w, httptest.NewRequest(http.MethodGet, "/", nil), "X", LogUserOptions{})
	require.Error(t, err)
	assert.Equal(t, "User not found with idnumber equal to X.", c.LastMessage())
	assert.Empty(t, w.Header().Get("Location"))
}

func TestLoginURL_AbsoluteRedirectKept(t *testing.T) {
	c, site := newTestClient(t, func(signing.Params) interface{} {
		return map[string]interface{}{"success": true, "data": 7, "token": "t0k"}
	})

	target, err := c.LoginURL(context.Background(), "jdoe", "agent", LogUserOptions{
		UserIDField: "username",
		Redirect:    "https://other.example/page",
	})
	require.NoError(t, err)
	assert.Equal(t, c.siteURL+"/login/index.php?token=t0k", target)
	assert.Equal(t, "username", site.params["useridfield"])
	assert.Equal(t, "https://other.example/page", site.params["redirect"])
}

func TestGetUser(t *testing.T) {
	c, site := newTestClient(t, ok(map[string]interface{}{"email": "j@example.com"}))

	record, err := c.GetUser(context.Background(), "7", []string{"email", "city"}, "id")
	require.NoError(t, err)
	assert.Equal(t, "j@example.com", record["email"])
	assert.Equal(t, []string{"email", "city"}, site.params.List("fields"))
	assert.Equal(t, "id", site.params["useridfield"])
}

func TestGetAllUsers(t *testing.T) {
	c, site := newTestClient(t, ok([]map[string]interface{}{{"username": "a"}, {"username": "b"}}))

	records, err := c.GetAllUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.False(t, site.params.Has("fields"))
}

func TestCreateUser(t *testing.T) {
	c, site := newTestClient(t, ok(42))

	id, err := c.CreateUser(context.Background(), map[string]string{
		"username": "jdoe", "firstname": "Jane", "lastname": "Doe", "email": "j@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "jdoe", site.params.Map("userdata")["username"])
}

func TestCreateUser_QuotedID(t *testing.T) {
	c, _ := newTestClient(t, ok("43"))

	id, err := c.CreateUser(context.Background(), map[string]string{"username": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(43), id)
}

func TestMutations(t *testing.T) {
	c, site := newTestClient(t, ok(7))
	ctx := context.Background()

	require.NoError(t, c.UpdateUser(ctx, "7", map[string]string{"city": "Salem"}, "id"))
	assert.Equal(t, "updateUser", site.params["method"])
	assert.Equal(t, "Salem", site.params["userdata[city]"])

	require.NoError(t, c.DeleteUser(ctx, "7", ""))
	assert.Equal(t, "deleteUser", site.params["method"])
	assert.Equal(t, "idnumber", site.params["useridfield"])

	require.NoError(t, c.SuspendUser(ctx, "7", "id"))
	assert.Equal(t, "suspendUser", site.params["method"])

	require.NoError(t, c.UnsuspendUser(ctx, "7", "id"))
	assert.Equal(t, "unsuspendUser", site.params["method"])
}

func TestParseID(t *testing.T) {
	id, err := parseID([]byte("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = parseID(nil)
	assert.Error(t, err)
}
