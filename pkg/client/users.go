package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/platinummonkey/apilogin/pkg/signing"
)

// LogUserOptions tunes a login token request
type LogUserOptions struct {
	// UserIDField overrides the client's default lookup field
	UserIDField string
	// Redirect is where the user lands after sign-in. Relative paths are
	// resolved against the site URL.
	Redirect string
}

func (c *Client) lookup(userID, field string) signing.Params {
	if field == "" {
		field = c.defaultField
	}
	return signing.Params{"userid": userID, "useridfield": field}
}

// LoginURL obtains a login token for the user and returns the site URL that
// redeems it. userAgent must be the agent of the browser that will follow it.
func (c *Client) LoginURL(ctx context.Context, userID, userAgent string, opts LogUserOptions) (string, error) {
	params := c.lookup(userID, opts.UserIDField)
	params["useragent"] = userAgent
	if opts.Redirect != "" {
		params["redirect"] = c.resolve(opts.Redirect)
	}

	resp, err := c.Request(ctx, "logUser", params)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &Error{Method: "logUser", Message: "The server did not return a token."}
	}
	return buildURL(c.siteURL, LoginPath, url.Values{"token": {resp.Token}}), nil
}

// LogUser obtains a login token for the browser behind r and redirects it to
// the site with 303 See Other. On success nothing more may be written to w.
func (c *Client) LogUser(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string, opts LogUserOptions) error {
	target, err := c.LoginURL(ctx, userID, r.UserAgent(), opts)
	if err != nil {
		return err
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
	return nil
}

func (c *Client) resolve(redirect string) string {
	if u, err := url.Parse(redirect); err == nil && u.IsAbs() {
		return redirect
	}
	return buildURL(c.siteURL, redirect, nil)
}

// GetUser returns the user's record. An empty fields list returns every
// readable field.
func (c *Client) GetUser(ctx context.Context, userID string, fields []string, field string) (map[string]interface{}, error) {
	params := c.lookup(userID, field)
	params.Merge(signing.Flatten("fields", fields))

	resp, err := c.Request(ctx, "getUser", params)
	if err != nil {
		return nil, err
	}

	var record map[string]interface{}
	if err := decodeData(resp, &record); err != nil {
		return nil, &Error{Method: "getUser", Message: err.Error(), Err: err}
	}
	return record, nil
}

// GetAllUsers returns every user that is not deleted
func (c *Client) GetAllUsers(ctx context.Context, fields []string) ([]map[string]interface{}, error) {
	resp, err := c.Request(ctx, "getAllUsers", signing.Flatten("fields", fields))
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	if err := decodeData(resp, &records); err != nil {
		return nil, &Error{Method: "getAllUsers", Message: err.Error(), Err: err}
	}
	return records, nil
}

// CreateUser creates a user and returns its id. userdata must contain
// username, firstname, lastname and email.
func (c *Client) CreateUser(ctx context.Context, userdata map[string]string) (int64, error) {
	resp, err := c.Request(ctx, "createUser", signing.Flatten("userdata", userdata))
	if err != nil {
		return 0, err
	}
	id, err := parseID(resp.Data)
	if err != nil {
		return 0, &Error{Method: "createUser", Message: err.Error(), Err: err}
	}
	return id, nil
}

// UpdateUser changes the given fields of a user
func (c *Client) UpdateUser(ctx context.Context, userID string, userdata map[string]string, field string) error {
	params := c.lookup(userID, field)
	params.Merge(signing.Flatten("userdata", userdata))
	_, err := c.Request(ctx, "updateUser", params)
	return err
}

// DeleteUser soft deletes a user
func (c *Client) DeleteUser(ctx context.Context, userID, field string) error {
	_, err := c.Request(ctx, "deleteUser", c.lookup(userID, field))
	return err
}

// SuspendUser suspends a user
func (c *Client) SuspendUser(ctx context.Context, userID, field string) error {
	_, err := c.Request(ctx, "suspendUser", c.lookup(userID, field))
	return err
}

// UnsuspendUser lifts a suspension
func (c *Client) UnsuspendUser(ctx context.Context, userID, field string) error {
	_, err := c.Request(ctx, "unsuspendUser", c.lookup(userID, field))
	return err
}

func decodeData(resp *Response, v interface{}) error {
	if len(resp.Data) == 0 {
		return fmt.Errorf("the server returned no data")
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("could not decode the returned data: %w", err)
	}
	return nil
}

// parseID accepts a JSON number or a quoted number
func parseID(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("the server returned an invalid user id: %q", string(raw))
	}
	return id, nil
}
