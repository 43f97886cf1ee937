package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/apilogin/pkg/signing"
)

const (
	// ServicesPath is the signed service endpoint below the site URL
	ServicesPath = "/auth/apilogin/services.php"
	// LoginPath is the token redemption endpoint below the site URL
	LoginPath = "/login/index.php"
	// UserAgent identifies this client to the service
	UserAgent = "ApiLogin Go Client/1.0"
	// DefaultUserIDField is the lookup field used when none is given
	DefaultUserIDField = "idnumber"

	connectTimeout = 30 * time.Second
	maxBodyEcho    = 512
)

// Config configures a Client
type Config struct {
	SiteURL string
	APIKey  string
	// VerifyPeer enables TLS certificate verification. It defaults to off to
	// match existing deployments; production callers should enable it.
	VerifyPeer         bool
	DefaultUserIDField string
	Logger             *logrus.Logger
	// HTTPClient overrides the transport. Redirects are never followed.
	HTTPClient *http.Client
}

// Response is the service envelope
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Token   string          `json:"token,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Error is returned for every failed call, whether the service refused the
// request or it never completed.
type Error struct {
	Method  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("apilogin %s: %s", e.Method, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client calls the signed service endpoint of one site
type Client struct {
	siteURL      string
	servicesURL  string
	apiKey       string
	defaultField string
	httpClient   *http.Client
	logger       *logrus.Logger
	now          func() time.Time

	mu   sync.Mutex
	last *Response
}

// New creates a client for the site at cfg.SiteURL
func New(cfg Config) (*Client, error) {
	site := strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	u, err := url.Parse(site)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid site URL %q", cfg.SiteURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	field := cfg.DefaultUserIDField
	if field == "" {
		field = DefaultUserIDField
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		siteURL:      site,
		servicesURL:  buildURL(site, ServicesPath, nil),
		apiKey:       cfg.APIKey,
		defaultField: field,
		httpClient:   newHTTPClient(cfg),
		logger:       logger,
		now:          time.Now,
	}, nil
}

func newHTTPClient(cfg Config) *http.Client {
	var c http.Client
	if cfg.HTTPClient != nil {
		c = *cfg.HTTPClient
	} else {
		c.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
			// #nosec G402 -- verification is an explicit caller choice
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: !cfg.VerifyPeer},
			DisableKeepAlives: true,
		}
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// buildURL joins path onto base with exactly one slash and appends query
func buildURL(base, path string, query url.Values) string {
	out := strings.TrimRight(base, "/")
	if path != "" {
		out += "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(out, "?") {
			sep = "&"
		}
		out += sep + query.Encode()
	}
	return out
}

// LastResponse returns the envelope of the most recent call, or nil
func (c *Client) LastResponse() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastMessage returns the message of the most recent call
func (c *Client) LastMessage() string {
	if last := c.LastResponse(); last != nil {
		return last.Message
	}
	return ""
}

func (c *Client) remember(resp *Response) {
	c.mu.Lock()
	c.last = resp
	c.mu.Unlock()
}

// Request signs params for method and posts them to the service. A
// response with success=false is returned together with an *Error.
func (c *Client) Request(ctx context.Context, method string, params signing.Params) (*Response, error) {
	p := params.Without(signing.SignatureKey)
	p[signing.MethodKey] = method
	p[signing.TimeKey] = strconv.FormatInt(c.now().Unix(), 10)
	p[signing.SignatureKey] = signing.Sign(p, c.apiKey)

	log := c.logger.WithField("method", method)

	fail := func(message string, err error) (*Response, error) {
		resp := &Response{Success: false, Message: message}
		c.remember(resp)
		log.WithError(err).Warn(message)
		return resp, &Error{Method: method, Message: message, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.servicesURL, strings.NewReader(p.Values().Encode()))
	if err != nil {
		return fail("Could not build the request: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	log.Debug("Sending signed request")
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fail("Could not connect to the server: "+err.Error(), err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fail("Could not read the server's response: "+err.Error(), err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		echo := string(body)
		if len(echo) > maxBodyEcho {
			echo = echo[:maxBodyEcho]
		}
		return fail("Could not decode the server's response. Expecting a JSON string. RESPONSE: "+echo, err)
	}

	c.remember(&resp)
	if !resp.Success {
		log.WithField("message", resp.Message).Info("Request refused")
		return &resp, &Error{Method: method, Message: resp.Message}
	}
	return &resp, nil
}
