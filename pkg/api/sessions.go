package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/apilogin/pkg/users"
)

// Session is a signed-in browser
type Session struct {
	ID       string
	UserID   int64
	Username string
	Auth     string
	Created  time.Time
}

// SessionStore establishes and finds sessions for the login endpoint.
// Deployments embedding the bridge in a host application supply their own.
type SessionStore interface {
	// Start signs user in on the browser behind r, replacing any current session
	Start(w http.ResponseWriter, r *http.Request, user *users.Identity) (*Session, error)
	// Current returns the session of the browser behind r
	Current(r *http.Request) (*Session, bool)
}

// SessionOptions configures MemorySessions
type SessionOptions struct {
	CookieName string
	TTL        time.Duration
	MaxEntries int
	Secure     bool
}

// MemorySessions keeps sessions in a bounded in-process LRU. Sessions are
// lost on restart and are not shared between replicas.
type MemorySessions struct {
	opts  SessionOptions
	cache *lru.LRU[string, *Session]
	now   func() time.Time
}

// NewMemorySessions creates an in-memory session store
func NewMemorySessions(opts SessionOptions) *MemorySessions {
	if opts.CookieName == "" {
		opts.CookieName = "APILOGINSESSION"
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	return &MemorySessions{
		opts:  opts,
		cache: lru.NewLRU[string, *Session](opts.MaxEntries, nil, opts.TTL),
		now:   time.Now,
	}
}

// Start issues a fresh session ID and cookie. The previous session of the
// browser, if any, is dropped so an ID is never reused across sign-ins.
func (m *MemorySessions) Start(w http.ResponseWriter, r *http.Request, user *users.Identity) (*Session, error) {
	if c, err := r.Cookie(m.opts.CookieName); err == nil {
		m.cache.Remove(c.Value)
	}

	sess := &Session{
		ID:       uuid.New().String(),
		UserID:   user.ID,
		Username: user.Username,
		Auth:     user.Auth,
		Created:  m.now(),
	}
	m.cache.Add(sess.ID, sess)

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// Current looks up the session named by the request cookie
func (m *MemorySessions) Current(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return m.cache.Get(c.Value)
}

// Len returns the number of live sessions
func (m *MemorySessions) Len() int {
	return m.cache.Len()
}
