package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// TokenBytes is the number of random bytes in a login token
	TokenBytes = 16
	// TTL is how long an issued token stays redeemable
	TTL = 5 * time.Minute
)

var (
	// ErrNotFound is returned when a token does not exist
	ErrNotFound = errors.New("login token not found")
	// ErrNoRandomSource is returned when no cryptographic random source is usable
	ErrNoRandomSource = errors.New("no cryptographic random source available")
)

// LoginToken is a single-use credential bound to a user and user agent
type LoginToken struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userid"`
	UserAgent string    `json:"useragent"`
	Expires   time.Time `json:"expires"`
	Redirect  string    `json:"redirect,omitempty"`
}

// Redeemable reports whether a claimed token may sign in the presenting agent
func (t *LoginToken) Redeemable(userAgent string, now time.Time) bool {
	return t.UserAgent == userAgent && t.Expires.After(now)
}

// Store persists login tokens
type Store interface {
	// Issue stores t, atomically replacing any token held by the same user
	Issue(ctx context.Context, t *LoginToken) error
	// Claim atomically removes and returns the token. A second claim of the
	// same token returns ErrNotFound.
	Claim(ctx context.Context, token string) (*LoginToken, error)
	// Purge removes tokens that expired at or before now
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Generator mints login tokens from a cryptographic random source
type Generator struct {
	random io.Reader
}

// NewGenerator returns a generator over crypto/rand, verifying the source works
func NewGenerator() (*Generator, error) {
	return NewGeneratorFrom(rand.Reader)
}

// NewGeneratorFrom returns a generator reading from r.
// r is probed once so an unusable source fails at startup rather than per request.
func NewGeneratorFrom(r io.Reader) (*Generator, error) {
	if r == nil {
		return nil, ErrNoRandomSource
	}
	probe := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRandomSource, err)
	}
	return &Generator{random: r}, nil
}

// Token returns a new random token as lowercase hex
func (g *Generator) Token() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// New mints a token for a user, expiring TTL after now
func (g *Generator) New(userID int64, userAgent, redirect string, now time.Time) (*LoginToken, error) {
	token, err := g.Token()
	if err != nil {
		return nil, err
	}
	return &LoginToken{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		Expires:   now.Add(TTL),
		Redirect:  redirect,
	}, nil
}
