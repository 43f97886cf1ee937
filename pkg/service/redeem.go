package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/tokens"
	"github.com/platinummonkey/apilogin/pkg/users"
)

var (
	// ErrInvalidToken is returned when a login token cannot sign anyone in
	ErrInvalidToken = errors.New("invalid or expired login token")
	// ErrInvalidCredentials is returned when a local sign-in fails
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Redemption results recorded in metrics
const (
	RedeemSuccess       = "success"
	RedeemUnknown       = "unknown"
	RedeemAgentMismatch = "agent_mismatch"
	RedeemExpired       = "expired"
	RedeemNoUser        = "no_user"
	RedeemError         = "error"
)

// Login is a successful sign-in
type Login struct {
	User     *users.Identity
	Redirect string
}

// Redeem consumes a login token presented by userAgent. The token is removed
// on the first attempt whatever the outcome.
func (s *Service) Redeem(ctx context.Context, token, userAgent string) (login *Login, err error) {
	ctx, span := observability.StartSpan(ctx, "service.redeem")
	defer func() { observability.EndSpan(span, err) }()

	result := RedeemError
	defer func() { s.metrics.TokenRedeemed(result) }()

	if token == "" {
		result = RedeemUnknown
		return nil, ErrInvalidToken
	}

	claimed, err := s.tokens.Claim(ctx, token)
	if errors.Is(err, tokens.ErrNotFound) {
		result = RedeemUnknown
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim login token: %w", err)
	}

	logger := s.log(ctx).WithField("userid", claimed.UserID)

	now := s.clock()
	if !claimed.Redeemable(userAgent, now) {
		result = RedeemExpired
		if claimed.UserAgent != userAgent {
			result = RedeemAgentMismatch
		}
		logger.WithField("result", result).Warn("Login token rejected")
		return nil, ErrInvalidToken
	}

	ident, err := s.users.Resolve(ctx, users.LookupID, strconv.FormatInt(claimed.UserID, 10))
	if errors.Is(err, users.ErrNotFound) {
		result = RedeemNoUser
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if ident.Deleted || ident.Suspended {
		result = RedeemNoUser
		logger.Warn("Login token rejected for deleted or suspended user")
		return nil, ErrInvalidToken
	}

	if ident.Auth != users.AuthAPILogin {
		if err := s.users.Update(ctx, ident.ID, map[string]interface{}{"auth": users.AuthAPILogin}); err != nil {
			return nil, fmt.Errorf("failed to update user auth: %w", err)
		}
		ident.Auth = users.AuthAPILogin
	}

	result = RedeemSuccess
	logger.Info("Login token redeemed")
	return &Login{User: ident, Redirect: claimed.Redirect}, nil
}

// Authenticate signs a user in with a local password
func (s *Service) Authenticate(ctx context.Context, username, password string) (*users.Identity, error) {
	ident, err := s.users.Resolve(ctx, users.LookupUsername, username)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if ident.Deleted || ident.Suspended {
		return nil, ErrInvalidCredentials
	}

	hash, err := s.users.PasswordHash(ctx, ident.ID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load password: %w", err)
	}
	if !users.CheckPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	return ident, nil
}
