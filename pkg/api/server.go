package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/apilogin/pkg/httputil"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/service"
)

// Endpoint paths
const (
	ServicesPath = "/auth/apilogin/services.php"
	LoginPath    = "/login/index.php"
	URLsPath     = "/auth/apilogin/urls"
)

// MsgLoginFailed is the body of the default fallback login response
const MsgLoginFailed = "Invalid or expired login token."

// Config holds the collaborators of a Server
type Config struct {
	Service  *service.Service
	Sessions SessionStore
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// RateLimiter throttles every endpoint per caller address; nil disables it
	RateLimiter       *httputil.IPRateLimiter
	TrustProxyHeaders bool
	MaxBodyBytes      int64

	// FallbackLogin renders the host login page when a token cannot be
	// redeemed and no loginredirect is configured. Defaults to a 401 JSON body.
	FallbackLogin http.Handler
}

// Server represents the login bridge HTTP endpoints
type Server struct {
	router   *mux.Router
	handler  http.Handler
	handlers *LoginHandlers
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("api: session store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.FallbackLogin == nil {
		cfg.FallbackLogin = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteUnauthorized(w, MsgLoginFailed)
		})
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewLoginHandlers(cfg.Service, cfg.Sessions, cfg.FallbackLogin),
	}
	s.setupRoutes(cfg.Metrics)

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestContextMiddleware(cfg.Logger, cfg.TrustProxyHeaders),
			httputil.RecoveryMiddleware,
			httputil.LoggingMiddleware,
			httputil.SecurityHeadersMiddleware,
			httputil.RateLimitMiddleware(cfg.RateLimiter, cfg.Metrics),
			httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
		)(s.router),
		"apilogin",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(metrics *observability.Metrics) {
	if metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	s.handlers.RegisterRoutes(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes mounts additional routes, such as the host application's
// own pages, next to the login endpoints
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
