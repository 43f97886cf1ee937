package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/signing"
	"github.com/platinummonkey/apilogin/pkg/tokens"
	"github.com/platinummonkey/apilogin/pkg/users"
)

// Client-visible failure messages
const (
	MsgMissingParameters = "Invalid request. Missing required parameters."
	MsgConfiguration     = "Error loading the configuration for the apilogin plugin."
	MsgAccessDenied      = "Access denied. Requests not allowed from IP address: "
	MsgInvalidSignature  = "Invalid signature."
	MsgRequestExpired    = "Request expired."
	MsgInvalidMethod     = "Invalid method."
	MsgDatabase          = "An error occurred accessing the database."
	MsgTokenGeneration   = "An error occurred generating a token."
)

// Request parameter names
const (
	ParamUserID      = "userid"
	ParamUserIDField = "useridfield"
	ParamUserAgent   = "useragent"
	ParamRedirect    = "redirect"
	ParamFields      = "fields"
	ParamUserData    = "userdata"
)

// Clock returns the current time
type Clock func() time.Time

// RequestContext carries the transport facts the dispatcher needs
type RequestContext struct {
	RemoteAddr string
	UserAgent  string
}

// Response is the envelope returned for every service request
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Error is a request failure with a client-visible message.
// Err, when set, is the internal cause and is only logged.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

func internal(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}

// Config holds the collaborators of a Service
type Config struct {
	Users     users.Store
	Tokens    tokens.Store
	Settings  config.SettingsReader
	Generator *tokens.Generator
	Clock     Clock
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Service answers signed service requests and redeems login tokens
type Service struct {
	users     users.Store
	tokens    tokens.Store
	settings  config.SettingsReader
	generator *tokens.Generator
	clock     Clock
	logger    *observability.Logger
	metrics   *observability.Metrics
	handlers  map[string]operation
}

// request is the validated input handed to an operation
type request struct {
	params   signing.Params
	settings *config.Settings
	caller   RequestContext
	now      time.Time
}

type operation struct {
	required []string
	run      func(ctx context.Context, req *request) (Response, error)
}

// New creates a service. Users, Tokens, Settings and Generator are required.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Users == nil:
		return nil, errors.New("service: user store is required")
	case cfg.Tokens == nil:
		return nil, errors.New("service: token store is required")
	case cfg.Settings == nil:
		return nil, errors.New("service: settings reader is required")
	case cfg.Generator == nil:
		return nil, errors.New("service: token generator is required")
	}

	s := &Service{
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		settings:  cfg.Settings,
		generator: cfg.Generator,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s.logger = s.logger.WithField("component", "service")

	lookup := []string{ParamUserID, ParamUserIDField}
	s.handlers = map[string]operation{
		"logUser":       {required: []string{ParamUserID, ParamUserIDField, ParamUserAgent}, run: s.logUser},
		"getUser":       {required: lookup, run: s.getUser},
		"getAllUsers":   {run: s.getAllUsers},
		"createUser":    {required: []string{ParamUserData}, run: s.createUser},
		"updateUser":    {required: []string{ParamUserID, ParamUserData, ParamUserIDField}, run: s.updateUser},
		"deleteUser":    {required: lookup, run: s.deleteUser},
		"suspendUser":   {required: lookup, run: s.suspendUser},
		"unsuspendUser": {required: lookup, run: s.unsuspendUser},
	}
	return s, nil
}

// Methods lists the accepted method names
func (s *Service) Methods() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

// Settings loads the current durable settings
func (s *Service) Settings(ctx context.Context) (*config.Settings, error) {
	return s.settings.Load(ctx)
}

func (s *Service) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); !ok {
		ctx = observability.WithLogger(ctx, s.logger)
	}
	return observability.FromContext(ctx)
}

// Handle validates a signed request and runs the named operation.
// It always produces exactly one Response.
func (s *Service) Handle(ctx context.Context, caller RequestContext, params signing.Params) Response {
	start := s.clock()

	method := params[signing.MethodKey]
	label := "invalid"
	if _, ok := s.handlers[method]; ok {
		label = method
	}

	ctx, span := observability.StartSpan(ctx, "service."+label,
		attribute.String("apilogin.method", label))

	resp, err := s.dispatch(ctx, caller, params)
	if err != nil {
		resp = s.failure(ctx, label, err)
	}

	observability.EndSpan(span, err)
	s.metrics.ObserveService(label, resp.Success, s.clock().Sub(start))
	return resp
}

func (s *Service) failure(ctx context.Context, method string, err error) Response {
	logger := s.log(ctx).WithField("method", method)

	var reqErr *Error
	if !errors.As(err, &reqErr) {
		reqErr = internal(MsgDatabase, err)
	}
	if reqErr.Err != nil {
		logger.WithError(reqErr.Err).Error(reqErr.Message)
	} else {
		logger.WithField("reason", reqErr.Message).Info("Service request refused")
	}
	return Response{Success: false, Message: reqErr.Message}
}

func (s *Service) dispatch(ctx context.Context, caller RequestContext, params signing.Params) (Response, error) {
	if params[signing.MethodKey] == "" || params[signing.TimeKey] == "" || params[signing.SignatureKey] == "" {
		return Response{}, failf(MsgMissingParameters)
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return Response{}, internal(MsgConfiguration, err)
	}

	if !settings.IPAllowed(caller.RemoteAddr) {
		return Response{}, failf("%s%s", MsgAccessDenied, caller.RemoteAddr)
	}

	if !signing.Verify(params, params[signing.SignatureKey], settings.APIKey) {
		return Response{}, failf(MsgInvalidSignature)
	}

	now := s.clock()
	if settings.MaxRequestAge > 0 && !fresh(params[signing.TimeKey], now, settings.MaxRequestAge) {
		return Response{}, failf(MsgRequestExpired)
	}

	method := params[signing.MethodKey]
	op, ok := s.handlers[method]
	if !ok {
		return Response{}, failf(MsgInvalidMethod)
	}

	if err := checkRequired(method, op.required, params); err != nil {
		return Response{}, err
	}

	return op.run(ctx, &request{
		params:   params.Without(signing.SignatureKey),
		settings: settings,
		caller:   caller,
		now:      now,
	})
}

// fresh reports whether the signed time lies within maxAge of now in either direction
func fresh(raw string, now time.Time, maxAge time.Duration) bool {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(secs, 0))
	if age < 0 {
		age = -age
	}
	return age <= maxAge
}

// checkRequired reports missing parameters in declaration order, then
// validates the lookup field when one is supplied.
func checkRequired(method string, required []string, params signing.Params) error {
	var missing []string
	for _, name := range required {
		if !params.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return failf("The %s method is missing parameters: %s", method, strings.Join(missing, ", "))
	}

	if field, ok := params[ParamUserIDField]; ok {
		if _, err := users.ParseLookupField(field); err != nil {
			return failf("The useridfield [%s] is not permitted as a lookup for the user. Please use one of the following: %s",
				field, users.LookupFieldList())
		}
	}
	return nil
}
