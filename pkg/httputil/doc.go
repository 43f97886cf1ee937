// Package httputil provides HTTP utilities shared by the login endpoints.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteUnauthorized(w, "Invalid or expired login token.")
//
// # Request Parsing
//
// Signed requests are read from the form body only:
//
//	params, err := httputil.ParseSignedForm(r)
//
// ClientIP returns the caller address, honouring X-Forwarded-For and
// X-Real-IP only when the server sits behind a trusted proxy.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestContextMiddleware(logger, trustProxy),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.RateLimitMiddleware(httputil.NewIPRateLimiter(10, 50, 0, 0), metrics),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
