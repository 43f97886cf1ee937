// Package api provides the HTTP endpoints of the login bridge.
//
// # Routes
//
//   - POST /auth/apilogin/services.php: signed service requests. The JSON
//     envelope always comes back with status 200; success or failure is in
//     the body.
//   - GET /login/index.php?token=: redeems a login token, starts a session
//     and redirects with 303 to the token's redirect, the wantsurl parameter
//     or the dashboard. A token that cannot be redeemed sends the browser to
//     the loginredirect setting, or to Config.FallbackLogin.
//   - POST /login/index.php: local username and password sign-in.
//   - GET /auth/apilogin/urls: password and profile management URLs.
//
// # Usage
//
//	server, err := api.NewServer(api.Config{
//		Service:  svc,
//		Sessions: api.NewMemorySessions(api.SessionOptions{TTL: 2 * time.Hour}),
//		Logger:   logger,
//		Metrics:  metrics,
//	})
//	http.ListenAndServe(":8080", server)
//
// Every request is traced with otelhttp, tagged with a request ID and
// logged. The router is gorilla/mux; RegisterRoutes mounts extra routes.
package api
