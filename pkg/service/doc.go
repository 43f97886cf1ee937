// Package service implements the login bridge: a dispatcher for signed
// service requests and the redemption of the login tokens it issues.
//
// Every request passes the same checks in order before an operation runs:
// required envelope parameters, settings load, caller IP allow-list,
// signature, optional request age, method and the method's own parameters.
// The first failing check becomes the response message.
//
//	svc, err := service.New(service.Config{
//		Users:     users.NewSQLStore(db),
//		Tokens:    tokens.NewSQLStore(db),
//		Settings:  config.NewSQLSettings(db),
//		Generator: generator,
//	})
//	resp := svc.Handle(ctx, service.RequestContext{RemoteAddr: ip}, params)
//
// Redeem consumes a token exactly once. A token that is unknown, expired or
// presented by another user agent yields ErrInvalidToken.
package service
