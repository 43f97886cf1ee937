// Package tokens implements single-use login tokens.
//
// A token is issued for a user and user agent, lives for five minutes, and is
// consumed by the first redemption attempt whatever its outcome. Stores keep at
// most one live token per user: issuing a new token replaces the old one.
//
// Two stores are provided:
//
//	store := tokens.NewSQLStore(db)       // postgres or sqlite
//	store := tokens.NewRedisStore(client) // keys expire with the token
//
// Both claim atomically, so two concurrent redemptions of the same token can
// never both succeed.
package tokens
