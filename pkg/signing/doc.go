// Package signing implements the signed-request codec shared by the apilogin
// client and service.
//
// # Overview
//
// Every request is a flat map of form parameters. The signature is an
// HMAC-SHA-256 over the concatenation key+value of every parameter except
// "signature", taken in ascending key order, keyed by the shared secret and
// rendered as lowercase hex:
//
//	params := signing.Params{"method": "getUser", "time": "1000", "userid": "42", "useridfield": "id"}
//	params["signature"] = signing.Sign(params, secret)
//
//	if !signing.Verify(params, params["signature"], secret) {
//		// reject
//	}
//
// # Nested values
//
// Field lists and user-data maps travel in bracketed form notation and are
// signed in that flattened form, so both sides sign exactly what is on the
// wire:
//
//	signing.Flatten("fields", []string{"email", "city"})
//	// fields[0]=email, fields[1]=city
//
//	signing.Flatten("userdata", map[string]string{"username": "jdoe"})
//	// userdata[username]=jdoe
//
// Params.List and Params.Map reassemble those keys on the receiving side.
package signing
