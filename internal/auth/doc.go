// Package auth implements session credentials for the gateway.
//
// Sessions are HS256-signed JWTs carried in an HttpOnly cookie rather than a
// query parameter or header, so the credential never leaks into access logs.
// The verified claims (user, org, role, plan) travel through request contexts
// via WithAuth/FromContext.
package auth
