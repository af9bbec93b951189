// ABOUTME: Signed session cookie carrying the transport-level credential
// ABOUTME: Cookie auth keeps the credential out of query strings and logs

package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie the gateway reads the session token from.
const SessionCookieName = "agenthub_session"

// DefaultSessionTTL is how long an issued session cookie stays valid.
const DefaultSessionTTL = 24 * time.Hour

// SetSessionCookie issues the session cookie on an HTTP response.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts and verifies the session cookie on a request.
// Returns ErrInvalidToken if the cookie is absent.
func FromRequest(r *http.Request, verifier TokenVerifier) (*Claims, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return verifier.Verify(cookie.Value)
}
