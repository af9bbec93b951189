// ABOUTME: Tests for session cookie issuing and request extraction
// ABOUTME: Verifies cookie attributes and FromRequest failure modes

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "token-value", time.Hour)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}

	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("Name = %q, want %q", c.Name, SessionCookieName)
	}
	if c.Value != "token-value" {
		t.Errorf("Value = %q, want token-value", c.Value)
	}
	if !c.HttpOnly {
		t.Error("cookie is not HttpOnly")
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
	}
}

func TestClearSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative to expire", cookies[0].MaxAge)
	}
}

func TestFromRequest(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	token, err := v.Generate(&Claims{UserID: "user-1", Role: "member"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

	claims, err := FromRequest(req, v)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
}

func TestFromRequest_NoCookie(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := FromRequest(req, v); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestFromRequest_BadToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tampered"})

	if _, err := FromRequest(req, v); err == nil {
		t.Error("expected error for tampered token")
	}
}
