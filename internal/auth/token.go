// ABOUTME: JWT session token verification for authenticating gateway requests
// ABOUTME: Uses HS256 signing with configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID string
	OrgID  *string // nil for platform-level sessions outside any org
	Role   string
	Plan   string
}

// TokenVerifier defines the interface for session token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token signature and expiry and extracts the session
// claims. The "sub" claim carries the user ID and is required; "org", "role",
// and "plan" round out the session identity.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	claims := &Claims{UserID: sub}
	if org, ok := mapClaims["org"].(string); ok && org != "" {
		claims.OrgID = &org
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if plan, ok := mapClaims["plan"].(string); ok {
		claims.Plan = plan
	}

	return claims, nil
}

// Generate creates a new session token for the given claims with expiration
func (v *JWTVerifier) Generate(claims *Claims, expiresIn time.Duration) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"sub":  claims.UserID,
		"role": claims.Role,
		"plan": claims.Plan,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}
	if claims.OrgID != nil {
		mapClaims["org"] = *claims.OrgID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString(v.secret)
}
