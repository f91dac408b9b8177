// Package auth verifies Supabase-style session tokens. Supabase issues HS256
// access tokens signed with the project's JWT secret and stores them in a
// cookie (sb-access-token by default) or sends them as a bearer token.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// DefaultCookieName is the cookie Supabase auth helpers store the access token in
const DefaultCookieName = "sb-access-token"

// Claims are the session token claims this package reads
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements simpleupload.SessionVerifier for HS256 session tokens
type JWTVerifier struct {
	secret     []byte
	cookieName string
	audience   string
	leeway     time.Duration
}

var _ simpleupload.SessionVerifier = (*JWTVerifier)(nil)

// Option configures a JWTVerifier
type Option func(*JWTVerifier)

// WithCookieName sets the cookie the token is read from
func WithCookieName(name string) Option {
	return func(v *JWTVerifier) {
		v.cookieName = name
	}
}

// WithAudience requires the token's aud claim to contain audience
func WithAudience(audience string) Option {
	return func(v *JWTVerifier) {
		v.audience = audience
	}
}

// WithLeeway allows for clock skew when checking exp and nbf
func WithLeeway(d time.Duration) Option {
	return func(v *JWTVerifier) {
		v.leeway = d
	}
}

// NewJWTVerifier creates a verifier using secret as the HMAC key
func NewJWTVerifier(secret string, opts ...Option) *JWTVerifier {
	v := &JWTVerifier{
		secret:     []byte(secret),
		cookieName: DefaultCookieName,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CurrentUser returns the user of a valid session, or nil when the request
// has no token or the token fails verification.
func (v *JWTVerifier) CurrentUser(r *http.Request) (*simpleupload.User, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("auth: no JWT secret configured")
	}

	tokenStr := v.tokenFromRequest(r)
	if tokenStr == "" {
		return nil, nil
	}

	claims, err := v.parse(tokenStr)
	if err != nil {
		return nil, nil
	}
	return &simpleupload.User{ID: claims.Subject, Email: claims.Email}, nil
}

func (v *JWTVerifier) parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	return claims, nil
}

// tokenFromRequest prefers the Authorization header over the session cookie
func (v *JWTVerifier) tokenFromRequest(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authz, bearerPrefix))
	}
	if c, err := r.Cookie(v.cookieName); err == nil {
		return c.Value
	}
	return ""
}

// IssueToken signs a session token for subject. It exists for tests and the
// local development backend; production tokens come from Supabase.
func IssueToken(secret, subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
