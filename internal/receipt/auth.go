package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth failure codes returned to clients
const (
	CodeMissingAuthHeader       = "MISSING_AUTH_HEADER"
	CodeInvalidAuthFormat       = "INVALID_AUTH_FORMAT"
	CodeTokenVerificationFailed = "TOKEN_VERIFICATION_FAILED"
)

// LocalUserID is the user every request runs as when auth is disabled
const LocalUserID = "local"

// AuthError is an authentication failure with a client-facing code
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Identity is the authenticated caller
type Identity struct {
	UserID    string
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier checks a bearer token and returns who it belongs to
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens signed with a shared secret
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify validates the signature, expiry and issuer of token
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("token is not valid")
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	id := &Identity{UserID: c.Subject, Email: c.Email, Name: c.Name}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

// bearerToken pulls the token out of an Authorization header
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", &AuthError{Code: CodeMissingAuthHeader, Message: "No authorization header provided"}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", &AuthError{Code: CodeInvalidAuthFormat, Message: "Authorization header must be 'Bearer <token>'"}
	}
	return token, nil
}

type identityKey struct{}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by the auth middleware
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
