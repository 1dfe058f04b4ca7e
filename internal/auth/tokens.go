package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// TokenType distinguishes the JWTs this package issues.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenState   TokenType = "oauth_state"
)

const stateTTL = 10 * time.Minute

// Claims is the JWT payload. Subject carries the user id.
type Claims struct {
	SessionToken string    `json:"session_token,omitempty"`
	Type         TokenType `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, eris.Wrap(ErrInvalidToken, "auth: subject is not a user id")
	}
	return id, nil
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokens creates a signer. The clock defaults to time.Now.
func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *Tokens) ttl(typ TokenType) time.Duration {
	switch typ {
	case TokenAccess:
		return t.accessTTL
	case TokenRefresh:
		return t.refreshTTL
	default:
		return stateTTL
	}
}

// Issue signs a token of the given type for a user session.
func (t *Tokens) Issue(userID int64, sessionToken string, typ TokenType) (string, error) {
	now := t.now()
	claims := Claims{
		SessionToken: sessionToken,
		Type:         typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl(typ))),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", eris.Wrapf(err, "auth: sign %s token", typ)
	}
	return signed, nil
}

// Parse verifies signature, expiry and type. Any failure is ErrInvalidToken.
func (t *Tokens) Parse(raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Type != want {
		return nil, eris.Wrapf(ErrInvalidToken, "auth: want %s token, got %q", want, claims.Type)
	}
	return claims, nil
}

// IssueState returns a signed, short-lived OAuth state value.
func (t *Tokens) IssueState() (string, error) {
	return t.Issue(0, "", TokenState)
}

// VerifyState checks a value returned by IssueState.
func (t *Tokens) VerifyState(state string) error {
	_, err := t.Parse(state, TokenState)
	return err
}
