package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openclaw/clawjobs/internal/model"
)

const sessionIssuer = "clawjobs"

// Session is the identity carried by a verified session token.
type Session struct {
	UID  string
	Role model.UserRole
}

type sessionClaims struct {
	Role model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// SessionService verifies the HS256 tokens the web sign-in flow issues for
// the account API.
type SessionService struct {
	secret []byte
}

// NewSessionService creates a SessionService. An empty secret disables
// session verification entirely.
func NewSessionService(secret string) *SessionService {
	return &SessionService{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (s *SessionService) Enabled() bool {
	return len(s.secret) > 0
}

// Issue signs a session token for uid. Used by the CLI and tests; browser
// sessions come from the sign-in provider.
func (s *SessionService) Issue(uid string, role model.UserRole, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("session secret not configured")
	}
	now := time.Now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    sessionIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Verify checks a session token and returns its identity.
func (s *SessionService) Verify(tokenStr string) (*Session, error) {
	if !s.Enabled() {
		return nil, ErrInvalidSession
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return &Session{UID: claims.Subject, Role: claims.Role}, nil
}
