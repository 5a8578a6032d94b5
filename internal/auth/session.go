package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/store"
)

var (
	ErrBadLogin     = errors.New("invalid email or password")
	ErrInvalidToken = errors.New("invalid session token")
)

// SessionPrincipal identifies an authenticated tenant operator.
type SessionPrincipal struct {
	UserID   int64
	TenantID int64
	Email    string
}

// Sessions issues and validates JWT session tokens for the operator
// surface.
type Sessions struct {
	store  *store.Store
	secret []byte
	expiry time.Duration
}

// NewSessions creates a session service. Expiry defaults to 1h when zero.
func NewSessions(st *store.Store, secret string, expiry time.Duration) *Sessions {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Sessions{store: st, secret: []byte(secret), expiry: expiry}
}

// Login verifies a tenant operator's credentials and returns a signed
// session token.
func (s *Sessions) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrBadLogin
	}
	if !user.IsActive {
		return "", nil, ErrBadLogin
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadLogin
	}

	// Update last login timestamp (fire and forget)
	go s.store.UpdateUserLastLogin(context.Background(), user.ID)

	token, err := s.issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Validate verifies a session token and returns the principal it carries.
func (s *Sessions) Validate(tokenStr string) (*SessionPrincipal, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &SessionPrincipal{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Email:    claims.Email,
	}, nil
}

func (s *Sessions) issue(user *model.User) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			Issuer:    "zapgate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type sessionClaims struct {
	UserID   int64  `json:"user_id"`
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}
