// Package tokens signs and verifies the access and refresh JWTs handed to
// clients. It does no I/O: refresh-token validity beyond signature and
// expiry lives in the ledger.
package tokens

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrBadSecrets   = errors.New("access and refresh secrets must be non-empty and distinct")
)

type AccessClaims struct {
	Role string `json:"role"`
	Type Type   `json:"type"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

func NewCodec(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 || bytes.Equal(accessSecret, refreshSecret) {
		return nil, ErrBadSecrets
	}
	return &Codec{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}, nil
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Codec) IssueAccessToken(subject, role string) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.AccessTTL)
	claims := AccessClaims{
		Role: role,
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken returns the signed token together with its jti and
// expiry so the caller can record the matching ledger entry.
func (c *Codec) IssueRefreshToken(subject string) (token, jti string, expiresAt time.Time, err error) {
	now := c.now()
	expiresAt = now.Add(c.RefreshTTL)
	jti = uuid.NewString()
	claims := RefreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.RefreshSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, jti, expiresAt, nil
}

func (c *Codec) VerifyAccessToken(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims, c.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

func (c *Codec) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims, c.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or jti", ErrInvalidToken)
	}
	return &claims, nil
}

func (c *Codec) parse(token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return ErrInvalidToken
	}
	return nil
}
