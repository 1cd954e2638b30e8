package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Permission = string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
	PermSign  Permission = "sign"
	PermAdmin Permission = "admin"
)

// AllPermissions is ordered from least to most privileged.
var AllPermissions = []Permission{PermRead, PermWrite, PermSign, PermAdmin}

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrUnknownPermission = errors.New("unknown permission")
)

// Claims carries the permissions granted to a token.
type Claims struct {
	jwt.RegisteredClaims
	Allow []Permission `json:"Allow"`
}

func (c *Claims) Has(perm Permission) bool {
	return slices.Contains(c.Allow, perm)
}

// PermissionsUpTo expands a level into itself and every lesser permission.
func PermissionsUpTo(level Permission) ([]Permission, error) {
	idx := slices.Index(AllPermissions, level)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, level)
	}
	return slices.Clone(AllPermissions[:idx+1]), nil
}

type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
}

func NewJWTManager(secretKey, issuer string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
	}
}

// Generate issues a token granting level and everything below it.
func (m *JWTManager) Generate(subject string, level Permission) (string, error) {
	perms, err := PermissionsUpTo(level)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   subject,
		},
		Allow: perms,
	}
	if m.tokenDuration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDuration))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
