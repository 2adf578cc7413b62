// Package auth issues and checks the signed tokens that carry a caller's
// identity: user, unit and role.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/erazemk/inventura/internal/model"
)

// Issuer is set on every token and required when validating.
const Issuer = "inventura"

// Claims represents the JWT claims.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	UnitID   string `json:"unit_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the identity the accountability engine works with.
func (c *Claims) Actor() model.Actor {
	return model.Actor{
		UserID: strconv.FormatInt(c.UserID, 10),
		UnitID: c.UnitID,
		Role:   c.Role,
	}
}

// TokenExpiry is the default token lifetime.
const TokenExpiry = 7 * 24 * time.Hour

// GenerateToken creates a new JWT for a user with a unique JTI.
func GenerateToken(secret string, u *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		UnitID:   u.UnitID,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UnitID == "" {
		return nil, fmt.Errorf("token carries no unit")
	}

	return claims, nil
}
