// internal/auth/jwt.go
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenManager(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

type Claims struct {
	UserID string `json:"uid"`
	Type   string `json:"typ"` // "access" | "refresh"
	jwt.RegisteredClaims
}

// GeneratePair issues an access and a refresh token for userID.
func (tm *TokenManager) GeneratePair(userID string) (access string, refresh string, accessExp time.Time, err error) {
	now := time.Now()

	access, err = tm.sign(userID, "access", now, tm.accessTTL, tm.accessSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = tm.sign(userID, "refresh", now, tm.refreshTTL, tm.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, now.Add(tm.accessTTL), nil
}

func (tm *TokenManager) sign(userID, typ string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAny tries the access secret first, then the refresh secret. The bool
// reports whether the token is a refresh token.
func (tm *TokenManager) ParseAny(tokenStr string) (*Claims, bool, error) {
	if claims, err := tm.parse(tokenStr, tm.accessSecret); err == nil && claims.Type == "access" {
		return claims, false, nil
	}
	if claims, err := tm.parse(tokenStr, tm.refreshSecret); err == nil && claims.Type == "refresh" {
		return claims, true, nil
	}
	return nil, false, ErrInvalidToken
}

func (tm *TokenManager) parse(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
