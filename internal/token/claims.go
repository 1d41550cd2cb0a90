package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed means the token is not three dot-separated segments or cannot be decoded.
	ErrMalformed = errors.New("token: malformed")
	// ErrExpired means the exp claim is in the past.
	ErrExpired = errors.New("token: expired")
	// ErrNoUserID means no known claim carries a user id.
	ErrNoUserID = errors.New("token: no user id claim")
)

// userIDClaims are inspected in order.
var userIDClaims = []string{"id", "sub", "user_id", "userId"}

// Claims are the fields the kiosk reads from a device token. The signature belongs to the
// store and is not verified here.
type Claims struct {
	UserID     string
	Collection string
	ExpiresAt  time.Time
	Raw        jwt.MapClaims
}

// HasExpiry reports whether the token carried an exp claim.
func (c *Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Decode parses the payload of raw without verifying the signature.
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if err := checkShape(raw); err != nil {
		return nil, err
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims := &Claims{Raw: mapClaims}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if v, ok := mapClaims["collectionId"].(string); ok {
		claims.Collection = v
	}
	claims.UserID = userID(mapClaims)
	return claims, nil
}

// Validate checks shape and expiry of raw at now. Tokens without exp are accepted.
func Validate(raw string, now time.Time) error {
	claims, err := Decode(raw)
	if err != nil {
		return err
	}
	return CheckExpiry(claims, now)
}

// CheckExpiry fails when the claims carry an exp at or before now.
func CheckExpiry(claims *Claims, now time.Time) error {
	if claims.HasExpiry() && !now.Before(claims.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// UserID returns the user id of raw or ErrNoUserID.
func UserID(raw string) (string, error) {
	claims, err := Decode(raw)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrNoUserID
	}
	return claims.UserID, nil
}

func checkShape(raw string) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	for _, p := range parts[:2] {
		if p == "" {
			return ErrMalformed
		}
	}
	return nil
}

func userID(claims jwt.MapClaims) string {
	for _, key := range userIDClaims {
		switch v := claims[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			if v > 0 {
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}
