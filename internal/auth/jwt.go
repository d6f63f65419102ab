package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints and validates HS256 access tokens. Issuer, audience and
// expiry are checked exactly on validation; there is no clock-skew allowance.
type TokenIssuer struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

var ErrInvalidToken = errors.New("invalid token")

func (ti *TokenIssuer) now() time.Time {
	if ti.Now != nil {
		return ti.Now()
	}
	return time.Now()
}

// Issue signs an access token for the given identity and returns it together
// with its expiry instant.
func (ti *TokenIssuer) Issue(userID, username, email, accountID string, roleIDs []string) (string, time.Time, error) {
	expiresAt := ti.now().Add(ti.AccessTTL)
	claims := jwt.MapClaims{
		"sub":       userID,
		"name":      username,
		"email":     email,
		"accountId": accountID,
		"roles":     roleIDs,
		"iss":       ti.Issuer,
		"aud":       ti.Audience,
		"iat":       ti.now().Unix(),
		"exp":       expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token string, returning its claims.
func (ti *TokenIssuer) Validate(tokenStr string) (Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(ti.Issuer),
		jwt.WithAudience(ti.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	c := Claims{}
	c.Subject, _ = mapc["sub"].(string)
	c.Username, _ = mapc["name"].(string)
	c.Email, _ = mapc["email"].(string)
	c.AccountID, _ = mapc["accountId"].(string)
	if arr, ok := mapc["roles"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	}
	if c.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}
