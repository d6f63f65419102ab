package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"keymart/internal/cache"
)

const refreshKeyPrefix = "REFRESH_"

// RefreshStore issues and redeems opaque refresh tokens. A token is 32 random
// bytes; only its SHA-256 is stored, mapped to the account id with the
// configured TTL. Redeeming deletes the entry, so each token works once.
type RefreshStore struct {
	Store cache.Store
	TTL   time.Duration
}

func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return refreshKeyPrefix + hex.EncodeToString(sum[:])
}

// Issue stores a fresh refresh token for the account and returns it.
func (rs *RefreshStore) Issue(ctx context.Context, accountID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := rs.Store.SetTTL(ctx, refreshKey(token), accountID, rs.TTL); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem consumes a refresh token, returning the account id it was issued
// for. ok is false for an unknown, expired or already-redeemed token.
func (rs *RefreshStore) Redeem(ctx context.Context, token string) (accountID string, ok bool, err error) {
	key := refreshKey(token)
	accountID, ok, err = rs.Store.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := rs.Store.Delete(ctx, key); err != nil {
		return "", false, err
	}
	return accountID, true, nil
}

// Revoke drops a refresh token without redeeming it.
func (rs *RefreshStore) Revoke(ctx context.Context, token string) error {
	return rs.Store.Delete(ctx, refreshKey(token))
}
