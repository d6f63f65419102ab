package auth

import (
	"context"
)

type ctxKey string

const userKey ctxKey = "userClaims"

// Claims is the identity extracted from a validated access token.
type Claims struct {
	Subject   string
	Username  string
	Email     string
	AccountID string
	Roles     []string
}

func (c Claims) HasRole(roleID string) bool {
	for _, r := range c.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, userKey, c)
}

func FromContext(ctx context.Context) Claims {
	if v, ok := ctx.Value(userKey).(Claims); ok {
		return v
	}
	return Claims{}
}

func Subject(ctx context.Context) string {
	return FromContext(ctx).Subject
}

// AccountID returns the caller's account identifier claim, if any.
func AccountID(ctx context.Context) string {
	return FromContext(ctx).AccountID
}
