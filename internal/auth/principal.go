// Package auth verifies bearer tokens and decides, per request, whether the
// caller may reach an operation. Nothing is kept between requests.
package auth

import (
	"context"
	"strings"
)

// Principal is the caller identity taken from a verified token.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// HasRole compares roles ignoring case and a leading "ROLE_".
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return normalizeRole(p.Role) == normalizeRole(role)
}

func normalizeRole(r string) string {
	r = strings.ToUpper(strings.TrimSpace(r))
	return strings.TrimPrefix(r, "ROLE_")
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the gate, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
