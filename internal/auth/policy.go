package auth

import (
	"net/http"
	"strings"
)

// Access is what a rule demands of the caller.
type Access int

const (
	Public Access = iota
	Authenticated
	RoleRequired
)

// Rule matches a set of methods (none means any) on a path pattern.
// Pattern segments are literals, "{name}" for exactly one segment, or "**"
// for any number of trailing or inner segments.
type Rule struct {
	Methods []string
	Pattern string
	Access  Access
	Role    string

	segments []string
}

// Permit lets anyone through.
func Permit(pattern string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: Public}
}

// Authenticate requires any verified principal.
func Authenticate(pattern string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: Authenticated}
}

// RequireRole requires a verified principal holding role.
func RequireRole(role, pattern string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: RoleRequired, Role: role}
}

func (r Rule) matches(method string, path []string) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return matchSegments(r.segments, path)
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	head := pattern[0]
	if head == "**" {
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if !isVariable(head) && head != path[0] {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

func isVariable(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// Policy is an ordered rule table. The first matching rule decides and a
// request no rule matches is denied.
type Policy struct {
	rules []Rule
}

func NewPolicy(rules ...Rule) *Policy {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.segments = splitPath(r.Pattern)
		out[i] = r
	}
	return &Policy{rules: out}
}

// AdminRole guards listings and the card administration routes.
const AdminRole = "ADMIN"

// DefaultPolicy is the route table of the service.
func DefaultPolicy() *Policy {
	const (
		get    = http.MethodGet
		post   = http.MethodPost
		put    = http.MethodPut
		del    = http.MethodDelete
	)
	return NewPolicy(
		Permit("/health", get),
		Permit("/api/users", post),
		Authenticate("/api/users/{id}", get, put, del),
		Authenticate("/api/cards", post),
		Authenticate("/api/cards/{id}", get, put, del),
		Authenticate("/api/cards/user-cards/{id}", get),
		RequireRole(AdminRole, "/api/cards/**"),
		RequireRole(AdminRole, "/api/users", get),
		RequireRole(AdminRole, "/api/users/**"),
		Authenticate("/**"),
	)
}

// Authorize returns nil when who may call method on path, ErrUnauthenticated
// when a principal is needed but absent, and ErrForbidden otherwise.
func (p *Policy) Authorize(method, path string, who *Principal) error {
	segs := splitPath(path)
	for _, r := range p.rules {
		if !r.matches(method, segs) {
			continue
		}
		switch r.Access {
		case Public:
			return nil
		case Authenticated:
			if who == nil {
				return ErrUnauthenticated
			}
			return nil
		default:
			if who == nil {
				return ErrUnauthenticated
			}
			if !who.HasRole(r.Role) {
				return ErrForbidden
			}
			return nil
		}
	}
	if who == nil {
		return ErrUnauthenticated
	}
	return ErrForbidden
}
