package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}

// Gate authenticates the bearer token, if any, and authorizes the request
// against p before it reaches a handler. The principal is put on the
// request context.
func Gate(v TokenVerifier, p *Policy, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var who *Principal
			if token, ok := bearerToken(r); ok {
				principal, err := v.Verify(token)
				if err != nil {
					logger.Debugw("rejected token", "path", r.URL.Path, "err", err)
					deny(w, ErrUnauthenticated)
					return
				}
				who = principal
			}
			if err := p.Authorize(r.Method, r.URL.Path, who); err != nil {
				logger.Debugw("request denied", "method", r.Method, "path", r.URL.Path, "err", err)
				deny(w, err)
				return
			}
			if who != nil {
				r = r.WithContext(WithPrincipal(r.Context(), who))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken reports ok when the request carries a Bearer credential.
// Other schemes are ignored, leaving the caller anonymous.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func deny(w http.ResponseWriter, err error) {
	status := http.StatusForbidden
	if errors.Is(err, ErrUnauthenticated) {
		status = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Bearer realm="user-service"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
