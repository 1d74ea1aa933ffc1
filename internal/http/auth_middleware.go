package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

type authContextKey string

const contextKeyCaller authContextKey = "portal-caller"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// requireBookkeeper layers a role check on requireAuth. Role mismatches
// answer with the same generic 401 as missing credentials.
func (r *Router) requireBookkeeper(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		caller, ok := callerFromContext(req.Context())
		if !ok || !caller.IsBookkeeper() {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	})
}

// requireClient is the mirror gate for client-only routes.
func (r *Router) requireClient(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		caller, ok := callerFromContext(req.Context())
		if !ok || caller.Role != domain.RoleClient {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	})
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, auth.Caller, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), auth.Caller{}, false
	}
	caller, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), auth.Caller{}, false
	}
	ctx := context.WithValue(req.Context(), contextKeyCaller, caller)
	return ctx, caller, true
}

// callerFromContext extracts the authenticated caller from context.
func callerFromContext(ctx context.Context) (auth.Caller, bool) {
	value := ctx.Value(contextKeyCaller)
	if value == nil {
		return auth.Caller{}, false
	}
	caller, ok := value.(auth.Caller)
	return caller, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
