package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"task-manager/internal/model"
	"task-manager/pkg/apierror"
)

const (
	msgTokenMissing = "Authentication token missing"
	msgTokenInvalid = "Invalid or expired token"
	msgForbidden    = "Forbidden"
)

type accessVerifier interface {
	VerifyAccess(tokenString string) (model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

// AuthMiddleware guards routes with the access token alone; it never
// consults the refresh ledger.
type AuthMiddleware struct {
	verifier accessVerifier
}

func NewAuthMiddleware(verifier accessVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msgTokenMissing)
			return
		}

		identity, err := m.verifier.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msgTokenInvalid)
			return
		}

		recordUser(r.Context(), identity.ID)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRoles admits only identities whose role is in roles. It must run
// after RequireAuth; a request without an identity is refused as well.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !slices.Contains(roles, identity.Role) {
				writeError(w, http.StatusForbidden, apierror.CodeForbidden, msgForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
