package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// A package-private key type means only this package can write or read the
// user ID stored in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// TokenCookie is the cookie set by the GitHub callback. Browser clients that
// cannot attach headers are authorized through it.
const TokenCookie = "token"

// errNoToken is returned by extractToken when the request carries no credential.
var errNoToken = errors.New("auth: no token")

// TokenValidator is the part of TokenService the middleware needs.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// TOKEN SOURCES, in order:
//  1. Authorization header: "Bearer <jwt>" or the bare "<jwt>"
//  2. The "token" cookie
//
// If the token is missing or invalid it answers 401 with a JSON error body and
// stops the chain. Otherwise the user ID from the token's "sub" claim is put in
// the request context, and handlers read it via UserIDFromContext.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := extractToken(r)
			if err != nil {
				unauthorized(w, "authentication required")
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. Handler tests use it to
// fake an authenticated request without minting a token.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request did not pass through RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractToken pulls the raw JWT out of the request.
func extractToken(r *http.Request) (string, error) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			h = strings.TrimSpace(h[7:])
		}
		if h != "" {
			return h, nil
		}
	}

	cookie, err := r.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return "", errNoToken
	}
	return cookie.Value, nil
}

// unauthorized writes the 401 body. It mirrors handler.writeError's shape,
// which this package cannot import without a cycle.
func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
