package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"collab/backend/internal/httpjson"
)

type ctxKey string

const authUserKey ctxKey = "authUser"

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthUser struct {
	UID     string
	Email   string
	Claims  map[string]any
	IDToken string
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[len("Bearer "):])
	return tok, tok != ""
}

func WithAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idToken, ok := BearerToken(r)
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, "missing Authorization: Bearer <token>")
				return
			}

			tok, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				httpjson.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := WithAuthUser(r.Context(), UserFromToken(tok, idToken))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromToken(tok *auth.Token, raw string) *AuthUser {
	au := &AuthUser{
		UID:     tok.UID,
		Claims:  tok.Claims,
		IDToken: raw,
	}
	if v, ok := tok.Claims["email"].(string); ok {
		au.Email = v
	}
	return au
}

func WithAuthUser(ctx context.Context, au *AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, au)
}

func GetAuthUser(ctx context.Context) (*AuthUser, bool) {
	v := ctx.Value(authUserKey)
	if v == nil {
		return nil, false
	}
	au, ok := v.(*AuthUser)
	return au, ok
}

// IsAdmin checks if the user has admin role in their claims
func IsAdmin(claims map[string]any) bool {
	if claims == nil {
		return false
	}
	if admin, ok := claims["admin"].(bool); ok && admin {
		return true
	}
	if role, ok := claims["role"].(string); ok && role == "admin" {
		return true
	}
	// Check roles map
	if roles, ok := claims["roles"].(map[string]any); ok {
		if b, ok := roles["admin"].(bool); ok && b {
			return true
		}
	}
	// Check roles array
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if str, ok := r.(string); ok && str == "admin" {
				return true
			}
		}
	}
	return false
}

// HasScope checks the space separated "scope" claim, or a "scopes" array.
func HasScope(claims map[string]any, scope string) bool {
	if claims == nil {
		return false
	}
	if s, ok := claims["scope"].(string); ok {
		for _, f := range strings.Fields(s) {
			if f == scope {
				return true
			}
		}
	}
	if arr, ok := claims["scopes"].([]any); ok {
		for _, v := range arr {
			if str, ok := v.(string); ok && str == scope {
				return true
			}
		}
	}
	return false
}
