package http

import (
	"errors"
	"net/http"
	"strings"

	"collab/backend/internal/domain/ai"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/domain/user"
	"collab/backend/internal/httpjson"
	"collab/backend/internal/middleware"
)

func (h *handlers) getAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpjson.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, err := h.KeyExchange.Exchange(r.Context(), h.clientIP(r), r.Header.Get("Authorization"))
	if err != nil {
		var rl *keyexchange.RateLimitedError
		if errors.As(err, &rl) {
			middleware.WriteTooManyRequests(w, rl.Decision)
			return
		}
		h.fail(w, r, err, mapKeyExchangeError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpjson.Write(w, http.StatusOK, res)
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	au := authUser(r)
	var in ai.GenerateInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.AI.Generate(r.Context(), au.UID, h.clientIP(r), in)
	if err != nil {
		h.fail(w, r, err, mapAIError)
		return
	}
	h.Usage.Track(r.Context(), au.UID, "ai_generate", map[string]any{"model": res.Model})
	httpjson.Write(w, http.StatusOK, res)
}

// identityFromToken describes the caller using the standard ID token claims.
func identityFromToken(au *middleware.AuthUser) user.Identity {
	id := user.Identity{UID: au.UID, Email: au.Email}
	if v, ok := au.Claims["name"].(string); ok {
		id.DisplayName = v
	}
	if v, ok := au.Claims["picture"].(string); ok {
		id.PhotoURL = v
	}
	if fb, ok := au.Claims["firebase"].(map[string]any); ok {
		if v, ok := fb["sign_in_provider"].(string); ok {
			id.Provider = v
		}
	}
	return id
}

// getMe returns the caller's record, creating it on first sight so users
// who signed in directly against the provider get one too.
func (h *handlers) getMe(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.Users.Ensure(r.Context(), identityFromToken(authUser(r)))
	if err != nil {
		h.fail(w, r, err, mapUserError)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}

func (h *handlers) patchMe(w http.ResponseWriter, r *http.Request) {
	var in user.UpdateInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := h.Users.UpdateProfile(r.Context(), authUser(r).UID, in)
	if err != nil {
		h.fail(w, r, err, mapUserError)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}

type trackEventReq struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (h *handlers) trackEvent(w http.ResponseWriter, r *http.Request) {
	var req trackEventReq
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 100 {
		httpjson.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	h.Usage.Track(r.Context(), authUser(r).UID, req.Name, req.Properties)
	w.WriteHeader(http.StatusAccepted)
}
