package http

import (
	"net/http"

	"go.uber.org/zap"

	authdom "collab/backend/internal/domain/auth"
	"collab/backend/internal/domain/user"
	"collab/backend/internal/httpjson"
	"collab/backend/internal/middleware"
)

// authResponse is the envelope of every /api/auth endpoint.
type authResponse struct {
	Success      bool         `json:"success"`
	User         *user.Record `json:"user,omitempty"`
	UID          string       `json:"uid,omitempty"`
	IDToken      string       `json:"idToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	ExpiresIn    int          `json:"expiresIn,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func (h *handlers) writeSession(w http.ResponseWriter, r *http.Request, sess *authdom.Session, err error) {
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpjson.Write(w, http.StatusOK, authResponse{
		Success:      true,
		User:         sess.User,
		UID:          sess.UID,
		IDToken:      sess.IDToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
	})
}

func (h *handlers) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapAuthError(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("auth request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	httpjson.Write(w, status, authResponse{Error: msg})
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var in authdom.Credentials
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Auth.SignIn(r.Context(), in)
	h.writeSession(w, r, sess, err)
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var in authdom.SignUpInput
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Auth.SignUp(r.Context(), in)
	h.writeSession(w, r, sess, err)
}

func (h *handlers) oauthSignIn(w http.ResponseWriter, r *http.Request) {
	var in authdom.IdpCredential
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Auth.SignInWithProvider(r.Context(), in)
	h.writeSession(w, r, sess, err)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	h.writeSession(w, r, sess, err)
}

func (h *handlers) passwordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.Auth.ResetPassword(r.Context(), in.Email); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, authResponse{Success: true})
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.SignOut(r.Context(), authUser(r).UID); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, authResponse{Success: true})
}
