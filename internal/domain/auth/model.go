package auth

import (
	"strings"

	"collab/backend/internal/domain/user"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Trim leaves the password untouched; whitespace can be part of it.
func (c *Credentials) Trim() {
	c.Email = strings.TrimSpace(c.Email)
}

type SignUpInput struct {
	Credentials
	DisplayName string `json:"displayName,omitempty"`
}

func (in *SignUpInput) Trim() {
	in.Credentials.Trim()
	in.DisplayName = strings.TrimSpace(in.DisplayName)
}

// Session is what a successful sign-in hands back to the client.
type Session struct {
	UID          string       `json:"uid"`
	User         *user.Record `json:"user,omitempty"`
	IDToken      string       `json:"idToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int          `json:"expiresIn"`
}
