package user

import (
	"strings"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Record is the users/{uid} document.
type Record struct {
	UID         string `firestore:"uid" json:"uid"`
	Email       string `firestore:"email,omitempty" json:"email,omitempty"`
	DisplayName string `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	PhotoURL    string `firestore:"photoURL,omitempty" json:"photoURL,omitempty"`
	Provider    string `firestore:"provider,omitempty" json:"provider,omitempty"`

	Role    string `firestore:"role" json:"role"`
	IsAdmin bool   `firestore:"isAdmin" json:"isAdmin"`

	CreatedAt   time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt" json:"updatedAt"`
	LastLoginAt time.Time `firestore:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
}

// Identity is what the identity provider tells us about a signed-in user.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
}

func (i *Identity) Trim() {
	i.UID = strings.TrimSpace(i.UID)
	i.Email = strings.TrimSpace(i.Email)
	i.DisplayName = strings.TrimSpace(i.DisplayName)
	i.PhotoURL = strings.TrimSpace(i.PhotoURL)
}

type UpdateInput struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

func (in *UpdateInput) Trim() {
	if in.DisplayName != nil {
		v := strings.TrimSpace(*in.DisplayName)
		in.DisplayName = &v
	}
	if in.PhotoURL != nil {
		v := strings.TrimSpace(*in.PhotoURL)
		in.PhotoURL = &v
	}
}
