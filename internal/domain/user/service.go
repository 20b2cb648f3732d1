package user

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Service struct {
	store      Store
	adminEmail string
	now        func() time.Time
}

// NewService builds the user-record service. adminEmail is compared
// case-insensitively; an empty value means nobody is tagged admin.
func NewService(store Store, adminEmail string) *Service {
	return &Service{
		store:      store,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) isAdminEmail(email string) bool {
	return s.adminEmail != "" && strings.ToLower(strings.TrimSpace(email)) == s.adminEmail
}

// Ensure makes sure users/{uid} exists. Default fields are written only when
// the record is created; an existing record only gets lastLoginAt/updatedAt
// refreshed. created reports which case happened.
func (s *Service) Ensure(ctx context.Context, id Identity) (rec *Record, created bool, err error) {
	id.Trim()
	if id.UID == "" {
		return nil, false, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}

	now := s.now()
	role := RoleUser
	if s.isAdminEmail(id.Email) {
		role = RoleAdmin
	}
	fresh := Record{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Provider:    id.Provider,
		Role:        role,
		IsAdmin:     role == RoleAdmin,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}

	err = s.store.Create(ctx, fresh)
	switch {
	case err == nil:
		return &fresh, true, nil
	case !IsErrAlreadyExists(err):
		return nil, false, fmt.Errorf("create user record: %w", err)
	}

	if err := s.store.Update(ctx, id.UID, map[string]any{
		"lastLoginAt": now,
		"updatedAt":   now,
	}); err != nil {
		return nil, false, fmt.Errorf("touch user record: %w", err)
	}
	rec, err = s.store.Get(ctx, id.UID)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (s *Service) Get(ctx context.Context, uid string) (*Record, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	rec, err := s.store.Get(ctx, uid)
	if err != nil {
		if IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: user record not found", ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// UpdateProfile changes display fields only; role and admin flags are never
// writable through it.
func (s *Service) UpdateProfile(ctx context.Context, uid string, in UpdateInput) (*Record, error) {
	in.Trim()
	if _, err := s.Get(ctx, uid); err != nil {
		return nil, err
	}

	updates := map[string]any{"updatedAt": s.now()}
	if in.DisplayName != nil {
		if *in.DisplayName == "" {
			return nil, fmt.Errorf("%w: displayName cannot be empty", ErrBadRequest)
		}
		updates["displayName"] = *in.DisplayName
	}
	if in.PhotoURL != nil {
		updates["photoURL"] = *in.PhotoURL
	}
	if err := s.store.Update(ctx, uid, updates); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.store.Get(ctx, uid)
}
