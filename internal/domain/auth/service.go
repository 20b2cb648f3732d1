package auth

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"collab/backend/internal/domain/usage"
	"collab/backend/internal/domain/user"
)

// Provider is the identity provider surface used by Service.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*IdentityResponse, error)
	SignUp(ctx context.Context, email, password string) (*IdentityResponse, error)
	SignInWithIdp(ctx context.Context, cred IdpCredential) (*IdentityResponse, error)
	SendPasswordReset(ctx context.Context, email string) error
	UpdateDisplayName(ctx context.Context, idToken, displayName string) error
	Refresh(ctx context.Context, refreshToken string) (*IdentityResponse, error)
}

// Revoker ends server-side sessions. *firebase auth.Client satisfies it.
type Revoker interface {
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Users ensures a user record exists after authentication.
type Users interface {
	Ensure(ctx context.Context, id user.Identity) (*user.Record, bool, error)
}

type Service struct {
	idp     Provider
	revoker Revoker
	users   Users
	usage   usage.Recorder
	log     *zap.Logger
}

func NewService(idp Provider, revoker Revoker, users Users, rec usage.Recorder, log *zap.Logger) *Service {
	return &Service{idp: idp, revoker: revoker, users: users, usage: rec, log: log}
}

func (s *Service) SignIn(ctx context.Context, in Credentials) (*Session, error) {
	in.Trim()
	if err := validateCredentials(in); err != nil {
		return nil, err
	}
	resp, err := s.idp.SignInWithPassword(ctx, in.Email, in.Password)
	if err != nil {
		return nil, s.fail("sign_in", err)
	}
	return s.establish(ctx, resp, "sign_in")
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	in.Trim()
	if err := validateCredentials(in.Credentials); err != nil {
		return nil, err
	}
	resp, err := s.idp.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, s.fail("sign_up", err)
	}
	if in.DisplayName != "" {
		if err := s.idp.UpdateDisplayName(ctx, resp.IDToken, in.DisplayName); err != nil {
			// best effort: the account already exists at this point
			s.log.Warn("set display name failed", zap.String("uid", resp.LocalID), zap.Error(err))
		} else {
			resp.DisplayName = in.DisplayName
		}
	}
	return s.establish(ctx, resp, "sign_up")
}

func (s *Service) SignInWithProvider(ctx context.Context, cred IdpCredential) (*Session, error) {
	cred.ProviderID = strings.TrimSpace(cred.ProviderID)
	if cred.ProviderID == "" {
		return nil, badRequest("providerId is required.")
	}
	if cred.IDToken == "" && cred.AccessToken == "" {
		return nil, badRequest("An idToken or accessToken from the provider is required.")
	}
	resp, err := s.idp.SignInWithIdp(ctx, cred)
	if err != nil {
		return nil, s.fail("oauth_sign_in", err)
	}
	return s.establish(ctx, resp, "oauth_sign_in")
}

// SignOut revokes every refresh token of uid so other devices are signed out too.
func (s *Service) SignOut(ctx context.Context, uid string) error {
	if uid == "" {
		return badRequest("Not signed in.")
	}
	if err := s.revoker.RevokeRefreshTokens(ctx, uid); err != nil {
		return s.fail("sign_out", err)
	}
	s.usage.Track(ctx, uid, "sign_out", nil)
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return badRequest("Please enter a valid email address.")
	}
	if err := s.idp.SendPasswordReset(ctx, email); err != nil {
		return s.fail("password_reset", err)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, badRequest("refreshToken is required.")
	}
	resp, err := s.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	return &Session{
		UID:          resp.LocalID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresInSeconds(),
	}, nil
}

func (s *Service) establish(ctx context.Context, resp *IdentityResponse, event string) (*Session, error) {
	rec, created, err := s.users.Ensure(ctx, user.Identity{
		UID:         resp.LocalID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoURL,
		Provider:    resp.ProviderID,
	})
	if err != nil {
		s.log.Error("ensure user record failed", zap.String("uid", resp.LocalID), zap.Error(err))
		return nil, &Error{Kind: ErrUpstream, Message: "Signed in, but your profile could not be loaded. Please try again.", cause: err}
	}
	s.usage.Track(ctx, resp.LocalID, event, map[string]any{"provider": resp.ProviderID, "newUser": created})
	return &Session{
		UID:          resp.LocalID,
		User:         rec,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresInSeconds(),
	}, nil
}

func (s *Service) fail(op string, err error) *Error {
	ae := MapError(err)
	s.log.Info("auth operation failed", zap.String("op", op), zap.String("code", ae.Code), zap.Error(err))
	return ae
}

func validateCredentials(in Credentials) *Error {
	if !validEmail(in.Email) {
		return badRequest("Please enter a valid email address.")
	}
	if in.Password == "" {
		return badRequest("Please enter your password.")
	}
	return nil
}

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
