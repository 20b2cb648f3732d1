package auth

import (
	"errors"
	"strings"
)

var (
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already in use")
	ErrDisabled           = errors.New("account disabled")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrUpstream           = errors.New("identity provider unavailable")
)

func IsErrBadRequest(err error) bool         { return errors.Is(err, ErrBadRequest) }
func IsErrInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsErrEmailExists(err error) bool        { return errors.Is(err, ErrEmailExists) }
func IsErrDisabled(err error) bool           { return errors.Is(err, ErrDisabled) }
func IsErrTooManyAttempts(err error) bool    { return errors.Is(err, ErrTooManyAttempts) }
func IsErrUpstream(err error) bool           { return errors.Is(err, ErrUpstream) }

// Error is a failed auth operation with a message fit for end users.
type Error struct {
	Kind    error  // one of the sentinels above
	Code    string // provider code, when there is one
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

type mapped struct {
	kind error
	msg  string
}

var providerMessages = map[string]mapped{
	"EMAIL_NOT_FOUND":             {ErrInvalidCredentials, "No account found with this email address."},
	"INVALID_PASSWORD":            {ErrInvalidCredentials, "Incorrect password. Please try again."},
	"INVALID_LOGIN_CREDENTIALS":   {ErrInvalidCredentials, "Invalid email or password."},
	"INVALID_REFRESH_TOKEN":       {ErrInvalidCredentials, "Your session has expired. Please sign in again."},
	"TOKEN_EXPIRED":               {ErrInvalidCredentials, "Your session has expired. Please sign in again."},
	"INVALID_ID_TOKEN":            {ErrInvalidCredentials, "Your session has expired. Please sign in again."},
	"USER_NOT_FOUND":              {ErrInvalidCredentials, "No account found with this email address."},
	"INVALID_IDP_RESPONSE":        {ErrInvalidCredentials, "The sign-in provider rejected the credential."},
	"EMAIL_EXISTS":                {ErrEmailExists, "An account with this email already exists."},
	"WEAK_PASSWORD":               {ErrBadRequest, "Password should be at least 6 characters."},
	"INVALID_EMAIL":               {ErrBadRequest, "Please enter a valid email address."},
	"MISSING_PASSWORD":            {ErrBadRequest, "Please enter your password."},
	"MISSING_EMAIL":               {ErrBadRequest, "Please enter your email address."},
	"OPERATION_NOT_ALLOWED":       {ErrBadRequest, "This sign-in method is not enabled."},
	"USER_DISABLED":               {ErrDisabled, "This account has been disabled."},
	"TOO_MANY_ATTEMPTS_TRY_LATER": {ErrTooManyAttempts, "Too many failed attempts. Please try again later."},
}

// MapError converts identity-provider and transport failures into *Error.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if m, ok := providerMessages[strings.ToUpper(pe.Code)]; ok {
			return &Error{Kind: m.kind, Code: pe.Code, Message: m.msg, cause: err}
		}
		if pe.Status >= 500 {
			return &Error{Kind: ErrUpstream, Code: pe.Code, Message: "The sign-in service is unavailable. Please try again later.", cause: err}
		}
		return &Error{Kind: ErrBadRequest, Code: pe.Code, Message: "An unexpected error occurred. Please try again.", cause: err}
	}
	return &Error{Kind: ErrUpstream, Message: "Network error. Please check your connection and try again.", cause: err}
}

func badRequest(msg string) *Error {
	return &Error{Kind: ErrBadRequest, Message: msg}
}
