package http

import (
	"net/http"

	"collab/backend/internal/domain/ai"
	authdom "collab/backend/internal/domain/auth"
	"collab/backend/internal/domain/files"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/domain/project"
	"collab/backend/internal/domain/user"
)

func mapKeyExchangeError(err error) (int, string) {
	switch {
	case keyexchange.IsErrRateLimited(err):
		return http.StatusTooManyRequests, "Too many requests"
	case keyexchange.IsErrMisconfigured(err):
		return http.StatusInternalServerError, "Server configuration error"
	case keyexchange.IsErrUnauthorized(err):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func mapAuthError(err error) (int, string) {
	ae := authdom.MapError(err)
	switch {
	case authdom.IsErrBadRequest(ae):
		return http.StatusBadRequest, ae.Message
	case authdom.IsErrInvalidCredentials(ae):
		return http.StatusUnauthorized, ae.Message
	case authdom.IsErrEmailExists(ae):
		return http.StatusConflict, ae.Message
	case authdom.IsErrDisabled(ae):
		return http.StatusForbidden, ae.Message
	case authdom.IsErrTooManyAttempts(ae):
		return http.StatusTooManyRequests, ae.Message
	default:
		return http.StatusBadGateway, ae.Message
	}
}

func mapUserError(err error) (int, string) {
	switch {
	case user.IsErrNotFound(err):
		return http.StatusNotFound, err.Error()
	case user.IsErrBadRequest(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func mapProjectError(err error) (int, string) {
	switch {
	case project.IsErrNotFound(err):
		return http.StatusNotFound, err.Error()
	case project.IsErrForbidden(err):
		return http.StatusForbidden, err.Error()
	case project.IsErrBadRequest(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func mapFilesError(err error) (int, string) {
	switch {
	case files.IsErrBadRequest(err):
		return http.StatusBadRequest, err.Error()
	case files.IsErrMisconfigured(err):
		return http.StatusInternalServerError, err.Error()
	default:
		return mapProjectError(err)
	}
}

func mapAIError(err error) (int, string) {
	switch {
	case ai.IsErrBadRequest(err):
		return http.StatusBadRequest, err.Error()
	case ai.IsErrMisconfigured(err):
		return http.StatusInternalServerError, "Server configuration error"
	case ai.IsErrUpstream(err):
		return http.StatusBadGateway, "AI service error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
