package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"collab/backend/internal/httpjson"
	"collab/backend/internal/middleware"
)

// errorMapper turns a domain error into a status and a client-safe message.
type errorMapper func(err error) (int, string)

// fail writes the mapped error. Server-side failures are logged with the
// request id since their message is not shown to the client.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, mapErr errorMapper) {
	status, msg := mapErr(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	httpjson.Error(w, status, msg)
}

// decode reads a JSON body, answering 400 itself when it is not valid.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpjson.Read(r, dst); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func authUser(r *http.Request) *middleware.AuthUser {
	au, _ := middleware.GetAuthUser(r.Context())
	if au == nil {
		return &middleware.AuthUser{}
	}
	return au
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
