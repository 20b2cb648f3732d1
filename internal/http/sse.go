package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"collab/backend/internal/httpjson"
)

type sendFunc func(event string, v any) error

// stream serves a watch as Server-Sent Events. Errors raised before the
// first event are answered as ordinary JSON errors; later ones are sent as
// an "error" event before the stream closes.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request, mapErr errorMapper, run func(send sendFunc) error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpjson.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	send := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !started {
			hdr := w.Header()
			hdr.Set("Content-Type", "text/event-stream")
			hdr.Set("Cache-Control", "no-cache")
			hdr.Set("Connection", "keep-alive")
			hdr.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := run(send)
	if err == nil || errors.Is(err, context.Canceled) || r.Context().Err() != nil {
		return
	}
	if !started {
		h.fail(w, r, err, mapErr)
		return
	}
	_, msg := mapErr(err)
	_ = send("error", map[string]string{"error": msg})
}
