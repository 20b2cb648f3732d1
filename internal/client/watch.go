package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"collab/backend/internal/domain/project"
)

// Event is one Server-Sent Event from a watch endpoint.
type Event struct {
	Name string
	Data json.RawMessage
}

// StreamError is an "error" event sent after a watch had started.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "watch ended: " + e.Message }

// Watch opens an event stream at path and calls fn for every event until the
// server ends the stream, fn returns an error, or ctx is cancelled. A clean
// end of stream and cancellation both return nil.
func (c *Client) Watch(ctx context.Context, path string, fn func(Event) error) error {
	tok := ""
	if c.tokens != nil {
		tok = c.tokens.IDToken()
	}
	if tok == "" {
		return &APIError{Status: http.StatusUnauthorized, Message: "not signed in"}
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, tok, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return decodeError(resp, body)
	}

	err = readEvents(resp.Body, func(ev Event) error {
		if ev.Name == "error" {
			var b struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(ev.Data, &b)
			return &StreamError{Message: b.Error}
		}
		return fn(ev)
	})
	if err != nil && ctx.Err() != nil && !isStreamError(err) {
		return nil
	}
	return err
}

func isStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// maxEventSize fits a full task list (project.MaxTasks) at maximum field sizes.
const maxEventSize = 16 << 20

// readEvents parses the text/event-stream framing: "event:" and "data:" lines
// terminated by a blank line. Comment lines start with ':'.
func readEvents(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var name string
	var data []string
	flush := func() error {
		if len(data) == 0 {
			name = ""
			return nil
		}
		ev := Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
		if ev.Name == "" {
			ev.Name = "message"
		}
		name, data = "", nil
		return fn(ev)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}

func decodeEvent[T any](ev Event, fn func(T) error) error {
	var v T
	if err := json.Unmarshal(ev.Data, &v); err != nil {
		return fmt.Errorf("decode %s event: %w", ev.Name, err)
	}
	return fn(v)
}

func (c *Client) WatchProject(ctx context.Context, id string, fn func(*project.Project) error) error {
	return c.Watch(ctx, projectPath(id, "watch"), func(ev Event) error {
		if ev.Name != "project" {
			return nil
		}
		return decodeEvent(ev, fn)
	})
}

func (c *Client) WatchTasks(ctx context.Context, projectID string, fn func([]project.Task) error) error {
	return c.Watch(ctx, projectPath(projectID, "tasks", "watch"), func(ev Event) error {
		if ev.Name != "tasks" {
			return nil
		}
		return decodeEvent(ev, fn)
	})
}

func (c *Client) WatchMessages(ctx context.Context, projectID string, limit int, fn func([]project.Message) error) error {
	path := projectPath(projectID, "messages", "watch")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return c.Watch(ctx, path, func(ev Event) error {
		if ev.Name != "messages" {
			return nil
		}
		return decodeEvent(ev, fn)
	})
}
