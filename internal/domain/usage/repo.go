package usage

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
)

// Recorder appends usage entries and analytics events. Implementations must
// not surface storage failures to callers.
type Recorder interface {
	Log(ctx context.Context, e Entry)
	Track(ctx context.Context, uid, name string, props map[string]any)
}

type Repo struct {
	fs  *firestore.Client
	log *zap.Logger
}

func NewRepo(fs *firestore.Client, log *zap.Logger) *Repo {
	return &Repo{fs: fs, log: log}
}

func (r *Repo) Log(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Caller == "" {
		e.Caller = "anonymous"
	}
	if _, _, err := r.fs.Collection("apiUsage").Add(ctx, e); err != nil {
		r.log.Warn("usage log write failed", zap.String("kind", e.Kind), zap.Error(err))
	}
}

func (r *Repo) Track(ctx context.Context, uid, name string, props map[string]any) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	ev := Event{UID: uid, Name: name, Properties: props, Timestamp: time.Now().UTC()}
	if _, _, err := r.fs.Collection("analytics").Add(ctx, ev); err != nil {
		r.log.Warn("analytics write failed", zap.String("event", name), zap.Error(err))
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(context.Context, Entry) {}

func (Nop) Track(context.Context, string, string, map[string]any) {}
