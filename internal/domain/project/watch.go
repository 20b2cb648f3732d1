package project

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Watcher streams the current state of a project and its subcollections.
// Each callback receives the full current value; a callback error stops the
// watch and is returned. Watches end with ctx.Err() when ctx is cancelled.
type Watcher interface {
	WatchProject(ctx context.Context, id string, fn func(*Project) error) error
	WatchTasks(ctx context.Context, projectID string, fn func([]Task) error) error
	WatchMessages(ctx context.Context, projectID string, limit int, fn func([]Message) error) error
}

func watchEnded(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

func (r *Repo) WatchProject(ctx context.Context, id string, fn func(*Project) error) error {
	it := r.projects().Doc(id).Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			return watchEnded(ctx, err)
		}
		if !snap.Exists() {
			return ErrNotFound
		}
		p, err := projectFrom(snap)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

func (r *Repo) WatchTasks(ctx context.Context, projectID string, fn func([]Task) error) error {
	it := r.taskQuery(projectID).Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			return watchEnded(ctx, err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		tasks, err := tasksFrom(docs)
		if err != nil {
			return err
		}
		if err := fn(tasks); err != nil {
			return err
		}
	}
}

func (r *Repo) WatchMessages(ctx context.Context, projectID string, limit int, fn func([]Message) error) error {
	it := r.recentMessages(projectID, limit).Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			return watchEnded(ctx, err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		msgs, err := messagesFrom(docs)
		if err != nil {
			return err
		}
		if err := fn(msgs); err != nil {
			return err
		}
	}
}
