package user

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store is the persistence used by Service.
type Store interface {
	// Create writes rec only if no document exists; otherwise ErrAlreadyExists.
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, uid string) (*Record, error)
	Update(ctx context.Context, uid string, fields map[string]any) error
}

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) doc(uid string) *firestore.DocumentRef {
	return r.fs.Collection("users").Doc(uid)
}

func (r *Repo) Create(ctx context.Context, rec Record) error {
	_, err := r.doc(rec.UID).Create(ctx, rec)
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return err
}

func (r *Repo) Get(ctx context.Context, uid string) (*Record, error) {
	doc, err := r.doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := doc.DataTo(&rec); err != nil {
		return nil, err
	}
	if rec.UID == "" {
		rec.UID = uid
	}
	return &rec, nil
}

func (r *Repo) Update(ctx context.Context, uid string, fields map[string]any) error {
	_, err := r.doc(uid).Set(ctx, fields, firestore.MergeAll)
	return err
}
