package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const windowsCollection = "rateWindows"

type windowDoc struct {
	Stamps    []time.Time `firestore:"stamps"`
	ExpiresAt time.Time   `firestore:"expiresAt"`
	UpdatedAt time.Time   `firestore:"updatedAt"`
}

// FirestoreStore shares windows between instances through one document per
// key, read and written in a transaction. expiresAt is maintained so a
// Firestore TTL policy can reap idle windows.
type FirestoreStore struct {
	fs *firestore.Client
}

func NewFirestoreStore(fs *firestore.Client) *FirestoreStore {
	return &FirestoreStore{fs: fs}
}

// docID hashes the key so raw client addresses are not stored as document names.
func docID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func (s *FirestoreStore) Allow(ctx context.Context, key string, now time.Time, max int, window time.Duration) (Decision, error) {
	ref := s.fs.Collection(windowsCollection).Doc(docID(key))

	var d Decision
	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var w windowDoc
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&w); err != nil {
				return err
			}
		}

		var stamps []time.Time
		stamps, d = slide(w.Stamps, now, max, window)
		if !d.Allowed {
			return nil
		}
		return tx.Set(ref, windowDoc{
			Stamps:    stamps,
			ExpiresAt: now.Add(window),
			UpdatedAt: now,
		})
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate window %s: %w", key, err)
	}
	return d, nil
}
