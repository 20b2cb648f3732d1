// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
)

// Firestore returns a client for the emulator named by FIRESTORE_EMULATOR_HOST,
// skipping the test when it is not set. Each call uses a fresh project id so
// tests do not see each other's documents.
func Firestore(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	project := fmt.Sprintf("collab-test-%d", time.Now().UnixNano())
	c, err := firestore.NewClient(context.Background(), project)
	if err != nil {
		t.Fatalf("firestore emulator client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
