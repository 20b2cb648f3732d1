package firebase

import (
	"context"
	"fmt"
	"os"

	"collab/backend/internal/config"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Clients bundles Firebase + GCP clients used by services.
type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
	Storage   *storage.Client

	ProjectID string
	Bucket    string
}

func NewClients(ctx context.Context, cfg config.Config) (*Clients, error) {
	if cfg.Firebase.ProjectID == "" {
		return nil, fmt.Errorf("missing FIREBASE_PROJECT_ID or GOOGLE_CLOUD_PROJECT")
	}

	// In Cloud Run / GCP, Application Default Credentials are used automatically.
	// Locally, set GOOGLE_APPLICATION_CREDENTIALS to a service account JSON file
	// or FIREBASE_SERVICE_ACCOUNT_JSON to its raw content.
	var opts []option.ClientOption
	if json := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); json != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(json)))
	} else if cred := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); cred != "" {
		opts = append(opts, option.WithCredentialsFile(cred))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		StorageBucket: cfg.Firebase.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}

	st, err := storage.NewClient(ctx, opts...)
	if err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &Clients{
		App:       app,
		Auth:      authClient,
		Firestore: fs,
		Storage:   st,
		ProjectID: cfg.Firebase.ProjectID,
		Bucket:    cfg.Firebase.StorageBucket,
	}, nil
}

func (c *Clients) Close(log *zap.Logger) {
	if c == nil {
		return
	}
	if c.Firestore != nil {
		if err := c.Firestore.Close(); err != nil {
			log.Warn("error closing firestore client", zap.Error(err))
		}
	}
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			log.Warn("error closing storage client", zap.Error(err))
		}
	}
}
