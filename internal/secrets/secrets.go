// Package secrets resolves "sm://<secret-id>" indirections in configuration
// values against Google Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"

	"collab/backend/internal/config"
)

const scheme = "sm://"

// Accessor is the subset of the Secret Manager client used here.
type Accessor interface {
	AccessSecretVersion(ctx context.Context, projectID, secretID string) (string, error)
}

type gcpAccessor struct {
	client *secretmanager.Client
}

func (a *gcpAccessor) AccessSecretVersion(ctx context.Context, projectID, secretID string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID)
	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access %s: %w", name, err)
	}
	if resp.Payload == nil || len(resp.Payload.Data) == 0 {
		return "", fmt.Errorf("secret %s has empty payload", name)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

// IsRef reports whether v points at Secret Manager.
func IsRef(v string) bool { return strings.HasPrefix(v, scheme) }

// NeedsResolve reports whether any secret-bearing field of cfg is an sm:// reference.
func NeedsResolve(cfg config.Config) bool {
	return IsRef(cfg.AdminToken) || IsRef(cfg.AdminTokenBackup) || IsRef(cfg.GeminiAPIKey)
}

// Resolve replaces sm:// references in cfg with their secret values using
// Google Secret Manager. A reference that cannot be resolved becomes empty so
// that dependent endpoints report a configuration error instead of leaking
// the reference string.
func Resolve(ctx context.Context, cfg config.Config, log *zap.Logger) (config.Config, error) {
	if !NeedsResolve(cfg) {
		return cfg, nil
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return cfg, fmt.Errorf("secret manager client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("error closing secret manager client", zap.Error(err))
		}
	}()
	return ResolveWith(ctx, cfg, &gcpAccessor{client: client}, log), nil
}

// ResolveWith is Resolve with an explicit accessor.
func ResolveWith(ctx context.Context, cfg config.Config, acc Accessor, log *zap.Logger) config.Config {
	resolve := func(field, v string) string {
		if !IsRef(v) {
			return v
		}
		id := strings.TrimPrefix(v, scheme)
		out, err := acc.AccessSecretVersion(ctx, cfg.Firebase.ProjectID, id)
		if err != nil {
			log.Error("secret lookup failed", zap.String("field", field), zap.String("secret", id), zap.Error(err))
			return ""
		}
		return out
	}
	cfg.AdminToken = resolve("ADMIN_TOKEN", cfg.AdminToken)
	cfg.AdminTokenBackup = resolve("ADMIN_TOKEN_BACKUP", cfg.AdminTokenBackup)
	cfg.GeminiAPIKey = resolve("GEMINI_API_KEY", cfg.GeminiAPIKey)
	return cfg
}
