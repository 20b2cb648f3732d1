// Package runtimeconfig holds the public settings the server hands to clients
// through GET /api/config, and the client-side loader that fetches them.
package runtimeconfig

import (
	"sort"
	"time"

	"collab/backend/internal/config"
)

const (
	KeyFirebaseAPIKey            = "FIREBASE_API_KEY"
	KeyFirebaseAuthDomain        = "FIREBASE_AUTH_DOMAIN"
	KeyFirebaseProjectID         = "FIREBASE_PROJECT_ID"
	KeyFirebaseStorageBucket     = "FIREBASE_STORAGE_BUCKET"
	KeyFirebaseMessagingSenderID = "FIREBASE_MESSAGING_SENDER_ID"
	KeyFirebaseAppID             = "FIREBASE_APP_ID"
	KeyFirebaseMeasurementID     = "FIREBASE_MEASUREMENT_ID"
	KeyAdminEmail                = "ADMIN_EMAIL"
	KeyPlatformName              = "PLATFORM_NAME"
	KeyVersion                   = "VERSION"
)

// Required keys must be present for the client to talk to the identity provider.
var Required = []string{KeyFirebaseAPIKey, KeyFirebaseAuthDomain, KeyFirebaseProjectID}

// Config is an immutable set of named settings. The zero value is empty.
type Config struct {
	values map[string]string
}

func New(values map[string]string) Config {
	c := Config{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c Config) Get(key string) string { return c.values[key] }

func (c Config) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok && v != ""
}

// Keys returns the set keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the settings.
func (c Config) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Merge returns c overlaid with the non-empty values of other.
func (c Config) Merge(other map[string]string) Config {
	out := New(c.values)
	for k, v := range other {
		if v != "" {
			out.values[k] = v
		}
	}
	return out
}

// Missing lists the keys that are unset or empty.
func (c Config) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := c.Lookup(k); !ok {
			out = append(out, k)
		}
	}
	return out
}

func (c Config) FirebaseAPIKey() string     { return c.Get(KeyFirebaseAPIKey) }
func (c Config) FirebaseAuthDomain() string { return c.Get(KeyFirebaseAuthDomain) }
func (c Config) FirebaseProjectID() string  { return c.Get(KeyFirebaseProjectID) }
func (c Config) AdminEmail() string         { return c.Get(KeyAdminEmail) }
func (c Config) PlatformName() string       { return c.Get(KeyPlatformName) }
func (c Config) Version() string            { return c.Get(KeyVersion) }

// Defaults are applied beneath whatever the server returns.
func Defaults() Config {
	return New(map[string]string{
		KeyPlatformName: "Collab-with-AI",
		KeyVersion:      "1.0.0",
	})
}

// Fallback is the fixed configuration used when the server cannot be
// reached. It points at a demo project so nothing talks to real credentials.
func Fallback() Config {
	return Defaults().Merge(map[string]string{
		KeyFirebaseAPIKey:            "demo-api-key",
		KeyFirebaseAuthDomain:        "demo-collab.firebaseapp.com",
		KeyFirebaseProjectID:         "demo-collab",
		KeyFirebaseStorageBucket:     "demo-collab.appspot.com",
		KeyFirebaseMessagingSenderID: "000000000000",
		KeyFirebaseAppID:             "1:000000000000:web:demo",
		KeyFirebaseMeasurementID:     "G-DEMO",
		KeyAdminEmail:                "admin@example.com",
	})
}

// Payload is the body of GET /api/config. Unset provider values are null.
type Payload struct {
	Success           bool               `json:"success"`
	Config            map[string]*string `json:"config"`
	HasFirebaseConfig bool               `json:"hasFirebaseConfig"`
	Timestamp         string             `json:"timestamp"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BuildPayload exposes the public part of the server configuration. Secrets
// (admin tokens, the AI key) never appear here.
func BuildPayload(cfg config.Config, now time.Time) Payload {
	fb := cfg.Firebase
	return Payload{
		Success: true,
		Config: map[string]*string{
			KeyFirebaseAPIKey:            nullable(fb.APIKey),
			KeyFirebaseAuthDomain:        nullable(fb.AuthDomain),
			KeyFirebaseProjectID:         nullable(fb.ProjectID),
			KeyFirebaseStorageBucket:     nullable(fb.StorageBucket),
			KeyFirebaseMessagingSenderID: nullable(fb.MessagingSenderID),
			KeyFirebaseAppID:             nullable(fb.AppID),
			KeyFirebaseMeasurementID:     nullable(fb.MeasurementID),
			KeyAdminEmail:                nullable(cfg.AdminEmail),
			KeyPlatformName:              nullable(cfg.PlatformName),
			KeyVersion:                   nullable(cfg.Version),
		},
		HasFirebaseConfig: cfg.HasFirebaseConfig(),
		Timestamp:         now.UTC().Format(time.RFC3339),
	}
}
