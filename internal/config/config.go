package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Firebase holds the seven web-app credentials handed to clients by /api/config.
type Firebase struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
	MeasurementID     string
}

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	Firebase Firebase

	AdminEmail       string
	AdminToken       string
	AdminTokenBackup string

	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiDefaultModel string
	AIMaxRPS           float64

	PlatformName string
	Version      string

	RateLimitBackend  string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	TrustProxy        bool
	TrustedProxyCount int

	SignedURLServiceAccountEmail string
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	// FIREBASE_PROJECT_ID または GOOGLE_CLOUD_PROJECT を読む
	projectID := getenv("FIREBASE_PROJECT_ID", "")
	if projectID == "" {
		projectID = getenv("GOOGLE_CLOUD_PROJECT", "")
	}
	storageBucket := getenv("FIREBASE_STORAGE_BUCKET", "")
	if storageBucket == "" && projectID != "" {
		storageBucket = projectID + ".appspot.com"
	}

	return Config{
		Port:           getenv("PORT", "8080"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "json"),

		Firebase: Firebase{
			APIKey:            getenv("FIREBASE_API_KEY", ""),
			AuthDomain:        getenv("FIREBASE_AUTH_DOMAIN", ""),
			ProjectID:         projectID,
			StorageBucket:     storageBucket,
			MessagingSenderID: getenv("FIREBASE_MESSAGING_SENDER_ID", ""),
			AppID:             getenv("FIREBASE_APP_ID", ""),
			MeasurementID:     getenv("FIREBASE_MEASUREMENT_ID", ""),
		},

		AdminEmail:       strings.TrimSpace(getenv("ADMIN_EMAIL", "")),
		AdminToken:       getenv("ADMIN_TOKEN", ""),
		AdminTokenBackup: getenv("ADMIN_TOKEN_BACKUP", ""),

		GeminiAPIKey:       getenv("GEMINI_API_KEY", ""),
		GeminiBaseURL:      getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiDefaultModel: getenv("GEMINI_DEFAULT_MODEL", "gemini-1.5-flash"),
		AIMaxRPS:           getfloat("AI_MAX_RPS", 0),

		PlatformName: getenv("PLATFORM_NAME", "Collab-with-AI"),
		Version:      getenv("VERSION", "1.0.0"),

		RateLimitBackend:  getenv("RATE_LIMIT_BACKEND", "memory"),
		RateLimitMax:      getint("RATE_LIMIT_MAX", 10),
		RateLimitWindow:   getduration("RATE_LIMIT_WINDOW", time.Minute),
		TrustProxy:        getbool("TRUST_PROXY", false),
		TrustedProxyCount: getint("TRUSTED_PROXY_COUNT", 0),

		SignedURLServiceAccountEmail: getenv("SIGNED_URL_SERVICE_ACCOUNT_EMAIL", ""),
	}
}

// HasFirebaseConfig reports whether the client-facing credentials needed to
// initialise the web SDK are all present.
func (c Config) HasFirebaseConfig() bool {
	return c.Firebase.APIKey != "" && c.Firebase.AuthDomain != "" && c.Firebase.ProjectID != ""
}

// AdminTokens returns the configured shared admin secrets, primary first.
func (c Config) AdminTokens() []string {
	out := []string{}
	for _, t := range []string{c.AdminToken, c.AdminTokenBackup} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getfloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func getbool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func getduration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	out := []string{}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
