package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"collab/backend/internal/config"
	"collab/backend/internal/domain/ai"
	authdom "collab/backend/internal/domain/auth"
	"collab/backend/internal/domain/files"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/domain/project"
	"collab/backend/internal/domain/usage"
	"collab/backend/internal/domain/user"
	"collab/backend/internal/httpjson"
	"collab/backend/internal/middleware"
	"collab/backend/internal/ratelimit"
	"collab/backend/internal/runtimeconfig"
)

// RouterDeps wires the services into routes. Services left nil (no Firebase
// project configured) have their routes omitted and /healthz reports degraded.
type RouterDeps struct {
	Cfg config.Config
	Log *zap.Logger

	Verifier    middleware.TokenVerifier
	AuthLimiter *ratelimit.Limiter
	Usage       usage.Recorder

	KeyExchange *keyexchange.Service
	Auth        *authdom.Service
	Users       *user.Service
	Projects    *project.Service
	Files       *files.Service
	AI          *ai.Service

	Degraded bool
	Now      func() time.Time
}

type handlers struct {
	RouterDeps
}

func (h *handlers) clientIP(r *http.Request) string {
	return middleware.ClientIP(r, h.Cfg.TrustProxy, h.Cfg.TrustedProxyCount)
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Usage == nil {
		d.Usage = usage.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{RouterDeps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(d.Log))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]any{
			"ok":       true,
			"ts":       h.Now().UTC().Format(time.RFC3339),
			"degraded": h.Degraded,
		})
	})

	r.Get("/api/config", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, runtimeconfig.BuildPayload(h.Cfg, h.Now()))
	})

	if d.KeyExchange != nil {
		r.HandleFunc("/api/get-api-key", h.getAPIKey)
	}

	if d.Auth != nil {
		r.Route("/api/auth", func(ar chi.Router) {
			if d.AuthLimiter != nil {
				// Prefixed so auth attempts and key exchanges count separately
				// when both limiters share a store.
				ar.Use(middleware.RateLimit(d.AuthLimiter, func(r *http.Request) string {
					return "auth:" + h.clientIP(r)
				}, d.Log))
			}
			ar.Post("/signin", h.signIn)
			ar.Post("/signup", h.signUp)
			ar.Post("/oauth", h.oauthSignIn)
			ar.Post("/password-reset", h.passwordReset)
			ar.Post("/refresh", h.refresh)
			ar.With(middleware.WithAuth(d.Verifier)).Post("/signout", h.signOut)
		})
	}

	if d.Verifier == nil {
		return r
	}

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Verifier))

		if d.Users != nil {
			pr.Get("/api/me", h.getMe)
			pr.Patch("/api/me", h.patchMe)
		}
		pr.Post("/api/analytics/events", h.trackEvent)

		if d.AI != nil {
			pr.Post("/api/ai/generate", h.generate)
		}

		if d.Projects != nil {
			pr.Route("/api/projects", func(p chi.Router) {
				p.Get("/", h.listProjects)
				p.Post("/", h.createProject)

				p.Route("/{projectID}", func(p chi.Router) {
					p.Get("/", h.getProject)
					p.Patch("/", h.updateProject)
					p.Delete("/", h.deleteProject)
					p.Get("/watch", h.watchProject)

					p.Post("/collaborators", h.addCollaborator)
					p.Delete("/collaborators/{uid}", h.removeCollaborator)

					p.Get("/tasks", h.listTasks)
					p.Post("/tasks", h.createTask)
					p.Post("/tasks/batch", h.batchUpdateTasks)
					p.Get("/tasks/watch", h.watchTasks)
					p.Patch("/tasks/{taskID}", h.updateTask)
					p.Delete("/tasks/{taskID}", h.deleteTask)

					p.Get("/messages", h.listMessages)
					p.Post("/messages", h.postMessage)
					p.Get("/messages/watch", h.watchMessages)

					if d.Files != nil {
						p.Get("/files", h.listFiles)
						p.Post("/files/upload-url", h.createUploadURL)
					}
				})
			})
		}
	})

	return r
}
