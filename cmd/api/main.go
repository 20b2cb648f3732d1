package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"collab/backend/internal/config"
	"collab/backend/internal/domain/ai"
	authdom "collab/backend/internal/domain/auth"
	"collab/backend/internal/domain/files"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/domain/project"
	"collab/backend/internal/domain/usage"
	"collab/backend/internal/domain/user"
	"collab/backend/internal/firebase"
	apihttp "collab/backend/internal/http"
	"collab/backend/internal/logging"
	"collab/backend/internal/middleware"
	"collab/backend/internal/ratelimit"
	"collab/backend/internal/secrets"
)

const authAttemptsPerWindow = 30

func main() {
	ctx := context.Background()
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err = secrets.Resolve(ctx, cfg, log)
	if err != nil {
		log.Error("secret resolution failed", zap.Error(err))
	}

	// Without a Firebase project the server still serves /healthz, /api/config
	// and the key exchange for shared admin tokens.
	clients, err := firebase.NewClients(ctx, cfg)
	degraded := err != nil
	if degraded {
		log.Warn("firebase unavailable, running degraded", zap.Error(err))
	}
	defer clients.Close(log)

	var store ratelimit.Store
	if cfg.RateLimitBackend == "firestore" && !degraded {
		store = ratelimit.NewFirestoreStore(clients.Firestore)
	} else {
		mem := ratelimit.NewMemoryStore(cfg.RateLimitWindow, 2*cfg.RateLimitWindow, log)
		defer mem.Stop()
		store = mem
	}

	outbound := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	var (
		verifier middleware.TokenVerifier
		rec      usage.Recorder = usage.Nop{}
	)
	if !degraded {
		verifier = clients.Auth
		rec = usage.NewRepo(clients.Firestore, log)
	}

	deps := apihttp.RouterDeps{
		Cfg:         cfg,
		Log:         log,
		Verifier:    verifier,
		AuthLimiter: ratelimit.New(store, authAttemptsPerWindow, cfg.RateLimitWindow),
		Usage:       rec,
		KeyExchange: keyexchange.NewService(
			keyexchange.Config{AdminTokens: cfg.AdminTokens(), Secret: cfg.GeminiAPIKey},
			ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow),
			verifier, rec, log,
		),
		Degraded: degraded,
	}

	if !degraded {
		userSvc := user.NewService(user.NewRepo(clients.Firestore), cfg.AdminEmail)
		deps.Users = userSvc

		if cfg.Firebase.APIKey != "" {
			idp := authdom.NewIdentityClient(cfg.Firebase.APIKey, authdom.WithIdentityHTTPClient(outbound))
			deps.Auth = authdom.NewService(idp, clients.Auth, userSvc, rec, log)
		} else {
			log.Warn("FIREBASE_API_KEY not set, auth bridge disabled")
		}

		repo := project.NewRepo(clients.Firestore)
		projectSvc := project.NewService(repo, repo, project.AuthDirectory{Client: clients.Auth}, log)
		deps.Projects = projectSvc

		if cfg.SignedURLServiceAccountEmail != "" && clients.Bucket != "" {
			iam, err := credentials.NewIamCredentialsClient(ctx)
			if err != nil {
				log.Error("iam credentials client init failed, file uploads disabled", zap.Error(err))
			} else {
				defer iam.Close()
				deps.Files = files.NewService(
					files.Config{Bucket: clients.Bucket, ServiceAccount: cfg.SignedURLServiceAccountEmail},
					files.IAMSigner{Client: iam, ServiceAccount: cfg.SignedURLServiceAccountEmail},
					files.BucketLister{Bucket: clients.Storage.Bucket(clients.Bucket)},
					projectSvc,
				)
			}
		} else {
			log.Info("SIGNED_URL_SERVICE_ACCOUNT_EMAIL not set, file uploads disabled")
		}

		gemini := ai.NewClient(cfg.GeminiAPIKey, ai.WithBaseURL(cfg.GeminiBaseURL), ai.WithHTTPClient(outbound))
		deps.AI = ai.NewService(ai.Config{
			APIKey:       cfg.GeminiAPIKey,
			DefaultModel: cfg.GeminiDefaultModel,
			MaxRPS:       cfg.AIMaxRPS,
		}, gemini, rec, log)
	}

	// Cancelled on shutdown so open watch streams end.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(apihttp.NewRouter(deps), "collab-api"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: watch streams stay open while the client listens.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("API listening",
			zap.String("addr", srv.Addr),
			zap.String("project", cfg.Firebase.ProjectID),
			zap.Bool("degraded", degraded),
			zap.String("rate_limit_backend", cfg.RateLimitBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down")
	cancelBase()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}
