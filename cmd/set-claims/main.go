package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"collab/backend/internal/config"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/firebase"
	"collab/backend/internal/logging"
)

func main() {
	uid := flag.String("uid", "", "target firebase uid")
	email := flag.String("email", "", "target account email (instead of -uid)")
	admin := flag.Bool("admin", false, "grant the admin role")
	keys := flag.Bool("keys", false, "grant the "+keyexchange.ScopeKeysRead+" scope")
	reset := flag.Bool("clear", false, "remove all custom claims")
	flag.Parse()

	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if *uid == "" && *email == "" {
		log.Fatal("uid or email is required: -uid=xxxxx or -email=a@example.com")
	}

	ctx := context.Background()
	clients, err := firebase.NewClients(ctx, cfg)
	if err != nil {
		log.Fatal("firebase init failed", zap.Error(err))
	}
	defer clients.Close(log)

	target := *uid
	if target == "" {
		u, err := clients.Auth.GetUserByEmail(ctx, strings.TrimSpace(*email))
		if err != nil {
			log.Fatal("GetUserByEmail", zap.Error(err))
		}
		target = u.UID
	}

	claims := map[string]interface{}{}
	if !*reset {
		if *admin {
			claims["admin"] = true
			claims["role"] = "admin"
		}
		if *keys {
			claims["scope"] = keyexchange.ScopeKeysRead
		}
		if len(claims) == 0 {
			log.Fatal("nothing to set: pass -admin, -keys or -clear")
		}
	}

	if err := clients.Auth.SetCustomUserClaims(ctx, target, claims); err != nil {
		log.Fatal("SetCustomUserClaims", zap.Error(err))
	}

	fmt.Println("ok: claims set for", target, claims)
}
