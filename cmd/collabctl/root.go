package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collab/backend/internal/client"
	"collab/backend/internal/logging"
)

var (
	serverURL   string
	sessionFile string
	verbose     bool

	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "collabctl",
	Short:         "Command-line client for the Collab-with-AI API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		l, err := logging.New(level, "console")
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("COLLAB_SERVER", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session", defaultSessionFile(), "where the signed-in session is kept")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".collab-session.json"
	}
	return filepath.Join(dir, "collab", "session.json")
}

// openSession restores the saved session and keeps the file in sync with
// every later transition.
func openSession() (*client.Session, *client.Client, error) {
	var sess *client.Session
	api := client.New(serverURL, client.WithTokenSource(tokenFunc(func() string { return sess.IDToken() })))
	sess = client.NewSession(api)

	creds, err := client.LoadCredentials(sessionFile)
	if err != nil {
		return nil, nil, err
	}
	sess.Restore(creds)
	sess.Subscribe(func(c client.Change) {
		if err := sess.Save(sessionFile); err != nil {
			log.Warn("could not save session", zap.String("path", sessionFile), zap.Error(err))
		}
		log.Debug("session changed", zap.Stringer("from", c.From), zap.Stringer("to", c.To))
	})
	return sess, api, nil
}

// signedIn is openSession for commands that need an ID token; it refreshes
// one that is about to expire.
func signedIn(ctx context.Context) (*client.Session, *client.Client, error) {
	sess, api, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	if sess.State() != client.SignedIn {
		return nil, nil, errors.New("not signed in: run collabctl signin")
	}
	if err := sess.EnsureFresh(ctx, time.Minute); err != nil {
		return nil, nil, fmt.Errorf("refreshing session: %w", err)
	}
	return sess, api, nil
}

type tokenFunc func() string

func (f tokenFunc) IDToken() string { return f() }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
