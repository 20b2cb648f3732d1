package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	authdom "collab/backend/internal/domain/auth"
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password, or with an identity provider token",
	Args:  cobra.NoArgs,
	RunE:  runSignin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Revoke the session and forget it locally",
	Args:  cobra.NoArgs,
	RunE:  runSignout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Send a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetPassword,
}

func init() {
	rootCmd.AddCommand(signinCmd, signupCmd, signoutCmd, whoamiCmd, resetPasswordCmd)

	signinCmd.Flags().String("email", "", "account email")
	signinCmd.Flags().String("password", "", "password (default $COLLAB_PASSWORD)")
	signinCmd.Flags().String("provider", "", "identity provider id, e.g. google.com")
	signinCmd.Flags().String("id-token", "", "provider ID token (with --provider)")
	signinCmd.Flags().String("access-token", "", "provider access token (with --provider)")

	signupCmd.Flags().String("email", "", "account email")
	signupCmd.Flags().String("password", "", "password (default $COLLAB_PASSWORD)")
	signupCmd.Flags().String("name", "", "display name")
}

func password(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("password")
	if p == "" {
		p = os.Getenv("COLLAB_PASSWORD")
	}
	return p
}

func runSignin(cmd *cobra.Command, _ []string) error {
	sess, _, err := openSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	provider, _ := cmd.Flags().GetString("provider")
	if provider = strings.TrimSpace(provider); provider != "" {
		idTok, _ := cmd.Flags().GetString("id-token")
		accessTok, _ := cmd.Flags().GetString("access-token")
		creds, err := sess.SignInWithProvider(ctx, authdom.IdpCredential{ProviderID: provider, IDToken: idTok, AccessToken: accessTok})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed in as", creds.UID)
		return nil
	}

	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		return errors.New("--email is required")
	}
	creds, err := sess.SignIn(ctx, email, password(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signed in as", email, "("+creds.UID+")")
	return nil
}

func runSignup(cmd *cobra.Command, _ []string) error {
	sess, _, err := openSession()
	if err != nil {
		return err
	}
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	if email == "" {
		return errors.New("--email is required")
	}
	creds, err := sess.SignUp(cmd.Context(), email, password(cmd), name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "account created:", creds.UID)
	return nil
}

func runSignout(cmd *cobra.Command, _ []string) error {
	sess, _, err := openSession()
	if err != nil {
		return err
	}
	// The local session is dropped even when the revoke fails.
	if err := sess.SignOut(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: server sign-out failed:", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	_, api, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	me, err := api.Me(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), me)
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	sess, _, err := openSession()
	if err != nil {
		return err
	}
	if err := sess.ResetPassword(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "password reset email sent to", args[0])
	return nil
}
