package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"collab/backend/internal/domain/ai"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Exchange an admin token for the server-held AI key",
	Args:  cobra.NoArgs,
	RunE:  runKey,
}

var generateCmd = &cobra.Command{
	Use:   "generate <prompt...>",
	Short: "Run a prompt through the AI proxy",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(keyCmd, generateCmd)

	keyCmd.Flags().String("token", "", "admin token or privileged ID token (default $COLLAB_ADMIN_TOKEN)")

	generateCmd.Flags().String("model", "", "model name (server default when empty or not allowed)")
	generateCmd.Flags().StringSlice("feature", nil, "feature hint: code, summarize, brainstorm, review, tasks, translate")
	generateCmd.Flags().Bool("raw", false, "print the provider response instead of the text")
}

func runKey(cmd *cobra.Command, _ []string) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("COLLAB_ADMIN_TOKEN")
	}
	if token == "" {
		return errors.New("--token or COLLAB_ADMIN_TOKEN is required")
	}
	_, api, err := openSession()
	if err != nil {
		return err
	}
	res, err := api.ExchangeKey(cmd.Context(), token)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	model, _ := cmd.Flags().GetString("model")
	features, _ := cmd.Flags().GetStringSlice("feature")
	raw, _ := cmd.Flags().GetBool("raw")

	_, api, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	res, err := api.Generate(cmd.Context(), ai.GenerateInput{
		Prompt:   strings.Join(args, " "),
		Model:    model,
		Features: features,
	})
	if err != nil {
		return err
	}
	if raw {
		return printJSON(cmd.OutOrStdout(), res.Data)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	fmt.Fprintln(cmd.ErrOrStderr(), "model:", res.Model)
	return nil
}
