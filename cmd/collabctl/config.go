package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"collab/backend/internal/runtimeconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Load the runtime configuration the way web clients do",
	Long: `Fetch /api/config with the loader's timeout and report the outcome.
A server that is down or answers garbage yields the fallback configuration,
reported as degraded.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().Duration("timeout", runtimeconfig.DefaultTimeout, "how long to wait for the server")
	configCmd.Flags().Bool("strict", false, "exit non-zero when the result is degraded")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	strict, _ := cmd.Flags().GetBool("strict")

	loader := runtimeconfig.NewLoader(serverURL,
		runtimeconfig.WithTimeout(timeout),
		runtimeconfig.WithLogger(log),
	)
	res := loader.Load(cmd.Context())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status:   %s\n", res.Status)
	fmt.Fprintf(out, "elapsed:  %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Degraded() {
		fmt.Fprintf(out, "degraded: yes (%v)\n", res.Err)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(out, "missing:  %v\n", res.Missing)
	}
	for _, k := range res.Config.Keys() {
		fmt.Fprintf(out, "  %-30s %s\n", k, res.Config.Get(k))
	}

	if strict && res.Degraded() {
		return fmt.Errorf("configuration degraded: %w", res.Err)
	}
	return nil
}
