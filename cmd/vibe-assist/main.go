package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// defaultDaemonURL is used by client commands when --url and VIBE_API_URL are unset
const defaultDaemonURL = "http://127.0.0.1:8000"

var rootCmd = &cobra.Command{
	Use:   "vibe-assist",
	Short: "Monitor a repository for security issues and charter drift",
	Long: `vibe-assist watches a git repository while you work. It triages
uncommitted changes for critical security problems, reviews new commits
against the project charter, looks at the screen for proactive
suggestions, and serves the resulting state over a local HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("url", "", "Daemon base URL for client commands (default $VIBE_API_URL or "+defaultDaemonURL+")")
}

// daemonURL resolves the base URL for client commands
func daemonURL(cmd *cobra.Command) string {
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		return url
	}
	if url := os.Getenv("VIBE_API_URL"); url != "" {
		return url
	}
	return defaultDaemonURL
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
