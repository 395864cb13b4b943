package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/repl"
)

const clientTimeout = 10 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running daemon",
	Long:  `Fetch /state and /health from a running daemon and print the summary.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
		defer cancel()

		client := api.NewClient(daemonURL(cmd), nil)
		snap, err := client.State(ctx)
		if err != nil {
			return err
		}
		repl.PrintSnapshot(cmd.OutOrStdout(), snap)

		if health, _ := cmd.Flags().GetBool("health"); !health {
			return nil
		}
		h, err := client.Health(ctx)
		if err != nil {
			return err
		}
		repl.PrintHealth(cmd.OutOrStdout(), h)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("health", true, "Also show daemon health")
	rootCmd.AddCommand(statusCmd)
}
