package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/repl"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open an interactive console to a running daemon",
	Long: `Connect to a running daemon and manage it interactively: inspect
state, give feedback on issues, recalculate the score, initialize the
project context or generate a prompt from a screenshot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()

		url := daemonURL(cmd)
		client := api.NewClient(url, nil)
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			waitCtx, cancel := context.WithTimeout(ctx, clientTimeout)
			defer cancel()
			if err := client.Wait(waitCtx, 250*time.Millisecond); err != nil {
				return err
			}
		}

		r, err := repl.New(&repl.Config{Daemon: client, Address: url, Out: os.Stdout})
		if err != nil {
			return err
		}
		return r.Run(ctx)
	},
}

func init() {
	consoleCmd.Flags().Bool("wait", true, "Wait for the daemon to answer /health before opening the console")
	rootCmd.AddCommand(consoleCmd)
}
