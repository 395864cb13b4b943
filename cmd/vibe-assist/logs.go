package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vibe-assist/vibe-assist/internal/config"
	"github.com/vibe-assist/vibe-assist/internal/journal"
)

const previewChars = 100

var logsCmd = &cobra.Command{
	Use:   "logs [project]",
	Short: "Show recent reasoning calls from the journal",
	Long: `Read the SQLite reasoning journal of a project and list recent
provider calls with their token usage. --latest prints the full prompt and
response of the most recent call.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := "."
		if len(args) == 1 {
			project = args[0]
		}
		cfg, err := config.Load(project)
		if err != nil {
			return err
		}
		if cfg.JournalPath == "" {
			return fmt.Errorf("reasoning journal is disabled (%s=off)", config.EnvJournal)
		}

		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()

		latest, _ := cmd.Flags().GetBool("latest")
		limit, _ := cmd.Flags().GetInt("limit")
		if latest {
			limit = 1
		}
		entries, err := j.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(out, "%s No reasoning calls in %s\n", yellow("ℹ"), filepath.Base(cfg.JournalPath))
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		if latest {
			e := entries[0]
			fmt.Fprintf(out, "\n%s %s %s/%s\n", cyan(e.Operation), gray(e.RecordedAt.Local().Format("2006-01-02 15:04:05")), e.Provider, e.Model)
			fmt.Fprintf(out, "Tokens: %d in, %d out, %s\n", e.InputTokens, e.OutputTokens, e.Duration)
			if e.Error != "" {
				fmt.Fprintf(out, "%s %s\n", red("Error:"), e.Error)
			}
			fmt.Fprintf(out, "\n%s\n%s\n\n%s\n%s\n\n", cyan("Prompt:"), e.Prompt, cyan("Response:"), e.Response)
			return nil
		}

		fmt.Fprintf(out, "\n%s\n\n", cyan(fmt.Sprintf("=== Recent reasoning calls (%d) ===", len(entries))))
		for _, e := range entries {
			status := color.New(color.FgGreen).Sprint("✓")
			if e.Error != "" {
				status = red("✗")
			}
			fmt.Fprintf(out, "%s %s %-14s %s/%s %d+%d tokens %s\n",
				status, gray(e.RecordedAt.Local().Format("15:04:05")), e.Operation,
				e.Provider, e.Model, e.InputTokens, e.OutputTokens, gray(e.Duration.String()))
			preview := e.Response
			if e.Error != "" {
				preview = e.Error
			}
			if preview = strings.Join(strings.Fields(preview), " "); len(preview) > previewChars {
				preview = preview[:previewChars] + "..."
			}
			if preview != "" {
				fmt.Fprintf(out, "    %s\n", gray(preview))
			}
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	logsCmd.Flags().IntP("limit", "n", 20, "Number of recent calls to show")
	logsCmd.Flags().Bool("latest", false, "Print the full prompt and response of the latest call")
	rootCmd.AddCommand(logsCmd)
}
