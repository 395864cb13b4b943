package repl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["state"] = r.cmdState
	r.commands["issues"] = r.cmdIssues
	r.commands["feedback"] = r.cmdFeedback
	r.commands["clear"] = r.cmdClear
	r.commands["recalc"] = r.cmdRecalc
	r.commands["health"] = r.cmdHealth
	r.commands["init"] = r.cmdInit
	r.commands["oracle"] = r.cmdOracle
}

// cmdHelp shows help information
func (r *REPL) cmdHelp([]string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"state", "Show score, issues and commit cursor"},
		{"issues", "List active issues with their index"},
		{"feedback <index> <action> [note]", "dismiss, false_positive or resolve an issue"},
		{"clear", "Clear all active issues"},
		{"recalc", "Recalculate the security score"},
		{"health", "Show daemon health"},
		{"init", "Initialize the project context"},
		{"oracle <image> <goal>", "Generate a prompt from a screenshot and goal"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the console"},
	}
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %-34s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit([]string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return errExit
}

func (r *REPL) cmdState([]string) error {
	snap, err := r.daemon.State(r.ctx)
	if err != nil {
		return err
	}
	PrintSnapshot(r.out, snap)
	return nil
}

func (r *REPL) cmdIssues([]string) error {
	snap, err := r.daemon.State(r.ctx)
	if err != nil {
		return err
	}
	PrintIssues(r.out, snap.ActiveIssues)
	return nil
}

func (r *REPL) cmdFeedback(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: feedback <index> <dismiss|false_positive|resolve> [note]")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid issue index %q", args[0])
	}
	action := types.FeedbackAction(strings.ToLower(args[1]))
	if !action.IsValid() {
		return fmt.Errorf("unknown action %q (use dismiss, false_positive or resolve)", args[1])
	}

	snap, err := r.daemon.Feedback(r.ctx, index, action, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Issue %d marked %s (%d active)\n", green("✓"), index, action, len(snap.ActiveIssues))
	return nil
}

func (r *REPL) cmdClear([]string) error {
	snap, err := r.daemon.ClearIssues(r.ctx)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Issues cleared (score %d, run 'recalc' to rescore)\n", green("✓"), snap.SecurityScore)
	return nil
}

func (r *REPL) cmdRecalc([]string) error {
	snap, err := r.daemon.Recalculate(r.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Security score: %s\n", scoreColor(snap.SecurityScore))
	return nil
}

func (r *REPL) cmdHealth([]string) error {
	health, err := r.daemon.Health(r.ctx)
	if err != nil {
		return err
	}
	PrintHealth(r.out, health)
	return nil
}

func (r *REPL) cmdInit([]string) error {
	result, err := r.daemon.InitializeContext(r.ctx)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Context written to %s\n", green("✓"), result.ContextFile)
	if result.Data != nil && result.Data.ProjectName != "" {
		fmt.Fprintf(r.out, "  Project: %s\n", result.Data.ProjectName)
	}
	return nil
}

func (r *REPL) cmdOracle(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: oracle <image> <goal>")
	}
	frame, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read screenshot: %w", err)
	}

	prompt, err := r.daemon.GeneratePrompt(r.ctx, strings.Join(args[1:], " "), frame, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n%s\n\n", cyan("Generated prompt:"), prompt)
	return nil
}
