// Package repl is the interactive console for a running daemon, plus the
// renderers shared with the one-shot CLI commands.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

// errExit ends the loop
var errExit = errors.New("exit")

// Daemon is the HTTP surface the console drives
type Daemon interface {
	State(ctx context.Context) (*types.Snapshot, error)
	Health(ctx context.Context) (*api.HealthResponse, error)
	Feedback(ctx context.Context, index int, action types.FeedbackAction, note string) (*types.Snapshot, error)
	ClearIssues(ctx context.Context) (*types.Snapshot, error)
	Recalculate(ctx context.Context) (*types.Snapshot, error)
	GeneratePrompt(ctx context.Context, goal string, screenshot []byte, filename string) (string, error)
	InitializeContext(ctx context.Context) (*analysis.ContextResult, error)
}

// REPL represents the interactive shell
type REPL struct {
	daemon   Daemon
	out      io.Writer
	address  string
	ctx      context.Context
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Daemon  Daemon
	Address string    // shown in the welcome banner
	Out     io.Writer // default os.Stdout
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg == nil || cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon client is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		daemon:   cfg.Daemon,
		out:      out,
		address:  cfg.Address,
		ctx:      context.Background(),
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("vibe> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      r.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		if err := r.Execute(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Execute runs one input line
func (r *REPL) Execute(line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}

	handler, ok := r.commands[strings.ToLower(parts[0])]
	if !ok {
		return fmt.Errorf("unknown command %q (type 'help')", parts[0])
	}
	return handler(parts[1:])
}

func (r *REPL) completer() *readline.PrefixCompleter {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		if name != "?" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	items := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Vibe Assist console"))
	if r.address != "" {
		fmt.Fprintf(r.out, "Connected to %s\n", r.address)
	}
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}
