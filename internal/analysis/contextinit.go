package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/git"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
)

const (
	// DefaultMaxContextFiles caps the file listing sent for context initialization
	DefaultMaxContextFiles = 100

	maxFileStructureChars = 1000
	maxListedDeps         = 10

	// ContextDir holds files the daemon writes into the monitored project
	ContextDir = ".vibe-assist"
)

// skippedDirs are never listed in the project file structure
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"venv":         true,
	ContextDir:     true,
}

// RepoInfo provides the latest commit for project context
type RepoInfo interface {
	LatestCommitSummary(ctx context.Context) (string, error)
}

// ProjectDescriber turns gathered facts into a structured description
type ProjectDescriber interface {
	DescribeProject(ctx context.Context, facts ai.ProjectFacts) (*ai.ProjectDescription, error)
}

// ContextConfig holds context initializer dependencies
type ContextConfig struct {
	Root      string              // required, project root
	Repo      RepoInfo            // required
	Describer ProjectDescriber    // required
	State     *state.ProjectState // required
	MaxFiles  int                 // default DefaultMaxContextFiles
	Logger    *zap.Logger         // optional
}

// ContextResult is returned by a successful initialization
type ContextResult struct {
	Success     bool                   `json:"success"`
	ContextFile string                 `json:"context_file"`
	Data        *ai.ProjectDescription `json:"data"`
}

// ContextInitializer builds a project description, writes it to
// .vibe-assist/context.md and seeds the charter from it
type ContextInitializer struct {
	root      string
	repo      RepoInfo
	describer ProjectDescriber
	state     *state.ProjectState
	maxFiles  int
	logger    *zap.Logger
}

// NewContextInitializer creates a context initializer
func NewContextInitializer(cfg *ContextConfig) (*ContextInitializer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Describer == nil {
		return nil, fmt.Errorf("project describer is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state is required")
	}

	c := &ContextInitializer{
		root:      cfg.Root,
		repo:      cfg.Repo,
		describer: cfg.Describer,
		state:     cfg.State,
		maxFiles:  cfg.MaxFiles,
		logger:    cfg.Logger,
	}
	if c.maxFiles <= 0 {
		c.maxFiles = DefaultMaxContextFiles
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("analyzer", "context_init"))
	return c, nil
}

// Initialize gathers repository facts, asks for a description and stores it
func (c *ContextInitializer) Initialize(ctx context.Context) (*ContextResult, error) {
	c.logger.Info("initializing project context", zap.String("project", c.root))

	gitContext := c.gitContext(ctx)

	files, err := listFiles(c.root, c.maxFiles)
	fileStructure := strings.Join(files, "\n")
	if err != nil {
		fileStructure = fmt.Sprintf("Could not read file structure: %v", err)
	}

	facts := ai.ProjectFacts{
		GitContext:    gitContext,
		TechStack:     detectTechStack(c.root, c.logger),
		FileStructure: truncate(fileStructure, maxFileStructureChars, ""),
	}

	desc, err := c.describer.DescribeProject(ctx, facts)
	if err != nil {
		logFailure(c.logger, "project description failed", facts.GitContext, err)
		return nil, fmt.Errorf("failed to describe project: %w", err)
	}

	path := filepath.Join(c.root, ContextDir, "context.md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create context directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(renderContext(gitContext, desc)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write context file: %w", err)
	}

	name := desc.ProjectName
	if name == "" {
		name = "Unknown"
	}
	items := make([]any, 0, len(desc.Charter))
	for _, item := range desc.Charter {
		items = append(items, item)
	}
	c.state.MergeCharter(map[string]any{
		"initialized":   true,
		"project_name":  name,
		"description":   desc.Description,
		"charter_items": items,
		"context_file":  path,
	})

	c.logger.Info("project context initialized",
		zap.String("context_file", path),
		zap.String("project_name", name),
		zap.Int("charter_items", len(items)))
	return &ContextResult{Success: true, ContextFile: path, Data: desc}, nil
}

func (c *ContextInitializer) gitContext(ctx context.Context) string {
	summary, err := c.repo.LatestCommitSummary(ctx)
	if errors.Is(err, git.ErrNoCommits) {
		return "No commits yet"
	}
	if err != nil {
		return fmt.Sprintf("Could not read git info: %v", err)
	}

	parts := strings.SplitN(summary, "|", 4)
	if len(parts) != 4 {
		return "Latest commit: " + summary
	}
	hash := parts[0]
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return fmt.Sprintf("Latest commit: %s by %s - %s", hash, parts[1], parts[3])
}

// listFiles returns up to limit file paths relative to root in walk order
func listFiles(root string, limit int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	return files, err
}

// detectTechStack reads the manifests it recognizes in root
func detectTechStack(root string, logger *zap.Logger) []string {
	var stack []string

	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var pkg struct {
			Name         string            `json:"name"`
			Dependencies map[string]string `json:"dependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			logger.Debug("ignoring unreadable package.json", zap.Error(err))
		} else {
			name := pkg.Name
			if name == "" {
				name = "unknown"
			}
			stack = append(stack, "JavaScript/Node.js project: "+name)
			if len(pkg.Dependencies) > 0 {
				deps := make([]string, 0, len(pkg.Dependencies))
				for dep := range pkg.Dependencies {
					deps = append(deps, dep)
				}
				slices.Sort(deps)
				stack = append(stack, "Dependencies: "+strings.Join(deps[:min(len(deps), maxListedDeps)], ", "))
			}
		}
	}

	if f, err := os.Open(filepath.Join(root, "requirements.txt")); err == nil {
		var reqs []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() && len(reqs) < maxListedDeps {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			reqs = append(reqs, line)
		}
		f.Close()
		if len(reqs) > 0 {
			stack = append(stack, "Python project with packages: "+strings.Join(reqs, ", "))
		}
	}

	goModPath := filepath.Join(root, "go.mod")
	if data, err := os.ReadFile(goModPath); err == nil {
		mf, err := modfile.ParseLax(goModPath, data, nil)
		if err != nil {
			logger.Debug("ignoring unreadable go.mod", zap.Error(err))
		} else if mf.Module != nil {
			entry := "Go module: " + mf.Module.Mod.Path
			if mf.Go != nil {
				entry += " (go " + mf.Go.Version + ")"
			}
			stack = append(stack, entry)

			var deps []string
			for _, req := range mf.Require {
				if req.Indirect {
					continue
				}
				deps = append(deps, req.Mod.Path)
				if len(deps) == maxListedDeps {
					break
				}
			}
			if len(deps) > 0 {
				stack = append(stack, "Go dependencies: "+strings.Join(deps, ", "))
			}
		}
	}

	return stack
}

func renderContext(gitContext string, desc *ai.ProjectDescription) string {
	var b strings.Builder
	b.WriteString("# Project Context\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", gitContext)

	description := desc.Description
	if description == "" {
		description = "No description available"
	}
	fmt.Fprintf(&b, "## Overview\n%s\n\n", description)

	b.WriteString("## Technology Stack\n")
	for _, tech := range desc.TechStack {
		fmt.Fprintf(&b, "- %s\n", tech)
	}

	b.WriteString("\n## Key Directories\n")
	dirs := make([]string, 0, len(desc.KeyDirectories))
	for dir := range desc.KeyDirectories {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	for _, dir := range dirs {
		if purpose := desc.KeyDirectories[dir]; purpose != "" {
			fmt.Fprintf(&b, "- **%s**: %s\n", dir, purpose)
		} else {
			fmt.Fprintf(&b, "- **%s**\n", dir)
		}
	}

	b.WriteString("\n## Project Charter\n")
	for _, item := range desc.Charter {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("\n---\n*This file is automatically maintained by Vibe Assist*\n")
	return b.String()
}
