package git

import "errors"

var (
	// ErrNotARepository is returned when the project path is not inside a git work tree
	ErrNotARepository = errors.New("not a git repository")
	// ErrNoCommits is returned by Head on an unborn branch
	ErrNoCommits = errors.New("repository has no commits")
)

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if there are any changes
	HasChanges bool
}

// Files returns every changed path in the status
func (s *Status) Files() []string {
	var files []string
	for _, group := range [][]string{s.Added, s.Modified, s.Deleted, s.Renamed, s.Untracked} {
		files = append(files, group...)
	}
	return files
}
