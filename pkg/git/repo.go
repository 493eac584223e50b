// Package git reads and writes the parts of a Git repository gitmem needs:
// the work-tree root, the HEAD commit and notes refs.
//
// Everything goes through go-git, so no git binary is required.
package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

var (
	// ErrNotGitRepo indicates the directory is not inside a Git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoCommits indicates HEAD does not point at a commit yet.
	ErrNoCommits = errors.New("repository has no commits")
)

// Repository is an opened Git repository.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the repository containing path, searching parent directories
// for the .git entry.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	root := path
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repository{repo: repo, root: root}, nil
}

// FindRoot returns the work-tree root of the repository containing path.
func FindRoot(path string) (string, error) {
	r, err := Open(path)
	if err != nil {
		return "", err
	}
	return r.root, nil
}

// Root returns the work-tree root, or the opened path for bare repositories.
func (r *Repository) Root() string {
	return r.root
}

// GitDir returns the directory holding the repository's refs and objects.
func (r *Repository) GitDir() (string, error) {
	st, ok := r.repo.Storer.(*filesystem.Storage)
	if !ok {
		return "", errors.New("repository is not stored on disk")
	}
	return st.Filesystem().Root(), nil
}

// Head returns the commit HEAD points at.
func (r *Repository) Head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, ErrNoCommits
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// Branch returns the short name of the checked-out branch, or "" when HEAD
// is detached.
func (r *Repository) Branch() (string, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", ErrNoCommits
	}
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if ref.Name().IsBranch() {
		return ref.Name().Short(), nil
	}
	return "", nil
}

// signature identifies note commits by the configured user when there is
// one.
func (r *Repository) signature() object.Signature {
	sig := object.Signature{Name: "gitmem", Email: "gitmem@localhost"}
	if cfg, err := r.repo.ConfigScoped(config.GlobalScope); err == nil {
		if cfg.User.Name != "" {
			sig.Name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			sig.Email = cfg.User.Email
		}
	}
	return sig
}
