package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	log "github.com/sirupsen/logrus"
)

// GitOptions captures configuration required to operate a Git-backed store.
type GitOptions struct {
	Path        string
	RemoteURL   string
	Branch      string
	Username    string
	Password    string
	AuthorName  string
	AuthorEmail string
}

// GitDocumentStore versions every document write as a commit in a local
// repository, pushing to RemoteURL when one is configured. Reads come from
// the worktree.
type GitDocumentStore struct {
	mu       sync.Mutex
	files    *FileDocumentStore
	repo     *git.Repository
	worktree *git.Worktree
	options  GitOptions
}

// NewGitDocumentStore creates a store; call Initialize before use.
func NewGitDocumentStore(opts GitOptions) *GitDocumentStore {
	opts.Path = expandPath(opts.Path)
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &GitDocumentStore{options: opts}
}

// Initialize prepares the git repository (open, clone or init).
func (g *GitDocumentStore) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.options.Path, 0o700); err != nil {
		return fmt.Errorf("git store: create base dir: %w", err)
	}

	var (
		repo *git.Repository
		err  error
	)

	switch {
	case g.isExistingRepo():
		repo, err = git.PlainOpen(g.options.Path)
		if err != nil {
			return fmt.Errorf("git store: open existing repo: %w", err)
		}
	case g.options.RemoteURL != "":
		repo, err = git.PlainCloneContext(ctx, g.options.Path, false, &git.CloneOptions{
			URL:           g.options.RemoteURL,
			ReferenceName: plumbing.NewBranchReferenceName(g.options.Branch),
			SingleBranch:  true,
			Depth:         1,
			Auth:          g.auth(),
		})
		if err != nil {
			return fmt.Errorf("git store: clone remote repo: %w", err)
		}
	default:
		repo, err = git.PlainInitWithOptions(g.options.Path, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(g.options.Branch)},
		})
		if err != nil {
			return fmt.Errorf("git store: init repo: %w", err)
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("git store: worktree: %w", err)
	}

	files, err := NewFileDocumentStore(g.options.Path)
	if err != nil {
		return err
	}

	ignore := filepath.Join(g.options.Path, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*.bak\n*.tmp\n"), 0o600); err != nil {
			return fmt.Errorf("git store: write .gitignore: %w", err)
		}
		if _, err := worktree.Add(".gitignore"); err != nil {
			return fmt.Errorf("git store: add .gitignore: %w", err)
		}
	}

	g.repo = repo
	g.worktree = worktree
	g.files = files

	if err := g.pullLatest(ctx); err != nil {
		log.WithError(err).Warn("git store: initial pull failed")
	}
	return nil
}

func (g *GitDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	if g.files == nil {
		return nil, fmt.Errorf("git store: not initialised")
	}
	return g.files.Load(ctx, name)
}

func (g *GitDocumentStore) LoadBackup(ctx context.Context, name string) ([]byte, error) {
	if g.files == nil {
		return nil, fmt.Errorf("git store: not initialised")
	}
	return g.files.LoadBackup(ctx, name)
}

// Save writes the document through the file store and commits it.
func (g *GitDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.files == nil {
		return fmt.Errorf("git store: not initialised")
	}
	if err := g.files.Save(ctx, name, data); err != nil {
		return err
	}
	return g.commitAndPush(ctx, fmt.Sprintf("update %s", name), ensureJSONExt(name))
}

func (g *GitDocumentStore) Delete(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.files == nil {
		return fmt.Errorf("git store: not initialised")
	}
	if err := g.files.Delete(ctx, name); err != nil {
		return err
	}
	return g.commitAndPush(ctx, fmt.Sprintf("delete %s", name), ensureJSONExt(name))
}

func (g *GitDocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	if g.files == nil {
		return nil, fmt.Errorf("git store: not initialised")
	}
	return g.files.List(ctx, prefix)
}

// Health checks repository availability.
func (g *GitDocumentStore) Health(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.worktree == nil {
		return fmt.Errorf("git store: not initialised")
	}
	_, err := g.worktree.Status()
	return err
}

// Close is a no-op for the Git store.
func (g *GitDocumentStore) Close() error { return nil }

// Commits returns the number of commits reachable from HEAD.
func (g *GitDocumentStore) Commits() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	head, err := g.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, err
	}
	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	return count, err
}

func (g *GitDocumentStore) commitAndPush(ctx context.Context, message, file string) error {
	if _, err := os.Stat(filepath.Join(g.options.Path, file)); os.IsNotExist(err) {
		_, _ = g.worktree.Remove(file)
	} else if _, err := g.worktree.Add(file); err != nil {
		return fmt.Errorf("git store: add %s: %w", file, err)
	}

	status, err := g.worktree.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		return nil
	}

	_, err = g.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  fallback(g.options.AuthorName, "cardgen"),
			Email: fallback(g.options.AuthorEmail, "cardgen@localhost"),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("git store: commit: %w", err)
	}
	return g.pushLatest(ctx)
}

func (g *GitDocumentStore) isExistingRepo() bool {
	_, err := os.Stat(filepath.Join(g.options.Path, ".git"))
	return err == nil
}

func (g *GitDocumentStore) pullLatest(ctx context.Context) error {
	if g.repo == nil || g.worktree == nil || g.options.RemoteURL == "" {
		return nil
	}
	err := g.worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(g.options.Branch),
		SingleBranch:  true,
		Auth:          g.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func (g *GitDocumentStore) pushLatest(ctx context.Context) error {
	if g.repo == nil || g.options.RemoteURL == "" {
		return nil
	}
	err := g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       g.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func (g *GitDocumentStore) auth() *http.BasicAuth {
	if g.options.Username == "" && g.options.Password == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: g.options.Username,
		Password: g.options.Password,
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
