// Package gitsource implements dynamicconfig.LocalSource by cloning a Git
// repository and reading a single fleet-wide desired-config document from
// it, adapted from the teacher's per-node GitStore
// (internal/store/git.go) to the Dynamic Config Store's fleet-wide shape.
package gitsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Source implements dynamicconfig.LocalSource. The expected repo layout is
// a single file at configPath (e.g. "agents.yaml") holding the fleet-wide
// desired config document.
type Source struct {
	repoURL    string
	branch     string
	localDir   string
	configPath string
	auth       transport.AuthMethod

	mu   sync.Mutex
	repo *git.Repository
}

// New creates a Source. The repo is cloned into baseDir on the first Load
// call; configPath is the path within the repo of the desired-config
// document.
func New(repoURL, branch, baseDir, configPath string) *Source {
	return &Source{
		repoURL:    repoURL,
		branch:     branch,
		localDir:   filepath.Join(baseDir, "config-repo"),
		configPath: configPath,
		auth:       gitAuth(repoURL),
	}
}

// Load implements dynamicconfig.LocalSource.
func (s *Source) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(ctx); err != nil {
		return nil, fmt.Errorf("gitsource: syncing repo: %w", err)
	}

	path := filepath.Join(s.localDir, s.configPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gitsource: reading %s: %w", path, err)
	}
	return data, nil
}

// Close removes the local clone directory.
func (s *Source) Close() error {
	return os.RemoveAll(s.localDir)
}

func (s *Source) sync(ctx context.Context) error {
	if s.repo == nil {
		return s.cloneRepo(ctx)
	}
	return s.pullRepo(ctx)
}

func (s *Source) cloneRepo(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.localDir), 0o755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}
	_ = os.RemoveAll(s.localDir)

	opts := &git.CloneOptions{
		URL:           s.repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          s.auth,
	}

	repo, err := git.PlainCloneContext(ctx, s.localDir, false, opts)
	if err != nil {
		return fmt.Errorf("cloning repo: %w", err)
	}
	s.repo = repo
	return nil
}

func (s *Source) pullRepo(ctx context.Context) error {
	refSpec := gitconfig.RefSpec(
		fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", s.branch, s.branch),
	)

	err := s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      1,
		Auth:       s.auth,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetching: %w", err)
	}

	remoteRef, err := s.repo.Reference(
		plumbing.NewRemoteReferenceName("origin", s.branch), true,
	)
	if err != nil {
		return fmt.Errorf("resolving remote ref: %w", err)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := wt.Reset(&git.ResetOptions{
		Commit: remoteRef.Hash(),
		Mode:   git.HardReset,
	}); err != nil {
		return fmt.Errorf("resetting to remote HEAD: %w", err)
	}

	return nil
}

// gitAuth returns HTTP basic auth using GITHUB_TOKEN for HTTPS GitHub URLs.
func gitAuth(repoURL string) transport.AuthMethod {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil
	}
	const prefix = "https://github.com/"
	if !strings.HasPrefix(repoURL, prefix) {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}
