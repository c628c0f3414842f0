// Package gitsync keeps a local checkout in step with a remote git
// repository and drives the mirror tree from it. Each cycle fetches the
// remote, hard-resets the worktree to the remote branch head, then runs one
// reconciliation pass over the checkout. The mirror itself never touches the
// network.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/openmined/gitmirror/internal/mirror"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultBranch   = "main"

	remoteName = "origin"
)

var ErrSyncAlreadyRunning = errors.New("sync already running")

// Config describes the remote to mirror and where to keep the checkout.
type Config struct {
	RemoteURL string
	Branch    string
	Dir       string
	Interval  time.Duration
	Depth     int

	// basic-auth credentials for http(s) remotes; for token auth set
	// Username to the token scheme's expected user and Password to the token
	Username string
	Password string
}

func (c *Config) Validate() error {
	if c.RemoteURL == "" {
		return errors.New("remote url is required")
	}
	if c.Dir == "" {
		return errors.New("checkout dir is required")
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return nil
}

// Status is a point-in-time snapshot of the sync loop, served by the local
// control plane.
type Status struct {
	RemoteURL string    `json:"remote_url"`
	Branch    string    `json:"branch"`
	Dir       string    `json:"dir"`
	Passes    uint64    `json:"passes"`
	LastSync  time.Time `json:"last_sync"`
	LastError string    `json:"last_error,omitempty"`
}

// Syncer owns the checkout, the periodic refresh loop and the mirror tree
// built from it.
type Syncer struct {
	cfg    *Config
	mirror *mirror.Mirror
	repo   *git.Repository

	refresh chan struct{}
	muSync  sync.Mutex

	muState  sync.RWMutex
	passes   uint64
	lastSync time.Time
	lastErr  error
}

func New(cfg *Config) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := mirror.New(cfg.Dir, mirror.WithIgnoredNames(".git"))
	if err != nil {
		return nil, err
	}
	return &Syncer{
		cfg:     cfg,
		mirror:  m,
		refresh: make(chan struct{}, 1),
	}, nil
}

// Mirror returns the tree built from the checkout.
func (s *Syncer) Mirror() *mirror.Mirror { return s.mirror }

// Root returns the root node of the mirrored tree.
func (s *Syncer) Root() *mirror.Node { return s.mirror.Root() }

// Open prepares the checkout: it opens an existing repository at the
// configured dir, or clones the remote into it on first run.
func (s *Syncer) Open(ctx context.Context) error {
	repo, err := git.PlainOpen(s.cfg.Dir)
	if err == nil {
		s.repo = repo
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("open checkout: %w", err)
	}

	slog.Info("mirror clone", "remote", s.cfg.RemoteURL, "branch", s.cfg.Branch, "dir", s.cfg.Dir)
	repo, err = git.PlainCloneContext(ctx, s.cfg.Dir, false, &git.CloneOptions{
		URL:           s.cfg.RemoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Depth:         s.cfg.Depth,
		Auth:          s.auth(),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", s.cfg.RemoteURL, err)
	}
	s.repo = repo
	return nil
}

// Start runs the refresh loop until ctx is cancelled. An in-flight cycle
// always runs to completion; cancellation is observed between cycles. A
// failed cycle is logged and retried on the next tick with the tree left as
// the last good pass built it.
func (s *Syncer) Start(ctx context.Context) error {
	if s.repo == nil {
		if err := s.Open(ctx); err != nil {
			return err
		}
	}

	slog.Info("mirror sync start", "remote", s.cfg.RemoteURL, "branch", s.cfg.Branch, "interval", s.cfg.Interval)
	if err := s.RunSync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mirror initial sync", "error", err)
	}

	// a timer, not a ticker, so a slow cycle never queues up ticks
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-s.refresh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := s.RunSync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mirror sync", "error", err)
		}
		timer.Reset(s.cfg.Interval)
	}
}

// RefreshNow nudges the loop to run a cycle ahead of schedule. Safe from any
// goroutine; coalesces when a nudge is already pending.
func (s *Syncer) RefreshNow() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// RunSync performs one cycle: refresh the checkout from the remote, then
// reconcile the mirror tree against it. Never runs concurrently with itself.
func (s *Syncer) RunSync(ctx context.Context) error {
	if !s.muSync.TryLock() {
		return ErrSyncAlreadyRunning
	}
	defer s.muSync.Unlock()

	tstart := time.Now()
	err := s.runCycle(ctx)

	s.muState.Lock()
	s.passes++
	s.lastSync = time.Now()
	s.lastErr = err
	s.muState.Unlock()

	if err != nil {
		return err
	}
	slog.Debug("mirror sync pass", "took", time.Since(tstart))
	return nil
}

func (s *Syncer) runCycle(ctx context.Context) error {
	if err := s.refreshCheckout(ctx); err != nil {
		return err
	}

	changed, err := s.mirror.Reconcile()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if changed {
		slog.Info("mirror updated", "dir", s.cfg.Dir)
	}
	return nil
}

// refreshCheckout fetches the remote and hard-resets the worktree to the
// remote branch head, discarding any local drift, so the mirror always
// reconciles against a consistent snapshot.
func (s *Syncer) refreshCheckout(ctx context.Context) error {
	err := s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Prune:      true,
		Depth:      s.cfg.Depth,
		Auth:       s.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", s.cfg.RemoteURL, err)
	}

	ref, err := s.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, s.cfg.Branch), true)
	if err != nil {
		return fmt.Errorf("resolve %s/%s: %w", remoteName, s.cfg.Branch, err)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); err != nil {
		return fmt.Errorf("reset to %s: %w", ref.Hash(), err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("clean worktree: %w", err)
	}
	return nil
}

// Status reports the loop's current state.
func (s *Syncer) Status() Status {
	s.muState.RLock()
	defer s.muState.RUnlock()
	status := Status{
		RemoteURL: s.cfg.RemoteURL,
		Branch:    s.cfg.Branch,
		Dir:       s.cfg.Dir,
		Passes:    s.passes,
		LastSync:  s.lastSync,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

func (s *Syncer) auth() transport.AuthMethod {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: s.cfg.Username,
		Password: s.cfg.Password,
	}
}
