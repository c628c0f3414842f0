// Package mirrord assembles the mirror daemon: the git sync loop, an
// optional checkout watcher and a local read-only HTTP API over the tree.
package mirrord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/openmined/gitmirror/internal/gitsync"
	"github.com/openmined/gitmirror/internal/mirror"
	"github.com/openmined/gitmirror/internal/utils"
)

type Daemon struct {
	cfg    *Config
	syncer *gitsync.Syncer
	server *http.Server
	wg     sync.WaitGroup
}

func NewDaemon(cfg *Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	syncer, err := gitsync.New(&gitsync.Config{
		RemoteURL: cfg.RemoteURL,
		Branch:    cfg.Branch,
		Dir:       cfg.CheckoutDir(),
		Interval:  cfg.Interval,
		Depth:     cfg.Depth,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, syncer: syncer}

	if cfg.HTTPAddr != "" {
		d.server = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: setupRoutes(syncer),
			// timeouts to prevent slow client attacks
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
	}

	return d, nil
}

// Mirror returns the tree the daemon maintains.
func (d *Daemon) Mirror() *mirror.Mirror { return d.syncer.Mirror() }

// Syncer returns the sync loop, mainly for status queries.
func (d *Daemon) Syncer() *gitsync.Syncer { return d.syncer }

// Start runs the daemon until ctx is cancelled: it opens the checkout, then
// runs the HTTP server and the watcher alongside the blocking sync loop.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.syncer.Open(ctx); err != nil {
		return err
	}

	if d.server != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			slog.Info("query api start", "addr", fmt.Sprintf("http://%s", d.server.Addr))
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("query api", "error", err)
			}
		}()
	}

	if d.cfg.Watch {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.watchCheckout(ctx)
		}()
	}

	err := d.syncer.Start(ctx)

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := d.server.Shutdown(shutdownCtx); serr != nil {
			slog.Error("query api shutdown", "error", serr)
		}
	}
	d.wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
