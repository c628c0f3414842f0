package mirrord

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/openmined/gitmirror/internal/gitsync"
	"github.com/openmined/gitmirror/internal/utils"
)

const DefaultHTTPAddr = "localhost:7944"

// Config is the daemon's effective configuration, assembled by the CLI from
// flags, environment and the config file.
type Config struct {
	RemoteURL string        `json:"remote_url"`
	Branch    string        `json:"branch"`
	DataDir   string        `json:"data_dir"`
	Interval  time.Duration `json:"interval"`
	Depth     int           `json:"depth"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`

	// HTTPAddr is the bind address of the local query API; empty disables it.
	HTTPAddr string `json:"http_addr"`

	// Watch enables the checkout watcher that nudges early refreshes.
	Watch bool `json:"watch"`
}

func (c *Config) Validate() error {
	if c.RemoteURL == "" {
		return errors.New("remote url is required")
	}
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	resolved, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = resolved
	if c.Branch == "" {
		c.Branch = gitsync.DefaultBranch
	}
	if c.Interval <= 0 {
		c.Interval = gitsync.DefaultInterval
	}
	return nil
}

// CheckoutDir is where the remote is cloned, under the data dir.
func (c *Config) CheckoutDir() string {
	return filepath.Join(c.DataDir, "checkout")
}
