package mirrord

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/gitmirror/internal/gitsync"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing remote",
			cfg:     Config{DataDir: "/tmp/gitmirror"},
			wantErr: "remote url is required",
		},
		{
			name:    "missing data dir",
			cfg:     Config{RemoteURL: "https://example.com/repo.git"},
			wantErr: "data dir is required",
		},
		{
			name: "defaults applied",
			cfg:  Config{RemoteURL: "https://example.com/repo.git", DataDir: "/tmp/gitmirror"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, gitsync.DefaultBranch, tt.cfg.Branch)
			assert.Equal(t, gitsync.DefaultInterval, tt.cfg.Interval)
		})
	}
}

func TestConfigValidateResolvesDataDir(t *testing.T) {
	cfg := Config{
		RemoteURL: "https://example.com/repo.git",
		DataDir:   "./data",
		Interval:  10 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "checkout"), cfg.CheckoutDir())
	assert.Equal(t, 10*time.Second, cfg.Interval)
}
