package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/gitmirror/internal/gitsync"
	"github.com/openmined/gitmirror/internal/mirrord"
	"github.com/openmined/gitmirror/internal/version"
)

var (
	home, _           = os.UserHomeDir()
	defaultDataDir    = filepath.Join(home, ".gitmirror", "data")
	defaultConfigPath = filepath.Join(home, ".gitmirror", "config.json")
	configFileName    = "config"
)

var rootCmd = &cobra.Command{
	Use:     "gitmirror",
	Short:   "Mirror a remote git repository into a queryable in-memory tree",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &mirrord.Config{
			RemoteURL: viper.GetString("remote_url"),
			Branch:    viper.GetString("branch"),
			DataDir:   viper.GetString("data_dir"),
			Interval:  viper.GetDuration("interval"),
			Depth:     viper.GetInt("depth"),
			Username:  viper.GetString("username"),
			Password:  viper.GetString("password"),
			HTTPAddr:  viper.GetString("http_addr"),
			Watch:     viper.GetBool("watch"),
		}

		daemon, err := mirrord.NewDaemon(cfg)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		slog.Info("gitmirror", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

		defer slog.Info("Bye!")
		if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("daemon", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("remote", "r", "", "URL of the git repository to mirror")
	rootCmd.Flags().StringP("branch", "b", gitsync.DefaultBranch, "Branch to mirror")
	rootCmd.Flags().StringP("datadir", "d", defaultDataDir, "Directory for the local checkout")
	rootCmd.Flags().DurationP("interval", "i", gitsync.DefaultInterval, "Refresh interval")
	rootCmd.Flags().Int("depth", 0, "Shallow clone depth, 0 for full history")
	rootCmd.Flags().StringP("http-addr", "a", mirrord.DefaultHTTPAddr, "Bind address of the local query API, empty to disable")
	rootCmd.Flags().BoolP("watch", "w", false, "Watch the checkout and refresh early on out-of-band changes")
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Config file")
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".gitmirror"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return err
		}
	}

	viper.BindPFlag("remote_url", cmd.Flags().Lookup("remote"))
	viper.BindPFlag("branch", cmd.Flags().Lookup("branch"))
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("interval", cmd.Flags().Lookup("interval"))
	viper.BindPFlag("depth", cmd.Flags().Lookup("depth"))
	viper.BindPFlag("http_addr", cmd.Flags().Lookup("http-addr"))
	viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))

	viper.SetEnvPrefix("GITMIRROR")
	viper.AutomaticEnv()

	return nil
}
