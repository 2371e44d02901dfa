package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-semantic-release/asset-mirror/internal/config"
	"github.com/go-semantic-release/asset-mirror/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "asset-mirror",
		Short:   "Mirror GitHub release assets into a directory tree",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("root", "", "the mirror root directory (default $MIRROR_ROOT or .)")
	cmd.PersistentFlags().Bool("constrained", false, "only mirror the two newest releases of each repository")
	cmd.PersistentFlags().Int("max-new-assets", -1, "maximum number of new downloads, 0 for unlimited (default $MAX_NEW_ASSETS)")
	cmd.PersistentFlags().Int("workers", 0, "number of assets downloaded concurrently (default $WORKERS or 1)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().SortFlags = false

	cmd.AddCommand(
		&cobra.Command{
			Use:   "sync",
			Short: "Mirror new release assets, clean stale directories and write packages.json",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSync(cmd, log)
			},
		},
		&cobra.Command{
			Use:   "manifest",
			Short: "Regenerate packages.json from the directory tree",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runManifest(cmd, log)
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove directories that are not release directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runClean(cmd, log)
			},
		},
	)

	if err := cmd.Execute(); err != nil {
		log.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command, log *logrus.Logger) (*config.MirrorConfig, error) {
	cfg, err := config.NewMirrorConfigFromEnv()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = must(flags.GetString("root"))
	}
	if flags.Changed("constrained") {
		cfg.Constrained = must(flags.GetBool("constrained"))
	}
	if flags.Changed("max-new-assets") {
		cfg.MaxNewAssets = must(flags.GetInt("max-new-assets"))
	}
	if flags.Changed("workers") {
		cfg.Workers = must(flags.GetInt("workers"))
	}
	if must(flags.GetBool("debug")) {
		log.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSync(cmd *cobra.Command, log *logrus.Logger) error {
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSync(); err != nil {
		return err
	}
	log.Infof("starting asset-mirror sync (version=%s, owner=%s, root=%s)", version, cfg.Owner, cfg.Root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	report, err := p.Sync(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runManifest(cmd *cobra.Command, log *logrus.Logger) error {
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	report, err := p.Regenerate(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runClean(cmd *cobra.Command, log *logrus.Logger) error {
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}
	p, err := pipeline.NewFromConfig(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	removed, err := p.Clean()
	if err != nil {
		return err
	}
	log.Infof("removed %d stale directories", len(removed))
	return nil
}
