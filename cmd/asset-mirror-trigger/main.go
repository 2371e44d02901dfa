package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-semantic-release/asset-mirror/pkg/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

var defaultMirrorURLs = []string{
	"https://mirror.go-semantic-release.xyz",
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "asset-mirror-trigger",
		Short:   "Trigger a sync on one or more asset mirror servers",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, args); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().StringArrayP("mirror-url", "r", defaultMirrorURLs, "the asset mirror URL")
	cmd.PersistentFlags().String("admin-access-token", os.Getenv("ASSET_MIRROR_ADMIN_ACCESS_TOKEN"), "admin access token")
	cmd.PersistentFlags().SortFlags = false

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func run(log *logrus.Logger, cmd *cobra.Command, _ []string) error {
	log.Infof("starting asset-mirror-trigger (version=%s)", version)
	mirrorURLs := must(cmd.PersistentFlags().GetStringArray("mirror-url"))
	if len(mirrorURLs) == 0 {
		return errors.New("no mirror URLs provided")
	}
	adminAccessToken := must(cmd.PersistentFlags().GetString("admin-access-token"))
	if adminAccessToken == "" {
		return errors.New("no admin access token provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, url := range mirrorURLs {
		url = strings.TrimSuffix(url, "/")
		log.Infof("triggering sync: %s", url)
		report, err := client.New(url).TriggerSync(ctx, adminAccessToken)
		if err != nil {
			log.Errorf("failed to sync %s: %v", url, err)
			failed++
			continue
		}
		log.WithField("run_id", report.RunID).Infof("synced %s: %d new assets, %d assets in manifest",
			url, report.Stats.NewAssets, report.Manifest.TotalAssets)
	}
	if failed == len(mirrorURLs) {
		return errors.New("all syncs failed")
	}
	return nil
}
