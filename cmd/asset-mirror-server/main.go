package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/config"
	"github.com/go-semantic-release/asset-mirror/internal/metrics"
	"github.com/go-semantic-release/asset-mirror/internal/pipeline"
	"github.com/go-semantic-release/asset-mirror/internal/server"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func run(log *logrus.Logger) error {
	log.Println("loading configuration...")
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Version = version
	if err := cfg.ValidateSync(); err != nil {
		return err
	}

	if !cfg.DisableMetrics {
		log.Println("starting metrics exporter...")
		exporter, err := metrics.NewExporter(cfg)
		if err != nil {
			return err
		}
		defer func() {
			exporter.StopMetricsExporter()
			exporter.Flush()
		}()
	}

	log.Println("setting up pipeline...")
	p, err := pipeline.NewFromConfig(context.Background(), &cfg.MirrorConfig, log)
	if err != nil {
		return err
	}

	log.Println("starting server...")
	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           server.New(log, p, p.Store(), cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Println("stopping server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func main() {
	log := setupLogger()
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}
