// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package main is the entrypoint of the recommender server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/classifier"
	"github.com/DataDog/galahad/pkg/dataset"
	"github.com/DataDog/galahad/pkg/server"
	"github.com/DataDog/galahad/pkg/training"
)

const stopTimeout = 30 * time.Second

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "galahad",
		Short:        "Machine learning recommender for text annotation tools",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run()
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8000", "address to listen on")
	cmd.Flags().String("data-dir", "galahad_data", "directory holding datasets, models and locks")
	cmd.Flags().Int("workers", runtime.NumCPU(), "number of concurrent training builds")

	viper.SetEnvPrefix("galahad")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func run() error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}
	defer log.Sync()

	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("could not create data directory: %w", err)
	}

	repository := dataset.NewRepository(dataDir, log)
	registry := classifier.NewRegistry(filepath.Join(dataDir, "models"))
	if err := registry.Add("sentence_classifier", classifier.NewSentenceClassifier(log)); err != nil {
		return err
	}
	if err := registry.Add("span_labeler", classifier.NewSpanLabeler(log)); err != nil {
		return err
	}

	scheduler := training.NewScheduler(filepath.Join(dataDir, "locks"), repository, registry, viper.GetInt("workers"), log)
	srv, err := server.New(viper.GetString("addr"), repository, registry, scheduler, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("started",
		zap.String("addr", srv.Addr()),
		zap.String("data_dir", dataDir),
		zap.Int("workers", viper.GetInt("workers")))
	<-ctx.Done()

	// Stop accepting requests first, then drain the training queue.
	log.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		log.Error("could not stop server", zap.Error(err))
	}
	if err := scheduler.Stop(stopCtx); err != nil {
		log.Error("could not stop training scheduler", zap.Error(err))
	}
	return nil
}
