// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package training runs classifier training off the HTTP request path.
//
// Training requests are enqueued to a fixed worker pool and the HTTP caller
// is answered immediately. Every build takes an advisory file lock keyed by
// (classifier, model) before it runs, so at most one build per pair is in
// flight at any time, even across processes sharing the data directory;
// a build that cannot take the lock within the acquire timeout is a
// duplicate of a running build and exits silently.
package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DataDog/galahad/pkg/classifier"
	"github.com/DataDog/galahad/pkg/dataset"
	"github.com/DataDog/galahad/pkg/paths"
)

const (
	defaultQueueSize   = 256
	defaultLockTimeout = time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

var (
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("training scheduler stopped")
	// ErrQueueFull is returned when the training queue has no room left.
	ErrQueueFull = errors.New("training queue full")
)

var (
	buildsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galahad_training_builds_started_total",
		Help: "Number of training builds that acquired the exclusion lock.",
	})
	buildsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galahad_training_builds_suppressed_total",
		Help: "Number of training builds suppressed because a build for the same classifier and model was already running.",
	})
	buildsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galahad_training_builds_failed_total",
		Help: "Number of training builds that returned an error.",
	})
)

type task struct {
	classifierName string
	modelID        string
	datasetID      string
}

// Scheduler decouples training from the HTTP request path.
type Scheduler struct {
	locksDir    string
	repository  *dataset.Repository
	registry    *classifier.Registry
	log         *zap.Logger
	lockTimeout time.Duration

	tasks   chan task
	group   *errgroup.Group
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

// NewScheduler returns a scheduler running up to workers concurrent builds,
// with exclusion locks stored under locksDir.
func NewScheduler(locksDir string, repository *dataset.Repository, registry *classifier.Registry, workers int, log *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		locksDir:    locksDir,
		repository:  repository,
		registry:    registry,
		log:         log,
		lockTimeout: defaultLockTimeout,
		tasks:       make(chan task, defaultQueueSize),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		s.group.Go(func() error {
			for t := range s.tasks {
				s.run(ctx, t)
			}
			return nil
		})
	}
	return s
}

// Schedule enqueues a training build and returns as soon as it is queued.
// It does not wait for the build to run, let alone finish. The enqueue
// never blocks: when the queue is full the build is rejected with
// ErrQueueFull so callers holding no lock of ours are never stuck behind
// slow trainings.
func (s *Scheduler) Schedule(classifierName string, modelID string, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.tasks <- task{classifierName: classifierName, modelID: modelID, datasetID: datasetID}:
	default:
		return ErrQueueFull
	}
	s.log.Info("scheduled training",
		zap.String("classifier", classifierName),
		zap.String("model_id", modelID),
		zap.String("dataset_id", datasetID))
	return nil
}

// Stop drains the queue, waits for running builds to finish and shuts the
// worker pool down. Builds do not observe ctx; it only bounds the wait.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.tasks)
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.group.Wait()
	}()
	select {
	case err := <-done:
		s.cancel()
		return err
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// run executes a single training build under the exclusion lock.
func (s *Scheduler) run(ctx context.Context, t task) {
	log := s.log.With(
		zap.String("classifier", t.classifierName),
		zap.String("model_id", t.modelID),
		zap.String("dataset_id", t.datasetID))

	lockPath, err := s.lockPath(t.classifierName, t.modelID)
	if err != nil {
		log.Error("could not resolve lock path", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		log.Error("could not create locks directory", zap.Error(err))
		return
	}

	lock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("could not acquire training lock", zap.Error(err))
		return
	}
	if !locked {
		// Another build for this (classifier, model) is already running.
		buildsSuppressed.Inc()
		log.Debug("training already in progress, skipping")
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Error("could not release training lock", zap.Error(err))
		}
	}()

	buildsStarted.Inc()
	start := time.Now()

	c, err := s.registry.Get(t.classifierName)
	if err != nil {
		buildsFailed.Inc()
		log.Error("could not resolve classifier", zap.Error(err))
		return
	}
	documents, err := s.repository.Documents(t.datasetID)
	if err != nil {
		buildsFailed.Inc()
		log.Error("could not read training corpus", zap.Error(err))
		return
	}
	if err := c.Train(ctx, t.modelID, documents); err != nil {
		buildsFailed.Inc()
		log.Error("training failed", zap.Error(err))
		return
	}
	log.Info("training finished",
		zap.Int("documents", len(documents)),
		zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) lockPath(classifierName string, modelID string) (string, error) {
	if err := paths.ValidateIdentifier(classifierName); err != nil {
		return "", err
	}
	if err := paths.ValidateIdentifier(modelID); err != nil {
		return "", err
	}
	return filepath.Join(s.locksDir, fmt.Sprintf("%s__%s.lock", classifierName, modelID)), nil
}
