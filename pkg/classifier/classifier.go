// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package classifier contains the pluggable text classifiers of the
// recommender, the process-wide registry that owns them and the persistence
// of their trained model artifacts.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/DataDog/galahad/pkg/annotations"
	"github.com/DataDog/galahad/pkg/paths"
)

var (
	// ErrNotRegistered is returned when the addressed classifier is unknown.
	ErrNotRegistered = errors.New("classifier not registered")
	// ErrAlreadyRegistered is returned when a classifier name is registered twice.
	// Registration happens at startup only, so this is a programmer error.
	ErrAlreadyRegistered = errors.New("classifier already registered")
	// ErrModelNotFound is returned by Predict when the addressed model has
	// not been trained yet.
	ErrModelNotFound = errors.New("model not found")
)

// Classifier is the capability implemented by every recommender backend.
//
// Train consumes the full corpus and persists a model artifact on success.
// It may return without producing an artifact when the corpus is empty.
// Predict returns a new document with the same text as the input whose
// annotations extend the input with the produced layers, or ErrModelNotFound
// when the addressed model has not been trained. Consumes and Produces are
// advisory metadata and are not enforced by the server.
type Classifier interface {
	Train(ctx context.Context, modelID string, documents []annotations.Document) error
	Predict(ctx context.Context, modelID string, document annotations.Document) (annotations.Document, error)
	Consumes() []string
	Produces() []string
}

// Info is the wire descriptor of a registered classifier.
type Info struct {
	Name string `json:"name"`
}

// Registry maps classifier names to instances. It is populated at startup
// and read-only once the server accepts requests; the lock only guards
// against misuse during startup.
type Registry struct {
	mu        sync.RWMutex
	modelsDir string
	byName    map[string]Classifier
}

// NewRegistry returns an empty registry whose classifiers store their model
// artifacts under modelsDir, one subdirectory per classifier.
func NewRegistry(modelsDir string) *Registry {
	return &Registry{
		modelsDir: modelsDir,
		byName:    make(map[string]Classifier),
	}
}

// Add registers a classifier under the given name and injects its model
// artifact directory. Duplicate names are a startup programmer error.
func (r *Registry) Add(name string, c Classifier) error {
	if err := paths.ValidateIdentifier(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("classifier with id [%s]: %w", name, ErrAlreadyRegistered)
	}
	if receiver, ok := c.(ModelStoreReceiver); ok {
		dir, err := paths.Join(r.modelsDir, name)
		if err != nil {
			return fmt.Errorf("could not resolve model directory: %w", err)
		}
		receiver.SetModelStore(NewModelStore(dir))
	}
	r.byName[name] = c
	return nil
}

// Get returns the classifier registered under name.
func (r *Registry) Get(name string) (Classifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("classifier with id [%s]: %w", name, ErrNotRegistered)
	}
	return c, nil
}

// Info returns the descriptor of the classifier registered under name.
func (r *Registry) Info(name string) (Info, error) {
	if _, err := r.Get(name); err != nil {
		return Info{}, err
	}
	return Info{Name: name}, nil
}

// Infos returns descriptors for all registered classifiers, sorted by name.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.byName))
	for name := range r.byName {
		infos = append(infos, Info{Name: name})
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
	return infos
}
