// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package classifier

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DataDog/galahad/pkg/paths"
)

// ModelStoreReceiver is implemented by classifiers that persist model
// artifacts. The registry injects the store at registration time.
type ModelStoreReceiver interface {
	SetModelStore(store *ModelStore)
}

// ModelStore persists the trained model artifacts of a single classifier
// under its private directory as <dir>/model_<model_id>.gob.
//
// Writes are atomic: the artifact is serialized to a temporary sibling and
// renamed into place, so a concurrent load observes either the previous or
// the new artifact, never a partial file. A temporary file left behind by a
// crash is never looked at by Load.
type ModelStore struct {
	dir string
}

// NewModelStore returns a store rooted at the classifier's model directory.
func NewModelStore(dir string) *ModelStore {
	return &ModelStore{dir: dir}
}

// Save serializes the model and publishes it under modelID.
func (s *ModelStore) Save(modelID string, model any) error {
	path, err := s.modelPath(modelID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("could not create model directory: %w", err)
	}
	tmpPath := filepath.Join(s.dir, "."+filepath.Base(path)+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("could not create model file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(model); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("could not serialize model: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close model file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("could not publish model: %w", err)
	}
	return nil
}

// Load reads the artifact stored under modelID into model, which has to be
// a pointer. A missing artifact means the model has not been trained yet
// and is reported as ErrModelNotFound.
func (s *ModelStore) Load(modelID string, model any) error {
	path, err := s.modelPath(modelID)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("model with id [%s]: %w", modelID, ErrModelNotFound)
		}
		return fmt.Errorf("could not open model file: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(model); err != nil {
		return fmt.Errorf("could not deserialize model: %w", err)
	}
	return nil
}

// Exists reports whether an artifact is published under modelID.
func (s *ModelStore) Exists(modelID string) (bool, error) {
	path, err := s.modelPath(modelID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ModelStore) modelPath(modelID string) (string, error) {
	if err := paths.ValidateIdentifier(modelID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "model_"+modelID+".gob"), nil
}

// modelStoreHolder is embedded by the bundled classifiers to receive their
// artifact store from the registry.
type modelStoreHolder struct {
	store *ModelStore
}

// SetModelStore implements ModelStoreReceiver.
func (h *modelStoreHolder) SetModelStore(store *ModelStore) {
	h.store = store
}
