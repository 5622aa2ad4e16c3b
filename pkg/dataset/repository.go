// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dataset contains the filesystem-backed persistence of datasets
// and their documents.
//
// On disk the repository is structured as follows:
// .
// └── datasets
//
//	├── dataset_a
//	│   ├── document_1   (a JSON document)
//	│   └── document_2
//	└── dataset_b
//
// We voluntarily do not keep any repository state in memory to avoid bugs
// where what's on disk and what's in memory are not in sync. Document
// writes go to a temporary sibling first and are published with a rename,
// so readers never observe a partially written file. Temporary files left
// behind by a crash start with a dot and are ignored by every listing.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/annotations"
	"github.com/DataDog/galahad/pkg/paths"
)

const datasetsDirName = "datasets"

var (
	// ErrDatasetNotFound is returned when the addressed dataset does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrDatasetAlreadyExists is returned when creating a dataset that exists.
	ErrDatasetAlreadyExists = errors.New("dataset already exists")
	// ErrDocumentNotFound is returned when the addressed document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// DocumentInfo is the listing entry of a stored document.
type DocumentInfo struct {
	Name    string
	Version int
}

// Repository persists datasets as directories and documents as JSON files
// under <root>/datasets. All identifiers are validated and all resolved
// paths are checked to stay inside the data root.
type Repository struct {
	root string
	log  *zap.Logger
}

// NewRepository returns a repository rooted at the given data directory.
func NewRepository(root string, log *zap.Logger) *Repository {
	return &Repository{
		root: root,
		log:  log,
	}
}

// ListDatasets returns the ids of all datasets, sorted ascending.
func (r *Repository) ListDatasets() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, datasetsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("could not read datasets directory: %w", err)
	}
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// CreateDataset creates an empty dataset directory.
func (r *Repository) CreateDataset(datasetID string) error {
	folder, err := r.datasetFolder(datasetID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(folder); err == nil {
		return fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetAlreadyExists)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("could not create dataset directory: %w", err)
	}
	r.log.Info("created dataset", zap.String("dataset_id", datasetID))
	return nil
}

// DeleteDataset removes the dataset and all of its documents.
func (r *Repository) DeleteDataset(datasetID string) error {
	folder, err := r.datasetFolder(datasetID)
	if err != nil {
		return err
	}
	if !isDir(folder) {
		return fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetNotFound)
	}
	if err := os.RemoveAll(folder); err != nil {
		return fmt.Errorf("could not remove dataset directory: %w", err)
	}
	r.log.Info("deleted dataset", zap.String("dataset_id", datasetID))
	return nil
}

// ListDocuments returns name and version of every document in the dataset,
// sorted by name ascending.
func (r *Repository) ListDocuments(datasetID string) ([]DocumentInfo, error) {
	folder, err := r.datasetFolder(datasetID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetNotFound)
		}
		return nil, fmt.Errorf("could not read dataset directory: %w", err)
	}
	infos := []DocumentInfo{}
	for _, entry := range entries {
		if entry.IsDir() || isTemporary(entry.Name()) {
			continue
		}
		doc, err := readDocument(filepath.Join(folder, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("could not read document [%s]: %w", entry.Name(), err)
		}
		infos = append(infos, DocumentInfo{Name: entry.Name(), Version: doc.Version})
	}
	return infos, nil
}

// GetDocument reads a single document from the dataset.
func (r *Repository) GetDocument(datasetID string, documentID string) (annotations.Document, error) {
	path, err := r.documentPath(datasetID, documentID)
	if err != nil {
		return annotations.Document{}, err
	}
	if !isDir(filepath.Dir(path)) {
		return annotations.Document{}, fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetNotFound)
	}
	doc, err := readDocument(path)
	if err != nil {
		if os.IsNotExist(err) {
			return annotations.Document{}, fmt.Errorf("document with id [%s]: %w", documentID, ErrDocumentNotFound)
		}
		return annotations.Document{}, fmt.Errorf("could not read document [%s]: %w", documentID, err)
	}
	return doc, nil
}

// PutDocument stores a document in the dataset, replacing any previous
// document with the same id. The write is atomic: the document is written
// to a temporary sibling and renamed into place.
func (r *Repository) PutDocument(datasetID string, documentID string, doc annotations.Document) error {
	path, err := r.documentPath(datasetID, documentID)
	if err != nil {
		return err
	}
	if !isDir(filepath.Dir(path)) {
		return fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetNotFound)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("could not serialize document: %w", err)
	}
	tmpPath := filepath.Join(filepath.Dir(path), "."+documentID+".tmp")
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("could not write document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("could not publish document: %w", err)
	}
	r.log.Debug("stored document",
		zap.String("dataset_id", datasetID),
		zap.String("document_id", documentID),
		zap.Int("version", doc.Version))
	return nil
}

// DeleteDocument removes a document from the dataset. Deleting a document
// that does not exist is not an error, but the dataset has to exist.
func (r *Repository) DeleteDocument(datasetID string, documentID string) error {
	path, err := r.documentPath(datasetID, documentID)
	if err != nil {
		return err
	}
	if !isDir(filepath.Dir(path)) {
		return fmt.Errorf("dataset with id [%s]: %w", datasetID, ErrDatasetNotFound)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove document: %w", err)
	}
	return nil
}

// Documents reads the full corpus of the dataset in listing order. This is
// what training tasks consume.
func (r *Repository) Documents(datasetID string) ([]annotations.Document, error) {
	infos, err := r.ListDocuments(datasetID)
	if err != nil {
		return nil, err
	}
	folder, err := r.datasetFolder(datasetID)
	if err != nil {
		return nil, err
	}
	docs := make([]annotations.Document, 0, len(infos))
	for _, info := range infos {
		doc, err := readDocument(filepath.Join(folder, info.Name))
		if err != nil {
			return nil, fmt.Errorf("could not read document [%s]: %w", info.Name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Repository) datasetFolder(datasetID string) (string, error) {
	return paths.Join(r.root, datasetsDirName, datasetID)
}

func (r *Repository) documentPath(datasetID string, documentID string) (string, error) {
	return paths.Join(r.root, datasetsDirName, datasetID, documentID)
}

func readDocument(path string) (annotations.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return annotations.Document{}, err
	}
	var doc annotations.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return annotations.Document{}, fmt.Errorf("could not parse document: %w", err)
	}
	return doc, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isTemporary(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
