// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/annotations"
	"github.com/DataDog/galahad/pkg/classifier"
	"github.com/DataDog/galahad/pkg/dataset"
	"github.com/DataDog/galahad/pkg/paths"
	"github.com/DataDog/galahad/pkg/training"
)

// DatasetList is the response to the dataset listing endpoint.
type DatasetList struct {
	Names []string `json:"names"`
}

// DocumentList is the response to the document listing endpoint. Names and
// versions are parallel lists sorted by document name.
type DocumentList struct {
	Names    []string `json:"names"`
	Versions []int    `json:"versions"`
}

// ErrorResponse is the body of every 4xx and 5xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ping", s.ping).Methods(http.MethodGet)

	r.HandleFunc("/dataset", s.listDatasets).Methods(http.MethodGet)
	r.HandleFunc("/dataset/{dataset_id}", s.createDataset).Methods(http.MethodPut)
	r.HandleFunc("/dataset/{dataset_id}", s.listDocuments).Methods(http.MethodGet)
	r.HandleFunc("/dataset/{dataset_id}", s.deleteDataset).Methods(http.MethodDelete)
	r.HandleFunc("/dataset/{dataset_id}/{document_id}", s.putDocument).Methods(http.MethodPut)
	r.HandleFunc("/dataset/{dataset_id}/{document_id}", s.deleteDocument).Methods(http.MethodDelete)

	r.HandleFunc("/classifier", s.listClassifiers).Methods(http.MethodGet)
	r.HandleFunc("/classifier/{classifier_id}", s.getClassifier).Methods(http.MethodGet)
	r.HandleFunc("/classifier/{classifier_id}/{model_id}/train/{dataset_id}", s.train).Methods(http.MethodPost)
	r.HandleFunc("/classifier/{classifier_id}/{model_id}/predict", s.predict).Methods(http.MethodPost)
	r.HandleFunc("/classifier/{classifier_id}/{model_id}/predict/{dataset_id}/{document_id}", s.predictStored).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(s.countRequests)
	return r
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.repository.ListDatasets()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetList{Names: names})
}

func (s *Server) createDataset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	if err := s.repository.CreateDataset(datasetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	infos, err := s.repository.ListDocuments(datasetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := DocumentList{Names: []string{}, Versions: []int{}}
	for _, info := range infos {
		list.Names = append(list.Names, info.Name)
		list.Versions = append(list.Versions, info.Version)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteDataset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	if err := s.repository.DeleteDataset(datasetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putDocument(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	documentID, ok := s.pathID(w, r, "document_id")
	if !ok {
		return
	}
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	if err := s.repository.PutDocument(datasetID, documentID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	documentID, ok := s.pathID(w, r, "document_id")
	if !ok {
		return
	}
	if err := s.repository.DeleteDocument(datasetID, documentID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listClassifiers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Infos())
}

func (s *Server) getClassifier(w http.ResponseWriter, r *http.Request) {
	classifierID, ok := s.pathID(w, r, "classifier_id")
	if !ok {
		return
	}
	info, err := s.registry.Info(classifierID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// train validates the request, enqueues the build and answers 202 without
// waiting for training. Duplicate builds are suppressed by the scheduler.
func (s *Server) train(w http.ResponseWriter, r *http.Request) {
	classifierID, ok := s.pathID(w, r, "classifier_id")
	if !ok {
		return
	}
	modelID, ok := s.pathID(w, r, "model_id")
	if !ok {
		return
	}
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	if _, err := s.registry.Get(classifierID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.repository.ListDocuments(datasetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.scheduler.Schedule(classifierID, modelID, datasetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	s.runPredict(w, r, doc)
}

// predictStored predicts on a document already stored in a dataset.
func (s *Server) predictStored(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := s.pathID(w, r, "dataset_id")
	if !ok {
		return
	}
	documentID, ok := s.pathID(w, r, "document_id")
	if !ok {
		return
	}
	doc, err := s.repository.GetDocument(datasetID, documentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runPredict(w, r, doc)
}

func (s *Server) runPredict(w http.ResponseWriter, r *http.Request, doc annotations.Document) {
	classifierID, ok := s.pathID(w, r, "classifier_id")
	if !ok {
		return
	}
	modelID, ok := s.pathID(w, r, "model_id")
	if !ok {
		return
	}
	c, err := s.registry.Get(classifierID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	predicted, err := c.Predict(r.Context(), modelID, doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predicted)
}

// pathID extracts and validates a path identifier, answering 422 itself
// when the identifier is invalid.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := mux.Vars(r)[name]
	if err := paths.ValidateIdentifier(id); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Detail: fmt.Sprintf("Identifier [%s] is invalid.", id),
		})
		return "", false
	}
	return id, true
}

// readDocument decodes and validates the request body, answering 422
// itself when the body is not a well-formed document.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (annotations.Document, bool) {
	var doc annotations.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "Request body is not a valid document."})
		return annotations.Document{}, false
	}
	if err := doc.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: fmt.Sprintf("Invalid document: %v.", err)})
		return annotations.Document{}, false
	}
	return doc, true
}

// writeError is the sole mapper from domain errors to HTTP status codes.
// 4xx details name the offending entity; 5xx details stay generic.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	vars := mux.Vars(r)
	switch {
	case errors.Is(err, dataset.ErrDatasetAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Detail: fmt.Sprintf("Dataset with id [%s] already exists.", vars["dataset_id"]),
		})
	case errors.Is(err, dataset.ErrDatasetNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Detail: fmt.Sprintf("Dataset with id [%s] not found.", vars["dataset_id"]),
		})
	case errors.Is(err, dataset.ErrDocumentNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Detail: fmt.Sprintf("Document with id [%s] not found.", vars["document_id"]),
		})
	case errors.Is(err, classifier.ErrNotRegistered):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Detail: fmt.Sprintf("Classifier with id [%s] not found.", vars["classifier_id"]),
		})
	case errors.Is(err, classifier.ErrModelNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Detail: fmt.Sprintf("Model with id [%s] not found.", vars["model_id"]),
		})
	case errors.Is(err, training.ErrQueueFull):
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Detail: "Too many training requests."})
	case errors.Is(err, paths.ErrInvalidName):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "Invalid identifier."})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "Internal server error."})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
