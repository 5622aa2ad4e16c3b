// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/DataDog/galahad/pkg/annotations"
	"github.com/DataDog/galahad/pkg/classifier"
)

// Client talks to a recommender server over HTTP.
type Client struct {
	client *http.Client
	addr   string
}

// NewClient returns a client for the server at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		client: &http.Client{},
		addr:   addr,
	}
}

// Ping checks that the server is up.
func (c *Client) Ping() error {
	var resp map[string]string
	return c.do(http.MethodGet, "/ping", nil, &resp)
}

// ListDatasets returns the names of all datasets, sorted.
func (c *Client) ListDatasets() ([]string, error) {
	var resp DatasetList
	err := c.do(http.MethodGet, "/dataset", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// CreateDataset creates an empty dataset.
func (c *Client) CreateDataset(datasetID string) error {
	return c.do(http.MethodPut, fmt.Sprintf("/dataset/%s", datasetID), nil, nil)
}

// DeleteDataset removes a dataset and all its documents.
func (c *Client) DeleteDataset(datasetID string) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/dataset/%s", datasetID), nil, nil)
}

// ListDocuments returns the documents of a dataset, sorted by name.
func (c *Client) ListDocuments(datasetID string) (DocumentList, error) {
	var resp DocumentList
	err := c.do(http.MethodGet, fmt.Sprintf("/dataset/%s", datasetID), nil, &resp)
	return resp, err
}

// PutDocument adds a document to a dataset, replacing any previous one
// with the same name.
func (c *Client) PutDocument(datasetID string, documentID string, doc annotations.Document) error {
	return c.do(http.MethodPut, fmt.Sprintf("/dataset/%s/%s", datasetID, documentID), doc, nil)
}

// DeleteDocument removes a document from a dataset.
func (c *Client) DeleteDocument(datasetID string, documentID string) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/dataset/%s/%s", datasetID, documentID), nil, nil)
}

// ListClassifiers returns the registered classifiers, sorted by name.
func (c *Client) ListClassifiers() ([]classifier.Info, error) {
	var resp []classifier.Info
	err := c.do(http.MethodGet, "/classifier", nil, &resp)
	return resp, err
}

// GetClassifier returns the info of a single classifier.
func (c *Client) GetClassifier(classifierID string) (classifier.Info, error) {
	var resp classifier.Info
	err := c.do(http.MethodGet, fmt.Sprintf("/classifier/%s", classifierID), nil, &resp)
	return resp, err
}

// Train schedules a training build. It returns as soon as the build is
// accepted, not when it finishes.
func (c *Client) Train(classifierID string, modelID string, datasetID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/classifier/%s/%s/train/%s", classifierID, modelID, datasetID), nil, nil)
}

// Predict runs a model on the given document and returns the annotated copy.
func (c *Client) Predict(classifierID string, modelID string, doc annotations.Document) (annotations.Document, error) {
	var resp annotations.Document
	err := c.do(http.MethodPost, fmt.Sprintf("/classifier/%s/%s/predict", classifierID, modelID), doc, &resp)
	return resp, err
}

// PredictStored runs a model on a document already stored in a dataset.
func (c *Client) PredictStored(classifierID string, modelID string, datasetID string, documentID string) (annotations.Document, error) {
	var resp annotations.Document
	err := c.do(http.MethodPost, fmt.Sprintf("/classifier/%s/%s/predict/%s/%s", classifierID, modelID, datasetID, documentID), nil, &resp)
	return resp, err
}

func (c *Client) do(method string, path string, body any, into any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", c.addr, path), reqBody)
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Detail == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, errResp.Detail)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("could not decode response body: %w", err)
	}
	return nil
}
