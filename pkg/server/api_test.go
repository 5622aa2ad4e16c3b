// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/annotations"
	"github.com/DataDog/galahad/pkg/classifier"
	"github.com/DataDog/galahad/pkg/dataset"
	"github.com/DataDog/galahad/pkg/training"
)

type serverEnv struct {
	root   string
	server *Server
	client *Client
}

// newServerEnv starts a full server on a random port with a passthrough
// classifier registered under test_classifier.
func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	root := t.TempDir()
	log := zap.NewNop()
	repository := dataset.NewRepository(root, log)
	registry := classifier.NewRegistry(filepath.Join(root, "models"))
	require.NoError(t, registry.Add("test_classifier", classifier.NewPassthrough()))
	scheduler := training.NewScheduler(filepath.Join(root, "locks"), repository, registry, 2, log)

	server, err := New("127.0.0.1:0", repository, registry, scheduler, log)
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
		_ = scheduler.Stop(ctx)
	})
	return &serverEnv{
		root:   root,
		server: server,
		client: NewClient(server.Addr()),
	}
}

// request sends a raw request and returns status code and body, for the
// tests that assert on exact status codes rather than client behavior.
func (e *serverEnv) request(t *testing.T, method string, path string, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", e.server.Addr(), path), strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(responseBody)
}

func testDocument(t *testing.T, version int) annotations.Document {
	t.Helper()
	doc, err := annotations.BuildSentenceClassificationDocument(
		[]string{"what a great movie", "i hate this film"},
		[]string{"positive", "negative"}, version)
	require.NoError(t, err)
	return doc
}

func TestPing(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.Ping())

	status, body := env.request(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ping": "pong"}`, body)
}

func TestDatasetLifecycle(t *testing.T) {
	env := newServerEnv(t)

	names, err := env.client.ListDatasets()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, env.client.CreateDataset("test_dataset"))
	names, err = env.client.ListDatasets()
	require.NoError(t, err)
	assert.Equal(t, []string{"test_dataset"}, names)

	status, body := env.request(t, http.MethodPut, "/dataset/test_dataset", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.JSONEq(t, `{"detail": "Dataset with id [test_dataset] already exists."}`, body)

	require.NoError(t, env.client.DeleteDataset("test_dataset"))
	names, err = env.client.ListDatasets()
	require.NoError(t, err)
	assert.Empty(t, names)

	err = env.client.DeleteDataset("test_dataset")
	assert.ErrorContains(t, err, "Dataset with id [test_dataset] not found.")
}

func TestInvalidIdentifier(t *testing.T) {
	env := newServerEnv(t)

	status, body := env.request(t, http.MethodPut, "/dataset/inv..alid", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.JSONEq(t, `{"detail": "Identifier [inv..alid] is invalid."}`, body)

	// The invalid identifier never reached the filesystem.
	_, err := os.Stat(filepath.Join(env.root, "datasets"))
	assert.True(t, os.IsNotExist(err))
}

func TestDocumentLifecycle(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.CreateDataset("ds"))

	require.NoError(t, env.client.PutDocument("ds", "d1", testDocument(t, 2)))
	require.NoError(t, env.client.PutDocument("ds", "d2", testDocument(t, 8)))
	require.NoError(t, env.client.PutDocument("ds", "d3", testDocument(t, 7)))

	list, err := env.client.ListDocuments("ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, list.Names)
	assert.Equal(t, []int{2, 8, 7}, list.Versions)

	// Replacing bumps the listed version.
	require.NoError(t, env.client.PutDocument("ds", "d2", testDocument(t, 9)))
	list, err = env.client.ListDocuments("ds")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 9, 7}, list.Versions)

	require.NoError(t, env.client.DeleteDocument("ds", "d2"))
	list, err = env.client.ListDocuments("ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d3"}, list.Names)

	// Deleting an absent document is fine, an absent dataset is not.
	require.NoError(t, env.client.DeleteDocument("ds", "d2"))
	err = env.client.PutDocument("missing", "d1", testDocument(t, 1))
	assert.ErrorContains(t, err, "Dataset with id [missing] not found.")
	err = env.client.DeleteDocument("missing", "d1")
	assert.ErrorContains(t, err, "Dataset with id [missing] not found.")
}

func TestDocumentBodyValidation(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.CreateDataset("ds"))

	status, _ := env.request(t, http.MethodPut, "/dataset/ds/d1", "{not json")
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// A span pointing outside the text is rejected before it is stored.
	doc := annotations.Document{
		Text:        "short",
		Annotations: map[string][]annotations.Span{annotations.TypeToken: {{Begin: 0, End: 99}}},
	}
	err := env.client.PutDocument("ds", "d1", doc)
	assert.ErrorContains(t, err, "Invalid document")

	list, err := env.client.ListDocuments("ds")
	require.NoError(t, err)
	assert.Empty(t, list.Names)
}

func TestClassifierListing(t *testing.T) {
	env := newServerEnv(t)

	infos, err := env.client.ListClassifiers()
	require.NoError(t, err)
	assert.Equal(t, []classifier.Info{{Name: "test_classifier"}}, infos)

	info, err := env.client.GetClassifier("test_classifier")
	require.NoError(t, err)
	assert.Equal(t, classifier.Info{Name: "test_classifier"}, info)

	_, err = env.client.GetClassifier("nope")
	assert.ErrorContains(t, err, "Classifier with id [nope] not found.")
}

func TestTrainAndPredict(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.CreateDataset("ds"))
	doc := testDocument(t, 3)
	require.NoError(t, env.client.PutDocument("ds", "d1", doc))

	status, _ := env.request(t, http.MethodPost, "/classifier/test_classifier/test_model/train/ds", "")
	assert.Equal(t, http.StatusAccepted, status)

	// Training is asynchronous, the model appears eventually.
	require.Eventually(t, func() bool {
		_, err := env.client.Predict("test_classifier", "test_model", doc)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "training never published a model")

	predicted, err := env.client.Predict("test_classifier", "test_model", doc)
	require.NoError(t, err)
	assert.Equal(t, doc, predicted)

	predicted, err = env.client.PredictStored("test_classifier", "test_model", "ds", "d1")
	require.NoError(t, err)
	assert.Equal(t, doc, predicted)

	_, err = env.client.PredictStored("test_classifier", "test_model", "ds", "missing")
	assert.ErrorContains(t, err, "Document with id [missing] not found.")
}

func TestPredictBeforeTrain(t *testing.T) {
	env := newServerEnv(t)

	_, err := env.client.Predict("test_classifier", "test_model", testDocument(t, 0))
	assert.ErrorContains(t, err, "Model with id [test_model] not found.")
}

func TestTrainValidation(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.CreateDataset("ds"))

	err := env.client.Train("nope", "m1", "ds")
	assert.ErrorContains(t, err, "Classifier with id [nope] not found.")

	err = env.client.Train("test_classifier", "m1", "missing")
	assert.ErrorContains(t, err, "Dataset with id [missing] not found.")

	status, body := env.request(t, http.MethodPost, "/classifier/test_classifier/bad..id/train/ds", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.JSONEq(t, `{"detail": "Identifier [bad..id] is invalid."}`, body)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.client.Ping())

	status, body := env.request(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "galahad_http_requests_total")
}
