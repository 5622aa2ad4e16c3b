// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/annotations"
)

// spanLabelModel memorizes, for every token text seen during training, how
// often it appeared under each label.
type spanLabelModel struct {
	LabelsPerToken map[string]map[string]int
}

// SpanLabeler labels tokens. Training consumes t.token spans covered by
// labeled t.annotation spans and memorizes the most frequent label per
// token text. Prediction adds one t.annotation span per known token.
type SpanLabeler struct {
	modelStoreHolder
	log *zap.Logger
}

// NewSpanLabeler returns a token span labeler logging to log.
func NewSpanLabeler(log *zap.Logger) *SpanLabeler {
	return &SpanLabeler{log: log}
}

// Train implements Classifier.
func (c *SpanLabeler) Train(_ context.Context, modelID string, documents []annotations.Document) error {
	model := spanLabelModel{LabelsPerToken: make(map[string]map[string]int)}

	samples := 0
	for _, doc := range documents {
		index := annotations.FromDocument(doc)
		for _, labeled := range index.Select(annotations.TypeAnnotation) {
			label, ok := labeled.StringFeature(annotations.FeatureValue)
			if !ok {
				continue
			}
			for _, token := range index.SelectCovered(annotations.TypeToken, labeled) {
				text := index.CoveredText(token)
				labels := model.LabelsPerToken[text]
				if labels == nil {
					labels = make(map[string]int)
					model.LabelsPerToken[text] = labels
				}
				labels[label]++
				samples++
			}
		}
	}

	if samples == 0 {
		c.log.Info("empty training set, skipping", zap.String("model_id", modelID))
		return nil
	}

	c.log.Debug("training finished",
		zap.String("model_id", modelID),
		zap.Int("samples", samples),
		zap.Int("tokens", len(model.LabelsPerToken)))
	return c.store.Save(modelID, model)
}

// Predict implements Classifier.
func (c *SpanLabeler) Predict(_ context.Context, modelID string, document annotations.Document) (annotations.Document, error) {
	var model spanLabelModel
	if err := c.store.Load(modelID, &model); err != nil {
		return annotations.Document{}, err
	}

	index := annotations.FromDocument(document)
	for _, token := range index.Select(annotations.TypeToken) {
		label, ok := model.labelFor(index.CoveredText(token))
		if !ok {
			continue
		}
		index.Create(annotations.TypeAnnotation, token.Begin, token.End,
			map[string]any{annotations.FeatureValue: label})
	}
	return index.Document(document.Version), nil
}

// Consumes implements Classifier.
func (c *SpanLabeler) Consumes() []string {
	return []string{annotations.TypeToken, annotations.TypeAnnotation}
}

// Produces implements Classifier.
func (c *SpanLabeler) Produces() []string {
	return []string{annotations.TypeAnnotation}
}

// labelFor returns the most frequent label of the token text, breaking ties
// towards the lexicographically smallest label.
func (m *spanLabelModel) labelFor(token string) (string, bool) {
	labels, ok := m.LabelsPerToken[token]
	if !ok {
		return "", false
	}
	best := ""
	bestCount := 0
	for label, count := range labels {
		if count > bestCount || (count == bestCount && (best == "" || label < best)) {
			best = label
			bestCount = count
		}
	}
	return best, true
}
