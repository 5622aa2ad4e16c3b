// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package classifier

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/annotations"
)

// sentenceModel is the persisted artifact of the sentence classifier:
// a multinomial naive Bayes model over bag-of-words sentence features.
type sentenceModel struct {
	SamplesPerLabel map[string]int
	WordsPerLabel   map[string]map[string]int
	TotalPerLabel   map[string]int
	Samples         int
	Vocabulary      map[string]bool
}

// SentenceClassifier labels whole sentences. Training consumes t.sentence
// spans together with the t.annotation span covering each sentence, whose
// f.value feature carries the label. Prediction adds one t.annotation span
// per t.sentence with the predicted label.
type SentenceClassifier struct {
	modelStoreHolder
	log *zap.Logger
}

// NewSentenceClassifier returns a sentence classifier logging to log.
func NewSentenceClassifier(log *zap.Logger) *SentenceClassifier {
	return &SentenceClassifier{log: log}
}

// Train implements Classifier.
func (c *SentenceClassifier) Train(_ context.Context, modelID string, documents []annotations.Document) error {
	model := sentenceModel{
		SamplesPerLabel: make(map[string]int),
		WordsPerLabel:   make(map[string]map[string]int),
		TotalPerLabel:   make(map[string]int),
		Vocabulary:      make(map[string]bool),
	}

	for _, doc := range documents {
		index := annotations.FromDocument(doc)
		for _, sentence := range index.Select(annotations.TypeSentence) {
			for _, labeled := range index.SelectCovered(annotations.TypeAnnotation, sentence) {
				label, ok := labeled.StringFeature(annotations.FeatureValue)
				if !ok {
					continue
				}
				model.SamplesPerLabel[label]++
				model.Samples++
				words := model.WordsPerLabel[label]
				if words == nil {
					words = make(map[string]int)
					model.WordsPerLabel[label] = words
				}
				for _, word := range strings.Fields(index.CoveredText(labeled)) {
					words[word]++
					model.TotalPerLabel[label]++
					model.Vocabulary[word] = true
				}
			}
		}
	}

	if model.Samples == 0 {
		c.log.Info("empty training set, skipping", zap.String("model_id", modelID))
		return nil
	}

	c.log.Debug("training finished",
		zap.String("model_id", modelID),
		zap.Int("samples", model.Samples),
		zap.Int("labels", len(model.SamplesPerLabel)))
	return c.store.Save(modelID, model)
}

// Predict implements Classifier.
func (c *SentenceClassifier) Predict(_ context.Context, modelID string, document annotations.Document) (annotations.Document, error) {
	var model sentenceModel
	if err := c.store.Load(modelID, &model); err != nil {
		return annotations.Document{}, err
	}

	index := annotations.FromDocument(document)
	for _, sentence := range index.Select(annotations.TypeSentence) {
		label := model.classify(strings.Fields(index.CoveredText(sentence)))
		index.Create(annotations.TypeAnnotation, sentence.Begin, sentence.End,
			map[string]any{annotations.FeatureValue: label})
	}
	return index.Document(document.Version), nil
}

// Consumes implements Classifier.
func (c *SentenceClassifier) Consumes() []string {
	return []string{annotations.TypeSentence, annotations.TypeAnnotation}
}

// Produces implements Classifier.
func (c *SentenceClassifier) Produces() []string {
	return []string{annotations.TypeAnnotation}
}

// classify returns the label maximizing the smoothed log-likelihood of the
// words. Ties break towards the lexicographically smallest label so that
// prediction is deterministic.
func (m *sentenceModel) classify(words []string) string {
	labels := make([]string, 0, len(m.SamplesPerLabel))
	for label := range m.SamplesPerLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := ""
	bestScore := math.Inf(-1)
	for _, label := range labels {
		score := math.Log(float64(m.SamplesPerLabel[label])) - math.Log(float64(m.Samples))
		denominator := float64(m.TotalPerLabel[label] + len(m.Vocabulary))
		for _, word := range words {
			score += math.Log(float64(m.WordsPerLabel[label][word]+1)) - math.Log(denominator)
		}
		if score > bestScore {
			best = label
			bestScore = score
		}
	}
	return best
}
