// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSentenceClassificationDocument(t *testing.T) {
	sentences := []string{"Joe waited for the train .", "The train was late ."}
	labels := []string{"neutral", "negative"}

	doc, err := BuildSentenceClassificationDocument(sentences, labels, 7)
	require.NoError(t, err)

	assert.Equal(t, "Joe waited for the train . The train was late .", doc.Text)
	assert.Equal(t, 7, doc.Version)

	index := FromDocument(doc)
	gotSentences := index.Select(TypeSentence)
	require.Len(t, gotSentences, 2)
	for k, span := range gotSentences {
		assert.Equal(t, sentences[k], index.CoveredText(span))
	}

	gotLabels := index.Select(TypeAnnotation)
	require.Len(t, gotLabels, 2)
	for k, span := range gotLabels {
		assert.Equal(t, gotSentences[k].Begin, span.Begin)
		assert.Equal(t, gotSentences[k].End, span.End)
		label, ok := span.StringFeature(FeatureValue)
		require.True(t, ok)
		assert.Equal(t, labels[k], label)
	}
}

// The builders place offsets in code points, so non-ASCII sentences keep
// their spans aligned with the text.
func TestBuildSentenceClassificationDocumentCodePoints(t *testing.T) {
	sentences := []string{"Zoë kommt früh", "José geht spät"}
	doc, err := BuildSentenceClassificationDocument(sentences, []string{"a", "b"}, 0)
	require.NoError(t, err)

	index := FromDocument(doc)
	gotSentences := index.Select(TypeSentence)
	require.Len(t, gotSentences, 2)
	for k, span := range gotSentences {
		assert.Equal(t, sentences[k], index.CoveredText(span))
	}
}

func TestBuildSpanClassificationDocumentCodePoints(t *testing.T) {
	doc, err := BuildSpanClassificationDocument(
		[][]string{{"Zoë", "besucht", "Müllheim"}},
		[][]LabeledSpan{{{Begin: 0, End: 1, Label: "PER"}, {Begin: 2, End: 3, Label: "LOC"}}}, 0)
	require.NoError(t, err)

	index := FromDocument(doc)
	tokens := index.Select(TypeToken)
	require.Len(t, tokens, 3)
	assert.Equal(t, "besucht", index.CoveredText(tokens[1]))
	assert.Equal(t, "Müllheim", index.CoveredText(tokens[2]))

	labeled := index.Select(TypeAnnotation)
	require.Len(t, labeled, 2)
	assert.Equal(t, "Zoë", index.CoveredText(labeled[0]))
	assert.Equal(t, "Müllheim", index.CoveredText(labeled[1]))
}

func TestBuildSentenceClassificationDocumentLengthMismatch(t *testing.T) {
	_, err := BuildSentenceClassificationDocument([]string{"a", "b"}, []string{"x"}, 0)
	assert.Error(t, err)
}

func TestBuildSpanClassificationDocument(t *testing.T) {
	sentences := [][]string{
		{"Joe", "waited", "for", "the", "train", "."},
		{"The", "train", "was", "late", "."},
	}
	spans := [][]LabeledSpan{
		{{Begin: 0, End: 1, Label: "PER"}},
		{{Begin: 0, End: 2, Label: "MISC"}},
	}

	doc, err := BuildSpanClassificationDocument(sentences, spans, 0)
	require.NoError(t, err)
	assert.Equal(t, "Joe waited for the train . The train was late .", doc.Text)

	index := FromDocument(doc)
	tokens := index.Select(TypeToken)
	require.Len(t, tokens, 11)
	assert.Equal(t, "Joe", index.CoveredText(tokens[0]))
	assert.Equal(t, ".", index.CoveredText(tokens[10]))

	labeled := index.Select(TypeAnnotation)
	require.Len(t, labeled, 2)
	assert.Equal(t, "Joe", index.CoveredText(labeled[0]))
	label, _ := labeled[0].StringFeature(FeatureValue)
	assert.Equal(t, "PER", label)
	assert.Equal(t, "The train", index.CoveredText(labeled[1]))
	label, _ = labeled[1].StringFeature(FeatureValue)
	assert.Equal(t, "MISC", label)
}

func TestBuildSpanClassificationDocumentBadSpan(t *testing.T) {
	_, err := BuildSpanClassificationDocument([][]string{{"a"}}, [][]LabeledSpan{{{Begin: 0, End: 2, Label: "X"}}}, 0)
	assert.Error(t, err)
}
