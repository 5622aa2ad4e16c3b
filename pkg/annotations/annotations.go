// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package annotations contains the annotated document model of the
// recommender: documents are a text plus typed layers of spans, and the
// Index provides ordered insertion and range queries over those layers.
package annotations

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/DataDog/galahad/pkg/paths"
)

// Well-known type and feature names recognized by the format helpers and
// the bundled classifiers. They are conventions, not schema constraints.
const (
	TypeToken      = "t.token"
	TypeSentence   = "t.sentence"
	TypeAnnotation = "t.annotation"

	FeatureValue = "f.value"
)

// Span is a [begin, end) range into a document's text with an optional
// feature map. Offsets count code points, not bytes, so they mean the
// same thing to every client regardless of encoding. Zero-length spans
// are legal.
type Span struct {
	Begin    int            `json:"begin"`
	End      int            `json:"end"`
	Features map[string]any `json:"features,omitempty"`
}

// StringFeature returns the feature stored under name if it is a string.
func (s Span) StringFeature(name string) (string, bool) {
	v, ok := s.Features[name].(string)
	return v, ok
}

// Document is the wire representation of an annotated document.
// Offsets in every layer index into Text.
type Document struct {
	Text        string            `json:"text"`
	Annotations map[string][]Span `json:"annotations"`
	Version     int               `json:"version"`
}

// Validate checks that every span is inside the document text and that
// every type name is a valid identifier path. The text length is counted
// in code points, like span offsets.
func (d *Document) Validate() error {
	length := utf8.RuneCountInString(d.Text)
	for typeName, layer := range d.Annotations {
		if err := paths.ValidateIdentifier(typeName); err != nil {
			return fmt.Errorf("type name [%s]: %w", typeName, err)
		}
		for _, span := range layer {
			if span.Begin < 0 || span.Begin > span.End || span.End > length {
				return fmt.Errorf("span [%d, %d) of type [%s] outside of text of length %d",
					span.Begin, span.End, typeName, length)
			}
		}
	}
	return nil
}

// Index is a per-document in-memory store over typed spans. Each layer is
// kept sorted by (begin, end) so that range queries can binary search.
// The text is kept as runes so span offsets address code points.
type Index struct {
	text   string
	runes  []rune
	layers map[string][]Span
}

// NewIndex returns an empty index over the given text.
func NewIndex(text string) *Index {
	return &Index{
		text:   text,
		runes:  []rune(text),
		layers: make(map[string][]Span),
	}
}

// FromDocument builds an index holding all spans of the document,
// sorting each layer into canonical order.
func FromDocument(doc Document) *Index {
	index := NewIndex(doc.Text)
	for typeName, layer := range doc.Annotations {
		spans := make([]Span, len(layer))
		copy(spans, layer)
		sortLayer(spans)
		index.layers[typeName] = spans
	}
	return index
}

// Text returns the document text the index was built over.
func (i *Index) Text() string {
	return i.text
}

// Create inserts a new span into the layer of typeName, keeping the layer
// sorted, and returns it. A nil feature map stays nil on the wire.
func (i *Index) Create(typeName string, begin int, end int, features map[string]any) Span {
	span := Span{Begin: begin, End: end, Features: features}
	layer := i.layers[typeName]
	pos := sort.Search(len(layer), func(k int) bool {
		return !less(layer[k], span)
	})
	layer = append(layer, Span{})
	copy(layer[pos+1:], layer[pos:])
	layer[pos] = span
	i.layers[typeName] = layer
	return span
}

// Select returns the layer of typeName in canonical order. Unknown types
// yield an empty layer. The returned slice must not be mutated.
func (i *Index) Select(typeName string) []Span {
	return i.layers[typeName]
}

// SelectCovered returns all spans of typeName fully contained in cover,
// in canonical order. Spans that merely overlap cover are excluded.
//
// Two binary searches isolate the candidate window [cover.Begin, cover.End];
// both bounds are inclusive so spans starting at cover.Begin or ending at
// cover.End are never missed.
func (i *Index) SelectCovered(typeName string, cover Span) []Span {
	layer := i.layers[typeName]

	// First span with (begin, end) >= (cover.Begin, cover.Begin).
	lo := sort.Search(len(layer), func(k int) bool {
		return layer[k].Begin > cover.Begin ||
			(layer[k].Begin == cover.Begin && layer[k].End >= cover.Begin)
	})
	// First span with (begin, end) > (cover.End, cover.End).
	hi := sort.Search(len(layer), func(k int) bool {
		return layer[k].Begin > cover.End ||
			(layer[k].Begin == cover.End && layer[k].End > cover.End)
	})

	var covered []Span
	for _, span := range layer[lo:hi] {
		if span.Begin >= cover.Begin && span.End <= cover.End {
			covered = append(covered, span)
		}
	}
	return covered
}

// CoveredText returns the substring of the document text under span,
// slicing by code point.
func (i *Index) CoveredText(span Span) string {
	return string(i.runes[span.Begin:span.End])
}

// Document serializes the index back into a wire document. Layers keep
// their canonical order; this is the inverse of FromDocument.
func (i *Index) Document(version int) Document {
	layers := make(map[string][]Span, len(i.layers))
	for typeName, layer := range i.layers {
		spans := make([]Span, len(layer))
		copy(spans, layer)
		layers[typeName] = spans
	}
	return Document{
		Text:        i.text,
		Annotations: layers,
		Version:     version,
	}
}

func sortLayer(spans []Span) {
	sort.SliceStable(spans, func(a, b int) bool {
		return less(spans[a], spans[b])
	})
}

func less(a Span, b Span) bool {
	if a.Begin != b.Begin {
		return a.Begin < b.Begin
	}
	return a.End < b.End
}
