// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package annotations

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// LabeledSpan addresses a labeled range of tokens inside one sentence,
// [Begin, End) in token positions.
type LabeledSpan struct {
	Begin int
	End   int
	Label string
}

// BuildSentenceClassificationDocument builds a document from parallel lists
// of sentences and labels. Sentences are joined with single spaces; each
// sentence gets a t.sentence span and a t.annotation span carrying its
// label in f.value.
func BuildSentenceClassificationDocument(sentences []string, labels []string, version int) (Document, error) {
	if len(sentences) != len(labels) {
		return Document{}, fmt.Errorf("got %d sentences but %d labels", len(sentences), len(labels))
	}

	text := joinSpaced(sentences)
	index := NewIndex(text)

	begin := 0
	for k, sentence := range sentences {
		end := begin + utf8.RuneCountInString(sentence)
		index.Create(TypeSentence, begin, end, nil)
		index.Create(TypeAnnotation, begin, end, map[string]any{FeatureValue: labels[k]})
		begin = end + 1
	}

	return index.Document(version), nil
}

// BuildSpanClassificationDocument builds a document from tokenized
// sentences plus optional labeled token spans. All tokens are joined with
// single spaces; every token gets a t.token span and every labeled span a
// t.annotation span carrying its label in f.value.
func BuildSpanClassificationDocument(sentences [][]string, spans [][]LabeledSpan, version int) (Document, error) {
	if spans != nil && len(spans) != len(sentences) {
		return Document{}, fmt.Errorf("got %d sentences but %d span lists", len(sentences), len(spans))
	}

	type position struct {
		sentence int
		token    int
	}
	begins := make(map[position]int)
	ends := make(map[position]int)

	var all []string
	for _, sentence := range sentences {
		all = append(all, sentence...)
	}
	index := NewIndex(joinSpaced(all))

	begin := 0
	for sentenceIdx, sentence := range sentences {
		for tokenIdx, token := range sentence {
			end := begin + utf8.RuneCountInString(token)
			begins[position{sentenceIdx, tokenIdx}] = begin
			ends[position{sentenceIdx, tokenIdx}] = end
			index.Create(TypeToken, begin, end, nil)
			begin = end + 1
		}
	}

	for sentenceIdx, sentenceSpans := range spans {
		for _, span := range sentenceSpans {
			begin, ok := begins[position{sentenceIdx, span.Begin}]
			if !ok {
				return Document{}, fmt.Errorf("span begin %d outside of sentence %d", span.Begin, sentenceIdx)
			}
			end, ok := ends[position{sentenceIdx, span.End - 1}]
			if !ok {
				return Document{}, fmt.Errorf("span end %d outside of sentence %d", span.End, sentenceIdx)
			}
			index.Create(TypeAnnotation, begin, end, map[string]any{FeatureValue: span.Label})
		}
	}

	return index.Document(version), nil
}

func joinSpaced(parts []string) string {
	return strings.Join(parts, " ")
}
