// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package classifier

import (
	"context"

	"github.com/DataDog/galahad/pkg/annotations"
)

// passthroughModel only records that training happened.
type passthroughModel struct {
	Documents int
}

// Passthrough is a trivial classifier used by tests and demos: training
// stores a marker artifact and prediction returns the input unchanged once
// that artifact exists.
type Passthrough struct {
	modelStoreHolder
}

// NewPassthrough returns a passthrough classifier.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Train implements Classifier.
func (c *Passthrough) Train(_ context.Context, modelID string, documents []annotations.Document) error {
	return c.store.Save(modelID, passthroughModel{Documents: len(documents)})
}

// Predict implements Classifier.
func (c *Passthrough) Predict(_ context.Context, modelID string, document annotations.Document) (annotations.Document, error) {
	var model passthroughModel
	if err := c.store.Load(modelID, &model); err != nil {
		return annotations.Document{}, err
	}
	return document, nil
}

// Consumes implements Classifier.
func (c *Passthrough) Consumes() []string {
	return nil
}

// Produces implements Classifier.
func (c *Passthrough) Produces() []string {
	return nil
}
