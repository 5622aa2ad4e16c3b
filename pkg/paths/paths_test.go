// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{
		"dataset1",
		"test_dataset",
		"doc.with.dots",
		"a",
		"0",
		"model_23",
		"t.named_entity",
	}
	for _, id := range valid {
		assert.NoError(t, ValidateIdentifier(id), "identifier %q should be valid", id)
	}

	invalid := []string{
		"",
		".",
		"..",
		"../escape",
		"a..b",
		".hidden",
		"trailing.",
		"with space",
		"with/slash",
		"with\\backslash",
		"dash-ed",
		"ütf8",
	}
	for _, id := range invalid {
		err := ValidateIdentifier(id)
		require.Error(t, err, "identifier %q should be invalid", id)
		assert.ErrorIs(t, err, ErrInvalidName)
	}
}

func TestIsSubpath(t *testing.T) {
	root := t.TempDir()

	ok, err := IsSubpath(root, filepath.Join(root, "datasets", "ds1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsSubpath(root, filepath.Join(root, "..", "outside"))
	require.NoError(t, err)
	assert.False(t, ok)

	// The root itself is not a strict child.
	ok, err = IsSubpath(root, root)
	require.NoError(t, err)
	assert.False(t, ok)

	// A sibling sharing the root as a name prefix must not pass.
	ok, err = IsSubpath(root, root+"_sibling")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoin(t *testing.T) {
	root := t.TempDir()

	path, err := Join(root, "datasets", "ds1", "doc1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "datasets", "ds1", "doc1"), path)

	_, err = Join(root, "datasets", "..")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Join(root, "datasets", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
}
