// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package paths guards every filesystem path derived from client input.
//
// Dataset, document, classifier and model identifiers all have to match
// a strict regex before they are joined onto the data root, and the joined
// path is checked to still be contained in the data root. The regex forbids
// two consecutive dots and empty segments, so identifiers like ".." cannot
// escape the data directory.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidName is returned when an externally supplied identifier does not
// match the identifier regex.
var ErrInvalidName = errors.New("invalid name")

var identifierRegexp = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// ValidateIdentifier returns ErrInvalidName if id is not a valid dataset,
// document, classifier or model identifier.
func ValidateIdentifier(id string) error {
	if !identifierRegexp.MatchString(id) {
		return fmt.Errorf("%w: identifier [%s] does not match %s", ErrInvalidName, id, identifierRegexp)
	}
	return nil
}

// IsSubpath reports whether candidate resolves to a strict child of root.
// Both paths are made absolute and symlinks in root are resolved; candidate
// does not have to exist yet.
func IsSubpath(root string, candidate string) (bool, error) {
	resolvedRoot, err := canonicalize(root)
	if err != nil {
		return false, fmt.Errorf("could not canonicalize root: %w", err)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return false, fmt.Errorf("could not canonicalize candidate: %w", err)
	}
	absCandidate = filepath.Clean(absCandidate)
	if absCandidate == resolvedRoot {
		return false, nil
	}
	return strings.HasPrefix(absCandidate, resolvedRoot+string(filepath.Separator)), nil
}

// Join validates every id, joins it onto root and verifies containment.
// A failed containment check after successful identifier validation is a
// programmer error and is reported as a plain error, not ErrInvalidName.
func Join(root string, ids ...string) (string, error) {
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			return "", err
		}
	}
	path := filepath.Join(append([]string{root}, ids...)...)
	ok, err := IsSubpath(root, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("path [%s] escapes data root [%s]", path, root)
	}
	return path, nil
}

// canonicalize makes path absolute and resolves symlinks if it exists.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return resolved, nil
}
