// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package idgen provides the small identifier-generator variants the core
// uses to produce a self-test probe label: a Fixed generator for
// deterministic tests, and a Random one built on the same pronounceable
// proquint encoding the teacher repo uses for its own generated key names.
package idgen

import "sealcore.io/errors"

// IdentifierGenerator produces printable, whitespace-free identifiers
// suitable for use as a KeyStrategy label.
type IdentifierGenerator interface {
	NextID() (string, error)
}

// Fixed always returns the same identifier. Useful in tests where a
// deterministic label is required.
type Fixed struct {
	ID string
}

var _ IdentifierGenerator = Fixed{}

// NextID returns the fixed identifier.
func (f Fixed) NextID() (string, error) {
	if f.ID == "" {
		return "", errors.E("idgen", errors.Op("Fixed.NextID"), errors.ConstraintViolation,
			errors.Str("fixed identifier must not be empty"))
	}
	return f.ID, nil
}
