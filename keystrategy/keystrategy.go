// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keystrategy implements the named, rotating secret-key providers
// DataSealer depends on: a Fixed strategy for tests, a Keystore-backed
// strategy that reloads a passphrase-protected container on an interval,
// and a Scripted strategy that re-evaluates a user-supplied callback
// against a DDF custom object.
package keystrategy

import (
	"strings"

	"sealcore.io/errors"
)

// Label identifies a key version within a strategy: a printable string
// with no whitespace and no colon.
type Label string

// Valid reports whether l is well-formed: non-empty, printable, and free
// of whitespace and ':'.
func (l Label) Valid() bool {
	if l == "" {
		return false
	}
	for _, r := range string(l) {
		if r < 0x21 || r > 0x7e || r == ':' {
			return false
		}
	}
	return true
}

// KeyStrategy is a named secret-key provider with rotation. Implementations
// must be safe for concurrent readers; an internal update must never let a
// reader observe a partially updated (label, key) pair.
type KeyStrategy interface {
	// DefaultKey returns the strategy's current default label and key.
	DefaultKey() (Label, []byte, error)

	// Key returns the key registered under label. It returns a
	// KeyNotFound-kind error if label is not (or no longer) known.
	Key(label Label) ([]byte, error)
}

// Destroyer is implemented by KeyStrategy variants that own background
// resources (a reload goroutine) needing deterministic shutdown.
type Destroyer interface {
	Destroy()
}

func keyNotFound(op errors.Op, label Label) error {
	return errors.E("keystrategy", op, errors.KeyNotFound,
		errors.Str("no key registered under label "+string(label)))
}

func keyUnavailable(op errors.Op, reason string) error {
	return errors.E("keystrategy", op, errors.KeyUnavailable, errors.Str(reason))
}

// validateLabel is a small constraint check shared by the variants that
// accept caller-supplied labels (Fixed, and the Scripted callback result).
func validateLabel(op errors.Op, l Label) error {
	if !l.Valid() {
		return errors.E("keystrategy", op, errors.ConstraintViolation,
			errors.Str("invalid label "+strings.TrimSpace(string(l))))
	}
	return nil
}
