// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resource defines the abstraction the core depends on to read the
// keystore blob, a key-version record, or a script source: anything with
// readable bytes, an optional last-modified time used to gate reloads, and
// a diagnostic description. It deliberately says nothing about where the
// bytes live (local file, embedded constant, remote fetch); those are
// concerns for a caller to wire in, out of scope for this package.
package resource

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"sealcore.io/errors"
)

// Resource is the read-only byte source the core depends on.
type Resource interface {
	// OpenRead returns a stream of the resource's current content. The
	// caller must Close it.
	OpenRead() (io.ReadCloser, error)

	// LastModified returns the resource's modification time, if known.
	// The reload drivers use this to skip redundant reloads.
	LastModified() (time.Time, bool)

	// Description names the resource for diagnostics.
	Description() string
}

// File is a Resource backed by a local file path.
type File struct {
	Path string
}

var _ Resource = File{}

// OpenRead opens the file for reading.
func (f File) OpenRead() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, errors.E("resource", errors.Op("File.OpenRead"), errors.KeyUnavailable, err)
	}
	return file, nil
}

// LastModified returns the file's mtime.
func (f File) LastModified() (time.Time, bool) {
	st, err := os.Stat(f.Path)
	if err != nil {
		return time.Time{}, false
	}
	return st.ModTime(), true
}

// Description returns the file path.
func (f File) Description() string {
	return f.Path
}

// Static is an in-memory Resource, useful for tests and for embedding a
// fixed keystore or script compiled into the binary.
type Static struct {
	Content  []byte
	Modified time.Time
	Name     string
}

var _ Resource = (*Static)(nil)

// OpenRead returns a reader over Content.
func (s *Static) OpenRead() (io.ReadCloser, error) {
	return ioutil.NopCloser(bytes.NewReader(s.Content)), nil
}

// LastModified returns Modified. It is always "known": a Static resource
// with a zero Modified still reports ok=true, since the caller set it
// explicitly (possibly to the zero value on purpose).
func (s *Static) LastModified() (time.Time, bool) {
	return s.Modified, true
}

// Description returns Name, or "static resource" if unset.
func (s *Static) Description() string {
	if s.Name == "" {
		return "static resource"
	}
	return s.Name
}

// Touch advances Modified to a later time and replaces Content, simulating
// an external update for reload tests.
func (s *Static) Touch(content []byte, at time.Time) {
	s.Content = content
	s.Modified = at
}

// ReadAll reads r's entire content.
func ReadAll(r Resource) ([]byte, error) {
	rc, err := r.OpenRead()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ioutil.ReadAll(rc)
}

// ReadVersion reads a key-version record: a plain-text resource whose
// content is the decimal integer N, optionally surrounded by whitespace.
func ReadVersion(r Resource) (int, error) {
	b, err := ReadAll(r)
	if err != nil {
		return 0, errors.E("resource", errors.Op("ReadVersion"), errors.KeyUnavailable, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, errors.E("resource", errors.Op("ReadVersion"), errors.ComponentInitError,
			errors.Str("key version record is not a decimal integer: "+err.Error()))
	}
	return n, nil
}
