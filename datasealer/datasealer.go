// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package datasealer implements authenticated, time-limited, key-rotating
// symmetric encryption of short strings into a portable ASCII blob: wrap
// seals a string under the current default key, unwrap verifies and opens
// it, failing closed once either its expiration has passed or its key has
// rotated out of the strategy that produced it.
package datasealer

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"sealcore.io/errors"
	"sealcore.io/keystrategy"
	"sealcore.io/lifecycle"
)

// ivLen is the AES-GCM nonce size used on the wire. AES-GCM's standard IV
// length is 12 bytes; the golden S1 scenario fixes it at 12 zero bytes, so
// this package does not follow a block-size-sized (16 byte) IV even though
// some AES implementations default to one.
const ivLen = 12

// maxChunkBytes bounds each length-prefixed plaintext chunk so its 16-bit
// length field never overflows.
const maxChunkBytes = 60000

// Encoder turns a sealed blob's raw bytes into its ASCII wire form.
type Encoder func([]byte) string

// Decoder is the inverse of Encoder.
type Decoder func(string) ([]byte, error)

func defaultEncoder(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func defaultDecoder(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// DataSealer seals and opens short strings under the key its KeyStrategy
// reports as current, rotating transparently as the strategy rotates.
type DataSealer struct {
	guard lifecycle.Guard

	strategy        keystrategy.KeyStrategy
	random          io.Reader
	encode          Encoder
	decode          Decoder
	lockedAtStartup bool
}

// Option configures a DataSealer at construction time.
type Option func(*DataSealer)

// WithKeyStrategy sets the KeyStrategy the sealer draws keys from.
// Required.
func WithKeyStrategy(s keystrategy.KeyStrategy) Option {
	return func(d *DataSealer) { d.strategy = s }
}

// WithRandom overrides the IV source. Defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(d *DataSealer) { d.random = r }
}

// WithEncoder overrides the byte->ASCII codec used by Wrap. Defaults to
// unchunked standard base64.
func WithEncoder(e Encoder) Option {
	return func(d *DataSealer) { d.encode = e }
}

// WithDecoder overrides the ASCII->byte codec used by Unwrap. Must match
// whatever Encoder produced the blobs this sealer will open.
func WithDecoder(dec Decoder) Option {
	return func(d *DataSealer) { d.decode = dec }
}

// WithLockedAtStartup skips the initial round-trip self-test, for when the
// key source is expected to be unavailable at boot.
func WithLockedAtStartup(locked bool) Option {
	return func(d *DataSealer) { d.lockedAtStartup = locked }
}

// New constructs a DataSealer. Unless WithLockedAtStartup was set, it
// performs a round-trip self-test against the strategy's default key
// before returning.
func New(opts ...Option) (*DataSealer, error) {
	const op = errors.Op("datasealer.New")
	d := &DataSealer{
		random: rand.Reader,
		encode: defaultEncoder,
		decode: defaultDecoder,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.strategy == nil {
		return nil, errors.E("datasealer", op, errors.ConstraintViolation,
			errors.Str("a key strategy is required"))
	}

	if err := d.guard.Initialize("datasealer", op); err != nil {
		return nil, err
	}

	if !d.lockedAtStartup {
		if err := d.selfTest(); err != nil {
			return nil, errors.E("datasealer", op, errors.ComponentInitError, err)
		}
	}

	return d, nil
}

// selfTest seals and opens a fixed plaintext under the strategy's current
// default key, confirming the configuration is usable before INITIALIZED
// is reached.
func (d *DataSealer) selfTest() error {
	blob, err := d.Wrap("sealcore datasealer self-test probe", 0)
	if err != nil {
		return err
	}
	out, _, err := d.Unwrap(blob)
	if err != nil {
		return err
	}
	if out != "sealcore datasealer self-test probe" {
		return errors.Str("self-test round-trip mismatch")
	}
	return nil
}

// Destroy transitions the sealer to DESTROYED. It is idempotent; the
// sealer does not own a background task, since the reload loop belongs to
// its KeyStrategy.
func (d *DataSealer) Destroy() (transitioned bool) {
	return d.guard.Destroy()
}
