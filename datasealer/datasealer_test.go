package datasealer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealcore.io/errors"
	"sealcore.io/keystrategy"
)

// zeroReader is a deterministic RNG stand-in that always yields zero
// bytes, used to pin down the IV for golden-style tests (S1).
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func key32(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func newFixedSealer(t *testing.T, label keystrategy.Label, key []byte, opts ...Option) *DataSealer {
	t.Helper()
	strat, err := keystrategy.NewFixed(label, key)
	require.NoError(t, err)
	allOpts := append([]Option{WithKeyStrategy(strat)}, opts...)
	d, err := New(allOpts...)
	require.NoError(t, err)
	return d
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	defer d.Destroy()

	cases := []string{
		"THE DATA",
		"hello, world",
		"unicode: ☯️ snowman ☃",
		strings.Repeat("x", 5000),
	}
	for _, data := range cases {
		blob, err := d.Wrap(data, 0)
		require.NoError(t, err)
		out, label, err := d.Unwrap(blob)
		require.NoError(t, err)
		assert.Equal(t, data, out)
		assert.Equal(t, "secret1", label)
	}
}

func TestWrapRejectsEmptyData(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	defer d.Destroy()

	_, err := d.Wrap("", 0)
	assert.True(t, errors.Is(errors.ConstraintViolation, err))
}

func TestUnwrapRejectsEmptyBlob(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	defer d.Destroy()

	_, _, err := d.Unwrap("")
	assert.True(t, errors.Is(errors.DataSealerFailure, err))
}

// S1: a fixed zero key, zero IV, and the label "secret1" should produce the
// same blob every time, and unwrap it back to the original data and label.
func TestS1DeterministicWrap(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0), WithRandom(zeroReader{}))
	defer d.Destroy()

	blob1, err := d.Wrap("THE DATA", 0)
	require.NoError(t, err)
	blob2, err := d.Wrap("THE DATA", 0)
	require.NoError(t, err)
	assert.Equal(t, blob1, blob2, "identical inputs under a deterministic RNG must produce identical blobs")

	out, label, err := d.Unwrap(blob1)
	require.NoError(t, err)
	assert.Equal(t, "THE DATA", out)
	assert.Equal(t, "secret1", label)
}

// S2: an expiry 500ms in the future, after sleeping 650ms, must fail with
// DataExpired.
func TestS2Expiration(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0), WithRandom(zeroReader{}))
	defer d.Destroy()

	expiry := time.Now().Add(500 * time.Millisecond).UnixNano() / int64(time.Millisecond)
	blob, err := d.Wrap("THE DATA", expiry)
	require.NoError(t, err)

	time.Sleep(650 * time.Millisecond)

	_, _, err = d.Unwrap(blob)
	assert.True(t, errors.Is(errors.DataExpired, err))
}

func TestExpirationInPastFailsImmediately(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	defer d.Destroy()

	past := time.Now().Add(-time.Hour).UnixNano() / int64(time.Millisecond)
	blob, err := d.Wrap("THE DATA", past)
	require.NoError(t, err)

	_, _, err = d.Unwrap(blob)
	assert.True(t, errors.Is(errors.DataExpired, err))
}

// rotatingStrategy is a small two-generation KeyStrategy for the S3 scenario
// and the key-rotation property tests: unlike Fixed it can hold more than
// one label.
type rotatingStrategy struct {
	defaultLabel keystrategy.Label
	keys         map[keystrategy.Label][]byte
}

func (r *rotatingStrategy) DefaultKey() (keystrategy.Label, []byte, error) {
	return r.defaultLabel, r.keys[r.defaultLabel], nil
}

func (r *rotatingStrategy) Key(label keystrategy.Label) ([]byte, error) {
	k, ok := r.keys[label]
	if !ok {
		return nil, errors.E("test", errors.Op("rotatingStrategy.Key"), errors.KeyNotFound,
			errors.Str("no such label"))
	}
	return k, nil
}

// S3: a blob sealed by a strategy that only knows secret1 must still open
// under a strategy that knows both secret1 and secret2 (default secret2),
// reporting the original label.
func TestS3CrossStrategyRotationContinuity(t *testing.T) {
	s := &rotatingStrategy{
		defaultLabel: "secret1",
		keys:         map[keystrategy.Label][]byte{"secret1": key32(1)},
	}
	sPrime := &rotatingStrategy{
		defaultLabel: "secret2",
		keys: map[keystrategy.Label][]byte{
			"secret1": key32(1),
			"secret2": key32(2),
		},
	}

	dS, err := New(WithKeyStrategy(s))
	require.NoError(t, err)
	defer dS.Destroy()
	dSPrime, err := New(WithKeyStrategy(sPrime))
	require.NoError(t, err)
	defer dSPrime.Destroy()

	blob, err := dS.Wrap("cross-strategy payload", 0)
	require.NoError(t, err)

	out, label, err := dSPrime.Unwrap(blob)
	require.NoError(t, err)
	assert.Equal(t, "cross-strategy payload", out)
	assert.Equal(t, "secret1", label)
}

// S4: a one-million-character payload round-trips whole.
func TestS4LargePayloadRoundTrip(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	defer d.Destroy()

	data := strings.Repeat("x", 1_000_000)
	expiry := time.Now().Add(50 * time.Second).UnixNano() / int64(time.Millisecond)

	blob, err := d.Wrap(data, expiry)
	require.NoError(t, err)
	out, _, err := d.Unwrap(blob)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

// Property: key rotation continuity. An old blob still opens once the
// strategy has advanced past the version that sealed it, as long as it
// retains the old key.
func TestKeyRotationContinuity(t *testing.T) {
	s := &rotatingStrategy{
		defaultLabel: "v1",
		keys:         map[keystrategy.Label][]byte{"v1": key32(9)},
	}
	d, err := New(WithKeyStrategy(s))
	require.NoError(t, err)
	defer d.Destroy()

	blob, err := d.Wrap("payload", 0)
	require.NoError(t, err)

	s.defaultLabel = "v2"
	s.keys["v2"] = key32(10)

	out, label, err := d.Unwrap(blob)
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
	assert.Equal(t, "v1", label)
}

// Property: key rotation termination. Once a label is evicted entirely,
// unwrap of a blob sealed under it fails with DataExpired, not a generic
// failure.
func TestKeyRotationTermination(t *testing.T) {
	s := &rotatingStrategy{
		defaultLabel: "v1",
		keys:         map[keystrategy.Label][]byte{"v1": key32(9)},
	}
	d, err := New(WithKeyStrategy(s))
	require.NoError(t, err)
	defer d.Destroy()

	blob, err := d.Wrap("payload", 0)
	require.NoError(t, err)

	delete(s.keys, "v1")
	s.defaultLabel = "v2"
	s.keys["v2"] = key32(10)

	_, _, err = d.Unwrap(blob)
	assert.True(t, errors.Is(errors.DataExpired, err))
}

// Property: AAD binding. Flipping a byte within the label segment of a
// blob (without changing its length) must never decode successfully.
func TestAADBindingRejectsTamperedLabel(t *testing.T) {
	s := &rotatingStrategy{
		defaultLabel: "aaaaaaa",
		keys:         map[keystrategy.Label][]byte{"aaaaaaa": key32(5), "aaaaaab": key32(5)},
	}
	d, err := New(WithKeyStrategy(s))
	require.NoError(t, err)
	defer d.Destroy()

	blob, err := d.Wrap("payload", 0)
	require.NoError(t, err)

	raw, err := defaultDecoder(blob)
	require.NoError(t, err)
	// Byte 2 is the first byte of the label (bytes 0-1 are its length).
	raw[2] ^= 0x01
	tampered := defaultEncoder(raw)

	_, _, err = d.Unwrap(tampered)
	assert.Error(t, err)
	assert.True(t, errors.Is(errors.DataSealerFailure, err) || errors.Is(errors.DataExpired, err))
}

func TestDestroyIsIdempotentAndBlocksOperations(t *testing.T) {
	d := newFixedSealer(t, "secret1", key32(0))
	first := d.Destroy()
	second := d.Destroy()
	assert.True(t, first)
	assert.False(t, second)

	_, err := d.Wrap("payload", 0)
	assert.True(t, errors.Is(errors.ComponentInitError, err))
}

func TestNewRequiresKeyStrategy(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestLockedAtStartupSkipsSelfTest(t *testing.T) {
	// An unreachable key strategy would normally fail the startup
	// self-test; locked_at_startup lets construction succeed anyway.
	s := &rotatingStrategy{defaultLabel: "v1", keys: map[keystrategy.Label][]byte{}}
	d, err := New(WithKeyStrategy(s), WithLockedAtStartup(true))
	require.NoError(t, err)
	defer d.Destroy()
}
