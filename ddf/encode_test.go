package ddf

import (
	"bytes"
	"math/rand"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestEncodeByte0x80(t *testing.T) {
	got := EncodeBytes([]byte{0x80})
	if got != "%80" {
		t.Fatalf("got %q, want %%80", got)
	}
}

func TestEncodeYinYangPlusVariationSelector(t *testing.T) {
	// U+262F YIN YANG followed by U+FE0F VARIATION SELECTOR-16, as UTF-8.
	yinYang := []byte{0xE2, 0x98, 0xAF}
	variationSelector := []byte{0xEF, 0xB8, 0x8F}
	input := append(append([]byte{}, yinYang...), variationSelector...)

	got := EncodeBytes(input)
	want := "%E2%98%AF%EF%B8%8F"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeDecodeInverseForEveryByte(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := []byte{byte(i)}
		enc := EncodeBytes(b)
		for _, c := range []byte(enc) {
			if c > 127 {
				t.Fatalf("encoded form must be pure ASCII, got byte %d for input %d", c, i)
			}
		}
		dec, err := DecodeBytes(enc)
		if err != nil {
			t.Fatalf("decode of %q failed: %v", enc, err)
		}
		if !bytes.Equal(dec, b) {
			t.Fatalf("round-trip mismatch for byte %d: got %v", i, dec)
		}
	}
}

func TestEncodeDecodeInverseRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := r.Intn(64)
		b := make([]byte, n)
		r.Read(b)
		enc := EncodeBytes(b)
		dec, err := DecodeBytes(enc)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !bytes.Equal(dec, b) {
			t.Fatalf("round-trip mismatch for %v: got %v", b, dec)
		}
	}
}

// TestEncodeUnsafeStringFromISO88591 builds a non-UTF-8 fixture the
// conventional way, via x/text's charmap decoder, and confirms the
// percent-encoding round-trips it byte-for-byte even though it is not
// valid UTF-8 (the StringUnsafe case on the wire).
func TestEncodeUnsafeStringFromISO88591(t *testing.T) {
	// Encode U+0080, U+00A9 (copyright sign), U+00FF (y-diaeresis) as raw
	// Latin-1 bytes to get a deliberately non-UTF-8 byte string fixture.
	codepoints := string([]rune{0x80, 0xA9, 0xFF})
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(codepoints))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	enc := EncodeBytes(latin1)
	for _, c := range []byte(enc) {
		if c > 127 {
			t.Fatalf("encoded form must be pure ASCII, got byte %d", c)
		}
	}
	dec, err := DecodeBytes(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(dec, latin1) {
		t.Fatalf("round-trip mismatch: got %v, want %v", dec, latin1)
	}
}

func TestEncodeLeavesSafeCharsAlone(t *testing.T) {
	safe := "abcXYZ012-_.~"
	if got := EncodeBytes([]byte(safe)); got != safe {
		t.Fatalf("expected safe bytes untouched, got %q", got)
	}
}
