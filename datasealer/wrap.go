package datasealer

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"sealcore.io/errors"
)

// Wrap seals data under the strategy's current default key, returning the
// ASCII-encoded blob. expiryMillis is a Unix millisecond timestamp, or 0
// for "never expires".
func (d *DataSealer) Wrap(data string, expiryMillis int64) (string, error) {
	const op = errors.Op("DataSealer.Wrap")
	if err := d.guard.RequireInitialized("datasealer", op); err != nil {
		return "", err
	}
	if data == "" {
		return "", errors.E("datasealer", op, errors.ConstraintViolation,
			errors.Str("data must not be empty"))
	}

	label, key, err := d.strategy.DefaultKey()
	if err != nil {
		return "", errors.E("datasealer", op, errors.DataSealerFailure, err)
	}

	plaintext, err := buildPlaintext(data, expiryMillis)
	if err != nil {
		return "", errors.E("datasealer", op, errors.DataSealerFailure, err)
	}

	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(d.random, iv); err != nil {
		return "", errors.E("datasealer", op, errors.DataSealerFailure, err)
	}

	ciphertext, err := sealAESGCM(key, iv, plaintext, []byte(label))
	if err != nil {
		return "", errors.E("datasealer", op, errors.DataSealerFailure, err)
	}

	labelBytes := []byte(label)
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, uint16(len(labelBytes))); err != nil {
		return "", errors.E("datasealer", op, errors.DataSealerFailure, err)
	}
	buf.Write(labelBytes)
	buf.Write(iv)
	buf.Write(ciphertext)

	return d.encode(buf.Bytes()), nil
}

// buildPlaintext produces the gzip-compressed frame GCM operates on:
// an 8-byte big-endian expiration followed by length-prefixed UTF-8 chunks
// of data, at most maxChunkBytes each.
func buildPlaintext(data string, expiryMillis int64) ([]byte, error) {
	var raw bytes.Buffer
	var expBuf [8]byte
	binary.BigEndian.PutUint64(expBuf[:], uint64(expiryMillis))
	raw.Write(expBuf[:])

	b := []byte(data)
	for len(b) > 0 {
		n := len(b)
		if n > maxChunkBytes {
			n = maxChunkBytes
			// Back off to the start of a rune so a multi-byte UTF-8
			// character is never split across two chunks.
			for n > 0 && !utf8.RuneStart(b[n]) {
				n--
			}
		}
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(n))
		raw.Write(lenBuf[:])
		raw.Write(b[:n])
		b = b[n:]
	}

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

func sealAESGCM(key, iv, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, aad), nil
}
