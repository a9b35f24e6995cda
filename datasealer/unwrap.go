package datasealer

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io/ioutil"
	"time"

	"sealcore.io/errors"
	"sealcore.io/keystrategy"
)

// Unwrap verifies and opens a blob produced by Wrap, returning the
// original data and the label it was sealed under.
func (d *DataSealer) Unwrap(blob string) (data string, label string, err error) {
	const op = errors.Op("DataSealer.Unwrap")
	if guardErr := d.guard.RequireInitialized("datasealer", op); guardErr != nil {
		return "", "", guardErr
	}
	if blob == "" {
		return "", "", errors.E("datasealer", op, errors.DataSealerFailure,
			errors.Str("blob must not be empty"))
	}

	raw, decErr := d.decode(blob)
	if decErr != nil {
		return "", "", errors.E("datasealer", op, errors.DataSealerFailure, decErr)
	}

	if len(raw) < 2 {
		return "", "", errors.E("datasealer", op, errors.DataSealerFailure,
			errors.Str("blob too short to contain a label length"))
	}
	labelLen := int(binary.BigEndian.Uint16(raw[:2]))
	raw = raw[2:]
	if len(raw) < labelLen+ivLen {
		return "", "", errors.E("datasealer", op, errors.DataSealerFailure,
			errors.Str("blob too short to contain its label and IV"))
	}
	label = string(raw[:labelLen])
	raw = raw[labelLen:]
	iv := raw[:ivLen]
	ciphertext := raw[ivLen:]

	key, keyErr := d.strategy.Key(keystrategy.Label(label))
	if keyErr != nil {
		if errors.Is(errors.KeyNotFound, keyErr) {
			return "", label, errors.E("datasealer", op, errors.DataExpired, keyErr)
		}
		return "", label, errors.E("datasealer", op, errors.DataSealerFailure, keyErr)
	}

	plaintext, openErr := openAESGCM(key, iv, ciphertext, []byte(label))
	if openErr != nil {
		return "", label, errors.E("datasealer", op, errors.DataSealerFailure, openErr)
	}

	gz, gzErr := gzip.NewReader(bytes.NewReader(plaintext))
	if gzErr != nil {
		return "", label, errors.E("datasealer", op, errors.DataSealerFailure, gzErr)
	}
	inflated, readErr := ioutil.ReadAll(gz)
	if readErr != nil {
		return "", label, errors.E("datasealer", op, errors.DataSealerFailure, readErr)
	}

	if len(inflated) < 8 {
		return "", label, errors.E("datasealer", op, errors.DataSealerFailure,
			errors.Str("decompressed frame too short to contain an expiration"))
	}
	expiryMillis := int64(binary.BigEndian.Uint64(inflated[:8]))
	inflated = inflated[8:]
	if expiryMillis != 0 && time.Now().UnixNano()/int64(time.Millisecond) > expiryMillis {
		return "", label, errors.E("datasealer", op, errors.DataExpired,
			errors.Str("blob expired"))
	}

	var out bytes.Buffer
	for len(inflated) > 0 {
		if len(inflated) < 2 {
			return "", label, errors.E("datasealer", op, errors.DataSealerFailure,
				errors.Str("truncated chunk length"))
		}
		chunkLen := int(binary.BigEndian.Uint16(inflated[:2]))
		inflated = inflated[2:]
		if len(inflated) < chunkLen {
			return "", label, errors.E("datasealer", op, errors.DataSealerFailure,
				errors.Str("truncated chunk body"))
		}
		out.Write(inflated[:chunkLen])
		inflated = inflated[chunkLen:]
	}

	return out.String(), label, nil
}

func openAESGCM(key, iv, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, aad)
}
