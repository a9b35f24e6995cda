package keystrategy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"sealcore.io/errors"
)

// selfTestPlaintext is the fixed plaintext used by selfTest's round-trip
// encrypt/decrypt probe.
var selfTestPlaintext = []byte("sealcore keystrategy self-test probe")

// selfTest performs a round-trip AES-GCM encrypt/decrypt of a fixed
// plaintext under key, confirming the key is usable before a reloadable
// strategy is handed to a DataSealer. Both reloadable strategies call this
// from doReload, on the initial load in New/NewScripted and on every later
// reload; WithLockedAtStartup/WithScriptLockedAtStartup skip the initial
// load and with it the startup self-test.
func selfTest(key []byte) error {
	const op = errors.Op("selfTest")
	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.E("keystrategy", op, errors.ComponentInitError, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errors.E("keystrategy", op, errors.ComponentInitError, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.E("keystrategy", op, errors.ComponentInitError, err)
	}
	ct := gcm.Seal(nil, nonce, selfTestPlaintext, nil)
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return errors.E("keystrategy", op, errors.ComponentInitError, err)
	}
	if string(pt) != string(selfTestPlaintext) {
		return errors.E("keystrategy", op, errors.ComponentInitError,
			errors.Str("self-test round-trip mismatch"))
	}
	return nil
}
