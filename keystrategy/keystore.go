package keystrategy

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"sealcore.io/errors"
	"sealcore.io/resource"
)

// keystore holds the decrypted contents of a passphrase-protected
// keystore resource: a flat alias -> secret-key mapping. The on-wire
// container format is this package's own design (the source material only
// specifies "a passphrase-protected container of named secret keys",
// without naming a concrete format): one line per entry of
//
//	alias salt_b64 nonce_b64 ciphertext_b64
//
// where ciphertext is AES-GCM(scrypt(password, salt), nonce, secret, aad=alias).
type keystore map[string][]byte

const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

func deriveKeystoreKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// loadKeystore reads and decrypts every entry in the keystore resource
// using password.
func loadKeystore(r resource.Resource, password string) (keystore, error) {
	const op = errors.Op("loadKeystore")
	raw, err := resource.ReadAll(r)
	if err != nil {
		return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
	}

	ks := keystore{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable,
				errors.Str("malformed keystore entry: "+line))
		}
		alias, saltB64, nonceB64, ctB64 := fields[0], fields[1], fields[2], fields[3]
		salt, err := base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		nonce, err := base64.StdEncoding.DecodeString(nonceB64)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		ct, err := base64.StdEncoding.DecodeString(ctB64)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		derived, err := deriveKeystoreKey(password, salt)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		block, err := aes.NewCipher(derived)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
		}
		secret, err := gcm.Open(nil, nonce, ct, []byte(alias))
		if err != nil {
			return nil, errors.E("keystrategy", op, errors.KeyUnavailable,
				errors.Str("keystore entry "+alias+" failed to decrypt: wrong password or corrupt container"))
		}
		ks[alias] = secret
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E("keystrategy", op, errors.KeyUnavailable, err)
	}
	return ks, nil
}

// BuildKeystoreEntry encrypts secret under an alias-bound AES-GCM key
// derived from password, in the wire format loadKeystore expects. It is
// exported for tooling and tests that need to construct a keystore
// resource (cmd/sealctl, and the keystrategy test fixtures).
func BuildKeystoreEntry(password, alias string, secret []byte) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	derived, err := deriveKeystoreKey(password, salt)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := gcm.Seal(nil, nonce, secret, []byte(alias))
	return fmt.Sprintf("%s %s %s %s",
		alias,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ct),
	), nil
}
