package keystrategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealcore.io/ddf"
	"sealcore.io/errors"
	"sealcore.io/resource"
)

func key32(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestFixedAlwaysReturnsSameKey(t *testing.T) {
	f, err := NewFixed("v1", key32(0x11))
	require.NoError(t, err)

	label, key, err := f.DefaultKey()
	require.NoError(t, err)
	assert.Equal(t, Label("v1"), label)
	assert.Equal(t, key32(0x11), key)

	key, err = f.Key("anything-else")
	require.NoError(t, err)
	assert.Equal(t, key32(0x11), key)
}

func TestFixedRejectsInvalidLabelOrEmptyKey(t *testing.T) {
	_, err := NewFixed("has space", key32(1))
	assert.Error(t, err)

	_, err = NewFixed("v1", nil)
	assert.Error(t, err)
}

func buildKeystore(t *testing.T, password string, entries map[string][]byte) string {
	t.Helper()
	var lines string
	for alias, secret := range entries {
		line, err := BuildKeystoreEntry(password, alias, secret)
		require.NoError(t, err)
		lines += line + "\n"
	}
	return lines
}

func TestKeystoreStrategyDefaultAndKeyLookup(t *testing.T) {
	password := "correct horse battery staple"
	keyA := key32(0xaa)
	keyB := key32(0xbb)
	blob := buildKeystore(t, password, map[string][]byte{
		"key-1": keyA,
		"key-2": keyB,
	})

	ksResource := &resource.Static{Content: []byte(blob), Name: "keystore"}
	versionResource := &resource.Static{Content: []byte("1"), Name: "version"}

	s, err := New(
		WithKeystoreResource(ksResource),
		WithKeyVersionResource(versionResource),
		WithKeystorePassword(password),
		WithKeyAlias("key-"),
		WithFailFast(true),
		WithUpdateInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	defer s.Destroy()

	label, key, err := s.DefaultKey()
	require.NoError(t, err)
	assert.Equal(t, Label("key-1"), label)
	assert.Equal(t, keyA, key)

	key, err = s.Key("key-2")
	require.NoError(t, err)
	assert.Equal(t, keyB, key)

	_, err = s.Key("key-999")
	assert.True(t, errors.Is(errors.KeyNotFound, err))
}

func TestKeystoreStrategyRotationRetainsOldVersion(t *testing.T) {
	password := "rotation test password"
	keyV1 := key32(0x01)
	keyV2 := key32(0x02)
	blobV1 := buildKeystore(t, password, map[string][]byte{"key-1": keyV1})

	ksResource := &resource.Static{Content: []byte(blobV1), Name: "keystore"}
	versionResource := &resource.Static{Content: []byte("1"), Name: "version", Modified: time.Now()}

	s, err := New(
		WithKeystoreResource(ksResource),
		WithKeyVersionResource(versionResource),
		WithKeystorePassword(password),
		WithKeyAlias("key-"),
		WithFailFast(true),
		WithUpdateInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	defer s.Destroy()

	label, _, err := s.DefaultKey()
	require.NoError(t, err)
	assert.Equal(t, Label("key-1"), label)

	blobV2 := buildKeystore(t, password, map[string][]byte{
		"key-1": keyV1,
		"key-2": keyV2,
	})
	ksResource.Touch([]byte(blobV2), time.Now())
	versionResource.Touch([]byte("2"), time.Now().Add(time.Second))

	require.Eventually(t, func() bool {
		label, _, err := s.DefaultKey()
		return err == nil && label == Label("key-2")
	}, time.Second, 5*time.Millisecond)

	// key-1 must still resolve: rotation never evicts a previously seen label.
	key, err := s.Key("key-1")
	require.NoError(t, err)
	assert.Equal(t, keyV1, key)
}

func TestKeystoreStrategyFailFastOnBadPassword(t *testing.T) {
	blob := buildKeystore(t, "right-password", map[string][]byte{"key-1": key32(3)})
	ksResource := &resource.Static{Content: []byte(blob), Name: "keystore"}
	versionResource := &resource.Static{Content: []byte("1"), Name: "version"}

	_, err := New(
		WithKeystoreResource(ksResource),
		WithKeyVersionResource(versionResource),
		WithKeystorePassword("wrong-password"),
		WithKeyAlias("key-"),
		WithFailFast(true),
	)
	assert.Error(t, err)
}

func TestKeystoreStrategyNonFailFastSurvivesBadInitialLoad(t *testing.T) {
	ksResource := &resource.Static{Content: []byte("garbage, not a keystore"), Name: "keystore"}
	versionResource := &resource.Static{Content: []byte("1"), Name: "version"}

	s, err := New(
		WithKeystoreResource(ksResource),
		WithKeyVersionResource(versionResource),
		WithKeystorePassword("whatever"),
		WithFailFast(false),
		WithUpdateInterval(time.Hour),
	)
	require.NoError(t, err)
	defer s.Destroy()

	_, _, err = s.DefaultKey()
	assert.True(t, errors.Is(errors.KeyUnavailable, err))
}

func TestKeystoreStrategyDestroyIsIdempotent(t *testing.T) {
	blob := buildKeystore(t, "pw", map[string][]byte{"key-1": key32(4)})
	s, err := New(
		WithKeystoreResource(&resource.Static{Content: []byte(blob)}),
		WithKeyVersionResource(&resource.Static{Content: []byte("1")}),
		WithKeystorePassword("pw"),
		WithFailFast(true),
	)
	require.NoError(t, err)
	s.Destroy()
	s.Destroy()
}

func TestScriptedStrategyEvaluatesAndRotates(t *testing.T) {
	version := 1
	script := func(custom *ddf.Node) (ScriptResult, error) {
		if version == 1 {
			return ScriptResult{
				defaultScriptLabel: key32(0x10),
				"v1":               key32(0x10),
			}, nil
		}
		return ScriptResult{
			defaultScriptLabel: key32(0x20),
			"v1":               key32(0x10),
			"v2":               key32(0x20),
		}, nil
	}

	custom := ddf.New()
	custom.MakeStruct()

	s, err := NewScripted(
		WithScript(script),
		WithCustomObject(custom),
		WithScriptFailFast(true),
		WithScriptUpdateInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	defer s.Destroy()

	_, key, err := s.DefaultKey()
	require.NoError(t, err)
	assert.Equal(t, key32(0x10), key)

	version = 2
	require.Eventually(t, func() bool {
		_, key, err := s.DefaultKey()
		return err == nil && string(key) == string(key32(0x20))
	}, time.Second, 5*time.Millisecond)

	key, err = s.Key("v1")
	require.NoError(t, err)
	assert.Equal(t, key32(0x10), key)
}

func TestScriptedStrategyStretchesShortSecrets(t *testing.T) {
	short := []byte("short-secret")
	script := func(custom *ddf.Node) (ScriptResult, error) {
		return ScriptResult{defaultScriptLabel: short}, nil
	}

	s, err := NewScripted(
		WithScript(script),
		WithScriptFailFast(true),
	)
	require.NoError(t, err)
	defer s.Destroy()

	_, key, err := s.DefaultKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.NotEqual(t, short, key)
}

func TestScriptedStrategyRejectsMissingDefaultLabel(t *testing.T) {
	script := func(custom *ddf.Node) (ScriptResult, error) {
		return ScriptResult{"v1": key32(1)}, nil
	}
	_, err := NewScripted(WithScript(script), WithScriptFailFast(true))
	assert.Error(t, err)
}
