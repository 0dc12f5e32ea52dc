package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestDeriveMasterKey_DeterministicPerSalt(t *testing.T) {
	password := []byte("secret-password")

	k1 := DeriveMasterKey(password, []byte("salt-1"))
	k2 := DeriveMasterKey(password, []byte("salt-1"))
	k3 := DeriveMasterKey(password, []byte("salt-2"))

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestVerifier(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))
	v := MakeVerifier(key)

	assert.True(t, CheckVerifier(v, key))
	assert.False(t, CheckVerifier(v, DeriveMasterKey([]byte("other"), []byte("salt"))))
}

func TestDeriveKey_SeparatesPurposes(t *testing.T) {
	master := DeriveMasterKey([]byte("pw"), []byte("salt"))

	a1, err := DeriveKey(master, "collection:Attributes")
	require.NoError(t, err)
	a2, err := DeriveKey(master, "collection:Attributes")
	require.NoError(t, err)
	r, err := DeriveKey(master, "collection:Relationships")
	require.NoError(t, err)

	assert.Len(t, a1, 32)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, r)
}

func TestEncryptDecryptEntry_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	in := sample{ID: "ATT1", Value: 42}

	ciphertext, nonce, err := EncryptEntry(in, key)
	require.NoError(t, err)
	assert.Len(t, nonce, 12)

	var out sample
	require.NoError(t, DecryptEntry(ciphertext, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestDecryptEntry_WrongKeyFails(t *testing.T) {
	key := make([]byte, 32)
	ciphertext, nonce, err := EncryptEntry(sample{ID: "x"}, key)
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 1
	var out sample
	assert.Error(t, DecryptEntry(ciphertext, nonce, other, &out))
}

func TestSealOpen(t *testing.T) {
	key := make([]byte, 32)

	blob, err := Seal(sample{ID: "SET1", Value: 7}, key)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Open(blob, key, &out))
	assert.Equal(t, sample{ID: "SET1", Value: 7}, out)

	assert.ErrorIs(t, Open([]byte{1, 2, 3}, key, &out), ErrCiphertextTooShort)
}

func TestEncryptContent_RoundTrip(t *testing.T) {
	enc, err := EncryptContent([]byte("file body"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("file body"), enc.Ciphertext)

	plain, err := DecryptContent(enc)
	require.NoError(t, err)
	assert.Equal(t, []byte("file body"), plain)
}
