// Package cryptox wraps the cryptographic primitives the datawallet consumes:
// passphrase key derivation, per-purpose subkeys, and AES-GCM sealing of
// JSON documents and raw content.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
)

// ErrCiphertextTooShort is returned by Open when the input cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// MakeVerifier returns a value that proves knowledge of masterKey without
// revealing it.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// CheckVerifier compares a stored verifier with the one computed from masterKey
// in constant time.
func CheckVerifier(stored, masterKey []byte) bool {
	return subtle.ConstantTimeCompare(stored, MakeVerifier(masterKey)) == 1
}

// DeriveMasterKey stretches a passphrase into a 256-bit key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// DeriveKey derives an independent 256-bit subkey of masterKey for purpose
// (HKDF-SHA256). Different purposes never share key material.
func DeriveKey(masterKey []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte("datawallet/"+purpose))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptEntry serializes entry to JSON and encrypts it with AES-GCM under key
// (16, 24 or 32 bytes). A fresh 12-byte nonce is generated for every call and
// returned separately from the ciphertext.
//
// Example:
//
//	ciphertext, nonce, err := EncryptEntry(attr, key)
//	if err != nil {
//	    return err
//	}
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptEntry reverses EncryptEntry and unmarshals the JSON into v.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

// Seal is EncryptEntry with the nonce prepended to the ciphertext, for
// payloads that travel as a single opaque blob.
func Seal(v any, key []byte) ([]byte, error) {
	ciphertext, nonce, err := EncryptEntry(v, key)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// Open reverses Seal.
func Open(blob, key []byte, v any) error {
	if len(blob) < nonceSize {
		return ErrCiphertextTooShort
	}
	return DecryptEntry(blob[nonceSize:], blob[:nonceSize], key, v)
}

// EncryptedContent is raw content sealed under its own random key.
type EncryptedContent struct {
	Ciphertext []byte
	Key        []byte
	Nonce      []byte
}

// EncryptContent seals plaintext under a freshly generated content key.
func EncryptContent(plaintext []byte) (*EncryptedContent, error) {
	key := common.GenerateRandByteArray(keySize)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedContent{Ciphertext: ciphertext, Key: key, Nonce: nonce}, nil
}

// DecryptContent reverses EncryptContent.
func DecryptContent(c *EncryptedContent) ([]byte, error) {
	aesgcm, err := newGCM(c.Key)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, c.Nonce, c.Ciphertext, nil)
}
