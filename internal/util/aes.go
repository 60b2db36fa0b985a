package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// AESKeySize is the key size for AES-256.
	AESKeySize = 32
	// GCMIVSize is the IV size used for session-key envelopes.
	GCMIVSize = 16
	// GCMTagSize is the GCM authentication tag size.
	GCMTagSize = 16
)

// SealGCM encrypts plainText with AES-256-GCM under rawKey using the given
// IV and additional authenticated data. The returned slice is
// ciphertext || tag.
func SealGCM(rawKey, iv, plainText, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plainText, aad), nil
}

// OpenGCM decrypts ciphertext || tag produced by SealGCM. Any mismatch in
// key, IV, AAD, or tag fails the open.
func OpenGCM(rawKey, iv, taggedCipherText, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey, len(iv))
	if err != nil {
		return nil, err
	}
	if len(taggedCipherText) < GCMTagSize {
		return nil, fmt.Errorf("ciphertext shorter than tag size")
	}
	plainText, err := gcm.Open(nil, iv, taggedCipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}

func newGCM(rawKey []byte, ivSize int) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// NewAESKey generates a random AES-256 key.
func NewAESKey() ([]byte, error) {
	rawKey := make([]byte, AESKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return rawKey, nil
}
