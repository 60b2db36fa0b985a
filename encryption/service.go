// Package encryption envelope-encrypts session-key material at rest.
//
// Each call derives a fresh data-encryption key from (masterKey, salt) via
// scrypt, so the master key is never used directly as an AES key and two
// encryptions of the same plaintext never produce the same envelope. The
// salt is bound into the GCM tag as AAD: tampering with the stored salt
// invalidates decryption even if the ciphertext is untouched.
//
// Envelope layout, concatenated then base64-encoded:
//
//	salt(32) || iv(16) || authTag(16) || ciphertext
package encryption

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/burnt-labs/abstraxion-backend/autherr"
	"github.com/burnt-labs/abstraxion-backend/internal/util"
)

const (
	saltSize = 32
	ivSize   = util.GCMIVSize
	tagSize  = util.GCMTagSize

	envelopeMinSize = saltSize + ivSize + tagSize
)

// Service encrypts and decrypts session-key material with a master key.
// The master key is kept in a memguard enclave for the service's lifetime
// and only materialized in plaintext for the duration of a key derivation.
type Service struct {
	masterKey *memguard.Enclave
	params    util.ScryptParams
}

// NewService creates a Service from a base64-encoded 256-bit master key.
func NewService(masterKeyBase64 string) (*Service, error) {
	if masterKeyBase64 == "" {
		return nil, autherr.Configuration(autherr.CodeEncryptionKeyRequired, "encryption key is required")
	}
	raw, err := util.Base64Decode(masterKeyBase64)
	if err != nil {
		return nil, autherr.Configuration(autherr.CodeEncryptionKeyRequired,
			"encryption key must be valid base64")
	}
	if len(raw) != util.AESKeySize {
		return nil, autherr.Configuration(autherr.CodeEncryptionKeyRequired,
			fmt.Sprintf("encryption key must be %d bytes, got %d", util.AESKeySize, len(raw)))
	}
	enclave := memguard.NewEnclave(raw)
	return &Service{
		masterKey: enclave,
		params:    util.DefaultScryptParams(),
	}, nil
}

// Encrypt seals plaintext into a base64 envelope.
func (s *Service) Encrypt(plaintext []byte) (string, error) {
	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return "", autherr.Encryption("generating envelope salt", err)
	}
	iv, err := util.RandomBytes(ivSize)
	if err != nil {
		return "", autherr.Encryption("generating envelope IV", err)
	}

	dek, err := s.deriveDEK(salt)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(dek)

	tagged, err := util.SealGCM(dek, iv, plaintext, salt)
	if err != nil {
		return "", autherr.Encryption("sealing envelope", err)
	}

	// SealGCM returns ciphertext || tag; the envelope stores the tag
	// ahead of the ciphertext.
	ciphertext := tagged[:len(tagged)-tagSize]
	tag := tagged[len(tagged)-tagSize:]

	envelope := make([]byte, 0, envelopeMinSize+len(ciphertext))
	envelope = append(envelope, salt...)
	envelope = append(envelope, iv...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)

	return util.Base64Encode(envelope), nil
}

// Decrypt opens a base64 envelope produced by Encrypt. Any corruption of
// the envelope (wrong key, flipped bit, truncation) fails closed; partial
// plaintext is never returned.
func (s *Service) Decrypt(envelopeBase64 string) ([]byte, error) {
	envelope, err := util.Base64Decode(envelopeBase64)
	if err != nil {
		return nil, autherr.Encryption("decoding envelope", err)
	}
	if len(envelope) < envelopeMinSize {
		return nil, autherr.Encryption(
			fmt.Sprintf("envelope too short: %d bytes", len(envelope)), nil)
	}

	salt := envelope[:saltSize]
	iv := envelope[saltSize : saltSize+ivSize]
	tag := envelope[saltSize+ivSize : envelopeMinSize]
	ciphertext := envelope[envelopeMinSize:]

	dek, err := s.deriveDEK(salt)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(dek)

	tagged := make([]byte, 0, len(ciphertext)+tagSize)
	tagged = append(tagged, ciphertext...)
	tagged = append(tagged, tag...)

	plaintext, err := util.OpenGCM(dek, iv, tagged, salt)
	if err != nil {
		return nil, autherr.Encryption("opening envelope", err)
	}
	return plaintext, nil
}

func (s *Service) deriveDEK(salt []byte) ([]byte, error) {
	buf, err := s.masterKey.Open()
	if err != nil {
		return nil, autherr.Encryption("opening master key enclave", err)
	}
	defer buf.Destroy()

	dek, err := util.DeriveScryptKey(buf.Bytes(), salt, s.params)
	if err != nil {
		return nil, autherr.Encryption("deriving data-encryption key", err)
	}
	return dek, nil
}

// GenerateEncryptionKey returns a fresh random 256-bit master key, base64.
func GenerateEncryptionKey() (string, error) {
	key, err := util.NewAESKey()
	if err != nil {
		return "", fmt.Errorf("generating master key: %w", err)
	}
	return util.Base64Encode(key), nil
}

// ValidateEncryptionKey reports whether key decodes to exactly 32 bytes.
func ValidateEncryptionKey(key string) bool {
	raw, err := util.Base64Decode(key)
	if err != nil {
		return false
	}
	return len(raw) == util.AESKeySize
}
