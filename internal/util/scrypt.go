package util

import (
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ScryptParams configures scrypt key derivation.
type ScryptParams struct {
	N      int `json:"n"`
	R      int `json:"r"`
	P      int `json:"p"`
	KeyLen int `json:"key_len"`
}

// DefaultScryptParams returns the parameters used to derive per-envelope
// data-encryption keys from the master key.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{
		N:      32768,
		R:      8,
		P:      1,
		KeyLen: 32,
	}
}

// DeriveScryptKey derives a symmetric key from (secret, salt) using scrypt.
func DeriveScryptKey(secret, salt []byte, params ScryptParams) ([]byte, error) {
	if params.KeyLen != AESKeySize {
		return nil, fmt.Errorf("scrypt key length must be %d bytes", AESKeySize)
	}
	key, err := scrypt.Key(secret, salt, params.N, params.R, params.P, params.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving scrypt key: %w", err)
	}
	return key, nil
}
