// Package signer generates and restores secp256k1 session keypairs and
// derives their on-chain addresses.
package signer

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"

	"github.com/burnt-labs/abstraxion-backend/internal/util"
)

// AddressPrefix is the bech32 human-readable part for XION accounts.
const AddressPrefix = "xion"

// Keypair is a secp256k1 signing keypair bound to its bech32 address.
type Keypair struct {
	priv    *secp256k1.PrivateKey
	address string
}

// GenerateKeypair produces a fresh keypair. Pure generation: no I/O side
// effects beyond randomness.
func GenerateKeypair() (*Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return newKeypair(priv)
}

// FromSerialized restores a keypair from material produced by Serialize.
func FromSerialized(material []byte) (*Keypair, error) {
	raw, err := util.HexDecode(string(material))
	if err != nil {
		return nil, fmt.Errorf("decoding key material: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length: %d", len(raw))
	}
	return newKeypair(secp256k1.PrivKeyFromBytes(raw))
}

func newKeypair(priv *secp256k1.PrivateKey) (*Keypair, error) {
	address, err := AddressFromPubKey(priv.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv, address: address}, nil
}

// Address returns the bech32 account address derived from the public key.
func (k *Keypair) Address() string {
	return k.address
}

// PublicKey returns the compressed 33-byte public key.
func (k *Keypair) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Serialize returns the private material as hex bytes. The result is what
// the manager encrypts at rest; it never leaves the process in plaintext.
func (k *Keypair) Serialize() []byte {
	return []byte(util.HexEncode(k.priv.Serialize()))
}

// SignDigest signs a 32-byte digest and returns a DER-encoded signature.
func (k *Keypair) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	sig := secpecdsa.Sign(k.priv, digest)
	return sig.Serialize(), nil
}

// VerifyDigest reports whether sig is a valid signature of digest by this
// keypair.
func (k *Keypair) VerifyDigest(digest, sigDER []byte) bool {
	sig, err := secpecdsa.ParseDERSignature(sigDER)
	if err != nil {
		return false
	}
	return sig.Verify(digest, k.priv.PubKey())
}

// AddressFromPubKey derives the bech32 address for a compressed public key:
// bech32(hrp, ripemd160(sha256(pubkey))).
func AddressFromPubKey(compressedPubKey []byte) (string, error) {
	sha := sha256.Sum256(compressedPubKey)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	address, err := bech32.EncodeFromBase256(AddressPrefix, hasher.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("encoding bech32 address: %w", err)
	}
	return address, nil
}
