package urtypes

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ECKey is a bare elliptic-curve key, as specified by the
// crypto-eckey structure of [BCR-2020-008].
//
// [BCR-2020-008]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-008-eckey.md
type ECKey struct {
	// Curve identifies the key curve; 0 is secp256k1.
	Curve uint64
	// IsPrivate marks Data as private key material.
	IsPrivate bool
	// Data is the key material: 32 bytes for a private key, a
	// 33- or 65-byte SEC encoding for a public key.
	Data []byte
}

const CurveSecp256k1 = 0

type ecKey struct {
	Curve     uint64 `cbor:"1,keyasint,omitempty"`
	IsPrivate bool   `cbor:"2,keyasint,omitempty"`
	Data      []byte `cbor:"3,keyasint"`
}

// Encode the key in the format described by [BCR-2020-008].
func (k ECKey) Encode() []byte {
	b, err := encMode.Marshal(ecKey{
		Curve:     k.Curve,
		IsPrivate: k.IsPrivate,
		Data:      k.Data,
	})
	if err != nil {
		// Always valid by construction.
		panic(err)
	}
	return b
}

// PublicKey returns the secp256k1 public key of k, deriving it for
// private keys.
func (k ECKey) PublicKey() (*btcec.PublicKey, error) {
	if k.Curve != CurveSecp256k1 {
		return nil, fmt.Errorf("ur: crypto-eckey: unsupported curve %d", k.Curve)
	}
	if k.IsPrivate {
		if len(k.Data) != 32 {
			return nil, fmt.Errorf("ur: crypto-eckey: private key is %d bytes, expected 32", len(k.Data))
		}
		priv, _ := btcec.PrivKeyFromBytes(k.Data)
		return priv.PubKey(), nil
	}
	pub, err := btcec.ParsePubKey(k.Data)
	if err != nil {
		return nil, fmt.Errorf("ur: crypto-eckey: %w", err)
	}
	return pub, nil
}

func parseECKey(enc []byte) (ECKey, error) {
	var k ecKey
	if err := decMode.Unmarshal(enc, &k); err != nil {
		return ECKey{}, fmt.Errorf("ur: crypto-eckey decoding failed: %w", err)
	}
	if len(k.Data) == 0 {
		return ECKey{}, fmt.Errorf("ur: crypto-eckey: missing key data")
	}
	key := ECKey{
		Curve:     k.Curve,
		IsPrivate: k.IsPrivate,
		Data:      k.Data,
	}
	if key.Curve == CurveSecp256k1 {
		// Surface malformed key material at parse time.
		if _, err := key.PublicKey(); err != nil {
			return ECKey{}, err
		}
	}
	return key, nil
}
