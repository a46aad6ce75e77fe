// Package urtypes implements the registry payload types specified in
// [BCR-2020-006] and its companion papers. The transport core treats
// payloads as opaque bytes; this package gives them meaning above it.
//
// [BCR-2020-006]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-006-urtypes.md
package urtypes

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	tagHDKey    = 303
	tagKeyPath  = 304
	tagCoinInfo = 305

	tagSH    = 400
	tagWSH   = 401
	tagP2PKH = 403
	tagWPKH  = 404
	tagTR    = 409

	tagMulti       = 406
	tagSortedMulti = 407
)

// CoinInfo identifies the coin and network a payload belongs to, per
// the crypto-coin-info structure of [BCR-2020-007]. The zero value
// is bitcoin mainnet.
type CoinInfo struct {
	Type    uint32 `cbor:"1,keyasint,omitempty"`
	Network int    `cbor:"2,keyasint,omitempty"`
}

const (
	CoinBTC = 0
	CoinETH = 60
)

const (
	NetworkMainnet = 0
	NetworkTestnet = 1
)

// Seed is a crypto-seed payload: raw entropy.
type Seed struct {
	Payload []byte `cbor:"1,keyasint"`
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	tags := cbor.NewTagSet()
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional}, reflect.TypeOf(hdKey{}), tagHDKey); err != nil {
		panic(err)
	}
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(keyPath{}), tagKeyPath); err != nil {
		panic(err)
	}
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(CoinInfo{}), tagCoinInfo); err != nil {
		panic(err)
	}
	em, err := cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{}.DecModeWithTags(tags)
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Parse decodes the registry payload of the given UR type.
func Parse(typ string, enc []byte) (any, error) {
	var value any
	var decErr error
	switch typ {
	case "crypto-seed":
		var s Seed
		err := decMode.Unmarshal(enc, &s)
		value, decErr = s, err
	case "crypto-output":
		value, decErr = parseOutputDescriptor(decMode, enc)
	case "crypto-hdkey":
		value, decErr = parseHDKey(enc)
	case "crypto-eckey":
		value, decErr = parseECKey(enc)
	case "crypto-address":
		value, decErr = parseAddress(enc)
	case "bytes":
		var content []byte
		if err := decMode.Unmarshal(enc, &content); err != nil {
			return nil, fmt.Errorf("ur: bytes decoding failed: %w", err)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("ur: unknown type %q", typ)
	}
	if decErr != nil {
		return nil, fmt.Errorf("ur: %s: %w", typ, decErr)
	}
	return value, nil
}
