package urtypes

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressType narrows a crypto-address payload to a script kind.
// UnspecifiedAddress leaves the kind to the coin's default and is
// omitted on the wire.
type AddressType int

const (
	UnspecifiedAddress AddressType = iota
	P2PKHAddress
	P2SHAddress
	P2WPKHAddress
)

// Address is a cryptocurrency address, as specified by the
// crypto-address structure of [BCR-2020-009]. Data carries the
// script hash, key hash or raw account bytes, depending on the coin
// and type.
//
// [BCR-2020-009]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-009-address.md
type Address struct {
	// Info identifies the coin and network; nil means bitcoin
	// mainnet.
	Info *CoinInfo
	Type AddressType
	Data []byte
}

type address struct {
	Info *CoinInfo `cbor:"1,keyasint,omitempty"`
	Type *int      `cbor:"2,keyasint,omitempty"`
	Data []byte    `cbor:"3,keyasint"`
}

// Encode the address in the format described by [BCR-2020-009].
func (a Address) Encode() []byte {
	enc := address{
		Info: a.Info,
		Data: a.Data,
	}
	if a.Type != UnspecifiedAddress {
		typ := int(a.Type) - 1
		enc.Type = &typ
	}
	b, err := encMode.Marshal(enc)
	if err != nil {
		// Always valid by construction.
		panic(err)
	}
	return b
}

// BitcoinAddress renders a bitcoin address payload in its canonical
// textual form: base58check for P2PKH and P2SH, bech32 for P2WPKH.
func (a Address) BitcoinAddress() (btcutil.Address, error) {
	if a.Info != nil && a.Info.Type != CoinBTC {
		return nil, fmt.Errorf("ur: crypto-address: not a bitcoin address (coin type %d)", a.Info.Type)
	}
	net := &chaincfg.MainNetParams
	if a.Info != nil {
		switch a.Info.Network {
		case NetworkMainnet:
		case NetworkTestnet:
			net = &chaincfg.TestNet3Params
		default:
			return nil, fmt.Errorf("ur: crypto-address: unknown network %d", a.Info.Network)
		}
	}
	switch a.Type {
	case P2PKHAddress, UnspecifiedAddress:
		return btcutil.NewAddressPubKeyHash(a.Data, net)
	case P2SHAddress:
		return btcutil.NewAddressScriptHashFromHash(a.Data, net)
	case P2WPKHAddress:
		return btcutil.NewAddressWitnessPubKeyHash(a.Data, net)
	default:
		return nil, fmt.Errorf("ur: crypto-address: unknown address type %d", a.Type)
	}
}

func parseAddress(enc []byte) (Address, error) {
	var a address
	if err := decMode.Unmarshal(enc, &a); err != nil {
		return Address{}, fmt.Errorf("ur: crypto-address decoding failed: %w", err)
	}
	if len(a.Data) == 0 {
		return Address{}, fmt.Errorf("ur: crypto-address: missing address data")
	}
	addr := Address{
		Info: a.Info,
		Data: a.Data,
	}
	if a.Type != nil {
		if *a.Type < 0 || *a.Type > 2 {
			return Address{}, fmt.Errorf("ur: crypto-address: invalid address type %d", *a.Type)
		}
		addr.Type = AddressType(*a.Type + 1)
	}
	return addr, nil
}
