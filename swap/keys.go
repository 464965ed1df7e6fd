package swap

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/binutil"
)

// TrimPrivateKey extracts the raw 32-byte secret from a private key that
// may have arrived WIF-decoded rather than raw: 37 bytes (version‖key‖
// checksum) or 38 bytes (version‖key‖compressed-flag‖checksum) both carry
// the key at the same offset, so both trim the same way. A bare 32-byte
// key passes through unchanged.
func TrimPrivateKey(raw []byte) ([32]byte, error) {
	var out [32]byte
	switch len(raw) {
	case 32:
		copy(out[:], raw)
	case 37, 38:
		copy(out[:], raw[1:33])
	default:
		return out, aterrors.New(aterrors.KindInvalidInput, "private key must be 32, 37, or 38 bytes")
	}
	return out, nil
}

// pubKeyHashFromPrivateKey derives the compressed-pubkey HASH160 for a raw
// 32-byte private key.
func pubKeyHashFromPrivateKey(key [32]byte) (priv *btcec.PrivateKey, pkh [20]byte) {
	priv, pub := btcec.PrivKeyFromBytes(key[:])
	hash := binutil.Hash160(pub.SerializeCompressed())
	copy(pkh[:], hash)
	return priv, pkh
}

// decodeP2PKHHash recovers the HASH160 payload of a Base58Check P2PKH
// address.
func decodeP2PKHHash(address string, params *chaincfg.Params) ([20]byte, error) {
	var out [20]byte
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return out, aterrors.Wrap(aterrors.KindInvalidInput, "decoding P2PKH address", err)
	}
	pkh, ok := addr.(*btcutil.AddressPubKeyHash)
	if !ok {
		return out, aterrors.New(aterrors.KindInvalidInput, "address is not a P2PKH address")
	}
	copy(out[:], pkh.Hash160()[:])
	return out, nil
}
