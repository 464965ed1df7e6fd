package atapi

import (
	"bytes"

	"qortal.dev/node/binutil"
)

// AccountVersionByte is the Base58Check version byte used to derive native
// account addresses from a raw public key. Unlike the external chain's
// address scheme (package htlcscript), no exact derivation is mandated
// elsewhere, only that addresses begin with 'Q'. 58 was picked because it
// yields a leading 'Q' for typical HASH160 outputs, matching that
// convention.
const AccountVersionByte byte = 58

// AddressFromPublicKey derives the native account address for a raw
// public key: Base58Check(AccountVersionByte, HASH160(pubKey)).
func AddressFromPublicKey(pubKey [32]byte) string {
	return binutil.Base58CheckEncode(binutil.Hash160(pubKey[:]), AccountVersionByte)
}

// isValidNativeAddress reports whether s decodes as a Base58Check payload
// under AccountVersionByte with a HASH160-sized (20-byte) payload.
func isValidNativeAddress(s string) bool {
	payload, version, err := binutil.Base58CheckDecode(s)
	if err != nil {
		return false
	}
	return version == AccountVersionByte && len(payload) == 20
}

// decodeB32 reassembles the 32 raw bytes packed into the four B lanes,
// each lane stored little-endian.
func decodeB32(b [4]uint64) [32]byte {
	var out [32]byte
	for i, v := range b {
		copy(out[i*8:i*8+8], binutil.ToLE(v))
	}
	return out
}

// encodeB32 splits 32 raw bytes into the four B lanes.
func encodeB32(raw [32]byte) [4]uint64 {
	var out [4]uint64
	for i := range out {
		out[i] = binutil.FromLE(raw[:], i*8)
	}
	return out
}

// decodeAccountFromB applies the account-decoding rule: if B's raw bytes
// start with 'Q' and the NUL-terminated prefix parses as a valid native
// address, B addresses an account directly; otherwise the 32 bytes are
// treated as a raw public key and the account is derived from it.
func decodeAccountFromB(b [4]uint64) (address string, pubKey [32]byte, isAddress bool) {
	raw := decodeB32(b)
	if raw[0] == 'Q' {
		if nul := bytes.IndexByte(raw[:], 0); nul > 0 {
			candidate := string(raw[:nul])
			if isValidNativeAddress(candidate) {
				return candidate, [32]byte{}, true
			}
		}
	}
	return AddressFromPublicKey(raw), raw, false
}
