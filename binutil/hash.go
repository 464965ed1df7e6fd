package binutil

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is required for Bitcoin-style HASH160
)

// Sha256 returns the single SHA-256 digest of x.
func Sha256(x []byte) [32]byte {
	return sha256.Sum256(x)
}

// Hash256 is double SHA-256, the digest used by the external Bitcoin-like
// chain for transaction and block-header hashing.
func Hash256(x []byte) [32]byte {
	first := sha256.Sum256(x)
	return sha256.Sum256(first[:])
}

// Sha192 returns the first 24 bytes of SHA-256(x). This is the canonical
// short hash used to fingerprint transaction signatures inside AT register
// lanes A2..A4; every implementation of this engine must produce the exact
// same 24 bytes for the same input.
func Sha192(x []byte) [24]byte {
	full := sha256.Sum256(x)
	var out [24]byte
	copy(out[:], full[:24])
	return out
}

// Hash160 is RIPEMD160(SHA256(x)), used to derive P2SH/P2PKH style
// pubkey/script hashes for the external chain.
func Hash160(x []byte) []byte {
	sh := sha256.Sum256(x)
	r := ripemd160.New()
	r.Write(sh[:]) //nolint:errcheck // ripemd160.digest.Write never errors
	return r.Sum(nil)
}

// Base58CheckEncode encodes payload with the given version byte using
// Base58Check (Base58 of payload‖checksum, where checksum is the first 4
// bytes of Hash256(version‖payload)).
func Base58CheckEncode(payload []byte, version byte) string {
	return btcutil.Base58CheckEncode(payload, version)
}

// Base58CheckDecode reverses Base58CheckEncode, returning the payload and
// version byte, or an error if the checksum does not verify.
func Base58CheckDecode(s string) (payload []byte, version byte, err error) {
	return btcutil.Base58CheckDecode(s)
}
