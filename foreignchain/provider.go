// Package foreignchain declares the abstract client surface the cross-chain
// wallet and swap orchestrator use to talk to the external Bitcoin-like
// chain. Nothing here knows whether the concrete client is a full node's
// RPC, an Electrum-style indexer, or a block explorer's HTTP API.
package foreignchain

import "context"

// UTXO is one unspent output as reported by the provider.
type UTXO struct {
	TxHash       [32]byte
	Index        uint32
	Value        int64 // satoshis
	Height       uint32 // 0 means unconfirmed
	ScriptPubKey []byte
}

// HeaderSize is the fixed size of a raw Bitcoin-style block header:
// version(4) + prevHash(32) + merkleRoot(32) + timestamp(4) + bits(4) +
// nonce(4).
const HeaderSize = 80

// BlockchainProvider is the external chain client the wallet and
// orchestrator depend on. Implementations must be safe for concurrent use
// across unrelated swaps; the interface itself imposes no ordering
// requirement across calls for the same swap.
type BlockchainProvider interface {
	// HasHistory reports whether address has ever appeared in a
	// transaction, confirmed or not. Used by getUnusedReceiveAddress to
	// tell "never used" apart from "used, now empty".
	HasHistory(ctx context.Context, address string) (bool, error)

	// UTXOsForAddress returns every current unspent output paying
	// address.
	UTXOsForAddress(ctx context.Context, address string) ([]UTXO, error)

	// FetchTransaction returns the raw serialized transaction for hash,
	// used to resolve an output's value/script when a UTXO's source
	// listing omits it.
	FetchTransaction(ctx context.Context, hash [32]byte) ([]byte, error)

	// LatestHeaders returns the n most recent raw 80-byte block headers,
	// ordered from most recent to least recent.
	LatestHeaders(ctx context.Context, n int) ([][HeaderSize]byte, error)

	// BroadcastTransaction submits a raw serialized transaction and
	// returns its txid.
	BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error)

	// DefaultFeePerByte returns the network's configured default feerate
	// in satoshis/byte, used by buildSpend when the caller does not
	// specify one.
	DefaultFeePerByte(ctx context.Context) (int64, error)
}
