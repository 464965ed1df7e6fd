// Package xwallet implements the cross-chain wallet support the atomic-swap
// orchestrator needs to fund and sweep HTLCs: walking a BIP32 "m/.../0/i"
// external receive chain, aggregating UTXOs across it, and building
// signed legacy P2PKH spends.
package xwallet

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/binutil"
	"qortal.dev/node/foreignchain"
)

func btcutilDecodeAddress(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	a, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "decoding address", err)
	}
	return a, nil
}

func chainhashFromBytes(b [32]byte) (*chainhash.Hash, error) {
	return chainhash.NewHash(b[:])
}

// initialLookahead and lookaheadStep implement the scanning discipline:
// each pass scans leaf keys 0..lookahead-1, starting with a window of 3,
// and the window widens by 3 whenever a full pass doesn't find what it was
// looking for.
const initialLookahead = 3
const lookaheadStep = 3

// maxLookahead bounds how far a single discovery call will scan before
// giving up; an unbounded widening loop driven entirely by external-chain
// responses is a real liveness risk (a provider that never reports history
// would otherwise spin forever), not a hypothetical.
const maxLookahead = 10_000

// Wallet drives one BIP32 account's external receive chain against a
// foreignchain.BlockchainProvider. A Wallet is not safe for concurrent use
// by multiple goroutines: the spentKeys set is private to each instance.
type Wallet struct {
	provider  foreignchain.BlockchainProvider
	params    *chaincfg.Params
	feePerByte int64 // network default, used when buildSpend is not given one

	spentKeys map[uint32]bool
	lookahead uint32
}

// New returns a Wallet scanning against provider, using params for address
// encoding and defaultFeePerByte as the fallback feerate for buildSpend.
func New(provider foreignchain.BlockchainProvider, params *chaincfg.Params, defaultFeePerByte int64) *Wallet {
	return &Wallet{
		provider:   provider,
		params:     params,
		feePerByte: defaultFeePerByte,
		spentKeys:  map[uint32]bool{},
		lookahead:  initialLookahead,
	}
}

func deriveLeaf(xprv string, params *chaincfg.Params, index uint32) (*hdkeychain.ExtendedKey, error) {
	root, err := hdkeychain.NewKeyFromString(xprv)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "parsing extended private key", err)
	}
	external, err := root.Derive(0)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "deriving external chain", err)
	}
	leaf, err := external.Derive(index)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "deriving leaf key", err)
	}
	return leaf, nil
}

func leafAddress(leaf *hdkeychain.ExtendedKey, params *chaincfg.Params) (string, [20]byte, error) {
	pub, err := leaf.ECPubKey()
	if err != nil {
		return "", [20]byte{}, aterrors.Wrap(aterrors.KindInvalidInput, "deriving public key", err)
	}
	hash := binutil.Hash160(pub.SerializeCompressed())
	var pkh [20]byte
	copy(pkh[:], hash)
	addr := binutil.Base58CheckEncode(hash, params.PubKeyHashAddrID)
	return addr, pkh, nil
}

// GetUnusedReceiveAddress walks the receive chain in order looking for the
// first leaf key that has never appeared on-chain. A key
// currently holding UTXOs is left alone (not added to spentKeys, since it
// is still in active use, just not unused); a key with historical activity
// but no current UTXOs is recorded in spentKeys and skipped on future
// calls.
func (w *Wallet) GetUnusedReceiveAddress(ctx context.Context, xprv string) (string, error) {
	for w.lookahead <= maxLookahead {
		for i := uint32(0); i < w.lookahead; i++ {
			if w.spentKeys[i] {
				continue
			}
			leaf, err := deriveLeaf(xprv, w.params, i)
			if err != nil {
				return "", err
			}
			addr, _, err := leafAddress(leaf, w.params)
			if err != nil {
				return "", err
			}
			utxos, err := w.provider.UTXOsForAddress(ctx, addr)
			if err != nil {
				return "", aterrors.Wrap(aterrors.KindForeignBlockchainError, "querying UTXOs", err)
			}
			if len(utxos) > 0 {
				continue // in active use, but not the unused address we want
			}
			hasHistory, err := w.provider.HasHistory(ctx, addr)
			if err != nil {
				return "", aterrors.Wrap(aterrors.KindForeignBlockchainError, "querying address history", err)
			}
			if !hasHistory {
				return addr, nil
			}
			w.spentKeys[i] = true
		}
		w.lookahead += lookaheadStep
	}
	return "", aterrors.New(aterrors.KindForeignBlockchainError, "no unused address found within lookahead bound")
}

// KeyedUTXO is one UTXO discovered against a specific leaf key index,
// carrying enough to sign a spend from it later.
type KeyedUTXO struct {
	foreignchain.UTXO
	KeyIndex uint32
}

// OpenUTXOsForKeys walks the receive chain the same way
// GetUnusedReceiveAddress does, but collects every UTXO found along the
// way instead of stopping at the first result; scanning ends once the
// first genuinely unused address is reached.
func (w *Wallet) OpenUTXOsForKeys(ctx context.Context, xprv string) ([]KeyedUTXO, error) {
	var result []KeyedUTXO
	resolved := map[uint32]bool{}

	for w.lookahead <= maxLookahead {
		for i := uint32(0); i < w.lookahead; i++ {
			if w.spentKeys[i] || resolved[i] {
				continue
			}
			leaf, err := deriveLeaf(xprv, w.params, i)
			if err != nil {
				return nil, err
			}
			addr, _, err := leafAddress(leaf, w.params)
			if err != nil {
				return nil, err
			}
			utxos, err := w.provider.UTXOsForAddress(ctx, addr)
			if err != nil {
				return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "querying UTXOs", err)
			}
			if len(utxos) > 0 {
				for _, u := range utxos {
					result = append(result, KeyedUTXO{UTXO: u, KeyIndex: i})
				}
				resolved[i] = true
				continue
			}
			hasHistory, err := w.provider.HasHistory(ctx, addr)
			if err != nil {
				return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "querying address history", err)
			}
			if !hasHistory {
				return result, nil // reached the end of active keys
			}
			w.spentKeys[i] = true
		}
		w.lookahead += lookaheadStep
	}
	return nil, aterrors.New(aterrors.KindForeignBlockchainError, "UTXO collection did not terminate within lookahead bound")
}

// GetWalletBalance sums the value of every UTXO OpenUTXOsForKeys finds.
func (w *Wallet) GetWalletBalance(ctx context.Context, xprv string) (int64, error) {
	utxos, err := w.OpenUTXOsForKeys(ctx, xprv)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total, nil
}

// BuildSpend constructs a signed legacy P2PKH transaction sending amount
// to recipient, funded from the wallet's discovered UTXOs. If
// feePerByte <= 0 the wallet's configured network default is used. It
// returns (nil, nil) — not an error — when available funds cannot cover
// amount plus fee.
func (w *Wallet) BuildSpend(ctx context.Context, xprv, recipient string, amount int64, feePerByte int64) (*wire.MsgTx, error) {
	if feePerByte <= 0 {
		feePerByte = w.feePerByte
	}

	utxos, err := w.OpenUTXOsForKeys(ctx, xprv)
	if err != nil {
		return nil, err
	}

	recipientAddr, err := btcutilDecodeAddress(recipient, w.params)
	if err != nil {
		return nil, err
	}
	recipientScript, err := txscript.PayToAddrScript(recipientAddr)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building recipient script", err)
	}

	const estimatedInputSize = 148 // legacy P2PKH input, signature+pubkey included
	const estimatedOverhead = 44   // version+locktime+one output

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(amount, recipientScript))

	var selected []KeyedUTXO
	var total int64
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Value
		fee := int64(estimatedOverhead+estimatedInputSize*len(selected)) * feePerByte
		if total >= amount+fee {
			break
		}
	}
	fee := int64(estimatedOverhead+estimatedInputSize*len(selected)) * feePerByte
	if total < amount+fee {
		return nil, nil
	}
	if change := total - amount - fee; change > 0 {
		leaf, err := deriveLeaf(xprv, w.params, 0)
		if err != nil {
			return nil, err
		}
		changeAddr, _, err := leafAddress(leaf, w.params)
		if err != nil {
			return nil, err
		}
		changeAddrDecoded, err := btcutilDecodeAddress(changeAddr, w.params)
		if err != nil {
			return nil, err
		}
		changeScript, err := txscript.PayToAddrScript(changeAddrDecoded)
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building change script", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	for _, u := range selected {
		hash, err := chainhashFromBytes(u.TxHash)
		if err != nil {
			return nil, err
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Index), nil, nil))
	}

	for i, u := range selected {
		leaf, err := deriveLeaf(xprv, w.params, u.KeyIndex)
		if err != nil {
			return nil, err
		}
		priv, err := leaf.ECPrivKey()
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindInvalidInput, "deriving private key", err)
		}
		sigScript, err := signLegacyP2PKH(tx, i, u.ScriptPubKey, priv)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	return tx, nil
}

func signLegacyP2PKH(tx *wire.MsgTx, inputIndex int, scriptPubKey []byte, priv *btcec.PrivateKey) ([]byte, error) {
	sigHash, err := txscript.CalcSignatureHash(scriptPubKey, txscript.SigHashAll, tx, inputIndex)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "computing signature hash", err)
	}
	sig := ecdsa.Sign(priv, sigHash)
	sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))

	b := txscript.NewScriptBuilder()
	b.AddData(sigBytes)
	b.AddData(priv.PubKey().SerializeCompressed())
	return b.Script()
}
