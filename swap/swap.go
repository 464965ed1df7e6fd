package swap

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/foreignchain"
	"qortal.dev/node/htlcscript"
)

// Orchestrator combines the HTLC script builder, the external chain
// provider, and network address parameters into the refund and redeem
// flows of a cross-chain atomic swap.
type Orchestrator struct {
	Provider foreignchain.BlockchainProvider
	Params   *chaincfg.Params
}

// New returns an Orchestrator.
func New(provider foreignchain.BlockchainProvider, params *chaincfg.Params) *Orchestrator {
	return &Orchestrator{Provider: provider, Params: params}
}

func p2pkhScript(pkh [20]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(pkh[:])
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// selectSingleConfirmedUTXO implements the "require exactly one confirmed
// UTXO" check, common to both refund and redeem.
func selectSingleConfirmedUTXO(ctx context.Context, o *Orchestrator, p2shAddress string) (foreignchain.UTXO, error) {
	utxos, err := o.Provider.UTXOsForAddress(ctx, p2shAddress)
	if err != nil {
		return foreignchain.UTXO{}, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching HTLC UTXOs", err)
	}
	var confirmed []foreignchain.UTXO
	for _, u := range utxos {
		if u.Height > 0 {
			confirmed = append(confirmed, u)
		}
	}
	if len(confirmed) != 1 {
		return foreignchain.UTXO{}, aterrors.New(aterrors.KindSafetyViolation, "expected exactly one confirmed UTXO for the HTLC address")
	}
	return confirmed[0], nil
}

// deriveAndVerifyP2SH builds the redeem script for contract and aborts
// (SafetyViolation) if it does not hash to advertisedP2SH under o.Params.
func deriveAndVerifyP2SH(o *Orchestrator, contract htlcscript.Contract, advertisedP2SH string) ([]byte, error) {
	script, err := htlcscript.Build(contract)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building HTLC redeem script", err)
	}
	if got := htlcscript.Address(script, o.Params.ScriptHashAddrID); got != advertisedP2SH {
		return nil, aterrors.New(aterrors.KindSafetyViolation, "derived P2SH address does not match advertised address")
	}
	return script, nil
}

// signRedeemScript computes a raw ECDSA signature over tx's single input
// against redeemScript as the signing subscript (the rule for spending a
// P2SH output: the redeem script itself, not the P2SH scriptPubKey, is
// hashed), and appends the SIGHASH_ALL type byte.
func signRedeemScript(priv *btcec.PrivateKey, tx *wire.MsgTx, inputIndex int, redeemScript []byte) ([]byte, error) {
	sigHash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, tx, inputIndex)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "computing HTLC signature hash", err)
	}
	sig := ecdsa.Sign(priv, sigHash)
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

func outpointFromUTXO(u foreignchain.UTXO) (*wire.OutPoint, error) {
	hash, err := chainhash.NewHash(u.TxHash[:])
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "decoding UTXO hash", err)
	}
	return wire.NewOutPoint(hash, u.Index), nil
}

// estimateFee returns a flat fee in satoshis: feeSatoshis if positive,
// otherwise the network default feerate times a typical single-input,
// single-output HTLC spend size.
func estimateFee(ctx context.Context, o *Orchestrator, feeSatoshis int64) (int64, error) {
	if feeSatoshis > 0 {
		return feeSatoshis, nil
	}
	const estimatedHTLCSpendSize = 300 // redeem script pushes inflate a plain P2PKH spend's size
	perByte, err := o.Provider.DefaultFeePerByte(ctx)
	if err != nil {
		return 0, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching default feerate", err)
	}
	return perByte * estimatedHTLCSpendSize, nil
}
