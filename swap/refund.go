package swap

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/htlcscript"
)

// RefundArgs is the argument set for the refund flow, in the order the
// standalone CLI accepts them.
type RefundArgs struct {
	P2SHAddress          string
	RefundPrivateKey     []byte // 32, 37, or 38 bytes; auto-trimmed
	RedeemerP2PKHAddress string
	SecretHash           [20]byte
	LockTime             uint32
	FeeSatoshis          int64 // 0 selects the network default
}

// Refund builds the refund-branch spend of an HTLC: the initiator
// recovering funds after the timeout has passed.
// now is the caller's current Unix time in seconds, passed in explicitly
// rather than read from the clock so the safety checks stay deterministic
// and testable.
func (o *Orchestrator) Refund(ctx context.Context, now int64, args RefundArgs) (*wire.MsgTx, error) {
	key, err := TrimPrivateKey(args.RefundPrivateKey)
	if err != nil {
		return nil, err
	}
	priv, refunderPKH := pubKeyHashFromPrivateKey(key)

	redeemerPKH, err := decodeP2PKHHash(args.RedeemerP2PKHAddress, o.Params)
	if err != nil {
		return nil, err
	}

	contract := htlcscript.Contract{
		RefunderPKH: refunderPKH,
		RedeemerPKH: redeemerPKH,
		SecretHash:  args.SecretHash,
		LockTime:    args.LockTime,
	}
	redeemScript, err := deriveAndVerifyP2SH(o, contract, args.P2SHAddress)
	if err != nil {
		return nil, err
	}

	mtp, err := fetchMedianTimePast(ctx, o.Provider)
	if err != nil {
		return nil, err
	}
	if now < int64(mtp) || now < int64(args.LockTime) {
		return nil, aterrors.New(aterrors.KindSafetyViolation, "refund attempted before lockTime/median-time-past has elapsed")
	}

	utxo, err := selectSingleConfirmedUTXO(ctx, o, args.P2SHAddress)
	if err != nil {
		return nil, err
	}
	fee, err := estimateFee(ctx, o, args.FeeSatoshis)
	if err != nil {
		return nil, err
	}
	if utxo.Value <= fee {
		return nil, aterrors.New(aterrors.KindInsufficientFunds, "HTLC UTXO value does not cover the refund fee")
	}

	outPoint, err := outpointFromUTXO(utxo)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = args.LockTime
	txIn := wire.NewTxIn(outPoint, nil, nil)
	// Sequence must be less than 0xFFFFFFFF for nLockTime to be honored.
	txIn.Sequence = wire.MaxTxInSequenceNum - 1
	tx.AddTxIn(txIn)

	outScript, err := p2pkhScript(refunderPKH)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building refund output script", err)
	}
	tx.AddTxOut(wire.NewTxOut(utxo.Value-fee, outScript))

	sig, err := signRedeemScript(priv, tx, 0, redeemScript)
	if err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddOp(txscript.OP_FALSE)
	b.AddData(redeemScript)
	sigScript, err := b.Script()
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building refund scriptSig", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	return tx, nil
}
