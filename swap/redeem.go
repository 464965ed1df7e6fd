package swap

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/binutil"
	"qortal.dev/node/htlcscript"
)

// RedeemArgs is the argument set for the redeem flow: the counterparty
// claiming funds by revealing the secret.
type RedeemArgs struct {
	P2SHAddress           string
	RedeemPrivateKey      []byte // 32, 37, or 38 bytes; auto-trimmed
	RefunderP2PKHAddress  string
	Secret                [htlcscript.SecretLen]byte
	LockTime              uint32
	FeeSatoshis           int64
}

// Redeem builds the redeem-branch spend of an HTLC: the counterparty
// claiming funds by revealing the secret. Symmetric to Refund but uses the
// redeemer's key, has no lockTime wait, and a different scriptSig.
func (o *Orchestrator) Redeem(ctx context.Context, args RedeemArgs) (*wire.MsgTx, error) {
	key, err := TrimPrivateKey(args.RedeemPrivateKey)
	if err != nil {
		return nil, err
	}
	priv, redeemerPKH := pubKeyHashFromPrivateKey(key)

	refunderPKH, err := decodeP2PKHHash(args.RefunderP2PKHAddress, o.Params)
	if err != nil {
		return nil, err
	}

	secretHash := htlcSecretHash(args.Secret)
	contract := htlcscript.Contract{
		RefunderPKH: refunderPKH,
		RedeemerPKH: redeemerPKH,
		SecretHash:  secretHash,
		LockTime:    args.LockTime,
	}
	redeemScript, err := deriveAndVerifyP2SH(o, contract, args.P2SHAddress)
	if err != nil {
		return nil, err
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
		return nil, aterrors.New(aterrors.KindInsufficientFunds, "HTLC UTXO value does not cover the redeem fee")
	}

	outPoint, err := outpointFromUTXO(utxo)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	txIn := wire.NewTxIn(outPoint, nil, nil)
	tx.AddTxIn(txIn)

	outScript, err := p2pkhScript(redeemerPKH)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building redeem output script", err)
	}
	tx.AddTxOut(wire.NewTxOut(utxo.Value-fee, outScript))

	sig, err := signRedeemScript(priv, tx, 0, redeemScript)
	if err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(priv.PubKey().SerializeCompressed())
	b.AddData(args.Secret[:])
	b.AddOp(txscript.OP_TRUE)
	b.AddData(redeemScript)
	sigScript, err := b.Script()
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "building redeem scriptSig", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	return tx, nil
}

func htlcSecretHash(secret [htlcscript.SecretLen]byte) [20]byte {
	var out [20]byte
	copy(out[:], binutil.Hash160(secret[:]))
	return out
}
