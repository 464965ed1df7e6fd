// Package htlcscript builds and parses the P2SH Hash-Time-Locked Contract
// redeem script that secures a cross-chain atomic swap. The exact
// push-opcode layout is part of the external interface: a single byte of
// deviation changes the P2SH address and breaks compatibility with the
// counterparty's chain.
package htlcscript

import (
	"github.com/btcsuite/btcd/txscript"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/binutil"
)

// SecretLen is the length, in bytes, of the HTLC's preimage secret.
const SecretLen = 32

// Contract is the tuple that fully determines one HTLC redeem script:
// refunder and redeemer public-key hashes, the HASH160 of the secret, and
// the absolute lockTime (Unix seconds) past which the refund branch
// becomes spendable.
type Contract struct {
	RefunderPKH  [20]byte
	RedeemerPKH  [20]byte
	SecretHash   [20]byte
	LockTime     uint32
}

// Build renders c as the canonical redeem script:
//
//	OP_IF
//	    OP_SIZE <secretLen> OP_EQUALVERIFY
//	    OP_HASH160 <secretHash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <redeemerPKH>
//	OP_ELSE
//	    <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <refunderPKH>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
func Build(c Contract) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_SIZE)
	b.AddInt64(SecretLen)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(c.SecretHash[:])
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(c.RedeemerPKH[:])
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(int64(c.LockTime))
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(c.RefunderPKH[:])
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// Parse recovers a Contract from a previously built redeem script, the
// exact inverse of Build. It is strict: any opcode or push that does not
// match the canonical layout is rejected rather than tolerated, since a
// tolerant parse could recover a contract whose re-derived P2SH address
// differs from the one the script actually hashes to.
func Parse(script []byte) (Contract, error) {
	tok := txscript.MakeScriptTokenizer(0, script)

	next := func(wantOp byte) ([]byte, error) {
		if !tok.Next() {
			return nil, aterrors.New(aterrors.KindInvalidInput, "htlc redeem script: truncated")
		}
		if tok.Opcode() != wantOp {
			return nil, aterrors.New(aterrors.KindInvalidInput, "htlc redeem script: unexpected opcode")
		}
		return tok.Data(), nil
	}

	if _, err := next(txscript.OP_IF); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_SIZE); err != nil {
		return Contract{}, err
	}
	secretLenPush, err := next(opForInt64(SecretLen))
	if err != nil {
		return Contract{}, err
	}
	if err := checkInt64Push(secretLenPush, SecretLen); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_EQUALVERIFY); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_HASH160); err != nil {
		return Contract{}, err
	}
	secretHashPush, err := next(txscript.OP_DATA_20)
	if err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_EQUALVERIFY); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_DUP); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_HASH160); err != nil {
		return Contract{}, err
	}
	redeemerPush, err := next(txscript.OP_DATA_20)
	if err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_ELSE); err != nil {
		return Contract{}, err
	}
	if !tok.Next() {
		return Contract{}, aterrors.New(aterrors.KindInvalidInput, "htlc redeem script: truncated before lockTime")
	}
	lockTime, err := decodeScriptInt(tok.Opcode(), tok.Data())
	if err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_CHECKLOCKTIMEVERIFY); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_DROP); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_DUP); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_HASH160); err != nil {
		return Contract{}, err
	}
	refunderPush, err := next(txscript.OP_DATA_20)
	if err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_ENDIF); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_EQUALVERIFY); err != nil {
		return Contract{}, err
	}
	if _, err := next(txscript.OP_CHECKSIG); err != nil {
		return Contract{}, err
	}
	if tok.Next() || tok.Err() != nil {
		return Contract{}, aterrors.New(aterrors.KindInvalidInput, "htlc redeem script: trailing data")
	}

	var c Contract
	copy(c.RefunderPKH[:], refunderPush)
	copy(c.RedeemerPKH[:], redeemerPush)
	copy(c.SecretHash[:], secretHashPush)
	c.LockTime = uint32(lockTime)
	return c, nil
}

// Address derives the Base58Check P2SH address for a redeem script under
// the given network's P2SH version byte (e.g. chaincfg.Params.ScriptHashAddrID).
func Address(script []byte, scriptHashAddrID byte) string {
	return binutil.Base58CheckEncode(binutil.Hash160(script), scriptHashAddrID)
}

func opForInt64(v int64) byte {
	b := txscript.NewScriptBuilder()
	b.AddInt64(v)
	s, _ := b.Script()
	if len(s) == 0 {
		return txscript.OP_0
	}
	return s[0]
}

func checkInt64Push(data []byte, want int64) error {
	v, err := decodeScriptInt(0, data)
	if err != nil {
		return err
	}
	if v != want {
		return aterrors.New(aterrors.KindInvalidInput, "htlc redeem script: unexpected secret length literal")
	}
	return nil
}

// decodeScriptInt decodes a script integer literal, whether it was pushed
// as OP_1..OP_16/OP_0 with no data, or as an explicit minimal-length data
// push (txscript.MakeScriptNum requires this distinction be handled by the
// caller).
func decodeScriptInt(op byte, data []byte) (int64, error) {
	if len(data) == 0 {
		switch {
		case op == txscript.OP_0:
			return 0, nil
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			return int64(op-txscript.OP_1) + 1, nil
		}
	}
	n, err := txscript.MakeScriptNum(data, true, 5)
	if err != nil {
		return 0, aterrors.Wrap(aterrors.KindInvalidInput, "htlc redeem script: invalid integer literal", err)
	}
	return int64(n), nil
}
