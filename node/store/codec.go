package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"qortal.dev/node/atapi"
	"qortal.dev/node/repository"
)

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func addressFromPublicKeyHex(pubKey [32]byte) string {
	return atapi.AddressFromPublicKey(pubKey)
}

func encodeBlockSummary(s repository.BlockSummary) []byte {
	out := make([]byte, 4+64+8)
	binary.LittleEndian.PutUint32(out[0:4], s.Height)
	copy(out[4:68], s.Signature[:])
	binary.LittleEndian.PutUint64(out[68:76], s.Timestamp)
	return out
}

func decodeBlockSummary(b []byte) (repository.BlockSummary, error) {
	if len(b) != 4+64+8 {
		return repository.BlockSummary{}, fmt.Errorf("block summary: truncated")
	}
	var s repository.BlockSummary
	s.Height = binary.LittleEndian.Uint32(b[0:4])
	copy(s.Signature[:], b[4:68])
	s.Timestamp = binary.LittleEndian.Uint64(b[68:76])
	return s, nil
}

func encodeTransactionData(tx repository.TransactionData) []byte {
	out := make([]byte, 0, 1+8+64+64+32+4+8+8+1+2+4+len(tx.Message))
	out = append(out, byte(tx.Kind))
	out = appendU64(out, uint64(tx.Timestamp))
	out = append(out, tx.Signature[:]...)
	out = append(out, tx.Reference[:]...)
	out = append(out, tx.CreatorPublicKey[:]...)
	out = appendU32(out, tx.GroupID)
	out = appendU64(out, tx.Fee)
	out = appendU64(out, tx.Amount)
	if tx.HasAmount {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = appendU16(out, uint16(len(tx.Recipients)))
	for _, r := range tx.Recipients {
		out = appendU16(out, uint16(len(r)))
		out = append(out, r...)
	}
	out = appendU32(out, uint32(len(tx.Message)))
	out = append(out, tx.Message...)
	return out
}

func decodeTransactionData(b []byte) (repository.TransactionData, error) {
	var tx repository.TransactionData
	const fixedLen = 1 + 8 + 64 + 64 + 32 + 4 + 8 + 8 + 1 + 2
	if len(b) < fixedLen {
		return tx, fmt.Errorf("transaction data: truncated")
	}
	tx.Kind = repository.TxKind(b[0])
	b = b[1:]
	tx.Timestamp = repository.Timestamp(readU64(b))
	b = b[8:]
	copy(tx.Signature[:], b[:64])
	b = b[64:]
	copy(tx.Reference[:], b[:64])
	b = b[64:]
	copy(tx.CreatorPublicKey[:], b[:32])
	b = b[32:]
	tx.GroupID = readU32(b)
	b = b[4:]
	tx.Fee = readU64(b)
	b = b[8:]
	tx.Amount = readU64(b)
	b = b[8:]
	tx.HasAmount = b[0] == 1
	b = b[1:]
	recipCount := readU16(b)
	b = b[2:]
	for i := uint16(0); i < recipCount; i++ {
		if len(b) < 2 {
			return tx, fmt.Errorf("transaction data: truncated recipient length")
		}
		n := readU16(b)
		b = b[2:]
		if len(b) < int(n) {
			return tx, fmt.Errorf("transaction data: truncated recipient")
		}
		tx.Recipients = append(tx.Recipients, string(b[:n]))
		b = b[n:]
	}
	if len(b) < 4 {
		return tx, fmt.Errorf("transaction data: truncated message length")
	}
	msgLen := readU32(b)
	b = b[4:]
	if uint32(len(b)) < msgLen {
		return tx, fmt.Errorf("transaction data: truncated message")
	}
	tx.Message = append([]byte(nil), b[:msgLen]...)
	return tx, nil
}

func decodeAccountRef(address string, v []byte) repository.AccountRef {
	out := repository.AccountRef{Address: address}
	if len(v) != 72 {
		return out
	}
	copy(out.LastReference[:], v[:64])
	out.ConfirmedBalance = binary.LittleEndian.Uint64(v[64:72])
	return out
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func readU16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func readU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func readU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
