package swap

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"qortal.dev/node/binutil"
	"qortal.dev/node/foreignchain"
	"qortal.dev/node/htlcscript"
)

type fakeProvider struct {
	utxos       map[string][]foreignchain.UTXO
	headers     [][foreignchain.HeaderSize]byte
	feePerByte  int64
}

func (p *fakeProvider) HasHistory(ctx context.Context, address string) (bool, error) { return false, nil }
func (p *fakeProvider) UTXOsForAddress(ctx context.Context, address string) ([]foreignchain.UTXO, error) {
	return p.utxos[address], nil
}
func (p *fakeProvider) FetchTransaction(ctx context.Context, hash [32]byte) ([]byte, error) {
	return nil, nil
}
func (p *fakeProvider) LatestHeaders(ctx context.Context, n int) ([][foreignchain.HeaderSize]byte, error) {
	return p.headers, nil
}
func (p *fakeProvider) BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	return [32]byte{}, nil
}
func (p *fakeProvider) DefaultFeePerByte(ctx context.Context) (int64, error) { return p.feePerByte, nil }

func headerWithTimestamp(ts uint32) [foreignchain.HeaderSize]byte {
	var h [foreignchain.HeaderSize]byte
	h[timestampOffset] = byte(ts)
	h[timestampOffset+1] = byte(ts >> 8)
	h[timestampOffset+2] = byte(ts >> 16)
	h[timestampOffset+3] = byte(ts >> 24)
	return h
}

func elevenHeadersAt(base uint32) [][foreignchain.HeaderSize]byte {
	headers := make([][foreignchain.HeaderSize]byte, 11)
	for i := range headers {
		headers[i] = headerWithTimestamp(base + uint32(i))
	}
	return headers
}

func mustP2PKHAddress(t *testing.T, pkh [20]byte, params *chaincfg.Params) string {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(pkh[:], params)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	return addr.EncodeAddress()
}

func TestRefundHappyPath(t *testing.T) {
	params := &chaincfg.MainNetParams

	refundKey := make([]byte, 32)
	refundKey[0] = 1
	priv, pub := btcec.PrivKeyFromBytes(refundKey)
	refunderPKH := [20]byte{}
	copy(refunderPKH[:], binutil.Hash160(pub.SerializeCompressed()))

	redeemerKey := make([]byte, 32)
	redeemerKey[0] = 2
	_, redeemerPub := btcec.PrivKeyFromBytes(redeemerKey)
	redeemerPKH := [20]byte{}
	copy(redeemerPKH[:], binutil.Hash160(redeemerPub.SerializeCompressed()))
	redeemerAddr := mustP2PKHAddress(t, redeemerPKH, params)

	var secretHash [20]byte
	secretHash[0] = 0xAB

	lockTime := uint32(1585920000)
	contract := htlcscript.Contract{RefunderPKH: refunderPKH, RedeemerPKH: redeemerPKH, SecretHash: secretHash, LockTime: lockTime}
	script, err := htlcscript.Build(contract)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	p2sh := htlcscript.Address(script, params.ScriptHashAddrID)

	provider := &fakeProvider{
		utxos: map[string][]foreignchain.UTXO{
			p2sh: {{TxHash: [32]byte{1}, Index: 0, Value: 100_000, Height: 500}},
		},
		headers:    elevenHeadersAt(lockTime),
		feePerByte: 1,
	}
	o := New(provider, params)
	_ = priv

	tx, err := o.Refund(context.Background(), int64(lockTime)+1000, RefundArgs{
		P2SHAddress:          p2sh,
		RefundPrivateKey:     refundKey,
		RedeemerP2PKHAddress: redeemerAddr,
		SecretHash:           secretHash,
		LockTime:             lockTime,
		FeeSatoshis:          10_000,
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(tx.TxOut) != 1 || tx.TxOut[0].Value != 90_000 {
		t.Fatalf("unexpected output: %+v", tx.TxOut)
	}
	if tx.LockTime != lockTime {
		t.Fatalf("tx.LockTime = %d, want %d", tx.LockTime, lockTime)
	}
}

// TestP2SHAddressIsNetworkParameterized guards against deriving a P2SH
// address under a hardcoded version byte: the same script must hash to
// different Base58Check addresses on mainnet and testnet, and each must
// decode back under its own network's params.
func TestP2SHAddressIsNetworkParameterized(t *testing.T) {
	contract := htlcscript.Contract{SecretHash: [20]byte{0xAB}, LockTime: 1585920000}
	script, err := htlcscript.Build(contract)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	mainnet := htlcscript.Address(script, chaincfg.MainNetParams.ScriptHashAddrID)
	testnet := htlcscript.Address(script, chaincfg.TestNet3Params.ScriptHashAddrID)
	if mainnet == testnet {
		t.Fatalf("expected distinct addresses per network, got %q for both", mainnet)
	}

	if _, err := btcutil.DecodeAddress(testnet, &chaincfg.TestNet3Params); err != nil {
		t.Fatalf("testnet address %q does not decode under TestNet3Params: %v", testnet, err)
	}
	if _, err := btcutil.DecodeAddress(mainnet, &chaincfg.MainNetParams); err != nil {
		t.Fatalf("mainnet address %q does not decode under MainNetParams: %v", mainnet, err)
	}
}

// TestRefundOnTestnet exercises the refund happy path on testnet, where an
// Address derivation hardcoded to the mainnet version byte can never match
// the advertised P2SH and every refund aborts with SafetyViolation.
func TestRefundOnTestnet(t *testing.T) {
	params := &chaincfg.TestNet3Params

	refundKey := make([]byte, 32)
	refundKey[0] = 1
	priv, pub := btcec.PrivKeyFromBytes(refundKey)
	refunderPKH := [20]byte{}
	copy(refunderPKH[:], binutil.Hash160(pub.SerializeCompressed()))

	redeemerKey := make([]byte, 32)
	redeemerKey[0] = 2
	_, redeemerPub := btcec.PrivKeyFromBytes(redeemerKey)
	redeemerPKH := [20]byte{}
	copy(redeemerPKH[:], binutil.Hash160(redeemerPub.SerializeCompressed()))
	redeemerAddr := mustP2PKHAddress(t, redeemerPKH, params)

	var secretHash [20]byte
	secretHash[0] = 0xD1

	lockTime := uint32(1585920000)
	contract := htlcscript.Contract{RefunderPKH: refunderPKH, RedeemerPKH: redeemerPKH, SecretHash: secretHash, LockTime: lockTime}
	script, err := htlcscript.Build(contract)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	p2sh := htlcscript.Address(script, params.ScriptHashAddrID)
	if p2sh[0] != '2' {
		t.Fatalf("expected testnet P2SH address to start with '2', got %q", p2sh)
	}

	provider := &fakeProvider{
		utxos: map[string][]foreignchain.UTXO{
			p2sh: {{TxHash: [32]byte{1}, Index: 0, Value: 100_000, Height: 500}},
		},
		headers:    elevenHeadersAt(lockTime),
		feePerByte: 1,
	}
	o := New(provider, params)
	_ = priv

	tx, err := o.Refund(context.Background(), int64(lockTime)+1000, RefundArgs{
		P2SHAddress:          p2sh,
		RefundPrivateKey:     refundKey,
		RedeemerP2PKHAddress: redeemerAddr,
		SecretHash:           secretHash,
		LockTime:             lockTime,
		FeeSatoshis:          10_000,
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(tx.TxOut) != 1 || tx.TxOut[0].Value != 90_000 {
		t.Fatalf("unexpected output: %+v", tx.TxOut)
	}
}

func TestRefundTooEarlyIsSafetyViolation(t *testing.T) {
	params := &chaincfg.MainNetParams
	refundKey := make([]byte, 32)
	refundKey[0] = 1
	_, pub := btcec.PrivKeyFromBytes(refundKey)
	refunderPKH := [20]byte{}
	copy(refunderPKH[:], binutil.Hash160(pub.SerializeCompressed()))

	redeemerKey := make([]byte, 32)
	redeemerKey[0] = 2
	_, redeemerPub := btcec.PrivKeyFromBytes(redeemerKey)
	redeemerPKH := [20]byte{}
	copy(redeemerPKH[:], binutil.Hash160(redeemerPub.SerializeCompressed()))
	redeemerAddr := mustP2PKHAddress(t, redeemerPKH, params)

	var secretHash [20]byte
	lockTime := uint32(1585920000)
	contract := htlcscript.Contract{RefunderPKH: refunderPKH, RedeemerPKH: redeemerPKH, SecretHash: secretHash, LockTime: lockTime}
	script, _ := htlcscript.Build(contract)
	p2sh := htlcscript.Address(script, params.ScriptHashAddrID)

	provider := &fakeProvider{
		utxos:      map[string][]foreignchain.UTXO{p2sh: {{Value: 100_000, Height: 500}}},
		headers:    elevenHeadersAt(lockTime - 100),
		feePerByte: 1,
	}
	o := New(provider, params)

	_, err := o.Refund(context.Background(), int64(lockTime)-60, RefundArgs{
		P2SHAddress:          p2sh,
		RefundPrivateKey:     refundKey,
		RedeemerP2PKHAddress: redeemerAddr,
		SecretHash:           secretHash,
		LockTime:             lockTime,
		FeeSatoshis:          1000,
	})
	if err == nil {
		t.Fatal("expected safety violation for too-early refund")
	}
}

func TestRefundRejectsP2SHMismatch(t *testing.T) {
	params := &chaincfg.MainNetParams
	refundKey := make([]byte, 32)
	refundKey[0] = 1
	redeemerKey := make([]byte, 32)
	redeemerKey[0] = 2
	_, redeemerPub := btcec.PrivKeyFromBytes(redeemerKey)
	redeemerPKH := [20]byte{}
	copy(redeemerPKH[:], binutil.Hash160(redeemerPub.SerializeCompressed()))
	redeemerAddr := mustP2PKHAddress(t, redeemerPKH, params)

	provider := &fakeProvider{feePerByte: 1}
	o := New(provider, params)

	_, err := o.Refund(context.Background(), 2000000000, RefundArgs{
		P2SHAddress:          "3NotTheRightAddress",
		RefundPrivateKey:     refundKey,
		RedeemerP2PKHAddress: redeemerAddr,
		LockTime:             1,
	})
	if err == nil {
		t.Fatal("expected safety violation for P2SH mismatch")
	}
}

func TestTrimPrivateKeyHandlesAllAcceptedLengths(t *testing.T) {
	raw32 := make([]byte, 32)
	for i := range raw32 {
		raw32[i] = byte(i)
	}
	got, err := TrimPrivateKey(raw32)
	if err != nil || got != [32]byte(toArray32(raw32)) {
		t.Fatalf("32-byte passthrough failed: %v", err)
	}

	raw37 := append([]byte{0x80}, append(append([]byte{}, raw32...), []byte{1, 2, 3, 4}...)...)
	got37, err := TrimPrivateKey(raw37)
	if err != nil || got37 != got {
		t.Fatalf("37-byte trim mismatch: %v", err)
	}

	raw38 := append([]byte{0x80}, append(append(append([]byte{}, raw32...), 0x01), []byte{1, 2, 3, 4}...)...)
	got38, err := TrimPrivateKey(raw38)
	if err != nil || got38 != got {
		t.Fatalf("38-byte trim mismatch: %v", err)
	}

	if _, err := TrimPrivateKey(make([]byte, 10)); err == nil {
		t.Fatal("expected error for unsupported length")
	}
}

func toArray32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

func TestMedianTimePastSortsDescendingAndPicksIndex5(t *testing.T) {
	headers := make([][foreignchain.HeaderSize]byte, 11)
	for i := 0; i < 11; i++ {
		headers[i] = headerWithTimestamp(uint32(i * 100))
	}
	got, err := MedianTimePast(headers)
	if err != nil {
		t.Fatalf("mtp: %v", err)
	}
	// Descending order of {0,100,...,1000} puts 500 at index 5.
	if got != 500 {
		t.Fatalf("mtp = %d, want 500", got)
	}
}

func TestMedianTimePastRequiresElevenHeaders(t *testing.T) {
	if _, err := MedianTimePast(make([][foreignchain.HeaderSize]byte, 5)); err == nil {
		t.Fatal("expected error for fewer than 11 headers")
	}
}
