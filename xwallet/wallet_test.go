package xwallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"qortal.dev/node/foreignchain"
)

type fakeProvider struct {
	history map[string]bool
	utxos   map[string][]foreignchain.UTXO
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{history: map[string]bool{}, utxos: map[string][]foreignchain.UTXO{}}
}

func (p *fakeProvider) HasHistory(ctx context.Context, address string) (bool, error) {
	return p.history[address], nil
}
func (p *fakeProvider) UTXOsForAddress(ctx context.Context, address string) ([]foreignchain.UTXO, error) {
	return p.utxos[address], nil
}
func (p *fakeProvider) FetchTransaction(ctx context.Context, hash [32]byte) ([]byte, error) {
	return nil, nil
}
func (p *fakeProvider) LatestHeaders(ctx context.Context, n int) ([][foreignchain.HeaderSize]byte, error) {
	return nil, nil
}
func (p *fakeProvider) BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	return [32]byte{}, nil
}
func (p *fakeProvider) DefaultFeePerByte(ctx context.Context) (int64, error) { return 1, nil }

func testXprv(t *testing.T) string {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("new master: %v", err)
	}
	return master.String()
}

func TestGetUnusedReceiveAddressOnFreshProviderReturnsLeafZero(t *testing.T) {
	provider := newFakeProvider()
	w := New(provider, &chaincfg.MainNetParams, 1)
	xprv := testXprv(t)

	leaf0, err := deriveLeaf(xprv, w.params, 0)
	if err != nil {
		t.Fatalf("derive leaf 0: %v", err)
	}
	wantAddr, _, err := leafAddress(leaf0, w.params)
	if err != nil {
		t.Fatalf("leaf address: %v", err)
	}

	got, err := w.GetUnusedReceiveAddress(context.Background(), xprv)
	if err != nil {
		t.Fatalf("get unused address: %v", err)
	}
	if got != wantAddr {
		t.Fatalf("address = %s, want %s", got, wantAddr)
	}
	if len(w.spentKeys) != 0 {
		t.Fatal("spentKeys should remain empty")
	}
	if w.lookahead != initialLookahead {
		t.Fatalf("lookahead = %d, want %d", w.lookahead, initialLookahead)
	}
}

func TestGetUnusedReceiveAddressSkipsHistoricalKeys(t *testing.T) {
	provider := newFakeProvider()
	w := New(provider, &chaincfg.MainNetParams, 1)
	xprv := testXprv(t)

	leaf0, _ := deriveLeaf(xprv, w.params, 0)
	addr0, _, _ := leafAddress(leaf0, w.params)
	provider.history[addr0] = true // used, but no current UTXOs

	got, err := w.GetUnusedReceiveAddress(context.Background(), xprv)
	if err != nil {
		t.Fatalf("get unused address: %v", err)
	}
	leaf1, _ := deriveLeaf(xprv, w.params, 1)
	addr1, _, _ := leafAddress(leaf1, w.params)
	if got != addr1 {
		t.Fatalf("address = %s, want leaf-1 address %s", got, addr1)
	}
	if !w.spentKeys[0] {
		t.Fatal("leaf 0 should be recorded as spent")
	}
}

func TestOpenUTXOsForKeysCollectsAcrossUsedKeys(t *testing.T) {
	provider := newFakeProvider()
	w := New(provider, &chaincfg.MainNetParams, 1)
	xprv := testXprv(t)

	leaf0, _ := deriveLeaf(xprv, w.params, 0)
	addr0, _, _ := leafAddress(leaf0, w.params)
	provider.utxos[addr0] = []foreignchain.UTXO{{Value: 1000}}

	utxos, err := w.OpenUTXOsForKeys(context.Background(), xprv)
	if err != nil {
		t.Fatalf("open utxos: %v", err)
	}
	if len(utxos) != 1 || utxos[0].Value != 1000 || utxos[0].KeyIndex != 0 {
		t.Fatalf("unexpected utxos: %+v", utxos)
	}
}

func TestGetWalletBalanceSumsUTXOs(t *testing.T) {
	provider := newFakeProvider()
	w := New(provider, &chaincfg.MainNetParams, 1)
	xprv := testXprv(t)

	leaf0, _ := deriveLeaf(xprv, w.params, 0)
	addr0, _, _ := leafAddress(leaf0, w.params)
	provider.utxos[addr0] = []foreignchain.UTXO{{Value: 500}, {Value: 250}}

	balance, err := w.GetWalletBalance(context.Background(), xprv)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 750 {
		t.Fatalf("balance = %d, want 750", balance)
	}
}
