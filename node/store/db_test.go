package store

import (
	"path/filepath"
	"testing"

	"qortal.dev/node/repository"
)

func mustOpenDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data"), "00")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAppendBlockAndLastBlock(t *testing.T) {
	db := mustOpenDB(t)
	summary := repository.BlockSummary{Height: 1, Timestamp: 1000}
	summary.Signature[0] = 0xAB
	if err := db.AppendBlock(summary); err != nil {
		t.Fatalf("append block: %v", err)
	}

	got, err := db.LastBlock()
	if err != nil {
		t.Fatalf("last block: %v", err)
	}
	if got != summary {
		t.Fatalf("LastBlock() = %+v, want %+v", got, summary)
	}

	height, err := db.BlockchainHeight()
	if err != nil || height != 1 {
		t.Fatalf("BlockchainHeight() = %d, %v, want 1", height, err)
	}
}

func TestPutTransactionRoundTripsBySignatureAndTimestamp(t *testing.T) {
	db := mustOpenDB(t)
	tx := repository.TransactionData{
		Kind:       repository.TxKindPayment,
		Timestamp:  repository.NewTimestamp(5, 1),
		Recipients: []string{"QRecipient"},
		Amount:     42,
		HasAmount:  true,
		Message:    []byte("hello"),
	}
	tx.Signature[0] = 0xCD
	if err := db.PutTransaction(tx); err != nil {
		t.Fatalf("put transaction: %v", err)
	}

	byTS, err := db.TransactionAt(tx.Timestamp)
	if err != nil {
		t.Fatalf("transaction at: %v", err)
	}
	if byTS.Amount != 42 || string(byTS.Message) != "hello" {
		t.Fatalf("unexpected round-tripped transaction: %+v", byTS)
	}

	bySig, err := db.TransactionBySignature(tx.Signature)
	if err != nil {
		t.Fatalf("transaction by signature: %v", err)
	}
	if bySig.Timestamp != tx.Timestamp {
		t.Fatalf("TransactionBySignature timestamp = %v, want %v", bySig.Timestamp, tx.Timestamp)
	}
}

func TestFirstTransactionAfterScansOnlyOneRecipient(t *testing.T) {
	db := mustOpenDB(t)
	mkTx := func(height uint32, recipient string) repository.TransactionData {
		tx := repository.TransactionData{
			Timestamp:  repository.NewTimestamp(height, 0),
			Recipients: []string{recipient},
		}
		tx.Signature[0] = byte(height)
		return tx
	}

	for _, tx := range []repository.TransactionData{
		mkTx(1, "QAlice"),
		mkTx(2, "QBob"),
		mkTx(3, "QAlice"),
	} {
		if err := db.PutTransaction(tx); err != nil {
			t.Fatalf("put transaction: %v", err)
		}
	}

	next, err := db.FirstTransactionAfter(repository.NewTimestamp(1, 0), "QAlice")
	if err != nil {
		t.Fatalf("first transaction after: %v", err)
	}
	if next != repository.NewTimestamp(3, 0) {
		t.Fatalf("FirstTransactionAfter = %v, want height 3", next)
	}
}

func TestFirstTransactionAfterReturnsZeroOnExhaustion(t *testing.T) {
	db := mustOpenDB(t)
	next, err := db.FirstTransactionAfter(repository.NewTimestamp(1, 0), "QNobody")
	if err != nil {
		t.Fatalf("first transaction after: %v", err)
	}
	if !next.IsZero() {
		t.Fatalf("expected zero timestamp, got %v", next)
	}
}

func TestDeployATAndATAddresses(t *testing.T) {
	db := mustOpenDB(t)
	creator := [32]byte{1, 2, 3}
	info := repository.ATMetadata{Name: "escrow", Description: "a test AT", ATType: "escrow", Tags: "demo"}
	if err := db.DeployAT("QAtOne", creator, 10, []byte{0xDE, 0xAD}, info); err != nil {
		t.Fatalf("deploy AT: %v", err)
	}
	if err := db.DeployAT("QAtTwo", creator, 11, []byte{0xBE, 0xEF}, repository.ATMetadata{}); err != nil {
		t.Fatalf("deploy AT: %v", err)
	}

	addrs, err := db.ATAddresses()
	if err != nil {
		t.Fatalf("AT addresses: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 AT addresses, got %d", len(addrs))
	}

	height, err := db.ATCreationHeight("QAtOne")
	if err != nil || height != 10 {
		t.Fatalf("ATCreationHeight = %d, %v, want 10", height, err)
	}

	gotCreator, err := db.ATCreatorPublicKey("QAtTwo")
	if err != nil || gotCreator != creator {
		t.Fatalf("ATCreatorPublicKey mismatch: %v", err)
	}

	blob, err := db.ATBlob("QAtOne")
	if err != nil || string(blob) != string([]byte{0xDE, 0xAD}) {
		t.Fatalf("ATBlob mismatch: %v", err)
	}

	gotInfo, err := db.ATMetadata("QAtOne")
	if err != nil || gotInfo != info {
		t.Fatalf("ATMetadata mismatch: got %+v, err %v", gotInfo, err)
	}
}

func TestPutAccountRoundTrips(t *testing.T) {
	db := mustOpenDB(t)
	ref := repository.AccountRef{Address: "QSomeone", ConfirmedBalance: 777}
	ref.LastReference[0] = 0x42
	if err := db.PutAccount(ref); err != nil {
		t.Fatalf("put account: %v", err)
	}

	got, err := db.AccountByAddress("QSomeone")
	if err != nil {
		t.Fatalf("account by address: %v", err)
	}
	if got.ConfirmedBalance != 777 || got.LastReference[0] != 0x42 {
		t.Fatalf("unexpected account: %+v", got)
	}
}
