package atapi

import (
	"testing"

	"qortal.dev/node/atvm"
	"qortal.dev/node/binutil"
	"qortal.dev/node/repository"
)

type fakeRepo struct {
	byTimestamp map[repository.Timestamp]repository.TransactionData
	byAddress   map[string]repository.AccountRef
	blocks      map[uint32]repository.BlockSummary
	height      uint32
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byTimestamp: map[repository.Timestamp]repository.TransactionData{},
		byAddress:   map[string]repository.AccountRef{},
		blocks:      map[uint32]repository.BlockSummary{},
	}
}

func (r *fakeRepo) BlockByHeight(h uint32) (repository.BlockSummary, error) { return r.blocks[h], nil }
func (r *fakeRepo) LastBlock() (repository.BlockSummary, error)             { return r.blocks[r.height], nil }
func (r *fakeRepo) BlockchainHeight() (uint32, error)                       { return r.height, nil }
func (r *fakeRepo) TransactionAt(ts repository.Timestamp) (repository.TransactionData, error) {
	return r.byTimestamp[ts], nil
}
func (r *fakeRepo) TransactionBySignature(sig [64]byte) (repository.TransactionData, error) {
	for _, tx := range r.byTimestamp {
		if tx.Signature == sig {
			return tx, nil
		}
	}
	return repository.TransactionData{}, nil
}
func (r *fakeRepo) FirstTransactionAfter(ts repository.Timestamp, address string) (repository.Timestamp, error) {
	return 0, nil
}
func (r *fakeRepo) AccountByAddress(address string) (repository.AccountRef, error) {
	return r.byAddress[address], nil
}
func (r *fakeRepo) AccountByPublicKey(pubKey [32]byte) (repository.AccountRef, error) {
	return repository.AccountRef{}, nil
}
func (r *fakeRepo) ATBlob(address string) ([]byte, error)           { return nil, nil }
func (r *fakeRepo) PutATBlob(address string, blob []byte) error     { return nil }
func (r *fakeRepo) ATCreationHeight(address string) (uint32, error) { return 0, nil }
func (r *fakeRepo) ATAddresses() ([]string, error)                  { return nil, nil }
func (r *fakeRepo) ATCreatorPublicKey(address string) ([32]byte, error) {
	return [32]byte{}, nil
}

func TestGetTypeFromTransactionInAVerifiesFingerprint(t *testing.T) {
	repo := newFakeRepo()
	ts := repository.NewTimestamp(5, 1)
	tx := repository.TransactionData{Kind: repository.TxKindPayment, Timestamp: ts, Signature: [64]byte{1, 2, 3}}
	repo.byTimestamp[ts] = tx

	ctx := &Context{Repo: repo, CurrentHeight: 6}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.Set(atvm.RegA1, uint64(ts))
	digest := binutil.Sha192(tx.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)

	kind, err := api.Invoke(FnGetTypeFromTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if kind != uint64(repository.TxKindPayment) {
		t.Fatalf("kind = %d, want %d", kind, repository.TxKindPayment)
	}
}

func TestGetTypeFromTransactionInACollapsesATKindToPayment(t *testing.T) {
	repo := newFakeRepo()
	ts := repository.NewTimestamp(5, 1)
	tx := repository.TransactionData{Kind: repository.TxKindAT, Timestamp: ts, Signature: [64]byte{1, 2, 3}, HasAmount: true, Amount: 4}
	repo.byTimestamp[ts] = tx

	ctx := &Context{Repo: repo, CurrentHeight: 6}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.Set(atvm.RegA1, uint64(ts))
	digest := binutil.Sha192(tx.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)

	kind, err := api.Invoke(FnGetTypeFromTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if kind != uint64(repository.TxKindPayment) {
		t.Fatalf("kind = %d, want PAYMENT (%d)", kind, repository.TxKindPayment)
	}
}

func TestGetTypeFromTransactionInACollapsesATKindToMessage(t *testing.T) {
	repo := newFakeRepo()
	ts := repository.NewTimestamp(5, 1)
	tx := repository.TransactionData{Kind: repository.TxKindAT, Timestamp: ts, Signature: [64]byte{1, 2, 3}, HasAmount: false}
	repo.byTimestamp[ts] = tx

	ctx := &Context{Repo: repo, CurrentHeight: 6}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.Set(atvm.RegA1, uint64(ts))
	digest := binutil.Sha192(tx.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)

	kind, err := api.Invoke(FnGetTypeFromTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if kind != uint64(repository.TxKindMessage) {
		t.Fatalf("kind = %d, want MESSAGE (%d)", kind, repository.TxKindMessage)
	}
}

func TestGetTypeFromTransactionInAFailsOnFingerprintMismatch(t *testing.T) {
	repo := newFakeRepo()
	ts := repository.NewTimestamp(5, 1)
	repo.byTimestamp[ts] = repository.TransactionData{Timestamp: ts, Signature: [64]byte{1, 2, 3}}

	ctx := &Context{Repo: repo, CurrentHeight: 6}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.Set(atvm.RegA1, uint64(ts))
	// A2..A4 left zero: wrong fingerprint.

	if _, err := api.Invoke(FnGetTypeFromTransactionInA, m, nil); err == nil {
		t.Fatal("expected fingerprint mismatch error")
	}
}

func TestGetTypeFromTransactionInAWithNoTransactionReturnsSentinel(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), CurrentHeight: 1}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)

	kind, err := api.Invoke(FnGetTypeFromTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if kind != sentinelAllOnes {
		t.Fatalf("kind = %x, want all-ones sentinel", kind)
	}
}

func TestPutPreviousBlockHashIntoAAtGenesisZeroesA(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), CurrentHeight: 0}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.A = [4]uint64{9, 9, 9, 9}

	if _, err := api.Invoke(FnPutPreviousBlockHashIntoA, m, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if m.A != ([4]uint64{}) {
		t.Fatal("expected A cleared at genesis")
	}
}

func TestGenerateRandomIsTwoPhase(t *testing.T) {
	repo := newFakeRepo()
	ts := repository.NewTimestamp(5, 1)
	tx := repository.TransactionData{Timestamp: ts, Signature: [64]byte{7, 7, 7}}
	repo.byTimestamp[ts] = tx

	ctx := &Context{Repo: repo, CurrentHeight: 6, LatestBlockSig: [64]byte{4, 4, 4}}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)
	m.Set(atvm.RegA1, uint64(ts))
	digest := binutil.Sha192(tx.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)

	ret, err := api.Invoke(FnGenerateRandomUsingTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if ret != 0 || !m.PendingRandom || !m.Sleeping {
		t.Fatalf("first call should sleep and return 0: ret=%d pending=%v sleeping=%v", ret, m.PendingRandom, m.Sleeping)
	}

	// Resume: runner would not clear A/B here since PendingRandom is set.
	m.Sleeping = false
	ret2, err := api.Invoke(FnGenerateRandomUsingTransactionInA, m, nil)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if ret2 == 0 {
		t.Fatal("second call should return a derived random value")
	}
	if m.PendingRandom {
		t.Fatal("PendingRandom should clear after second call")
	}
}

func TestPayAmountToBEmitsTransactionAndDebitsBalance(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), ATAddress: "QAtAddress", CurrentHeight: 10, CurrentBalance: 100, StartSequence: 0}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)

	var pubKey [32]byte
	pubKey[0] = 0xAB
	m.B = encodeB32(pubKey)

	if _, err := api.Invoke(FnPayAmountToB, m, []uint64{40}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if ctx.CurrentBalance != 60 {
		t.Fatalf("balance = %d, want 60", ctx.CurrentBalance)
	}
	emissions := api.Emissions()
	if len(emissions) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(emissions))
	}
	if emissions[0].Amount != 40 || !emissions[0].HasAmount {
		t.Fatal("emission amount mismatch")
	}
}

func TestPayAmountToBRejectsInsufficientBalance(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), ATAddress: "QAtAddress", CurrentBalance: 10}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)

	if _, err := api.Invoke(FnPayAmountToB, m, []uint64{50}); err == nil {
		t.Fatal("expected insufficient-funds error")
	}
}

func TestEmissionsChainReferences(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), ATAddress: "QAtAddress", CurrentHeight: 1, CurrentBalance: 100}
	api := New(ctx)
	m := atvm.NewMachineState(nil, nil)

	if _, err := api.Invoke(FnPayAmountToB, m, []uint64{10}); err != nil {
		t.Fatalf("first pay: %v", err)
	}
	if _, err := api.Invoke(FnPayAmountToB, m, []uint64{20}); err != nil {
		t.Fatalf("second pay: %v", err)
	}
	emissions := api.Emissions()
	if emissions[1].Reference != emissions[0].Signature {
		t.Fatal("second emission must reference first emission's signature")
	}
	if emissions[1].Timestamp <= emissions[0].Timestamp {
		t.Fatal("emission timestamps must be strictly increasing")
	}
}

func TestAddMinutesToTimestampAdvancesHeight(t *testing.T) {
	ctx := &Context{Repo: newFakeRepo(), MinutesPerBlock: 10}
	api := New(ctx)
	start := repository.NewTimestamp(100, 7)

	got := api.addMinutesToTimestamp(uint64(start), 25)
	gotTs := repository.Timestamp(got)
	if gotTs.Height() != 103 {
		t.Fatalf("height = %d, want 103", gotTs.Height())
	}
}
