package atapi

import (
	"crypto/sha256"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/atvm"
	"qortal.dev/node/binutil"
	"qortal.dev/node/repository"
)

// Context is the per-round, per-AT environment the platform API reads from
// and writes emissions into. The runner builds a fresh Context before
// calling MachineState.Run and harvests Emissions afterwards.
type Context struct {
	Repo repository.Repository

	ATAddress        string
	ATCreatorPubKey  [32]byte
	ATCreationHeight uint32

	CurrentHeight   uint32
	PreviousBlock   repository.BlockSummary // block at CurrentHeight-1
	LatestBlockSig  [64]byte                // signature of the block being applied this round
	CurrentBalance  uint64                  // AT account's confirmed balance entering this round

	// StartSequence is the first free in-block sequence number this AT may
	// assign to its own emissions. The runner hands out a disjoint sequence
	// band to each AT in address-ascending order, so every emitted
	// transaction's Timestamp is strictly increasing both within one AT's
	// round and across ATs in the same block.
	StartSequence       uint32
	AccountLastReference [64]byte

	// MinutesPerBlock converts a wall-clock minute offset into a block
	// height delta for addMinutesToTimestamp, since this Timestamp type
	// carries no independent notion of wall time.
	MinutesPerBlock uint32

	emissions []repository.TransactionData
}

// API implements atvm.Functions against a Context.
type API struct {
	ctx *Context
}

// New returns an API bound to ctx.
func New(ctx *Context) *API { return &API{ctx: ctx} }

// Emissions returns the AT transactions emitted so far this round, in
// emission order.
func (a *API) Emissions() []repository.TransactionData { return a.ctx.emissions }

var _ atvm.Functions = (*API)(nil)

// Invoke dispatches one EXT_FUN* call by its 16-bit function code.
func (a *API) Invoke(code uint16, m *atvm.MachineState, args []uint64) (uint64, error) {
	switch code {
	case FnCurrentBlockHeight:
		return uint64(a.ctx.CurrentHeight), nil

	case FnATCreationBlockHeight:
		return uint64(a.ctx.ATCreationHeight), nil

	case FnPutPreviousBlockHashIntoA:
		a.putPreviousBlockHashIntoA(m)
		return 0, nil

	case FnPutTransactionAfterTimestampIntoA:
		return 0, a.putTransactionAfterTimestampIntoA(m, repository.Timestamp(arg(args, 0)))

	case FnGetTypeFromTransactionInA:
		return a.getTypeFromTransactionInA(m)

	case FnGetAmountFromTransactionInA:
		return a.getAmountFromTransactionInA(m)

	case FnGetTimestampFromTransactionInA:
		return a.getTimestampFromTransactionInA(m)

	case FnPutAddressFromTransactionInAIntoB:
		return 0, a.putAddressFromTransactionInAIntoB(m)

	case FnPutMessageFromTransactionInAIntoB:
		return 0, a.putMessageFromTransactionInAIntoB(m)

	case FnPutCreatorAddressIntoB:
		m.B = encodeB32(a.ctx.ATCreatorPubKey)
		return 0, nil

	case FnGenerateRandomUsingTransactionInA:
		return a.generateRandomUsingTransactionInA(m)

	case FnCurrentBalance:
		return a.ctx.CurrentBalance, nil

	case FnPayAmountToB:
		return 0, a.payAmountToB(m, arg(args, 0))

	case FnMessageAToB:
		return 0, a.messageAToB(m)

	case FnAddMinutesToTimestamp:
		return a.addMinutesToTimestamp(arg(args, 0), arg(args, 1)), nil

	default:
		return 0, aterrors.New(aterrors.KindATFatalError, "unknown platform function code")
	}
}

// arg returns args[i], or 0 if the opcode that invoked this function did
// not carry that many immediates — mirroring binutil.FromLE's tolerant
// decoding rather than treating a code/opcode mismatch as fatal.
func arg(args []uint64, i int) uint64 {
	if i < 0 || i >= len(args) {
		return 0
	}
	return args[i]
}

// packFingerprint packs a 24-byte SHA-192 digest into three little-endian
// 64-bit lanes, the layout A2..A4 use to fingerprint a transaction's
// signature.
func packFingerprint(digest [24]byte) (a2, a3, a4 uint64) {
	return binutil.FromLE(digest[:], 0), binutil.FromLE(digest[:], 8), binutil.FromLE(digest[:], 16)
}

// loadVerifiedTxFromA resolves the transaction addressed by A1 and
// re-verifies that its signature's SHA-192 fingerprint matches A2..A4,
// exactly as every "...FromTransactionInA" accessor must.
// A1 == 0 means "no transaction addressed"; ok is false in that case
// without it being an error. A fingerprint mismatch against a
// non-zero A1 is an ATFatalError: the repository's view of what A1 points
// to no longer matches what the bytecode last saw, which must never
// happen for a well-formed round and indicates a consensus-breaking bug if
// it does.
func (a *API) loadVerifiedTxFromA(m *atvm.MachineState) (tx repository.TransactionData, ok bool, err error) {
	ts := repository.Timestamp(m.Get(atvm.RegA1))
	if ts.IsZero() {
		return repository.TransactionData{}, false, nil
	}
	tx, err = a.ctx.Repo.TransactionAt(ts)
	if err != nil {
		return repository.TransactionData{}, false, aterrors.Wrap(aterrors.KindATFatalError, "transaction addressed by A1 not found", err)
	}
	digest := binutil.Sha192(tx.Signature[:])
	wantA2, wantA3, wantA4 := packFingerprint(digest)
	if m.Get(atvm.RegA2) != wantA2 || m.Get(atvm.RegA3) != wantA3 || m.Get(atvm.RegA4) != wantA4 {
		return repository.TransactionData{}, false, aterrors.New(aterrors.KindATFatalError, "A2..A4 fingerprint does not match transaction addressed by A1")
	}
	return tx, true, nil
}

func (a *API) putPreviousBlockHashIntoA(m *atvm.MachineState) {
	m.ClearA()
	if a.ctx.CurrentHeight == 0 {
		// Genesis has no predecessor; A stays zeroed.
		return
	}
	m.Set(atvm.RegA1, uint64(a.ctx.PreviousBlock.Height))
	digest := binutil.Sha192(a.ctx.PreviousBlock.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)
}

func (a *API) putTransactionAfterTimestampIntoA(m *atvm.MachineState, after repository.Timestamp) error {
	ts, err := a.ctx.Repo.FirstTransactionAfter(after, a.ctx.ATAddress)
	if err != nil {
		return aterrors.Wrap(aterrors.KindATFatalError, "scanning for next transaction", err)
	}
	m.ClearA()
	if ts.IsZero() {
		return nil
	}
	tx, err := a.ctx.Repo.TransactionAt(ts)
	if err != nil {
		return aterrors.Wrap(aterrors.KindATFatalError, "loading scanned transaction", err)
	}
	m.Set(atvm.RegA1, uint64(ts))
	digest := binutil.Sha192(tx.Signature[:])
	a2, a3, a4 := packFingerprint(digest)
	m.Set(atvm.RegA2, a2)
	m.Set(atvm.RegA3, a3)
	m.Set(atvm.RegA4, a4)
	return nil
}

func (a *API) getTypeFromTransactionInA(m *atvm.MachineState) (uint64, error) {
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return 0, err
	}
	if !ok {
		return sentinelAllOnes, nil
	}
	switch tx.Kind {
	case repository.TxKindPayment, repository.TxKindMessage:
		return uint64(tx.Kind), nil
	case repository.TxKindAT:
		if tx.HasAmount {
			return uint64(repository.TxKindPayment), nil
		}
		return uint64(repository.TxKindMessage), nil
	default:
		return sentinelAllOnes, nil
	}
}

func (a *API) getAmountFromTransactionInA(m *atvm.MachineState) (uint64, error) {
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return 0, err
	}
	if !ok || !tx.HasAmount {
		return 0, nil
	}
	return tx.Amount, nil
}

func (a *API) getTimestampFromTransactionInA(m *atvm.MachineState) (uint64, error) {
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return uint64(tx.Timestamp), nil
}

// putAddressFromTransactionInAIntoB writes the 32-byte public key of the
// creator of the transaction currently loaded in A, not the human-readable
// address, because a public key subsumes an address and lets downstream
// bytecode verify signatures.
func (a *API) putAddressFromTransactionInAIntoB(m *atvm.MachineState) error {
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return err
	}
	m.ClearB()
	if !ok {
		return nil
	}
	m.B = encodeB32(tx.CreatorPublicKey)
	return nil
}

// putMessageFromTransactionInAIntoB zeroes B then copies at most the first
// 32 bytes of the transaction-in-A's message; longer messages are silently
// truncated rather than causing an error.
func (a *API) putMessageFromTransactionInAIntoB(m *atvm.MachineState) error {
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return err
	}
	m.ClearB()
	if !ok {
		return nil
	}
	var raw [32]byte
	copy(raw[:], tx.Message)
	m.B = encodeB32(raw)
	return nil
}

// generateRandomUsingTransactionInA implements a two-phase, unpredictable
// random source: the first call commits to the
// transaction currently in A and sleeps one block; the second call (which
// the runner must resume without clearing A) mixes that transaction's
// signature with the signature of the intervening block, which no party
// could have predicted when the first call committed.
func (a *API) generateRandomUsingTransactionInA(m *atvm.MachineState) (uint64, error) {
	if !m.PendingRandom {
		m.PendingRandom = true
		m.Sleeping = true
		m.SleepUntilHeight = a.ctx.CurrentHeight + 1
		return 0, nil
	}
	m.PendingRandom = false
	tx, ok, err := a.loadVerifiedTxFromA(m)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, aterrors.New(aterrors.KindATFatalError, "generateRandomUsingTransactionInA resumed with no transaction committed in A")
	}
	mix := make([]byte, 0, 128)
	mix = append(mix, tx.Signature[:]...)
	mix = append(mix, a.ctx.LatestBlockSig[:]...)
	digest := sha256.Sum256(mix)
	return binutil.FromLE(digest[:], 0), nil
}

func (a *API) payAmountToB(m *atvm.MachineState, amount uint64) error {
	if amount > a.ctx.CurrentBalance {
		return aterrors.New(aterrors.KindInsufficientFunds, "payAmountToB exceeds current AT balance")
	}
	address, pubKey, isAddress := decodeAccountFromB(m.B)
	tx := a.newEmission(address, pubKey, isAddress, amount, true, nil)
	a.ctx.emissions = append(a.ctx.emissions, tx)
	a.ctx.CurrentBalance -= amount
	return nil
}

func (a *API) messageAToB(m *atvm.MachineState) error {
	raw := decodeB32(m.A)
	address, pubKey, isAddress := decodeAccountFromB(m.B)
	tx := a.newEmission(address, pubKey, isAddress, 0, false, raw[:])
	a.ctx.emissions = append(a.ctx.emissions, tx)
	return nil
}

// newEmission builds one AT-emitted transaction, chaining it off the
// previous emission this round (or the AT account's on-chain last
// reference if this is the first), and assigning it the next free
// in-block sequence number (see Context.StartSequence).
func (a *API) newEmission(address string, pubKey [32]byte, isAddress bool, amount uint64, hasAmount bool, message []byte) repository.TransactionData {
	var reference [64]byte
	if n := len(a.ctx.emissions); n > 0 {
		reference = a.ctx.emissions[n-1].Signature
	} else {
		reference = a.ctx.AccountLastReference
	}

	ts := repository.NewTimestamp(a.ctx.CurrentHeight, a.ctx.StartSequence+uint32(len(a.ctx.emissions)))

	recipient := address
	if !isAddress {
		recipient = AddressFromPublicKey(pubKey)
	}

	tx := repository.TransactionData{
		Kind:       repository.TxKindAT,
		Timestamp:  ts,
		Reference:  reference,
		// ATs have no keypair of their own; emitted transactions carry an
		// all-zero "system" public key rather than attempting an ordinary
		// account signature.
		CreatorPublicKey: [32]byte{},
		GroupID:          repository.NoGroup,
		Recipients:       []string{recipient},
		Amount:           amount,
		HasAmount:        hasAmount,
		Message:          message,
	}
	tx.Signature = emissionSignature(a.ctx.ATAddress, tx)
	return tx
}

// emissionSignature deterministically stands in for a real ECDSA signature
// on an AT-emitted transaction: every validator computes the exact same
// bytes from the transaction's own content, so it still serves as a unique
// identity for reference-chaining without requiring the AT to hold a
// private key.
func emissionSignature(atAddress string, tx repository.TransactionData) (sig [64]byte) {
	h := sha256.New()
	h.Write([]byte(atAddress))
	h.Write(binutil.ToLE(uint64(tx.Timestamp)))
	h.Write(binutil.ToLE(tx.Amount))
	if len(tx.Recipients) > 0 {
		h.Write([]byte(tx.Recipients[0]))
	}
	h.Write(tx.Message)
	h.Write(tx.Reference[:])
	first := h.Sum(nil)
	second := sha256.Sum256(first)
	copy(sig[:32], first)
	copy(sig[32:], second[:])
	return sig
}

// OnFinished pays out whatever balance remains to the AT's creator. The
// runner calls this exactly once, in the same round an AT transitions
// into STOP or FINISH, after which the AT never runs again so this can
// never fire twice for the same AT.
func (a *API) OnFinished() {
	amount := a.ctx.CurrentBalance
	if amount == 0 {
		return
	}
	tx := a.newEmission("", a.ctx.ATCreatorPubKey, false, amount, true, nil)
	a.ctx.emissions = append(a.ctx.emissions, tx)
	a.ctx.CurrentBalance = 0
}

// addMinutesToTimestamp advances ts by the block-height equivalent of
// minutes, rounding up, using the network's MinutesPerBlock; the sequence
// component is reset to zero since the result addresses a future block
// boundary, not a specific transaction within it.
func (a *API) addMinutesToTimestamp(ts uint64, minutes uint64) uint64 {
	mpb := uint64(a.ctx.MinutesPerBlock)
	if mpb == 0 {
		mpb = 1
	}
	t := repository.Timestamp(ts)
	blocks := (minutes + mpb - 1) / mpb
	return uint64(repository.NewTimestamp(t.Height()+uint32(blocks), 0))
}
