// Package repository declares the abstract ledger-access surface the AT
// engine depends on. Nothing in this package knows about SQL schemas,
// connection pools, or the HTTP/REST surface; a concrete implementation
// lives in qortal.dev/node/node/store.
package repository

// Timestamp is a packed 64-bit position in the chain: the high 32 bits are
// the block height, the low 32 bits are the transaction's sequence number
// within that block. Ordering is lexicographic on (height, sequence). The
// zero value means "no transaction found".
type Timestamp uint64

// NewTimestamp packs a (height, sequence) pair.
func NewTimestamp(height, sequence uint32) Timestamp {
	return Timestamp(uint64(height)<<32 | uint64(sequence))
}

// Height returns the block height component.
func (t Timestamp) Height() uint32 { return uint32(t >> 32) }

// Sequence returns the in-block sequence component.
func (t Timestamp) Sequence() uint32 { return uint32(t) }

// IsZero reports whether t is the sentinel "no transaction" timestamp.
func (t Timestamp) IsZero() bool { return t == 0 }

// Less reports whether t orders strictly before other.
func (t Timestamp) Less(other Timestamp) bool { return t < other }

// TxKind enumerates the transaction kinds the AT platform API
// distinguishes.
type TxKind uint8

const (
	TxKindPayment TxKind = iota
	TxKindMessage
	TxKindAT
	TxKindOther // anything the platform API treats as unknown
)

// NoGroup is the group id used for AT-emitted transactions, which are not
// submitted on behalf of any particular group.
const NoGroup uint32 = 0

// TransactionData is the subset of an on-chain transaction's fields the AT
// engine and the swap CLI ever need to read.
type TransactionData struct {
	Kind      TxKind
	Timestamp Timestamp
	Signature [64]byte
	Reference [64]byte // signature of the previous transaction by this creator

	CreatorPublicKey [32]byte
	GroupID          uint32
	Fee              uint64

	// Recipients lists every account address this transaction pays or
	// messages. PAYMENT/AT transactions have exactly one; used by
	// putTransactionAfterTimestampIntoA's recipient-set scan.
	Recipients []string

	Amount  uint64 // meaningful for PAYMENT and amount-carrying AT txs
	HasAmount bool  // false for MESSAGE and amount-less AT txs
	Message []byte // meaningful for MESSAGE and AT txs carrying a message
}

// BlockSummary is a height+signature pair, the minimal identity of a block
// needed by putPreviousBlockHashIntoA and median-time-past style scans.
type BlockSummary struct {
	Height    uint32
	Signature [64]byte
	Timestamp uint64
}

// AccountRef is an on-chain account's AT-relevant state: its last
// transaction reference (for chaining new emissions) and its confirmed
// balance in the native asset.
type AccountRef struct {
	Address          string
	LastReference     [64]byte
	ConfirmedBalance uint64
}

// ATMetadata is the informational, non-consensus-critical description
// carried alongside an AT's creation record: the fields an explorer or
// index would want to display, with no effect on execution.
type ATMetadata struct {
	Name        string
	Description string
	ATType      string
	Tags        string
}

// Repository is the abstract, read-mostly view over the ledger that the AT
// runner and platform API use during block application. All reads
// are read-only for the duration of one block's AT rounds; writes
// (AT blob persistence, emitted transactions) are collected by the caller
// and applied atomically alongside block application — this interface only
// exposes the write methods the AT engine itself needs.
type Repository interface {
	// BlockByHeight returns the summary of the block at height, or an
	// error if the chain is not yet that tall.
	BlockByHeight(height uint32) (BlockSummary, error)

	// LastBlock returns the most recently applied block's summary.
	LastBlock() (BlockSummary, error)

	// BlockchainHeight returns the height of the last applied block.
	BlockchainHeight() (uint32, error)

	// TransactionAt returns the transaction at the given packed timestamp.
	TransactionAt(ts Timestamp) (TransactionData, error)

	// TransactionBySignature looks up a transaction by its signature. The
	// platform API does not call it: A1-addressed transactions are loaded
	// with TransactionAt and then checked against A2..A4.
	TransactionBySignature(sig [64]byte) (TransactionData, error)

	// FirstTransactionAfter scans forward from (exclusive) the given
	// timestamp for the first transaction whose Recipients contains
	// address. It returns (zero Timestamp, nil) on exhaustion, never an
	// error, since "nothing found" is a normal outcome for AT scans.
	FirstTransactionAfter(ts Timestamp, address string) (Timestamp, error)

	// AccountByAddress returns the AT-relevant account state.
	AccountByAddress(address string) (AccountRef, error)

	// AccountByPublicKey derives the account address for a raw public
	// key and returns its AT-relevant state.
	AccountByPublicKey(pubKey [32]byte) (AccountRef, error)

	// ATBlob reads the opaque, serialized MachineState blob for the AT at
	// address.
	ATBlob(address string) ([]byte, error)

	// PutATBlob persists the serialized MachineState blob for the AT at
	// address. Called by the runner once per block for each AT that ran;
	// skipped ATs (asleep, stopped, finished, frozen) are not rewritten.
	PutATBlob(address string, blob []byte) error

	// ATCreationHeight returns the block height at which the AT at
	// address was deployed.
	ATCreationHeight(address string) (uint32, error)

	// ATAddresses returns every currently deployed AT's address, in no
	// particular order; the runner sorts them into the canonical
	// address-ascending processing order itself.
	ATAddresses() ([]string, error)

	// ATCreatorPublicKey returns the public key of the account that
	// deployed the AT at address, used by putCreatorAddressIntoB and by
	// onFinished's refund-to-creator payout.
	ATCreatorPublicKey(address string) ([32]byte, error)
}
