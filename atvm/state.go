// Package atvm implements the deterministic, gas-metered AT (Automated
// Transaction) virtual machine: its machine state, canonical wire
// serialization, and the CIYAM AT v2-derived instruction set.
package atvm

import "qortal.dev/node/binutil"

// Reg identifies one of the eight 64-bit scratch lanes: A1..A4 then B1..B4.
type Reg uint8

const (
	RegA1 Reg = iota
	RegA2
	RegA3
	RegA4
	RegB1
	RegB2
	RegB3
	RegB4
	regCount
)

// flag bits packed into the single state byte of the wire format.
// flagPendingRandom uses a spare bit rather than widening the blob, since
// the byte layout is consensus-critical.
const (
	flagStopped byte = 1 << iota
	flagFinished
	flagFrozen
	flagSleeping
	flagError
	flagPendingRandom
)

// MachineState is the full, serializable state of one AT's virtual
// machine: its immutable bytecode, its mutable data segment, the A/B
// scratch registers, the program counter, the step counter for the current
// round, and the bookkeeping the block runner needs between rounds.
type MachineState struct {
	Bytecode []byte // immutable after deployment
	Data     []byte // mutable data segment

	A [4]uint64
	B [4]uint64

	PC uint32

	Stopped  bool
	Finished bool
	Frozen   bool
	Sleeping bool
	Error    bool

	// PendingRandom is set while generateRandomUsingTransactionInA is
	// waiting out its one-block sleep; when set, the runner must not
	// clear A/B on the next round, since the second call re-reads the
	// transaction recorded in A by the first call.
	PendingRandom bool

	StepsUsed uint32 // steps consumed so far in the current round

	SleepUntilHeight uint32
	PreviousBalance  uint64 // balance left at the end of the previous round; the runner records it but never compares it with the account balance

	// CurrentHeight is the block height this round is executing at. It is
	// set by the runner before each call to Run and is not part of the
	// persisted state; the plain SLEEP opcode uses it to turn a
	// relative "sleep N blocks" request into the absolute SleepUntilHeight
	// the runner's skip check compares against.
	CurrentHeight uint32
}

// NewMachineState builds a freshly deployed AT's machine state: program
// counter at zero, registers clear, bytecode and an initial data segment as
// supplied at deployment time.
func NewMachineState(bytecode, data []byte) *MachineState {
	return &MachineState{
		Bytecode: append([]byte(nil), bytecode...),
		Data:     append([]byte(nil), data...),
	}
}

// Get reads one scratch lane.
func (m *MachineState) Get(r Reg) uint64 {
	if r < RegB1 {
		return m.A[r]
	}
	return m.B[r-RegB1]
}

// Set writes one scratch lane.
func (m *MachineState) Set(r Reg, v uint64) {
	if r < RegB1 {
		m.A[r] = v
		return
	}
	m.B[r-RegB1] = v
}

// ClearA zeroes all four A lanes.
func (m *MachineState) ClearA() { m.A = [4]uint64{} }

// ClearB zeroes all four B lanes.
func (m *MachineState) ClearB() { m.B = [4]uint64{} }

// ResetRound clears the step counter and scratch registers at the start of
// a round. A/B do not survive a round unless the machine is resuming from
// a sleep that expects post-sleep data; this method always clears them.
// The runner itself uses BeginRound, which keeps A/B when PendingRandom is
// set.
func (m *MachineState) ResetRound() {
	m.StepsUsed = 0
	m.ClearA()
	m.ClearB()
}

// BeginRound starts a new round's step budget. Registers are cleared
// unless clearRegisters is false, which the runner passes when the
// machine is resuming from a sleep that expects post-sleep data (the
// generateRandomUsingTransactionInA two-phase call).
func (m *MachineState) BeginRound(clearRegisters bool) {
	m.StepsUsed = 0
	if clearRegisters {
		m.ClearA()
		m.ClearB()
	}
}

// CanRun reports whether the machine may execute this round.
func (m *MachineState) CanRun() bool {
	return !m.Stopped && !m.Finished && !m.Frozen && !m.Sleeping
}

// Serialize writes the canonical AT state blob layout: bytecode length,
// bytecode, data length, data, A[4×u64 LE], B[4×u64 LE], pc, flags byte,
// stepsUsed u32, sleepUntilHeight u32, previousBalance u64.
func (m *MachineState) Serialize() []byte {
	out := make([]byte, 0, len(m.Bytecode)+len(m.Data)+96)
	out = binutil.AppendCompactSize(out, uint64(len(m.Bytecode)))
	out = append(out, m.Bytecode...)
	out = binutil.AppendCompactSize(out, uint64(len(m.Data)))
	out = append(out, m.Data...)
	for _, v := range m.A {
		out = binutil.AppendU64LE(out, v)
	}
	for _, v := range m.B {
		out = binutil.AppendU64LE(out, v)
	}
	out = binutil.AppendU32LE(out, m.PC)

	var flags byte
	if m.Stopped {
		flags |= flagStopped
	}
	if m.Finished {
		flags |= flagFinished
	}
	if m.Frozen {
		flags |= flagFrozen
	}
	if m.Sleeping {
		flags |= flagSleeping
	}
	if m.Error {
		flags |= flagError
	}
	if m.PendingRandom {
		flags |= flagPendingRandom
	}
	out = append(out, flags)

	out = binutil.AppendU32LE(out, m.StepsUsed)
	out = binutil.AppendU32LE(out, m.SleepUntilHeight)
	out = binutil.AppendU64LE(out, m.PreviousBalance)
	return out
}

// Deserialize is the exact inverse of Serialize.
func Deserialize(blob []byte) (*MachineState, error) {
	c := binutil.NewCursor(blob)

	bclen, err := c.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	bytecode, err := c.ReadBytes(int(bclen))
	if err != nil {
		return nil, err
	}
	datalen, err := c.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	data, err := c.ReadBytes(int(datalen))
	if err != nil {
		return nil, err
	}

	m := &MachineState{
		Bytecode: append([]byte(nil), bytecode...),
		Data:     append([]byte(nil), data...),
	}
	for i := range m.A {
		v, err := c.ReadU64LE()
		if err != nil {
			return nil, err
		}
		m.A[i] = v
	}
	for i := range m.B {
		v, err := c.ReadU64LE()
		if err != nil {
			return nil, err
		}
		m.B[i] = v
	}
	pc, err := c.ReadU32LE()
	if err != nil {
		return nil, err
	}
	m.PC = pc

	flags, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	m.Stopped = flags&flagStopped != 0
	m.Finished = flags&flagFinished != 0
	m.Frozen = flags&flagFrozen != 0
	m.Sleeping = flags&flagSleeping != 0
	m.Error = flags&flagError != 0
	m.PendingRandom = flags&flagPendingRandom != 0

	stepsUsed, err := c.ReadU32LE()
	if err != nil {
		return nil, err
	}
	m.StepsUsed = stepsUsed

	sleepUntil, err := c.ReadU32LE()
	if err != nil {
		return nil, err
	}
	m.SleepUntilHeight = sleepUntil

	prevBalance, err := c.ReadU64LE()
	if err != nil {
		return nil, err
	}
	m.PreviousBalance = prevBalance

	return m, nil
}
