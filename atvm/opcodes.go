package atvm

import "qortal.dev/node/binutil"

// Opcodes. The core set (NOP, SET_VAL, ADD, SUB, jumps, STOP/FINISH/SLEEP)
// is the CIYAM AT v2 instruction set; the four EXT_FUN* opcodes are the
// extension-function family dispatched through the platform API with
// 16-bit, consensus-stable function codes.
const (
	OpNop             byte = 0x00
	OpSetVal          byte = 0x01
	OpAdd             byte = 0x02
	OpSub             byte = 0x03
	OpJump            byte = 0x04
	OpJumpIfZero      byte = 0x05
	OpJumpIfNotZero   byte = 0x06
	OpExtFun          byte = 0x10
	OpExtFunDat       byte = 0x11
	OpExtFunRet       byte = 0x12
	OpExtFunRetDat2   byte = 0x13
	OpStop            byte = 0xF0
	OpFinish          byte = 0xF1
	OpSleep           byte = 0xF2
)

// stepsPerFunctionCall is the cost (in steps) of each extension-function
// opcode; every other opcode costs exactly one step.
const stepsPerFunctionCall = 10

// isExtensionOpcode reports whether op is one of the four EXT_FUN* family
// members. "Calls into the platform API" and "is charged the
// function-call cost" are defined as exactly coextensive with this opcode
// range — there is no opcode outside it that reaches the platform API.
func isExtensionOpcode(op byte) bool {
	return op >= OpExtFun && op <= OpExtFunRetDat2
}

// Functions is the VM's view of the platform API: a single dispatch
// point keyed by 16-bit function code, taking the machine state (so
// functions may read/write A/B directly, e.g. putPreviousBlockHashIntoA)
// plus up to two immediate arguments encoded in the instruction stream.
// A concrete implementation lives in package atapi.
type Functions interface {
	Invoke(code uint16, m *MachineState, args []uint64) (uint64, error)
}

// ErrIllegalOpcode is returned by Step when the bytecode contains an opcode
// this VM does not recognize. The caller (the runner, C5) treats this as an
// ATFatalError: the round is aborted and emissions discarded.
var ErrIllegalOpcode = illegalOpcodeError{}

type illegalOpcodeError struct{}

func (illegalOpcodeError) Error() string { return "atvm: illegal opcode" }

// ErrStepOverrun is returned by Run when maxSteps is exhausted mid-round.
var ErrStepOverrun = stepOverrunError{}

type stepOverrunError struct{}

func (stepOverrunError) Error() string { return "atvm: step budget exhausted" }

// Step executes exactly one instruction if the machine is runnable,
// advancing PC and StepsUsed. It returns (continue, err): continue is
// false once the machine stops, finishes, freezes, sleeps, or errors;
// err is non-nil for an illegal opcode or when an EXT_FUN* call's
// platform function returns an error.
func (m *MachineState) Step(fns Functions) (bool, error) {
	if !m.CanRun() {
		return false, nil
	}

	c := binutil.NewCursor(m.Bytecode)
	// Seek the cursor to PC by re-slicing; Bytecode is immutable so this
	// is just a bounds-checked view starting at PC.
	if int(m.PC) > len(m.Bytecode) {
		m.Error = true
		return false, ErrIllegalOpcode
	}
	c = binutil.NewCursor(m.Bytecode[m.PC:])

	op, err := c.ReadU8()
	if err != nil {
		// Running off the end of the bytecode segment finishes the AT,
		// mirroring CIYAM AT's implicit FINISH at end-of-code.
		m.Finished = true
		return false, nil
	}

	switch op {
	case OpNop:
		// no-op

	case OpSetVal:
		regByte, err := c.ReadU8()
		if err != nil || regByte >= byte(regCount) {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		val, err := c.ReadU64LE()
		if err != nil {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		m.Set(Reg(regByte), val)

	case OpAdd, OpSub:
		dstByte, err := c.ReadU8()
		if err != nil || dstByte >= byte(regCount) {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		srcByte, err := c.ReadU8()
		if err != nil || srcByte >= byte(regCount) {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		dst, src := Reg(dstByte), Reg(srcByte)
		if op == OpAdd {
			m.Set(dst, m.Get(dst)+m.Get(src))
		} else {
			m.Set(dst, m.Get(dst)-m.Get(src))
		}

	case OpJump:
		addr, err := c.ReadU32LE()
		if err != nil {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		m.chargeStep(op)
		m.PC = addr
		return true, nil

	case OpJumpIfZero, OpJumpIfNotZero:
		regByte, err := c.ReadU8()
		if err != nil || regByte >= byte(regCount) {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		addr, err := c.ReadU32LE()
		if err != nil {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		zero := m.Get(Reg(regByte)) == 0
		jump := (op == OpJumpIfZero && zero) || (op == OpJumpIfNotZero && !zero)
		m.chargeStep(op)
		if jump {
			m.PC = addr
			return true, nil
		}
		m.PC += uint32(c.Pos())
		return true, nil

	case OpExtFun, OpExtFunDat, OpExtFunRet, OpExtFunRetDat2:
		if err := m.execExtFun(op, c, fns); err != nil {
			m.Error = true
			return false, err
		}

	case OpStop:
		m.Stopped = true
		m.PC += uint32(c.Pos())
		m.chargeStep(op)
		return false, nil

	case OpFinish:
		m.Finished = true
		m.PC += uint32(c.Pos())
		m.chargeStep(op)
		return false, nil

	case OpSleep:
		blocks, err := c.ReadU32LE()
		if err != nil {
			m.Error = true
			return false, ErrIllegalOpcode
		}
		m.Sleeping = true
		m.SleepUntilHeight = m.CurrentHeight + blocks
		m.PC += uint32(c.Pos())
		m.chargeStep(op)
		return false, nil

	default:
		m.Error = true
		return false, ErrIllegalOpcode
	}

	m.PC += uint32(c.Pos())
	m.chargeStep(op)
	return true, nil
}

func (m *MachineState) chargeStep(op byte) {
	if isExtensionOpcode(op) {
		m.StepsUsed += stepsPerFunctionCall
	} else {
		m.StepsUsed++
	}
}

func (m *MachineState) execExtFun(op byte, c *binutil.Cursor, fns Functions) error {
	code, err := c.ReadU16LE()
	if err != nil {
		return ErrIllegalOpcode
	}

	var args []uint64
	var destReg Reg
	hasDest := false

	switch op {
	case OpExtFun:
		// no args, no return consumed
	case OpExtFunDat:
		v, err := c.ReadU64LE()
		if err != nil {
			return ErrIllegalOpcode
		}
		args = []uint64{v}
	case OpExtFunRet:
		regByte, err := c.ReadU8()
		if err != nil || regByte >= byte(regCount) {
			return ErrIllegalOpcode
		}
		destReg, hasDest = Reg(regByte), true
	case OpExtFunRetDat2:
		regByte, err := c.ReadU8()
		if err != nil || regByte >= byte(regCount) {
			return ErrIllegalOpcode
		}
		destReg, hasDest = Reg(regByte), true
		v1, err := c.ReadU64LE()
		if err != nil {
			return ErrIllegalOpcode
		}
		v2, err := c.ReadU64LE()
		if err != nil {
			return ErrIllegalOpcode
		}
		args = []uint64{v1, v2}
	}

	ret, err := fns.Invoke(code, m, args)
	if err != nil {
		return err
	}
	if hasDest {
		m.Set(destReg, ret)
	}
	return nil
}

// Run executes steps until the machine suspends (stop/finish/freeze/sleep),
// hits an illegal opcode, or the step budget maxSteps for this round is
// exhausted. An overrun is fatal for the round: the error
// flag is set and no further opcodes execute, but the machine's persisted
// PC/registers reflect the state at the moment of overrun (the runner
// discards any emissions regardless).
func (m *MachineState) Run(fns Functions, maxSteps uint32) error {
	for m.CanRun() {
		if m.StepsUsed >= maxSteps {
			m.Error = true
			return ErrStepOverrun
		}
		cont, err := m.Step(fns)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
