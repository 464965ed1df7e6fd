package atvm

import (
	"fmt"

	"qortal.dev/node/binutil"
)

// Disassemble renders bytecode as one human-readable line per instruction.
// It is a debugging aid only — not consensus-critical — supplementing the
// execution engine the way the original CIYAM AT tooling paired its opcode
// table with descriptive disassembly.
func Disassemble(bytecode []byte) ([]string, error) {
	var lines []string
	pc := uint32(0)
	for int(pc) < len(bytecode) {
		c := binutil.NewCursor(bytecode[pc:])
		start := pc
		op, err := c.ReadU8()
		if err != nil {
			break
		}
		var text string
		switch op {
		case OpNop:
			text = "NOP"
		case OpSetVal:
			reg, rerr := c.ReadU8()
			val, verr := c.ReadU64LE()
			if rerr != nil || verr != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("SET_VAL r%d, %d", reg, val)
		case OpAdd, OpSub:
			dst, derr := c.ReadU8()
			src, serr := c.ReadU8()
			if derr != nil || serr != nil {
				return nil, ErrIllegalOpcode
			}
			name := "ADD"
			if op == OpSub {
				name = "SUB"
			}
			text = fmt.Sprintf("%s r%d, r%d", name, dst, src)
		case OpJump:
			addr, err := c.ReadU32LE()
			if err != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("JUMP %d", addr)
		case OpJumpIfZero, OpJumpIfNotZero:
			reg, rerr := c.ReadU8()
			addr, aerr := c.ReadU32LE()
			if rerr != nil || aerr != nil {
				return nil, ErrIllegalOpcode
			}
			name := "JUMP_IF_ZERO"
			if op == OpJumpIfNotZero {
				name = "JUMP_IF_NOT_ZERO"
			}
			text = fmt.Sprintf("%s r%d, %d", name, reg, addr)
		case OpExtFun:
			code, err := c.ReadU16LE()
			if err != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("EXT_FUN 0x%04x", code)
		case OpExtFunDat:
			code, cerr := c.ReadU16LE()
			v, verr := c.ReadU64LE()
			if cerr != nil || verr != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("EXT_FUN_DAT 0x%04x, %d", code, v)
		case OpExtFunRet:
			code, cerr := c.ReadU16LE()
			reg, rerr := c.ReadU8()
			if cerr != nil || rerr != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("EXT_FUN_RET 0x%04x, r%d", code, reg)
		case OpExtFunRetDat2:
			code, cerr := c.ReadU16LE()
			reg, rerr := c.ReadU8()
			v1, e1 := c.ReadU64LE()
			v2, e2 := c.ReadU64LE()
			if cerr != nil || rerr != nil || e1 != nil || e2 != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("EXT_FUN_RET_DAT_2 0x%04x, r%d, %d, %d", code, reg, v1, v2)
		case OpStop:
			text = "STOP"
		case OpFinish:
			text = "FINISH"
		case OpSleep:
			blocks, err := c.ReadU32LE()
			if err != nil {
				return nil, ErrIllegalOpcode
			}
			text = fmt.Sprintf("SLEEP %d", blocks)
		default:
			return nil, ErrIllegalOpcode
		}
		pc = start + uint32(c.Pos())
		lines = append(lines, fmt.Sprintf("%04x: %s", start, text))
	}
	return lines, nil
}
