package classfile

import "fmt"

// switchPad returns the number of alignment zero bytes following a
// tableswitch or lookupswitch opcode at the given offset, so that the
// default offset starts on a 4-byte boundary relative to the start of
// the code.
func switchPad(opcodeOffset int) int {
	return (4 - (opcodeOffset+1)%4) % 4
}

// instructionSize returns the full encoded length of the instruction at
// pos, including variable-length switch tables and wide prefixes.
func instructionSize(code []byte, pos int) (int, error) {
	op := Opcode(code[pos])
	n := operandBytes[op]
	if n >= 0 {
		return 1 + int(n), nil
	}
	switch op {
	case Wide:
		if pos+1 >= len(code) {
			return 0, fmt.Errorf("truncated wide instruction at offset %d", pos)
		}
		if Opcode(code[pos+1]) == Iinc {
			return 6, nil
		}
		return 4, nil
	case Tableswitch:
		pad := switchPad(pos)
		base := pos + 1 + pad
		if base+12 > len(code) {
			return 0, fmt.Errorf("truncated tableswitch at offset %d", pos)
		}
		low := int32(beU32(code, base+4))
		high := int32(beU32(code, base+8))
		return 1 + pad + 12 + 4*int(high-low+1), nil
	case Lookupswitch:
		pad := switchPad(pos)
		base := pos + 1 + pad
		if base+8 > len(code) {
			return 0, fmt.Errorf("truncated lookupswitch at offset %d", pos)
		}
		npairs := int(int32(beU32(code, base+4)))
		return 1 + pad + 8 + 8*npairs, nil
	default:
		return 0, fmt.Errorf("illegal opcode 0x%02X at offset %d", byte(op), pos)
	}
}

func beU16(code []byte, pos int) uint16 {
	return uint16(code[pos])<<8 | uint16(code[pos+1])
}

func beU32(code []byte, pos int) uint32 {
	return uint32(code[pos])<<24 | uint32(code[pos+1])<<16 |
		uint32(code[pos+2])<<8 | uint32(code[pos+3])
}

// branchTargets returns the absolute offsets of all branch targets of
// the instruction at pos, or nil for non-branching instructions.
// Switch results start with the default target.
func branchTargets(code []byte, pos int) []int {
	op := Opcode(code[pos])
	switch {
	case op == Goto || op == Jsr || isConditionalBranch(op):
		return []int{pos + int(int16(beU16(code, pos+1)))}
	case op == GotoW || op == JsrW:
		return []int{pos + int(int32(beU32(code, pos+1)))}
	case op == Tableswitch:
		base := pos + 1 + switchPad(pos)
		low := int32(beU32(code, base+4))
		high := int32(beU32(code, base+8))
		targets := []int{pos + int(int32(beU32(code, base)))}
		for i := 0; i <= int(high-low); i++ {
			targets = append(targets, pos+int(int32(beU32(code, base+12+4*i))))
		}
		return targets
	case op == Lookupswitch:
		base := pos + 1 + switchPad(pos)
		npairs := int(int32(beU32(code, base+4)))
		targets := []int{pos + int(int32(beU32(code, base)))}
		for i := 0; i < npairs; i++ {
			targets = append(targets, pos+int(int32(beU32(code, base+8+8*i+4))))
		}
		return targets
	}
	return nil
}

// endsBlock reports whether control never falls through to the next
// instruction.
func endsBlock(op Opcode) bool {
	switch op {
	case Goto, GotoW, Ret, Tableswitch, Lookupswitch, Athrow,
		Ireturn, Lreturn, Freturn, Dreturn, Areturn, Return:
		return true
	}
	return false
}
