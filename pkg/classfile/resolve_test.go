package classfile

import "testing"

// decodeBoundaries walks a code array and returns the set of
// instruction-start offsets, failing the test on any decode error.
func decodeBoundaries(t *testing.T, code []byte) map[int]bool {
	t.Helper()
	boundaries := make(map[int]bool)
	for pos := 0; pos < len(code); {
		boundaries[pos] = true
		size, err := instructionSize(code, pos)
		if err != nil {
			t.Fatalf("decode at %d: %v", pos, err)
		}
		pos += size
	}
	return boundaries
}

// checkTargets verifies every branch target lands on an instruction
// boundary.
func checkTargets(t *testing.T, code []byte) {
	t.Helper()
	boundaries := decodeBoundaries(t, code)
	for pos := range boundaries {
		for _, target := range branchTargets(code, pos) {
			if !boundaries[target] {
				t.Errorf("branch at %d targets %d, not an instruction boundary", pos, target)
			}
		}
	}
}

func countOpcode(code []byte, want Opcode) int {
	n := 0
	for pos := 0; pos < len(code); {
		if Opcode(code[pos]) == want {
			n++
		}
		size, err := instructionSize(code, pos)
		if err != nil {
			return n
		}
		pos += size
	}
	return n
}

func TestShortJumpStaysShort(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "(I)I")
		skip := NewLabel()
		m.VarInsn(Iload, 0)
		m.JumpInsn(Ifeq, skip)
		m.Insn(Iconst1)
		m.Insn(Ireturn)
		m.Bind(skip)
		m.Insn(Iconst0)
		m.Insn(Ireturn)
	})

	code := findMethod(t, cf, "f").Code.Code
	if countOpcode(code, GotoW) != 0 {
		t.Error("short jump was widened")
	}
	if Opcode(code[1]) != Ifeq {
		t.Errorf("opcode at 1 = 0x%02X, want ifeq", code[1])
	}
	checkTargets(t, code)
}

func TestConditionalWidening(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "(I)I")
		far := NewLabel()
		m.VarInsn(Iload, 0)
		m.JumpInsn(Ifeq, far)
		for i := 0; i < 40000; i++ {
			m.Insn(Nop)
		}
		m.Insn(Iconst1)
		m.Insn(Ireturn)
		m.Bind(far)
		m.Insn(Iconst0)
		m.Insn(Ireturn)
	})

	code := findMethod(t, cf, "f").Code.Code
	// the conditional inverts and jumps over a goto_w
	if Opcode(code[1]) != Ifne {
		t.Errorf("opcode at 1 = 0x%02X, want ifne", code[1])
	}
	if got := int(int16(beU16(code, 2))); got != 8 {
		t.Errorf("inverted branch offset = %d, want 8", got)
	}
	if Opcode(code[4]) != GotoW {
		t.Errorf("opcode at 4 = 0x%02X, want goto_w", code[4])
	}
	checkTargets(t, code)

	// one frame at the far label, one at the landing point behind the
	// goto_w that the inverted conditional now jumps to
	if n := findMethod(t, cf, "f").Code.FrameNum; n != 2 {
		t.Errorf("frame count = %d, want 2", n)
	}
}

func TestBackwardGotoWidening(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "spin", "()V")
		top := NewLabel()
		m.Bind(top)
		for i := 0; i < 40000; i++ {
			m.Insn(Nop)
		}
		m.JumpInsn(Goto, top)
	})

	code := findMethod(t, cf, "spin").Code.Code
	if countOpcode(code, GotoW) != 1 {
		t.Fatalf("goto_w count = %d, want 1", countOpcode(code, GotoW))
	}
	pos := len(code) - 5
	if Opcode(code[pos]) != GotoW {
		t.Fatalf("opcode at %d = 0x%02X, want goto_w", pos, code[pos])
	}
	if target := pos + int(int32(beU32(code, pos+1))); target != 0 {
		t.Errorf("goto_w target = %d, want 0", target)
	}
	checkTargets(t, code)
}

func TestWideningFixedPointCascade(t *testing.T) {
	// the outer conditional fits in 16 bits exactly until the inner one,
	// nested inside its span, widens and grows the code under it; the
	// pass must iterate until neither changes
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "(I)I")
		mid := NewLabel()
		far := NewLabel()
		m.VarInsn(Iload, 0)
		m.JumpInsn(Ifeq, mid) // delta 32767 before any widening
		m.VarInsn(Iload, 0)
		m.JumpInsn(Iflt, far) // delta 32769, widens first
		for i := 0; i < 32760; i++ {
			m.Insn(Nop)
		}
		m.Bind(mid)
		m.IincInsn(0, 1)
		m.IincInsn(0, 1)
		m.Bind(far)
		m.VarInsn(Iload, 0)
		m.Insn(Ireturn)
	})

	code := findMethod(t, cf, "f").Code.Code
	if got := countOpcode(code, GotoW); got != 2 {
		t.Errorf("goto_w count = %d, want 2 (both conditionals widened)", got)
	}
	checkTargets(t, code)
}

func TestSwitchRepadding(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "sw", "(I)I")
		far := NewLabel()
		one, two, dflt := NewLabel(), NewLabel(), NewLabel()
		m.VarInsn(Iload, 0)
		m.JumpInsn(Ifeq, far)
		m.VarInsn(Iload, 0)
		m.TableSwitchInsn(1, 2, dflt, one, two)
		m.Bind(one)
		m.Insn(Iconst1)
		m.Insn(Ireturn)
		m.Bind(two)
		m.Insn(Iconst2)
		m.Insn(Ireturn)
		m.Bind(dflt)
		// distance that forces the first jump wide, shifting the switch
		// by three bytes and changing its padding
		for i := 0; i < 40000; i++ {
			m.Insn(Nop)
		}
		m.Insn(Iconst0)
		m.Insn(Ireturn)
		m.Bind(far)
		m.Insn(IconstM1)
		m.Insn(Ireturn)
	})

	code := findMethod(t, cf, "sw").Code.Code
	if countOpcode(code, Tableswitch) != 1 {
		t.Fatal("tableswitch missing after rebuild")
	}
	checkTargets(t, code)
}

func TestLookupSwitchSortedKeys(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "sw", "(I)I")
		a, b, dflt := NewLabel(), NewLabel(), NewLabel()
		m.VarInsn(Iload, 0)
		m.LookupSwitchInsn(dflt, []int32{100, -5}, []*Label{a, b})
		m.Bind(a)
		m.Insn(Iconst1)
		m.Insn(Ireturn)
		m.Bind(b)
		m.Insn(Iconst2)
		m.Insn(Ireturn)
		m.Bind(dflt)
		m.Insn(Iconst0)
		m.Insn(Ireturn)
	})

	code := findMethod(t, cf, "sw").Code.Code
	pos := 1 // after iload_0
	if Opcode(code[pos]) != Lookupswitch {
		t.Fatalf("opcode at %d = 0x%02X, want lookupswitch", pos, code[pos])
	}
	base := pos + 1 + switchPad(pos)
	npairs := int(int32(beU32(code, base+4)))
	if npairs != 2 {
		t.Fatalf("npairs = %d, want 2", npairs)
	}
	k0 := int32(beU32(code, base+8))
	k1 := int32(beU32(code, base+16))
	if k0 != -5 || k1 != 100 {
		t.Errorf("keys = %d, %d, want sorted -5, 100", k0, k1)
	}
	checkTargets(t, code)
}
