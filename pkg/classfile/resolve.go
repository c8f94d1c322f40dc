package classfile

import (
	"fmt"
	"math"
	"sort"
)

// keptInsn is one instruction surviving into the final code stream.
type keptInsn struct {
	oldPos  int
	oldSize int
	newPos  int
	ctrl    *ctrlInsn // nil for plain instructions
}

// finalize runs the resolution pass: frame inference, dead-code removal,
// the iterate-to-fixed-point jump widening, and assembly of the final
// code bytes plus the stack map, exception and line number tables.
func (m *MethodWriter) finalize() error {
	if m.finished {
		return fmt.Errorf("method %s%s finalized twice", m.name, m.desc)
	}
	m.finished = true
	if m.err != nil {
		return m.err
	}
	if m.access&(AccAbstract|AccNative) != 0 || m.code.Len() == 0 {
		// no Code attribute
		return nil
	}

	// try-catch regions cannot be proved unreachable before their
	// offsets are known, so their labels must all be bound
	for _, h := range m.handlers {
		if !h.start.bound || !h.end.bound || !h.handler.bound {
			return &UnboundLabelError{SourceOffset: -1}
		}
	}

	var reachable []bool
	if m.computeFrames {
		fc := newFrameComputation(m)
		if err := fc.run(); err != nil {
			return err
		}
		reachable = fc.reachable
	} else {
		r, err := m.computeReachability()
		if err != nil {
			return err
		}
		reachable = r
	}

	kept, dropped, err := m.keptInstructions(reachable)
	if err != nil {
		return err
	}

	newLen, err := m.widenToFixedPoint(kept)
	if err != nil {
		return err
	}
	if newLen > MaxCodeLength {
		return &MethodTooLargeError{
			ClassName:  m.owner(),
			MethodName: m.name,
			Descriptor: m.desc,
			CodeSize:   newLen,
		}
	}

	remap := newOffsetRemap(kept, newLen)

	anyWide := false
	for _, k := range kept {
		if k.ctrl != nil && k.ctrl.wide {
			anyWide = true
			break
		}
	}
	if !anyWide && !dropped {
		m.patchSwitchesInPlace()
		m.finalCode = m.code.Bytes()
	} else {
		m.finalCode = m.rebuild(kept, remap, newLen)
	}

	m.buildExceptionTable(remap)
	m.buildLineTable(remap)
	if m.computeFrames {
		if err := m.encodeStackMap(kept, remap); err != nil {
			return err
		}
	}
	return nil
}

// computeReachability walks the control-flow graph without interpreting
// types, for use when frame computation is disabled. It still proves
// which instructions are dead so that unbound labels referenced only
// from dead code are tolerated.
func (m *MethodWriter) computeReachability() ([]bool, error) {
	code := m.code.Bytes()
	reachable := make([]bool, len(code))
	ctrlAt := make(map[int]*ctrlInsn, len(m.ctrl))
	for _, c := range m.ctrl {
		ctrlAt[c.pos] = c
	}

	work := []int{0}
	enqueue := func(pos int) {
		if pos < len(code) && !reachable[pos] {
			work = append(work, pos)
		}
	}
	for len(work) > 0 {
		pos := work[0]
		work = work[1:]
		for pos < len(code) && !reachable[pos] {
			reachable[pos] = true
			size, err := instructionSize(code, pos)
			if err != nil {
				return nil, err
			}
			op := Opcode(code[pos])
			if c := ctrlAt[pos]; c != nil {
				for _, t := range c.allTargets() {
					if !t.bound {
						return nil, &UnboundLabelError{SourceOffset: pos}
					}
					t.reachable = true
					enqueue(t.offset)
				}
			}
			if endsBlock(op) {
				break
			}
			pos += size
		}
	}

	// handler entries become reachable once any instruction in their
	// range is; a newly live handler can revive more code, so iterate
	for {
		grew := false
		for _, h := range m.handlers {
			if !h.start.bound || !h.end.bound || !h.handler.bound {
				continue
			}
			if h.handler.reachable {
				continue
			}
			for pos := h.start.offset; pos < h.end.offset && pos < len(code); pos++ {
				if reachable[pos] {
					h.handler.reachable = true
					enqueue(h.handler.offset)
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
		for len(work) > 0 {
			pos := work[0]
			work = work[1:]
			for pos < len(code) && !reachable[pos] {
				reachable[pos] = true
				size, err := instructionSize(code, pos)
				if err != nil {
					return nil, err
				}
				op := Opcode(code[pos])
				if c := ctrlAt[pos]; c != nil {
					for _, t := range c.allTargets() {
						if !t.bound {
							return nil, &UnboundLabelError{SourceOffset: pos}
						}
						t.reachable = true
						enqueue(t.offset)
					}
				}
				if endsBlock(op) {
					break
				}
				pos += size
			}
		}
	}
	return reachable, nil
}

// keptInstructions scans the emitted stream and keeps the reachable
// instructions, in order. It reports whether anything was dropped.
func (m *MethodWriter) keptInstructions(reachable []bool) ([]*keptInsn, bool, error) {
	code := m.code.Bytes()
	ctrlAt := make(map[int]*ctrlInsn, len(m.ctrl))
	for _, c := range m.ctrl {
		ctrlAt[c.pos] = c
	}
	var kept []*keptInsn
	dropped := false
	for pos := 0; pos < len(code); {
		size, err := instructionSize(code, pos)
		if err != nil {
			return nil, false, err
		}
		if reachable[pos] {
			kept = append(kept, &keptInsn{oldPos: pos, oldSize: size, ctrl: ctrlAt[pos]})
		} else {
			dropped = true
		}
		pos += size
	}
	return kept, dropped, nil
}

// widenToFixedPoint assigns final positions to the kept instructions,
// promoting any jump whose offset exceeds the signed 16-bit range to its
// wide encoding. Widening one jump shifts every later offset, so the
// pass repeats until an iteration widens nothing. Termination is
// guaranteed: wide flags are sticky and only grow the method.
func (m *MethodWriter) widenToFixedPoint(kept []*keptInsn) (int, error) {
	for {
		// assign positions under the current wide flags
		pos := 0
		for _, k := range kept {
			k.newPos = pos
			if k.ctrl != nil {
				pos += k.ctrl.newSize(k.newPos)
			} else {
				pos += k.oldSize
			}
		}
		newLen := pos

		remap := newOffsetRemap(kept, newLen)
		changed := false
		for _, k := range kept {
			c := k.ctrl
			if c == nil || c.kind != ctrlJump || c.wide || c.op == GotoW || c.op == JsrW {
				continue
			}
			if !c.target.bound {
				return 0, &UnboundLabelError{SourceOffset: c.pos}
			}
			delta := remap(c.target.offset) - k.newPos
			if delta < math.MinInt16 || delta > math.MaxInt16 {
				c.wide = true
				changed = true
			}
		}
		if !changed {
			return newLen, nil
		}
	}
}

// newOffsetRemap maps original bytecode offsets to final ones. Offsets
// inside dropped ranges resolve to the next kept instruction, and the
// end of the original code maps to the end of the final code.
func newOffsetRemap(kept []*keptInsn, newLen int) func(int) int {
	return func(old int) int {
		i := sort.Search(len(kept), func(i int) bool {
			return kept[i].oldPos >= old
		})
		if i < len(kept) {
			return kept[i].newPos
		}
		return newLen
	}
}

// patchSwitchesInPlace fills the 32-bit switch offsets directly in the
// emitted buffer. Used on the fast path, when no instruction moved.
func (m *MethodWriter) patchSwitchesInPlace() {
	for _, c := range m.ctrl {
		if c.kind == ctrlJump {
			continue
		}
		base := c.pos + 1 + switchPad(c.pos)
		m.code.SetU32(base, uint32(int32(c.dflt.offset-c.pos)))
		switch c.kind {
		case ctrlTableSwitch:
			for i, t := range c.targets {
				m.code.SetU32(base+12+4*i, uint32(int32(t.offset-c.pos)))
			}
		case ctrlLookupSwitch:
			for i, t := range c.targets {
				m.code.SetU32(base+8+8*i+4, uint32(int32(t.offset-c.pos)))
			}
		}
	}
}

// rebuild re-encodes the kept instructions at their final positions,
// emitting wide jump forms where the resolution pass demanded them.
func (m *MethodWriter) rebuild(kept []*keptInsn, remap func(int) int, newLen int) []byte {
	out := NewBuffer(newLen)
	code := m.code.Bytes()
	for _, k := range kept {
		c := k.ctrl
		if c == nil {
			out.PutBytes(code[k.oldPos : k.oldPos+k.oldSize])
			continue
		}
		switch c.kind {
		case ctrlJump:
			target := remap(c.target.offset)
			switch {
			case c.op == GotoW || c.op == JsrW:
				out.PutU8(byte(c.op))
				out.PutU32(uint32(int32(target - k.newPos)))
			case !c.wide:
				out.PutU8(byte(c.op))
				out.PutU16(uint16(int16(target - k.newPos)))
			case c.op == Goto:
				out.PutU8(byte(GotoW))
				out.PutU32(uint32(int32(target - k.newPos)))
			case c.op == Jsr:
				out.PutU8(byte(JsrW))
				out.PutU32(uint32(int32(target - k.newPos)))
			default:
				// No wide conditional form exists: invert the condition
				// to skip over a goto_w to the real target.
				out.PutU8(byte(oppositeBranch(c.op)))
				out.PutU16(8)
				out.PutU8(byte(GotoW))
				out.PutU32(uint32(int32(target - (k.newPos + 3))))
			}
		case ctrlTableSwitch:
			out.PutU8(byte(Tableswitch))
			for i := 0; i < switchPad(k.newPos); i++ {
				out.PutU8(0)
			}
			out.PutU32(uint32(int32(remap(c.dflt.offset) - k.newPos)))
			out.PutU32(uint32(c.low))
			out.PutU32(uint32(c.high))
			for _, t := range c.targets {
				out.PutU32(uint32(int32(remap(t.offset) - k.newPos)))
			}
		case ctrlLookupSwitch:
			out.PutU8(byte(Lookupswitch))
			for i := 0; i < switchPad(k.newPos); i++ {
				out.PutU8(0)
			}
			out.PutU32(uint32(int32(remap(c.dflt.offset) - k.newPos)))
			out.PutU32(uint32(len(c.keys)))
			for i, key := range c.keys {
				out.PutU32(uint32(key))
				out.PutU32(uint32(int32(remap(c.targets[i].offset) - k.newPos)))
			}
		}
	}
	return out.Bytes()
}

// buildExceptionTable remaps handler ranges to final offsets, dropping
// entries whose protected range vanished with unreachable code.
func (m *MethodWriter) buildExceptionTable(remap func(int) int) {
	m.excTable = m.excTable[:0]
	for _, h := range m.handlers {
		if !h.start.bound || !h.end.bound || !h.handler.bound {
			continue
		}
		if m.computeFrames && !h.handler.reachable {
			continue
		}
		start := remap(h.start.offset)
		end := remap(h.end.offset)
		if start >= end {
			continue
		}
		m.excTable = append(m.excTable, excEntry{
			start:     uint16(start),
			end:       uint16(end),
			handler:   uint16(remap(h.handler.offset)),
			catchType: h.catchIdx,
		})
	}
}

func (m *MethodWriter) buildLineTable(remap func(int) int) {
	m.lineTable = m.lineTable[:0]
	for _, e := range m.lines {
		if !e.start.bound {
			continue
		}
		m.lineTable = append(m.lineTable, lineNumber{
			startPC: uint16(remap(e.start.offset)),
			line:    uint16(e.line),
		})
	}
}

// encodeStackMap emits the StackMapTable body for every label that needs
// a frame, choosing the most compact per-frame encoding. Frame contents
// were computed on the un-widened stream; only their offsets change
// here, which is safe because widening never alters reachability or
// merge results.
func (m *MethodWriter) encodeStackMap(kept []*keptInsn, remap func(int) int) error {
	type frameEntry struct {
		offset int
		frame  *frameState
	}
	var entries []frameEntry
	seen := make(map[int]bool)
	for _, l := range m.labels {
		if l.bound && l.reachable && l.frame != nil && (l.jumpTarget || l.handlerStart) {
			off := remap(l.offset)
			if seen[off] {
				continue
			}
			entries = append(entries, frameEntry{off, l.frame})
			seen[off] = true
		}
	}
	// a widened conditional becomes its inverse jumping over a goto_w,
	// so the instruction after the goto_w is now a branch target
	for _, k := range kept {
		c := k.ctrl
		if c == nil || c.kind != ctrlJump || !c.wide || c.fall == nil {
			continue
		}
		if off := k.newPos + 8; !seen[off] {
			entries = append(entries, frameEntry{off, c.fall})
			seen[off] = true
		}
	}
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})

	initial, err := initialFrame(m.access, m.owner(), m.name, m.desc)
	if err != nil {
		return err
	}
	prevLocals := items(initial.locals)
	prevOffset := -1

	buf := NewBuffer(16)
	for _, e := range entries {
		offset := e.offset
		delta := offset - prevOffset - 1
		curLocals := items(e.frame.locals)
		curStack := items(e.frame.stack)

		localsEqual := typeSeqEqual(prevLocals, curLocals)
		switch {
		case localsEqual && len(curStack) == 0:
			if delta <= frameSameMax {
				buf.PutU8(uint8(delta))
			} else {
				buf.PutU8(frameSameExtended)
				buf.PutU16(uint16(delta))
			}
		case localsEqual && len(curStack) == 1:
			if delta <= frameSameMax {
				buf.PutU8(uint8(frameSameLocals1Stack + delta))
			} else {
				buf.PutU8(frameSameLocals1StackExt)
				buf.PutU16(uint16(delta))
			}
			m.putVerifType(buf, curStack[0], remap)
		case len(curStack) == 0 && isChop(prevLocals, curLocals):
			buf.PutU8(uint8(frameChopBase - (len(prevLocals) - len(curLocals))))
			buf.PutU16(uint16(delta))
		case len(curStack) == 0 && isAppend(prevLocals, curLocals):
			k := len(curLocals) - len(prevLocals)
			buf.PutU8(uint8(frameAppendBase + k))
			buf.PutU16(uint16(delta))
			for _, t := range curLocals[len(prevLocals):] {
				m.putVerifType(buf, t, remap)
			}
		default:
			buf.PutU8(frameFull)
			buf.PutU16(uint16(delta))
			buf.PutU16(uint16(len(curLocals)))
			for _, t := range curLocals {
				m.putVerifType(buf, t, remap)
			}
			buf.PutU16(uint16(len(curStack)))
			for _, t := range curStack {
				m.putVerifType(buf, t, remap)
			}
		}
		prevLocals = curLocals
		prevOffset = offset
	}

	m.stackMap = buf
	m.stackMapNum = len(entries)
	return nil
}

func (m *MethodWriter) putVerifType(buf *Buffer, t VerifType, remap func(int) int) {
	switch t.Kind {
	case vtTop:
		buf.PutU8(ItemTop)
	case vtInteger:
		buf.PutU8(ItemInteger)
	case vtFloat:
		buf.PutU8(ItemFloat)
	case vtDouble:
		buf.PutU8(ItemDouble)
	case vtLong:
		buf.PutU8(ItemLong)
	case vtNull:
		buf.PutU8(ItemNull)
	case vtUninitThis:
		buf.PutU8(ItemUninitializedThis)
	case vtObject:
		buf.PutU8(ItemObject)
		buf.PutU16(m.symtab.Class(t.Class))
	case vtUninit:
		buf.PutU8(ItemUninitialized)
		buf.PutU16(uint16(remap(t.NewOffset)))
	default:
		// vtHalf never survives into encoded items
		buf.PutU8(ItemTop)
	}
}

func typeSeqEqual(a, b []VerifType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isChop(prev, cur []VerifType) bool {
	k := len(prev) - len(cur)
	return k >= 1 && k <= 3 && typeSeqEqual(prev[:len(cur)], cur)
}

func isAppend(prev, cur []VerifType) bool {
	k := len(cur) - len(prev)
	return k >= 1 && k <= 3 && typeSeqEqual(cur[:len(prev)], prev)
}
