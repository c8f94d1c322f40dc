package classfile

import (
	"fmt"
	"sort"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/descriptor"
)

// frameComputation runs the abstract interpretation pass over a method's
// emitted instruction stream: a single forward walk per basic block with
// a work-list fixed point over branch-target frame merges. It produces
// the stack map frame for every flagged label, the reachability map used
// to drop dead code, and precise max stack/locals values.
type frameComputation struct {
	m    *MethodWriter
	code []byte

	// bound labels sorted by offset, and a lookup by offset
	blocks  []*Label
	blockAt map[int]*Label

	// branch instructions by opcode offset (placeholder bytes in the
	// buffer cannot be decoded before resolution, so targets come from
	// the writer's records)
	ctrlAt map[int]*ctrlInsn

	// reachable[pos] marks the first byte of every reachable instruction
	reachable []bool

	maxStack  int
	maxLocals int

	super commonSuperFunc
}

func newFrameComputation(m *MethodWriter) *frameComputation {
	fc := &frameComputation{
		m:         m,
		code:      m.code.Bytes(),
		blockAt:   make(map[int]*Label),
		ctrlAt:    make(map[int]*ctrlInsn),
		reachable: make([]bool, m.code.Len()),
		super:     m.super,
	}
	for _, l := range m.labels {
		if l.bound {
			if _, ok := fc.blockAt[l.offset]; !ok {
				fc.blockAt[l.offset] = l
				fc.blocks = append(fc.blocks, l)
			}
		}
	}
	sort.Slice(fc.blocks, func(i, j int) bool {
		return fc.blocks[i].offset < fc.blocks[j].offset
	})
	for _, c := range m.ctrl {
		fc.ctrlAt[c.pos] = c
	}
	return fc
}

// nextBlockOffset returns the offset of the first bound label strictly
// after pos, or len(code).
func (fc *frameComputation) nextBlockOffset(pos int) int {
	i := sort.Search(len(fc.blocks), func(i int) bool {
		return fc.blocks[i].offset > pos
	})
	if i < len(fc.blocks) {
		return fc.blocks[i].offset
	}
	return len(fc.code)
}

// run performs the fixed-point computation.
func (fc *frameComputation) run() error {
	entry, err := initialFrame(fc.m.access, fc.m.owner(), fc.m.name, fc.m.desc)
	if err != nil {
		return err
	}
	fc.noteSizes(entry)

	work := []*Label{}
	enqueue := func(l *Label) {
		for _, w := range work {
			if w == l {
				return
			}
		}
		work = append(work, l)
	}

	// The method entry is a block of its own unless a label is bound at
	// offset zero, in which case the initial frame merges into it.
	if head, ok := fc.blockAt[0]; ok {
		if _, err := fc.mergeInto(head, entry, 0); err != nil {
			return err
		}
		enqueue(head)
	} else if err := fc.interpretBlock(0, entry, enqueue); err != nil {
		return err
	}

	for len(work) > 0 {
		l := work[0]
		work = work[1:]
		if l.frame == nil {
			continue
		}
		if err := fc.interpretBlock(l.offset, l.frame.clone(), enqueue); err != nil {
			return err
		}
	}

	fc.m.maxStack = fc.maxStack
	fc.m.maxLocals = fc.maxLocals
	return nil
}

// mergeInto merges state into the label's stored frame, marking it
// reachable. Returns whether the frame changed (or was first set).
func (fc *frameComputation) mergeInto(l *Label, state *frameState, atOffset int) (bool, error) {
	l.reachable = true
	if l.frame == nil {
		l.frame = state.clone()
		l.frame.trimLocals()
		fc.noteSizes(l.frame)
		return true, nil
	}
	changed, err := l.frame.merge(state, fc.super)
	if err != nil {
		if ice, ok := err.(*InconsistentFrameError); ok {
			ice.Offset = atOffset
		}
		return false, err
	}
	fc.noteSizes(l.frame)
	return changed, nil
}

func (fc *frameComputation) noteSizes(f *frameState) {
	if l := len(f.locals); l > fc.maxLocals {
		fc.maxLocals = l
	}
	if s := len(f.stack); s > fc.maxStack {
		fc.maxStack = s
	}
}

// interpretBlock walks instructions from pos with the given entry state
// until the block ends, merging into every branch target and, on fall
// through, into the next bound label.
func (fc *frameComputation) interpretBlock(pos int, f *frameState, enqueue func(*Label)) error {
	end := fc.nextBlockOffset(pos)
	for pos < len(fc.code) {
		if pos == end {
			// fall through into the next block
			l := fc.blockAt[pos]
			changed, err := fc.mergeInto(l, f, pos)
			if err != nil {
				return err
			}
			if changed {
				enqueue(l)
			}
			return nil
		}
		fc.reachable[pos] = true

		// exception edges: any instruction inside a protected range can
		// transfer to the handler with the current locals
		for _, h := range fc.m.handlers {
			if h.start.offset <= pos && pos < h.end.offset {
				hs := &frameState{locals: f.locals, stack: []VerifType{objectType(h.catchName())}}
				changed, err := fc.mergeInto(h.handler, hs, pos)
				if err != nil {
					return err
				}
				if changed {
					enqueue(h.handler)
				}
			}
		}

		size, err := instructionSize(fc.code, pos)
		if err != nil {
			return err
		}
		fallsThrough, err := fc.execute(f, pos, enqueue)
		if err != nil {
			return err
		}
		if f.underflow {
			return &InconsistentFrameError{
				Offset: pos,
				Detail: "operand stack underflow",
			}
		}
		fc.noteSizes(f)
		if !fallsThrough {
			return nil
		}
		pos += size
	}
	return nil
}

// branchEdge merges the current state into a jump target.
func (fc *frameComputation) branchEdge(target *Label, f *frameState, pos int, enqueue func(*Label)) error {
	if !target.bound {
		return &UnboundLabelError{SourceOffset: pos}
	}
	changed, err := fc.mergeInto(target, f, pos)
	if err != nil {
		return err
	}
	if changed {
		enqueue(target)
	}
	return nil
}

// execute applies the stack and local effect of the instruction at pos
// to f, following the instruction-set definition, and propagates branch
// edges. It reports whether control falls through.
func (fc *frameComputation) execute(f *frameState, pos int, enqueue func(*Label)) (bool, error) {
	code := fc.code
	op := Opcode(code[pos])

	switch {
	case op == Nop:

	case op == AconstNull:
		f.push(typeNull)
	case op >= IconstM1 && op <= Iconst5:
		f.push(typeInteger)
	case op == Lconst0 || op == Lconst1:
		f.push(typeLong)
	case op >= Fconst0 && op <= Fconst2:
		f.push(typeFloat)
	case op == Dconst0 || op == Dconst1:
		f.push(typeDouble)
	case op == Bipush || op == Sipush:
		f.push(typeInteger)

	case op == Ldc || op == LdcW || op == Ldc2W:
		var idx uint16
		if op == Ldc {
			idx = uint16(code[pos+1])
		} else {
			idx = beU16(code, pos+1)
		}
		t, err := fc.constantType(idx)
		if err != nil {
			return false, err
		}
		f.push(t)

	case op == Iload || (op >= Iload0 && op <= Iload3):
		f.push(typeInteger)
	case op == Lload || (op >= Lload0 && op <= Lload3):
		f.push(typeLong)
	case op == Fload || (op >= Fload0 && op <= Fload3):
		f.push(typeFloat)
	case op == Dload || (op >= Dload0 && op <= Dload3):
		f.push(typeDouble)
	case op == Aload:
		f.push(f.local(int(code[pos+1])))
	case op >= Aload0 && op <= Aload3:
		f.push(f.local(int(op - Aload0)))

	case op == Iaload || op == Baload || op == Caload || op == Saload:
		f.popSlots(2)
		f.push(typeInteger)
	case op == Laload:
		f.popSlots(2)
		f.push(typeLong)
	case op == Faload:
		f.popSlots(2)
		f.push(typeFloat)
	case op == Daload:
		f.popSlots(2)
		f.push(typeDouble)
	case op == Aaload:
		arr := f.top(1)
		f.popSlots(2)
		f.push(elementType(arr))

	case op == Istore || op == Fstore || op == Astore:
		fc.store(f, int(code[pos+1]), 1)
	case op == Lstore || op == Dstore:
		fc.store(f, int(code[pos+1]), 2)
	case op >= Istore0 && op <= Istore3:
		fc.store(f, int(op-Istore0), 1)
	case op >= Lstore0 && op <= Lstore3:
		fc.store(f, int(op-Lstore0), 2)
	case op >= Fstore0 && op <= Fstore3:
		fc.store(f, int(op-Fstore0), 1)
	case op >= Dstore0 && op <= Dstore3:
		fc.store(f, int(op-Dstore0), 2)
	case op >= Astore0 && op <= Astore3:
		fc.store(f, int(op-Astore0), 1)

	case op >= Iastore && op <= Sastore:
		if op == Lastore || op == Dastore {
			f.popSlots(4)
		} else {
			f.popSlots(3)
		}

	case op == Pop:
		f.popSlots(1)
	case op == Pop2:
		f.popSlots(2)
	case op == Dup:
		f.push(f.top(0))
	case op == DupX1:
		v := f.top(0)
		f.stack = append(f.stack[:len(f.stack)-2],
			v, f.top(1), v)
	case op == DupX2:
		n := len(f.stack)
		v := f.stack[n-1]
		f.stack = append(f.stack[:n-3], v, f.stack[n-3], f.stack[n-2], v)
	case op == Dup2:
		a, b := f.top(1), f.top(0)
		f.stack = append(f.stack, a, b)
	case op == Dup2X1:
		n := len(f.stack)
		a, b := f.stack[n-2], f.stack[n-1]
		f.stack = append(f.stack[:n-3], a, b, f.stack[n-3], a, b)
	case op == Dup2X2:
		n := len(f.stack)
		a, b := f.stack[n-2], f.stack[n-1]
		f.stack = append(f.stack[:n-4], a, b, f.stack[n-4], f.stack[n-3], a, b)
	case op == Swap:
		n := len(f.stack)
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

	case op >= Iadd && op <= Drem:
		// binary arithmetic: pop both operands, push the result kind
		switch (op - Iadd) % 4 {
		case 0: // int
			f.popSlots(2)
			f.push(typeInteger)
		case 1: // long
			f.popSlots(4)
			f.push(typeLong)
		case 2: // float
			f.popSlots(2)
			f.push(typeFloat)
		case 3: // double
			f.popSlots(4)
			f.push(typeDouble)
		}
	case op >= Ineg && op <= Dneg:
		// negation leaves the operand kind in place

	case op == Ishl || op == Ishr || op == Iushr:
		f.popSlots(2)
		f.push(typeInteger)
	case op == Lshl || op == Lshr || op == Lushr:
		f.popSlots(3)
		f.push(typeLong)
	case op == Iand || op == Ior || op == Ixor:
		f.popSlots(2)
		f.push(typeInteger)
	case op == Land || op == Lor || op == Lxor:
		f.popSlots(4)
		f.push(typeLong)
	case op == Iinc:

	case op >= I2l && op <= I2s:
		from, to := conversionKinds(op)
		f.popSlots(slotWidth(from))
		f.push(to)

	case op == Lcmp:
		f.popSlots(4)
		f.push(typeInteger)
	case op == Fcmpl || op == Fcmpg:
		f.popSlots(2)
		f.push(typeInteger)
	case op == Dcmpl || op == Dcmpg:
		f.popSlots(4)
		f.push(typeInteger)

	case op >= Ifeq && op <= Ifle || op == Ifnull || op == Ifnonnull:
		f.popSlots(1)
		return true, fc.jumpEdges(f, pos, enqueue)
	case op >= IfIcmpeq && op <= IfAcmpne:
		f.popSlots(2)
		return true, fc.jumpEdges(f, pos, enqueue)
	case op == Goto || op == GotoW:
		return false, fc.jumpEdges(f, pos, enqueue)
	case op == Jsr || op == JsrW || op == Ret:
		return false, fmt.Errorf("jsr/ret at offset %d: subroutines are not supported with frame computation", pos)

	case op == Tableswitch || op == Lookupswitch:
		f.popSlots(1)
		return false, fc.jumpEdges(f, pos, enqueue)

	case op == Ireturn || op == Freturn || op == Areturn:
		return false, nil
	case op == Lreturn || op == Dreturn:
		return false, nil
	case op == Return:
		return false, nil
	case op == Athrow:
		return false, nil

	case op == Getstatic || op == Getfield || op == Putstatic || op == Putfield:
		sym := fc.m.symtab.symbolAt(beU16(code, pos+1))
		if sym == nil {
			return false, fmt.Errorf("field instruction at offset %d references unknown pool index", pos)
		}
		ft, err := descriptor.ParseField(sym.Value)
		if err != nil {
			return false, err
		}
		switch op {
		case Getstatic:
			f.push(verifTypeOf(ft))
		case Getfield:
			f.popSlots(1)
			f.push(verifTypeOf(ft))
		case Putstatic:
			f.popSlots(ft.Size())
		case Putfield:
			f.popSlots(ft.Size() + 1)
		}

	case op == Invokevirtual || op == Invokespecial || op == Invokestatic ||
		op == Invokeinterface || op == Invokedynamic:
		sym := fc.m.symtab.symbolAt(beU16(code, pos+1))
		if sym == nil {
			return false, fmt.Errorf("invoke instruction at offset %d references unknown pool index", pos)
		}
		args, ret, err := descriptor.ParseMethod(sym.Value)
		if err != nil {
			return false, err
		}
		for i := len(args) - 1; i >= 0; i-- {
			f.popSlots(args[i].Size())
		}
		if op != Invokestatic && op != Invokedynamic {
			recv := f.top(0)
			f.popSlots(1)
			if op == Invokespecial && sym.Name == "<init>" {
				switch recv.Kind {
				case vtUninit:
					f.replaceUninit(recv, objectType(sym.Owner))
				case vtUninitThis:
					f.replaceUninit(recv, objectType(fc.m.owner()))
				}
			}
		}
		if ret.Kind != descriptor.Void {
			f.push(verifTypeOf(ret))
		}

	case op == New:
		f.push(uninitType(pos))
	case op == Newarray:
		f.popSlots(1)
		f.push(objectType(primArrayDescriptor(int(code[pos+1]))))
	case op == Anewarray:
		sym := fc.m.symtab.symbolAt(beU16(code, pos+1))
		if sym == nil {
			return false, fmt.Errorf("anewarray at offset %d references unknown pool index", pos)
		}
		f.popSlots(1)
		f.push(objectType(arrayOf(sym.Value)))
	case op == Arraylength:
		f.popSlots(1)
		f.push(typeInteger)
	case op == Checkcast:
		sym := fc.m.symtab.symbolAt(beU16(code, pos+1))
		if sym == nil {
			return false, fmt.Errorf("checkcast at offset %d references unknown pool index", pos)
		}
		f.popSlots(1)
		f.push(objectType(sym.Value))
	case op == Instanceof:
		f.popSlots(1)
		f.push(typeInteger)
	case op == Monitorenter || op == Monitorexit:
		f.popSlots(1)

	case op == Multianewarray:
		dims := int(code[pos+3])
		sym := fc.m.symtab.symbolAt(beU16(code, pos+1))
		if sym == nil {
			return false, fmt.Errorf("multianewarray at offset %d references unknown pool index", pos)
		}
		f.popSlots(dims)
		f.push(objectType(sym.Value))

	case op == Wide:
		wop := Opcode(code[pos+1])
		slot := int(beU16(code, pos+2))
		switch wop {
		case Iload:
			f.push(typeInteger)
		case Lload:
			f.push(typeLong)
		case Fload:
			f.push(typeFloat)
		case Dload:
			f.push(typeDouble)
		case Aload:
			f.push(f.local(slot))
		case Istore, Fstore, Astore:
			fc.store(f, slot, 1)
		case Lstore, Dstore:
			fc.store(f, slot, 2)
		case Iinc:
		case Ret:
			return false, fmt.Errorf("jsr/ret at offset %d: subroutines are not supported with frame computation", pos)
		}

	default:
		return false, fmt.Errorf("illegal opcode 0x%02X at offset %d", byte(op), pos)
	}
	return true, nil
}

// jumpEdges propagates the post-instruction state to every branch target
// of the control instruction at pos.
func (fc *frameComputation) jumpEdges(f *frameState, pos int, enqueue func(*Label)) error {
	c := fc.ctrlAt[pos]
	if c == nil {
		return fmt.Errorf("no branch record for offset %d", pos)
	}
	for _, target := range c.allTargets() {
		if err := fc.branchEdge(target, f, pos, enqueue); err != nil {
			return err
		}
	}
	if c.kind == ctrlJump && c.op != Goto && c.op != GotoW {
		c.fall = f.clone()
		c.fall.trimLocals()
	}
	return nil
}

// store pops a value of the given slot width and writes it to a local.
func (fc *frameComputation) store(f *frameState, slot, width int) {
	if width == 2 {
		v := f.top(1)
		f.popSlots(2)
		f.setLocal(slot, v)
	} else {
		v := f.top(0)
		f.popSlots(1)
		f.setLocal(slot, v)
	}
}

// constantType returns the verification type an ldc of the given pool
// entry pushes.
func (fc *frameComputation) constantType(idx uint16) (VerifType, error) {
	sym := fc.m.symtab.symbolAt(idx)
	if sym == nil {
		return typeTop, fmt.Errorf("ldc references unknown pool index %d", idx)
	}
	switch sym.Tag {
	case TagInteger:
		return typeInteger, nil
	case TagFloat:
		return typeFloat, nil
	case TagLong:
		return typeLong, nil
	case TagDouble:
		return typeDouble, nil
	case TagString:
		return objectType("java/lang/String"), nil
	case TagClass:
		return objectType("java/lang/Class"), nil
	case TagMethodHandle:
		return objectType("java/lang/invoke/MethodHandle"), nil
	case TagMethodType:
		return objectType("java/lang/invoke/MethodType"), nil
	case TagDynamic:
		ft, err := descriptor.ParseField(sym.Value)
		if err != nil {
			return typeTop, err
		}
		return verifTypeOf(ft), nil
	}
	return typeTop, &UnsupportedConstantError{
		Value: fmt.Sprintf("pool tag %d is not loadable", sym.Tag),
	}
}

// conversionKinds returns the operand width class and result type of a
// primitive conversion opcode.
func conversionKinds(op Opcode) (fromSlots VerifType, to VerifType) {
	switch op {
	case I2l:
		return typeInteger, typeLong
	case I2f:
		return typeInteger, typeFloat
	case I2d:
		return typeInteger, typeDouble
	case L2i:
		return typeLong, typeInteger
	case L2f:
		return typeLong, typeFloat
	case L2d:
		return typeLong, typeDouble
	case F2i:
		return typeFloat, typeInteger
	case F2l:
		return typeFloat, typeLong
	case F2d:
		return typeFloat, typeDouble
	case D2i:
		return typeDouble, typeInteger
	case D2l:
		return typeDouble, typeLong
	case D2f:
		return typeDouble, typeFloat
	default: // i2b, i2c, i2s
		return typeInteger, typeInteger
	}
}

func slotWidth(t VerifType) int {
	if t.wide() {
		return 2
	}
	return 1
}

// elementType returns the verification type loaded from an array of the
// given type.
func elementType(arr VerifType) VerifType {
	if arr.Kind != vtObject || len(arr.Class) == 0 || arr.Class[0] != '[' {
		// aaload on null is legal; the result is null
		return typeNull
	}
	elem := arr.Class[1:]
	if len(elem) > 0 && elem[0] == 'L' {
		return objectType(elem[1 : len(elem)-1])
	}
	return objectType(elem)
}

// arrayOf returns the array descriptor for one more dimension over a
// class internal name or array descriptor.
func arrayOf(name string) string {
	if len(name) > 0 && name[0] == '[' {
		return "[" + name
	}
	return "[L" + name + ";"
}

// primArrayDescriptor maps a newarray type code to its array descriptor.
func primArrayDescriptor(code int) string {
	switch code {
	case TBoolean:
		return "[Z"
	case TChar:
		return "[C"
	case TFloat:
		return "[F"
	case TDouble:
		return "[D"
	case TByte:
		return "[B"
	case TShort:
		return "[S"
	case TLong:
		return "[J"
	default:
		return "[I"
	}
}
