package classfile

import (
	"fmt"
	"math"
	"sort"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/descriptor"
)

// ctrlKind classifies recorded control-flow instructions.
type ctrlKind int

const (
	ctrlJump ctrlKind = iota
	ctrlTableSwitch
	ctrlLookupSwitch
)

// ctrlInsn is one branch or switch instruction recorded during
// emission. The resolution pass recomputes every branch offset from
// these records and the bound label offsets; the placeholder bytes in
// the buffer are only trusted when no rewrite is needed.
type ctrlInsn struct {
	kind ctrlKind
	pos  int // opcode offset in the original code buffer
	size int // encoded size in the original buffer
	op   Opcode

	target *Label // jump target
	wide   bool   // promoted to a 32-bit-offset encoding

	// state on the fall-through edge of a conditional jump, recorded
	// during frame computation. A widened conditional re-encodes as its
	// inverse over a goto_w, turning the fall-through point into a jump
	// target that needs its own stack map entry.
	fall *frameState

	// switch data
	dflt     *Label
	low, high int32   // tableswitch bounds
	keys      []int32 // lookupswitch keys, sorted
	targets   []*Label
}

func (c *ctrlInsn) allTargets() []*Label {
	if c.kind == ctrlJump {
		return []*Label{c.target}
	}
	out := []*Label{c.dflt}
	return append(out, c.targets...)
}

// newSize returns the instruction's encoded size when placed at newPos,
// given its current wide flag.
func (c *ctrlInsn) newSize(newPos int) int {
	switch c.kind {
	case ctrlTableSwitch:
		return 1 + switchPad(newPos) + 12 + 4*len(c.targets)
	case ctrlLookupSwitch:
		return 1 + switchPad(newPos) + 8 + 8*len(c.keys)
	default:
		if c.op == GotoW || c.op == JsrW {
			return 5
		}
		if !c.wide {
			return 3
		}
		if c.op == Goto || c.op == Jsr {
			return 5 // goto_w / jsr_w
		}
		return 8 // opposite branch over a goto_w
	}
}

// handlerEntry is one try-catch region.
type handlerEntry struct {
	start, end, handler *Label
	catchType           string // internal name, empty for catch-all
	catchIdx            uint16 // pool index, 0 for catch-all
}

func (h handlerEntry) catchName() string {
	if h.catchType == "" {
		return "java/lang/Throwable"
	}
	return h.catchType
}

type lineEntry struct {
	line  int
	start *Label
}

// MethodWriter assembles the Code attribute of one method: it encodes
// visited instructions immediately, records branches against labels, and
// on finalization runs frame inference and the offset resolution pass.
// A MethodWriter and its labels live for one method body and are
// discarded once the bytes are folded into the class.
type MethodWriter struct {
	cw     *ClassWriter
	symtab *SymbolTable

	access  int
	name    string
	desc    string
	nameIdx uint16
	descIdx uint16

	code     *Buffer
	labels   []*Label
	known    map[*Label]bool
	ctrl     []*ctrlInsn
	handlers []handlerEntry
	lines    []lineEntry
	throws   []uint16 // Exceptions attribute entries

	// running watermarks, used when frames are not computed and as a
	// lower bound otherwise
	curStack  int
	maxStack  int
	maxLocals int

	computeFrames bool
	super         commonSuperFunc

	err      error
	finished bool

	// resolution results
	finalCode    []byte
	excTable     []excEntry
	stackMap     *Buffer
	stackMapNum  int
	lineTable    []lineNumber
}

type excEntry struct {
	start, end, handler uint16
	catchType           uint16
}

type lineNumber struct {
	startPC uint16
	line    uint16
}

func newMethodWriter(cw *ClassWriter, access int, name, desc string) *MethodWriter {
	m := &MethodWriter{
		cw:            cw,
		symtab:        cw.symtab,
		access:        access,
		name:          name,
		desc:          desc,
		nameIdx:       cw.symtab.Utf8(name),
		descIdx:       cw.symtab.Utf8(desc),
		code:          NewBuffer(64),
		known:         make(map[*Label]bool),
		computeFrames: cw.ComputeFrames,
		super:         cw.commonSuper,
	}
	// argument slots are the floor for max_locals
	if slots, err := descriptor.ArgSlots(desc); err != nil {
		m.fail(err)
	} else {
		m.maxLocals = slots
		if access&AccStatic == 0 {
			m.maxLocals++
		}
	}
	return m
}

func (m *MethodWriter) owner() string {
	return m.cw.thisName
}

// fail records the first error; later visit calls become no-ops and the
// error surfaces when the method or class is finalized.
func (m *MethodWriter) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// Err returns the first error recorded by this writer.
func (m *MethodWriter) Err() error {
	return m.err
}

func (m *MethodWriter) register(l *Label) {
	if !m.known[l] {
		m.known[l] = true
		m.labels = append(m.labels, l)
	}
}

func (m *MethodWriter) updateStack(delta int) {
	m.curStack += delta
	if m.curStack > m.maxStack {
		m.maxStack = m.curStack
	}
	if m.curStack < 0 {
		m.curStack = 0
	}
}

func (m *MethodWriter) noteLocal(slot, width int) {
	if n := slot + width; n > m.maxLocals {
		m.maxLocals = n
	}
}

// sealed rejects visit calls arriving after finalization. Every emitter
// checks it first so a late call fails the same way regardless of the
// instruction kind.
func (m *MethodWriter) sealed() bool {
	if m.finished {
		m.fail(fmt.Errorf("method %s%s: visit call after finalization", m.name, m.desc))
		return true
	}
	return false
}

// Insn emits a zero-operand instruction.
func (m *MethodWriter) Insn(op Opcode) {
	if m.sealed() {
		return
	}
	m.code.PutU8(byte(op))
	m.updateStack(int(stackDelta[op]))
	if endsBlock(op) {
		m.curStack = 0
	}
}

// IntInsn emits bipush, sipush or newarray.
func (m *MethodWriter) IntInsn(op Opcode, operand int) {
	if m.sealed() {
		return
	}
	m.code.PutU8(byte(op))
	switch op {
	case Sipush:
		m.code.PutU16(uint16(int16(operand)))
	default: // bipush, newarray
		m.code.PutU8(byte(operand))
	}
	m.updateStack(int(stackDelta[op]))
}

// VarInsn emits a local-variable load or store, choosing the compact
// slot-encoded form when possible and the wide form for slots above 255.
func (m *MethodWriter) VarInsn(op Opcode, slot int) {
	if m.sealed() {
		return
	}
	width := 1
	if op == Lload || op == Dload || op == Lstore || op == Dstore {
		width = 2
	}
	m.noteLocal(slot, width)
	switch {
	case slot <= 3 && op >= Iload && op <= Aload:
		m.code.PutU8(byte(Iload0 + (op-Iload)*4 + Opcode(slot)))
	case slot <= 3 && op >= Istore && op <= Astore:
		m.code.PutU8(byte(Istore0 + (op-Istore)*4 + Opcode(slot)))
	case slot <= 0xFF:
		m.code.PutU8(byte(op))
		m.code.PutU8(byte(slot))
	default:
		m.code.PutU8(byte(Wide))
		m.code.PutU8(byte(op))
		m.code.PutU16(uint16(slot))
	}
	m.updateStack(int(stackDelta[op]))
	if op == Ret {
		m.curStack = 0
	}
}

// IincInsn emits an increment of a local slot.
func (m *MethodWriter) IincInsn(slot, incr int) {
	if m.sealed() {
		return
	}
	m.noteLocal(slot, 1)
	if slot <= 0xFF && incr >= math.MinInt8 && incr <= math.MaxInt8 {
		m.code.PutU8(byte(Iinc))
		m.code.PutU8(byte(slot))
		m.code.PutU8(byte(int8(incr)))
	} else {
		m.code.PutU8(byte(Wide))
		m.code.PutU8(byte(Iinc))
		m.code.PutU16(uint16(slot))
		m.code.PutU16(uint16(int16(incr)))
	}
}

// TypeInsn emits new, anewarray, checkcast or instanceof against a class
// internal name (or array descriptor).
func (m *MethodWriter) TypeInsn(op Opcode, name string) {
	if m.sealed() {
		return
	}
	idx := m.symtab.Class(name)
	m.code.PutU8(byte(op))
	m.code.PutU16(idx)
	m.updateStack(int(stackDelta[op]))
}

// FieldInsn emits a field access.
func (m *MethodWriter) FieldInsn(op Opcode, owner, name, desc string) {
	if m.sealed() {
		return
	}
	idx := m.symtab.FieldRef(owner, name, desc)
	m.code.PutU8(byte(op))
	m.code.PutU16(idx)
	ft, err := descriptor.ParseField(desc)
	if err != nil {
		m.fail(err)
		return
	}
	switch op {
	case Getstatic:
		m.updateStack(ft.Size())
	case Getfield:
		m.updateStack(ft.Size() - 1)
	case Putstatic:
		m.updateStack(-ft.Size())
	case Putfield:
		m.updateStack(-ft.Size() - 1)
	}
}

// MethodInsn emits a method invocation. itf marks interface-declared
// targets (it selects the pool entry kind and, for invokeinterface, is
// implied).
func (m *MethodWriter) MethodInsn(op Opcode, owner, name, desc string, itf bool) {
	if m.sealed() {
		return
	}
	var idx uint16
	if op == Invokeinterface || itf {
		idx = m.symtab.InterfaceMethodRef(owner, name, desc)
	} else {
		idx = m.symtab.MethodRef(owner, name, desc)
	}
	argSlots, err := descriptor.ArgSlots(desc)
	if err != nil {
		m.fail(err)
		return
	}
	_, ret, err := descriptor.ParseMethod(desc)
	if err != nil {
		m.fail(err)
		return
	}
	m.code.PutU8(byte(op))
	m.code.PutU16(idx)
	if op == Invokeinterface {
		m.code.PutU8(byte(argSlots + 1))
		m.code.PutU8(0)
	}
	delta := -argSlots + ret.Size()
	if op != Invokestatic {
		delta--
	}
	m.updateStack(delta)
}

// InvokeDynamicInsn emits a dynamic call site.
func (m *MethodWriter) InvokeDynamicInsn(name, desc string, bootstrap Handle, args ...interface{}) {
	if m.sealed() {
		return
	}
	idx := m.symtab.InvokeDynamic(name, desc, bootstrap, args...)
	argSlots, err := descriptor.ArgSlots(desc)
	if err != nil {
		m.fail(err)
		return
	}
	_, ret, err := descriptor.ParseMethod(desc)
	if err != nil {
		m.fail(err)
		return
	}
	m.code.PutU8(byte(Invokedynamic))
	m.code.PutU16(idx)
	m.code.PutU16(0)
	m.updateStack(-argSlots + ret.Size())
}

// LdcInsn emits a constant load, promoting to the wide pool-index form
// when the entry's index exceeds 8 bits and to ldc2_w for long and
// double constants.
func (m *MethodWriter) LdcInsn(v interface{}) {
	if m.sealed() {
		return
	}
	sym, err := m.symtab.Constant(v)
	if err != nil {
		m.fail(err)
		return
	}
	switch {
	case sym.Wide():
		m.code.PutU8(byte(Ldc2W))
		m.code.PutU16(sym.Index)
		m.updateStack(2)
	case sym.Index <= 0xFF:
		m.code.PutU8(byte(Ldc))
		m.code.PutU8(byte(sym.Index))
		m.updateStack(1)
	default:
		m.code.PutU8(byte(LdcW))
		m.code.PutU16(sym.Index)
		m.updateStack(1)
	}
}

// MultiANewArrayInsn emits allocation of a multi-dimensional array.
func (m *MethodWriter) MultiANewArrayInsn(desc string, dims int) {
	if m.sealed() {
		return
	}
	idx := m.symtab.Class(desc)
	m.code.PutU8(byte(Multianewarray))
	m.code.PutU16(idx)
	m.code.PutU8(byte(dims))
	m.updateStack(1 - dims)
}

// JumpInsn emits a branch to the given label. Forward references are
// written as placeholders and patched when the label binds; offsets that
// turn out not to fit the 16-bit encoding are widened during the
// resolution pass.
func (m *MethodWriter) JumpInsn(op Opcode, target *Label) {
	if m.sealed() {
		return
	}
	m.register(target)
	target.jumpTarget = true
	pos := m.code.Len()
	c := &ctrlInsn{kind: ctrlJump, pos: pos, op: op, target: target}
	m.code.PutU8(byte(op))
	if op == GotoW || op == JsrW {
		if target.bound {
			m.code.PutU32(uint32(int32(target.offset - pos)))
		} else {
			m.code.PutU32(0)
			target.addRef(pos+1, pos, true)
		}
	} else {
		if target.bound {
			delta := target.offset - pos
			if delta >= math.MinInt16 && delta <= math.MaxInt16 {
				m.code.PutU16(uint16(int16(delta)))
			} else {
				m.code.PutU16(0)
				c.wide = true
			}
		} else {
			m.code.PutU16(0)
			target.addRef(pos+1, pos, false)
		}
	}
	c.size = m.code.Len() - pos
	m.ctrl = append(m.ctrl, c)
	m.updateStack(int(stackDelta[op]))
	target.propagateStack(m.curStack)
	if op == Goto || op == GotoW {
		m.curStack = 0
	}
}

// Bind fixes the label to the current position in the instruction
// stream. Any forward references recorded for it are patched here; the
// later resolution pass revalidates all offsets.
func (m *MethodWriter) Bind(l *Label) {
	if m.sealed() {
		return
	}
	if l.bound {
		m.fail(fmt.Errorf("method %s%s: label bound twice", m.name, m.desc))
		return
	}
	m.register(l)
	l.bound = true
	l.offset = m.code.Len()
	for _, ref := range l.refs {
		delta := l.offset - ref.sourcePos
		if ref.wide {
			m.code.SetU32(ref.patchPos, uint32(int32(delta)))
		} else {
			m.code.SetU16(ref.patchPos, uint16(int16(delta)))
		}
	}
	l.refs = nil
	if l.inputStackSet && l.inputStack > m.curStack {
		m.curStack = l.inputStack
	}
	if m.curStack > m.maxStack {
		m.maxStack = m.curStack
	}
}

// TableSwitchInsn emits a tableswitch covering keys min..max. labels
// must hold one target per key.
func (m *MethodWriter) TableSwitchInsn(min, max int32, dflt *Label, labels ...*Label) {
	if m.sealed() {
		return
	}
	if int64(max)-int64(min)+1 != int64(len(labels)) {
		m.fail(fmt.Errorf("tableswitch [%d..%d] needs %d labels, got %d",
			min, max, int64(max)-int64(min)+1, len(labels)))
		return
	}
	pos := m.code.Len()
	c := &ctrlInsn{kind: ctrlTableSwitch, pos: pos, op: Tableswitch,
		dflt: dflt, low: min, high: max, targets: labels}
	m.register(dflt)
	dflt.jumpTarget = true
	for _, l := range labels {
		m.register(l)
		l.jumpTarget = true
	}
	m.code.PutU8(byte(Tableswitch))
	for i := 0; i < switchPad(pos); i++ {
		m.code.PutU8(0)
	}
	m.code.PutU32(0) // default, patched at resolution
	m.code.PutU32(uint32(min))
	m.code.PutU32(uint32(max))
	for range labels {
		m.code.PutU32(0)
	}
	c.size = m.code.Len() - pos
	m.ctrl = append(m.ctrl, c)
	m.updateStack(-1)
	for _, l := range c.allTargets() {
		l.propagateStack(m.curStack)
	}
	m.curStack = 0
}

// LookupSwitchInsn emits a lookupswitch. Keys are sorted as the format
// requires; keys and labels are matched pairwise before sorting.
func (m *MethodWriter) LookupSwitchInsn(dflt *Label, keys []int32, labels []*Label) {
	if m.sealed() {
		return
	}
	if len(keys) != len(labels) {
		m.fail(fmt.Errorf("lookupswitch needs matching keys and labels: %d vs %d",
			len(keys), len(labels)))
		return
	}
	type pair struct {
		key   int32
		label *Label
	}
	pairs := make([]pair, len(keys))
	for i := range keys {
		pairs[i] = pair{keys[i], labels[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	pos := m.code.Len()
	c := &ctrlInsn{kind: ctrlLookupSwitch, pos: pos, op: Lookupswitch, dflt: dflt}
	m.register(dflt)
	dflt.jumpTarget = true
	for _, p := range pairs {
		m.register(p.label)
		p.label.jumpTarget = true
		c.keys = append(c.keys, p.key)
		c.targets = append(c.targets, p.label)
	}
	m.code.PutU8(byte(Lookupswitch))
	for i := 0; i < switchPad(pos); i++ {
		m.code.PutU8(0)
	}
	m.code.PutU32(0) // default
	m.code.PutU32(uint32(len(pairs)))
	for _, p := range pairs {
		m.code.PutU32(uint32(p.key))
		m.code.PutU32(0)
	}
	c.size = m.code.Len() - pos
	m.ctrl = append(m.ctrl, c)
	m.updateStack(-1)
	for _, l := range c.allTargets() {
		l.propagateStack(m.curStack)
	}
	m.curStack = 0
}

// TryCatch declares an exception handler for the range [start, end).
// catchType is a class internal name, or empty for a catch-all entry.
func (m *MethodWriter) TryCatch(start, end, handler *Label, catchType string) {
	if m.sealed() {
		return
	}
	m.register(start)
	m.register(end)
	m.register(handler)
	handler.handlerStart = true
	handler.jumpTarget = true
	h := handlerEntry{start: start, end: end, handler: handler, catchType: catchType}
	if catchType != "" {
		h.catchIdx = m.symtab.Class(catchType)
	}
	m.handlers = append(m.handlers, h)
	handler.propagateStack(1)
}

// LineNumber records a source line for the instruction at the label.
func (m *MethodWriter) LineNumber(line int, start *Label) {
	if m.sealed() {
		return
	}
	m.register(start)
	m.lines = append(m.lines, lineEntry{line: line, start: start})
}

// AddException declares a checked exception in the method's Exceptions
// attribute.
func (m *MethodWriter) AddException(className string) {
	if m.sealed() {
		return
	}
	m.throws = append(m.throws, m.symtab.Class(className))
}

// SetMaxs supplies advisory max stack/locals values. They are treated as
// a floor; the writer recomputes both during finalization.
func (m *MethodWriter) SetMaxs(maxStack, maxLocals int) {
	if m.sealed() {
		return
	}
	if maxStack > m.maxStack {
		m.maxStack = maxStack
	}
	if maxLocals > m.maxLocals {
		m.maxLocals = maxLocals
	}
}
