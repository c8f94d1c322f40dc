package classfile

// A patchSite is a position in the code buffer holding a placeholder
// branch offset that must be overwritten once the target label resolves.
type patchSite struct {
	patchPos  int  // buffer offset of the offset field
	sourcePos int  // buffer offset of the branch opcode (offset base)
	wide      bool // 32-bit offset field (goto_w/jsr_w)
}

// Label designates a position in a method's instruction stream. Labels
// are created unresolved, may be referenced by branch instructions
// before they are bound, and are fixed to a bytecode offset when the
// emission point reaches them. A label belongs to exactly one method.
type Label struct {
	offset int  // bytecode offset, -1 until bound
	bound  bool

	// forward references recorded before the label was bound
	refs []patchSite

	// jumpTarget is set when a branch or switch references the label;
	// handlerStart when it opens an exception handler. Only flagged
	// labels receive a stack map frame in the output.
	jumpTarget   bool
	handlerStart bool

	// frame is the verifier type state flowing into this point, filled
	// by the frame engine. reachable is set when any path reaches the
	// label.
	frame     *frameState
	reachable bool

	// watermark bookkeeping: operand stack size propagated along the
	// first edge reaching the label, used when frames are not computed.
	inputStack    int
	inputStackSet bool
}

// NewLabel creates an unbound label.
func NewLabel() *Label {
	return &Label{offset: -1}
}

// Bound reports whether the label has been fixed to an offset.
func (l *Label) Bound() bool {
	return l.bound
}

// Offset returns the label's bytecode offset. Valid only once bound.
func (l *Label) Offset() int {
	return l.offset
}

func (l *Label) addRef(patchPos, sourcePos int, wide bool) {
	l.refs = append(l.refs, patchSite{patchPos: patchPos, sourcePos: sourcePos, wide: wide})
}

func (l *Label) propagateStack(size int) {
	if !l.inputStackSet {
		l.inputStack = size
		l.inputStackSet = true
	}
}
