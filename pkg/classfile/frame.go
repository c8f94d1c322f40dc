package classfile

import (
	"fmt"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/descriptor"
)

// verifKind is the coarse verifier type lattice.
type verifKind uint8

const (
	vtTop verifKind = iota
	vtInteger
	vtFloat
	vtLong
	vtDouble
	vtNull
	vtUninitThis
	vtObject
	vtUninit
	// vtHalf marks the second slot of a long or double. It never appears
	// in the encoded attribute; encoding skips it.
	vtHalf
)

// VerifType is one verification type: a lattice kind plus, for object
// types, a class internal name (or array descriptor), and for
// uninitialized values the offset of the allocating new instruction.
type VerifType struct {
	Kind      verifKind
	Class     string
	NewOffset int
}

var (
	typeTop        = VerifType{Kind: vtTop}
	typeInteger    = VerifType{Kind: vtInteger}
	typeFloat      = VerifType{Kind: vtFloat}
	typeLong       = VerifType{Kind: vtLong}
	typeDouble     = VerifType{Kind: vtDouble}
	typeNull       = VerifType{Kind: vtNull}
	typeUninitThis = VerifType{Kind: vtUninitThis}
	typeHalf       = VerifType{Kind: vtHalf}
)

func objectType(name string) VerifType {
	return VerifType{Kind: vtObject, Class: name}
}

func uninitType(newOffset int) VerifType {
	return VerifType{Kind: vtUninit, NewOffset: newOffset}
}

func (t VerifType) String() string {
	switch t.Kind {
	case vtTop:
		return "top"
	case vtInteger:
		return "int"
	case vtFloat:
		return "float"
	case vtLong:
		return "long"
	case vtDouble:
		return "double"
	case vtNull:
		return "null"
	case vtUninitThis:
		return "uninitializedThis"
	case vtObject:
		return t.Class
	case vtUninit:
		return fmt.Sprintf("uninitialized(%d)", t.NewOffset)
	case vtHalf:
		return "half"
	}
	return "?"
}

// wide reports whether the type occupies two slots.
func (t VerifType) wide() bool {
	return t.Kind == vtLong || t.Kind == vtDouble
}

// verifTypeOf maps a descriptor type to its verification type.
func verifTypeOf(t descriptor.Type) VerifType {
	switch t.Kind {
	case descriptor.Boolean, descriptor.Char, descriptor.Byte,
		descriptor.Short, descriptor.Int:
		return typeInteger
	case descriptor.Float:
		return typeFloat
	case descriptor.Long:
		return typeLong
	case descriptor.Double:
		return typeDouble
	default:
		return objectType(t.InternalName())
	}
}

// frameState is the verifier type state at one point: local variable
// slots and operand stack slots. Both sequences are slot-based; a long
// or double occupies its own entry followed by a vtHalf filler.
type frameState struct {
	locals []VerifType
	stack  []VerifType

	// underflow latches when a pop or peek reached below the stack
	// bottom; the interpreter turns it into an error at the offending
	// instruction instead of panicking mid-walk.
	underflow bool
}

func (f *frameState) clone() *frameState {
	c := &frameState{
		locals: make([]VerifType, len(f.locals)),
		stack:  make([]VerifType, len(f.stack)),
	}
	copy(c.locals, f.locals)
	copy(c.stack, f.stack)
	return c
}

// trimLocals drops trailing top slots; the attribute format never
// encodes them and merges are simpler on the canonical form.
func (f *frameState) trimLocals() {
	n := len(f.locals)
	for n > 0 && f.locals[n-1].Kind == vtTop {
		n--
	}
	f.locals = f.locals[:n]
}

// initialFrame builds the verifier state at the start of a method from
// its access flags, owner class and descriptor.
func initialFrame(access int, owner, name, desc string) (*frameState, error) {
	args, _, err := descriptor.ParseMethod(desc)
	if err != nil {
		return nil, err
	}
	f := &frameState{}
	if access&AccStatic == 0 {
		if name == "<init>" {
			f.locals = append(f.locals, typeUninitThis)
		} else {
			f.locals = append(f.locals, objectType(owner))
		}
	}
	for _, a := range args {
		vt := verifTypeOf(a)
		f.locals = append(f.locals, vt)
		if vt.wide() {
			f.locals = append(f.locals, typeHalf)
		}
	}
	return f, nil
}

// commonSuperFunc resolves the common supertype of two distinct class
// internal names during a reference merge.
type commonSuperFunc func(a, b string) string

// defaultCommonSuper is the static fallback: without a class hierarchy
// to consult, any two distinct reference types generalize to Object.
func defaultCommonSuper(a, b string) string {
	return "java/lang/Object"
}

// mergeType computes the pointwise least upper bound of two slot types.
func mergeType(a, b VerifType, super commonSuperFunc) (VerifType, error) {
	if a == b {
		return a, nil
	}
	aInit := a.Kind == vtUninit || a.Kind == vtUninitThis
	bInit := b.Kind == vtUninit || b.Kind == vtUninitThis
	if aInit || bInit {
		// Distinct uninitialized types, or uninitialized against
		// initialized, cannot be reconciled.
		return typeTop, &InconsistentFrameError{
			Detail: fmt.Sprintf("cannot merge %s with %s", a, b),
		}
	}
	if a.Kind == vtNull {
		return b, nil
	}
	if b.Kind == vtNull {
		return a, nil
	}
	if a.Kind == vtObject && b.Kind == vtObject {
		return objectType(super(a.Class, b.Class)), nil
	}
	return typeTop, nil
}

// merge folds incoming into dest (the state stored at a branch target),
// reporting whether dest changed. A nil dest means the target had no
// state yet; the incoming state is copied.
func (f *frameState) merge(incoming *frameState, super commonSuperFunc) (bool, error) {
	changed := false

	// Locals: pointwise; a slot missing on either side is top.
	n := len(f.locals)
	if len(incoming.locals) > n {
		n = len(incoming.locals)
	}
	for i := 0; i < n; i++ {
		a, b := typeTop, typeTop
		if i < len(f.locals) {
			a = f.locals[i]
		}
		if i < len(incoming.locals) {
			b = incoming.locals[i]
		}
		m, err := mergeType(a, b, super)
		if err != nil {
			return false, err
		}
		if i >= len(f.locals) {
			f.locals = append(f.locals, m)
			changed = changed || m.Kind != vtTop
		} else if m != f.locals[i] {
			f.locals[i] = m
			changed = true
		}
	}
	f.trimLocals()

	// Stack: depths must agree at a merge point.
	if len(f.stack) != len(incoming.stack) {
		return false, &InconsistentFrameError{
			Detail: fmt.Sprintf("stack depth mismatch: %d vs %d", len(f.stack), len(incoming.stack)),
		}
	}
	for i := range f.stack {
		m, err := mergeType(f.stack[i], incoming.stack[i], super)
		if err != nil {
			return false, err
		}
		if m != f.stack[i] {
			f.stack[i] = m
			changed = true
		}
	}
	return changed, nil
}

// Stack helpers. The stack is slot-based: wide values push their half
// marker too, so pop counts are always in slots.

func (f *frameState) push(t VerifType) {
	f.stack = append(f.stack, t)
	if t.wide() {
		f.stack = append(f.stack, typeHalf)
	}
}

func (f *frameState) popSlots(n int) {
	if n > len(f.stack) {
		f.underflow = true
		f.stack = f.stack[:0]
		return
	}
	f.stack = f.stack[:len(f.stack)-n]
}

// top returns the slot i positions below the stack top.
func (f *frameState) top(i int) VerifType {
	if i >= len(f.stack) {
		f.underflow = true
		return typeTop
	}
	return f.stack[len(f.stack)-1-i]
}

// setLocal stores t into slot i, growing the local array as needed and
// invalidating a wide value whose second half is overwritten.
func (f *frameState) setLocal(i int, t VerifType) {
	for len(f.locals) <= i {
		f.locals = append(f.locals, typeTop)
	}
	if i > 0 && f.locals[i-1].wide() {
		f.locals[i-1] = typeTop
	}
	f.locals[i] = t
	if t.wide() {
		for len(f.locals) <= i+1 {
			f.locals = append(f.locals, typeTop)
		}
		f.locals[i+1] = typeHalf
	}
}

func (f *frameState) local(i int) VerifType {
	if i >= len(f.locals) {
		return typeTop
	}
	return f.locals[i]
}

// replaceUninit rewrites every occurrence of the uninitialized type u
// (in locals and stack) with its initialized form after a constructor
// call.
func (f *frameState) replaceUninit(u, initialized VerifType) {
	for i := range f.locals {
		if f.locals[i] == u {
			f.locals[i] = initialized
		}
	}
	for i := range f.stack {
		if f.stack[i] == u {
			f.stack[i] = initialized
		}
	}
}

// slotSizes returns the local and stack slot counts of the state, the
// per-frame contribution to max_locals and max_stack.
func (f *frameState) slotSizes() (locals, stack int) {
	return len(f.locals), len(f.stack)
}

// itemCount returns the number of encoded verification items in a slot
// sequence (wide values count once).
func itemCount(slots []VerifType) int {
	n := 0
	for i := 0; i < len(slots); i++ {
		n++
		if slots[i].wide() {
			i++
		}
	}
	return n
}

// items returns the encoded verification items of a slot sequence,
// collapsing wide values and their half markers.
func items(slots []VerifType) []VerifType {
	out := make([]VerifType, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i].wide() {
			i++
		}
	}
	return out
}
