package classfile

// Symbol is one interned constant-pool entry together with its assigned
// 1-based index. Symbols are immutable once interned and are owned by the
// SymbolTable of a single class.
type Symbol struct {
	Index uint16
	Tag   int

	// Owner, Name and Value hold the string content, with meaning
	// depending on Tag: Owner is a class internal name for member
	// references; Name is a member or name-and-type name; Value is the
	// UTF-8 payload, class name, string value or descriptor.
	Owner string
	Name  string
	Value string

	// Data holds the numeric payload: raw bits for Integer/Float/Long/
	// Double, the reference kind for MethodHandle, or the bootstrap
	// method index for Dynamic and InvokeDynamic.
	Data uint64
}

// Wide reports whether the symbol occupies two constant-pool slots.
// Long and double entries do, a documented quirk of the format.
func (s *Symbol) Wide() bool {
	return s.Tag == TagLong || s.Tag == TagDouble
}

// Handle identifies a method or field handle, the bootstrap anchor for
// dynamic call sites and dynamic constants.
type Handle struct {
	Kind      int // one of the Ref* reference kinds
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

// ClassName marks a string as a class internal name when passed as an
// ldc-style constant, so it interns as a CONSTANT_Class entry rather
// than a string literal.
type ClassName string

// ConstDynamic is a dynamically-computed constant: a name and descriptor
// resolved at run time through a bootstrap method.
type ConstDynamic struct {
	Name      string
	Desc      string
	Bootstrap Handle
	Args      []interface{}
}
