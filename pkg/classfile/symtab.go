package classfile

import (
	"fmt"
	"math"
)

// symbolKey is the content identity of a pool entry. Two entries with
// equal keys always receive the same index.
type symbolKey struct {
	tag   int
	owner string
	name  string
	value string
	data  uint64
}

// SymbolTable interns the constant-pool entries of one class. Each
// distinct (tag, content) pair is assigned a stable 1-based index on
// first insertion; duplicate insertions return the existing index.
// Entries are encoded into the pool buffer as they are interned, so the
// pool section is complete the moment the last entry is added.
//
// Interning methods do not return errors; a capacity overflow is
// recorded and surfaced when the class is finalized.
type SymbolTable struct {
	symbols map[symbolKey]*Symbol
	byIndex map[uint16]*Symbol
	entries []*Symbol // in first-interned order
	count   uint16    // next free pool index; pool count is this value
	pool    *Buffer

	// BootstrapMethods attribute contents, deduplicated by encoding.
	bootstrap      *Buffer
	bootstrapCount int
	bootstrapIndex map[string]int

	err error // first capacity or data error, sticky
}

// NewSymbolTable creates an empty table. Index 0 is reserved by the
// format and never assigned.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		symbols:        make(map[symbolKey]*Symbol),
		byIndex:        make(map[uint16]*Symbol),
		count:          1,
		pool:           NewBuffer(256),
		bootstrap:      NewBuffer(0),
		bootstrapIndex: make(map[string]int),
	}
}

// Count returns the constant_pool_count value: one more than the number
// of used slots, counting long and double entries twice.
func (st *SymbolTable) Count() int {
	return int(st.count)
}

// EntryCount returns the number of distinct symbols interned.
func (st *SymbolTable) EntryCount() int {
	return len(st.entries)
}

// Err returns the first error recorded during interning, if any.
func (st *SymbolTable) Err() error {
	return st.err
}

func (st *SymbolTable) setErr(err error) {
	if st.err == nil {
		st.err = err
	}
}

// intern returns the symbol for key, creating and encoding it via encode
// on first insertion. On pool overflow the zero index is returned and a
// sticky error recorded.
func (st *SymbolTable) intern(key symbolKey, encode func(*Buffer)) *Symbol {
	if sym, ok := st.symbols[key]; ok {
		return sym
	}
	width := uint16(1)
	if key.tag == TagLong || key.tag == TagDouble {
		width = 2
	}
	if int(st.count)+int(width) > MaxPoolCount {
		st.setErr(&ClassTooLargeError{PoolCount: int(st.count) + int(width)})
		return &Symbol{Tag: key.tag}
	}
	sym := &Symbol{
		Index: st.count,
		Tag:   key.tag,
		Owner: key.owner,
		Name:  key.name,
		Value: key.value,
		Data:  key.data,
	}
	st.count += width
	st.symbols[key] = sym
	st.byIndex[sym.Index] = sym
	st.entries = append(st.entries, sym)
	st.pool.PutU8(uint8(key.tag))
	encode(st.pool)
	return sym
}

// Utf8 interns a modified UTF-8 string entry.
func (st *SymbolTable) Utf8(s string) uint16 {
	sym := st.intern(symbolKey{tag: TagUtf8, value: s}, func(b *Buffer) {
		if err := b.PutUTF8(s); err != nil {
			st.setErr(err)
		}
	})
	return sym.Index
}

// Integer interns a 32-bit integer entry.
func (st *SymbolTable) Integer(v int32) uint16 {
	bits := uint64(uint32(v))
	sym := st.intern(symbolKey{tag: TagInteger, data: bits}, func(b *Buffer) {
		b.PutU32(uint32(bits))
	})
	return sym.Index
}

// Float interns a 32-bit float entry, deduplicated by bit pattern.
func (st *SymbolTable) Float(v float32) uint16 {
	bits := uint64(math.Float32bits(v))
	sym := st.intern(symbolKey{tag: TagFloat, data: bits}, func(b *Buffer) {
		b.PutU32(uint32(bits))
	})
	return sym.Index
}

// Long interns a 64-bit integer entry. The entry occupies two pool slots.
func (st *SymbolTable) Long(v int64) uint16 {
	bits := uint64(v)
	sym := st.intern(symbolKey{tag: TagLong, data: bits}, func(b *Buffer) {
		b.PutU64(bits)
	})
	return sym.Index
}

// Double interns a 64-bit float entry, deduplicated by bit pattern. The
// entry occupies two pool slots.
func (st *SymbolTable) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	sym := st.intern(symbolKey{tag: TagDouble, data: bits}, func(b *Buffer) {
		b.PutU64(bits)
	})
	return sym.Index
}

// Class interns a class reference by internal name (e.g. "java/lang/Object").
func (st *SymbolTable) Class(name string) uint16 {
	nameIdx := st.Utf8(name)
	sym := st.intern(symbolKey{tag: TagClass, value: name}, func(b *Buffer) {
		b.PutU16(nameIdx)
	})
	return sym.Index
}

// String interns a string literal entry.
func (st *SymbolTable) String(s string) uint16 {
	utf8Idx := st.Utf8(s)
	sym := st.intern(symbolKey{tag: TagString, value: s}, func(b *Buffer) {
		b.PutU16(utf8Idx)
	})
	return sym.Index
}

// MethodType interns a method-type entry for the given descriptor.
func (st *SymbolTable) MethodType(desc string) uint16 {
	descIdx := st.Utf8(desc)
	sym := st.intern(symbolKey{tag: TagMethodType, value: desc}, func(b *Buffer) {
		b.PutU16(descIdx)
	})
	return sym.Index
}

// NameAndType interns a name-and-descriptor pair.
func (st *SymbolTable) NameAndType(name, desc string) uint16 {
	nameIdx := st.Utf8(name)
	descIdx := st.Utf8(desc)
	sym := st.intern(symbolKey{tag: TagNameAndType, name: name, value: desc}, func(b *Buffer) {
		b.PutU16(nameIdx)
		b.PutU16(descIdx)
	})
	return sym.Index
}

func (st *SymbolTable) memberRef(tag int, owner, name, desc string) uint16 {
	ownerIdx := st.Class(owner)
	natIdx := st.NameAndType(name, desc)
	key := symbolKey{tag: tag, owner: owner, name: name, value: desc}
	sym := st.intern(key, func(b *Buffer) {
		b.PutU16(ownerIdx)
		b.PutU16(natIdx)
	})
	return sym.Index
}

// FieldRef interns a field reference.
func (st *SymbolTable) FieldRef(owner, name, desc string) uint16 {
	return st.memberRef(TagFieldref, owner, name, desc)
}

// MethodRef interns a class method reference.
func (st *SymbolTable) MethodRef(owner, name, desc string) uint16 {
	return st.memberRef(TagMethodref, owner, name, desc)
}

// InterfaceMethodRef interns an interface method reference.
func (st *SymbolTable) InterfaceMethodRef(owner, name, desc string) uint16 {
	return st.memberRef(TagInterfaceMethodref, owner, name, desc)
}

// MethodHandle interns a method-handle entry for h.
func (st *SymbolTable) MethodHandle(h Handle) uint16 {
	var refIdx uint16
	if h.Kind <= RefPutStatic {
		refIdx = st.FieldRef(h.Owner, h.Name, h.Desc)
	} else if h.Interface {
		refIdx = st.InterfaceMethodRef(h.Owner, h.Name, h.Desc)
	} else {
		refIdx = st.MethodRef(h.Owner, h.Name, h.Desc)
	}
	// kind and the interface bit both select the referenced entry, so
	// both belong in the key
	data := uint64(h.Kind) << 1
	if h.Interface {
		data |= 1
	}
	key := symbolKey{tag: TagMethodHandle, owner: h.Owner, name: h.Name, value: h.Desc, data: data}
	sym := st.intern(key, func(b *Buffer) {
		b.PutU8(uint8(h.Kind))
		b.PutU16(refIdx)
	})
	return sym.Index
}

// Module interns a module name entry.
func (st *SymbolTable) Module(name string) uint16 {
	nameIdx := st.Utf8(name)
	sym := st.intern(symbolKey{tag: TagModule, value: name}, func(b *Buffer) {
		b.PutU16(nameIdx)
	})
	return sym.Index
}

// Package interns a package name entry.
func (st *SymbolTable) Package(name string) uint16 {
	nameIdx := st.Utf8(name)
	sym := st.intern(symbolKey{tag: TagPackage, value: name}, func(b *Buffer) {
		b.PutU16(nameIdx)
	})
	return sym.Index
}

// InvokeDynamic interns a dynamic call-site entry backed by the given
// bootstrap method and static arguments.
func (st *SymbolTable) InvokeDynamic(name, desc string, bootstrap Handle, args ...interface{}) uint16 {
	return st.dynamicEntry(TagInvokeDynamic, name, desc, bootstrap, args)
}

// DynamicConst interns a dynamically-computed constant entry.
func (st *SymbolTable) DynamicConst(c ConstDynamic) uint16 {
	return st.dynamicEntry(TagDynamic, c.Name, c.Desc, c.Bootstrap, c.Args)
}

func (st *SymbolTable) dynamicEntry(tag int, name, desc string, bootstrap Handle, args []interface{}) uint16 {
	bsmIdx := st.addBootstrapMethod(bootstrap, args)
	natIdx := st.NameAndType(name, desc)
	key := symbolKey{tag: tag, name: name, value: desc, data: uint64(bsmIdx)}
	sym := st.intern(key, func(b *Buffer) {
		b.PutU16(uint16(bsmIdx))
		b.PutU16(natIdx)
	})
	return sym.Index
}

// addBootstrapMethod records an entry in the BootstrapMethods attribute,
// returning its index. Identical bootstrap specifications share one entry.
func (st *SymbolTable) addBootstrapMethod(bootstrap Handle, args []interface{}) int {
	entry := NewBuffer(8 + 2*len(args))
	entry.PutU16(st.MethodHandle(bootstrap))
	entry.PutU16(uint16(len(args)))
	for _, arg := range args {
		sym, err := st.Constant(arg)
		if err != nil {
			st.setErr(err)
			return 0
		}
		entry.PutU16(sym.Index)
	}
	key := string(entry.Bytes())
	if idx, ok := st.bootstrapIndex[key]; ok {
		return idx
	}
	idx := st.bootstrapCount
	st.bootstrapIndex[key] = idx
	st.bootstrapCount++
	st.bootstrap.PutBuffer(entry)
	return idx
}

// Constant interns an arbitrary ldc-style constant value, dispatching on
// its Go type. Supported: int, int32, int64, float32, float64, string,
// ClassName, Handle and ConstDynamic.
func (st *SymbolTable) Constant(v interface{}) (*Symbol, error) {
	var idx uint16
	switch c := v.(type) {
	case int:
		if c < math.MinInt32 || c > math.MaxInt32 {
			return nil, &UnsupportedConstantError{Value: fmt.Sprintf("int %d overflows 32 bits", c)}
		}
		idx = st.Integer(int32(c))
	case int32:
		idx = st.Integer(c)
	case int64:
		idx = st.Long(c)
	case float32:
		idx = st.Float(c)
	case float64:
		idx = st.Double(c)
	case string:
		idx = st.String(c)
	case ClassName:
		idx = st.Class(string(c))
	case Handle:
		idx = st.MethodHandle(c)
	case ConstDynamic:
		idx = st.DynamicConst(c)
	default:
		return nil, &UnsupportedConstantError{Value: fmt.Sprintf("%T(%v)", v, v)}
	}
	return st.symbolAt(idx), nil
}

// symbolAt returns the interned symbol with the given index, or nil.
func (st *SymbolTable) symbolAt(idx uint16) *Symbol {
	return st.byIndex[idx]
}

// BootstrapMethodCount returns the number of distinct bootstrap entries.
func (st *SymbolTable) BootstrapMethodCount() int {
	return st.bootstrapCount
}

// WritePool appends the constant_pool_count and all encoded entries to
// out.
func (st *SymbolTable) WritePool(out *Buffer) {
	out.PutU16(st.count)
	out.PutBuffer(st.pool)
}

// writeBootstrapMethods appends the body of the BootstrapMethods
// attribute (num_bootstrap_methods followed by the entries).
func (st *SymbolTable) writeBootstrapMethods(out *Buffer) {
	out.PutU16(uint16(st.bootstrapCount))
	out.PutBuffer(st.bootstrap)
}

// bootstrapMethodsLength returns the byte length of the BootstrapMethods
// attribute body.
func (st *SymbolTable) bootstrapMethodsLength() int {
	return 2 + st.bootstrap.Len()
}
