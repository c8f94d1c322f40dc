package classfile

import (
	"errors"
	"fmt"
)

// fieldInfo is one entry of the field table. Fields carry no code, so
// the writer only needs interned indices and an optional ConstantValue.
type fieldInfo struct {
	access   int
	nameIdx  uint16
	descIdx  uint16
	constIdx uint16 // ConstantValue pool index, 0 when absent
}

// ClassWriter assembles one class file. It owns the constant pool and
// the per-method writers; nothing is shared between two ClassWriters,
// so independent classes may be built concurrently. A single
// ClassWriter is not safe for concurrent use.
type ClassWriter struct {
	symtab *SymbolTable

	version  int
	access   int
	thisName string
	thisIdx  uint16
	superIdx uint16
	ifaces   []uint16

	fields  []*fieldInfo
	methods []*MethodWriter

	sourceIdx uint16

	// ComputeFrames selects StackMapTable inference for every method
	// created after the flag changes. It defaults to true for class
	// versions that require frames.
	ComputeFrames bool

	commonSuper commonSuperFunc

	err      error
	finished bool
}

// NewClassWriter starts a class with the given major version, access
// flags and internal names. superName may be empty only for
// java/lang/Object itself.
func NewClassWriter(version, access int, thisName, superName string, interfaces ...string) *ClassWriter {
	cw := &ClassWriter{
		symtab:        NewSymbolTable(),
		version:       version,
		access:        access,
		thisName:      thisName,
		ComputeFrames: version >= V1_7,
		commonSuper:   defaultCommonSuper,
	}
	cw.thisIdx = cw.symtab.Class(thisName)
	if superName != "" {
		cw.superIdx = cw.symtab.Class(superName)
	}
	for _, name := range interfaces {
		cw.ifaces = append(cw.ifaces, cw.symtab.Class(name))
	}
	return cw
}

// Symbols exposes the class's constant pool for direct interning.
func (cw *ClassWriter) Symbols() *SymbolTable {
	return cw.symtab
}

// SetCommonSuper installs the type-hierarchy oracle used when frame
// inference merges two distinct reference types. The default answers
// "java/lang/Object" for every pair.
func (cw *ClassWriter) SetCommonSuper(fn commonSuperFunc) {
	if fn != nil {
		cw.commonSuper = fn
	}
}

func (cw *ClassWriter) fail(err error) {
	if cw.err == nil {
		cw.err = err
	}
}

// NewField adds a field. constValue, when non-nil, becomes a
// ConstantValue attribute; it must be an int, long, float, double or
// string matching the field descriptor.
func (cw *ClassWriter) NewField(access int, name, desc string, constValue interface{}) error {
	f := &fieldInfo{
		access:  access,
		nameIdx: cw.symtab.Utf8(name),
		descIdx: cw.symtab.Utf8(desc),
	}
	if constValue != nil {
		sym, err := cw.symtab.Constant(constValue)
		if err != nil {
			cw.fail(err)
			return err
		}
		f.constIdx = sym.Index
	}
	cw.fields = append(cw.fields, f)
	return nil
}

// NewMethod starts a method body. The returned writer must receive its
// full instruction sequence before ToBytes is called on the class.
func (cw *ClassWriter) NewMethod(access int, name, desc string) *MethodWriter {
	m := newMethodWriter(cw, access, name, desc)
	cw.methods = append(cw.methods, m)
	return m
}

// SetSourceFile records the SourceFile attribute.
func (cw *ClassWriter) SetSourceFile(name string) {
	cw.sourceIdx = cw.symtab.Utf8(name)
}

// ToBytes finalizes every method and assembles the class file. All
// constant-pool entries needed by attributes written here are interned
// before the pool itself is emitted, since the pool count freezes at
// that point.
func (cw *ClassWriter) ToBytes() ([]byte, error) {
	if cw.finished {
		return nil, fmt.Errorf("class %s assembled twice", cw.thisName)
	}
	cw.finished = true
	if cw.err != nil {
		return nil, cw.err
	}

	for _, m := range cw.methods {
		if err := m.finalize(); err != nil {
			return nil, err
		}
	}

	// intern attribute names now, ahead of the pool write
	var codeIdx, stackMapIdx, lineIdx, excIdx, constValIdx, sourceNameIdx, bootstrapIdx uint16
	for _, m := range cw.methods {
		if len(m.finalCode) > 0 {
			codeIdx = cw.symtab.Utf8(attrCode)
			if m.stackMapNum > 0 {
				stackMapIdx = cw.symtab.Utf8(attrStackMapTable)
			}
			if len(m.lineTable) > 0 {
				lineIdx = cw.symtab.Utf8(attrLineNumberTable)
			}
		}
		if len(m.throws) > 0 {
			excIdx = cw.symtab.Utf8(attrExceptions)
		}
	}
	for _, f := range cw.fields {
		if f.constIdx != 0 {
			constValIdx = cw.symtab.Utf8(attrConstantValue)
		}
	}
	if cw.sourceIdx != 0 {
		sourceNameIdx = cw.symtab.Utf8(attrSourceFile)
	}
	if cw.symtab.BootstrapMethodCount() > 0 {
		bootstrapIdx = cw.symtab.Utf8(attrBootstrapMethods)
	}
	if err := cw.symtab.Err(); err != nil {
		var tooLarge *ClassTooLargeError
		if errors.As(err, &tooLarge) && tooLarge.ClassName == "" {
			tooLarge.ClassName = cw.thisName
		}
		return nil, err
	}

	size := 24 + 2*len(cw.ifaces)
	for _, f := range cw.fields {
		size += 8
		if f.constIdx != 0 {
			size += 8
		}
	}
	for _, m := range cw.methods {
		size += 8 + cw.methodAttrLength(m)
	}
	size += cw.classAttrLength()

	out := NewBuffer(size + 2 + cw.symtab.pool.Len())
	out.PutU32(Magic)
	out.PutU16(0) // minor version
	out.PutU16(uint16(cw.version))
	cw.symtab.WritePool(out)
	out.PutU16(uint16(cw.access))
	out.PutU16(cw.thisIdx)
	out.PutU16(cw.superIdx)
	out.PutU16(uint16(len(cw.ifaces)))
	for _, idx := range cw.ifaces {
		out.PutU16(idx)
	}

	out.PutU16(uint16(len(cw.fields)))
	for _, f := range cw.fields {
		out.PutU16(uint16(f.access))
		out.PutU16(f.nameIdx)
		out.PutU16(f.descIdx)
		if f.constIdx != 0 {
			out.PutU16(1)
			out.PutU16(constValIdx)
			out.PutU32(2)
			out.PutU16(f.constIdx)
		} else {
			out.PutU16(0)
		}
	}

	out.PutU16(uint16(len(cw.methods)))
	for _, m := range cw.methods {
		cw.writeMethod(out, m, codeIdx, stackMapIdx, lineIdx, excIdx)
	}

	attrCount := 0
	if cw.sourceIdx != 0 {
		attrCount++
	}
	if bootstrapIdx != 0 {
		attrCount++
	}
	out.PutU16(uint16(attrCount))
	if cw.sourceIdx != 0 {
		out.PutU16(sourceNameIdx)
		out.PutU32(2)
		out.PutU16(cw.sourceIdx)
	}
	if bootstrapIdx != 0 {
		out.PutU16(bootstrapIdx)
		out.PutU32(uint32(cw.symtab.bootstrapMethodsLength()))
		cw.symtab.writeBootstrapMethods(out)
	}

	return out.Bytes(), nil
}

// codeAttrLength is the Code attribute body length for a finalized
// method, excluding the 6-byte attribute header.
func (m *MethodWriter) codeAttrLength() int {
	n := 12 + len(m.finalCode) + 8*len(m.excTable)
	if m.stackMapNum > 0 {
		n += 8 + m.stackMap.Len()
	}
	if len(m.lineTable) > 0 {
		n += 8 + 4*len(m.lineTable)
	}
	return n
}

func (cw *ClassWriter) methodAttrLength(m *MethodWriter) int {
	n := 0
	if len(m.finalCode) > 0 {
		n += 6 + m.codeAttrLength()
	}
	if len(m.throws) > 0 {
		n += 8 + 2*len(m.throws)
	}
	return n
}

func (cw *ClassWriter) classAttrLength() int {
	n := 0
	if cw.sourceIdx != 0 {
		n += 8
	}
	if cw.symtab.BootstrapMethodCount() > 0 {
		n += 6 + cw.symtab.bootstrapMethodsLength()
	}
	return n
}

func (cw *ClassWriter) writeMethod(out *Buffer, m *MethodWriter, codeIdx, stackMapIdx, lineIdx, excIdx uint16) {
	out.PutU16(uint16(m.access))
	out.PutU16(m.nameIdx)
	out.PutU16(m.descIdx)

	attrCount := 0
	if len(m.finalCode) > 0 {
		attrCount++
	}
	if len(m.throws) > 0 {
		attrCount++
	}
	out.PutU16(uint16(attrCount))

	if len(m.finalCode) > 0 {
		out.PutU16(codeIdx)
		out.PutU32(uint32(m.codeAttrLength()))
		out.PutU16(uint16(m.maxStack))
		out.PutU16(uint16(m.maxLocals))
		out.PutU32(uint32(len(m.finalCode)))
		out.PutBytes(m.finalCode)
		out.PutU16(uint16(len(m.excTable)))
		for _, e := range m.excTable {
			out.PutU16(e.start)
			out.PutU16(e.end)
			out.PutU16(e.handler)
			out.PutU16(e.catchType)
		}
		codeAttrs := 0
		if m.stackMapNum > 0 {
			codeAttrs++
		}
		if len(m.lineTable) > 0 {
			codeAttrs++
		}
		out.PutU16(uint16(codeAttrs))
		if m.stackMapNum > 0 {
			out.PutU16(stackMapIdx)
			out.PutU32(uint32(2 + m.stackMap.Len()))
			out.PutU16(uint16(m.stackMapNum))
			out.PutBuffer(m.stackMap)
		}
		if len(m.lineTable) > 0 {
			out.PutU16(lineIdx)
			out.PutU32(uint32(2 + 4*len(m.lineTable)))
			out.PutU16(uint16(len(m.lineTable)))
			for _, e := range m.lineTable {
				out.PutU16(e.startPC)
				out.PutU16(e.line)
			}
		}
	}

	if len(m.throws) > 0 {
		out.PutU16(excIdx)
		out.PutU32(uint32(2 + 2*len(m.throws)))
		out.PutU16(uint16(len(m.throws)))
		for _, idx := range m.throws {
			out.PutU16(idx)
		}
	}
}
