package classfile

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number: expected 0xCAFEBABE")
	ErrTruncatedClass = errors.New("unexpected end of class data")
	ErrBadPoolIndex   = errors.New("constant pool index out of range")
)

// poolEntry is one parsed constant-pool slot. Long and double occupy
// two slots; the second slot has tag 0.
type poolEntry struct {
	tag  int
	str  string // Utf8 payload
	ref1 uint16
	ref2 uint16
	num  uint64 // Integer/Float/Long/Double raw bits
}

// ClassFile is a parsed class. Parsing covers the structures the writer
// emits: header, pool, members with Code, and the class attributes.
type ClassFile struct {
	Minor      int
	Major      int
	Access     int
	ThisName   string
	SuperName  string
	Interfaces []string
	Fields     []Member
	Methods    []Member
	SourceFile string

	pool []poolEntry
}

// Member is one field or method entry.
type Member struct {
	Access     int
	Name       string
	Descriptor string
	Code       *CodeAttr // nil for fields and abstract/native methods
	ConstValue string    // ConstantValue rendered as text, fields only
}

// CodeAttr is a parsed Code attribute.
type CodeAttr struct {
	MaxStack  int
	MaxLocals int
	Code      []byte
	Handlers  []HandlerInfo
	Lines     []LineInfo
	FrameNum  int // StackMapTable number_of_entries, body not decoded
}

// HandlerInfo is one exception_table row.
type HandlerInfo struct {
	Start, End, Handler int
	CatchType           string // empty for catch-all
}

// LineInfo is one LineNumberTable row.
type LineInfo struct {
	StartPC, Line int
}

type classReader struct {
	data   []byte
	offset int
}

func (r *classReader) u1() (int, error) {
	if r.offset+1 > len(r.data) {
		return 0, ErrTruncatedClass
	}
	v := int(r.data[r.offset])
	r.offset++
	return v, nil
}

func (r *classReader) u2() (int, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrTruncatedClass
	}
	v := int(beU16(r.data, r.offset))
	r.offset += 2
	return v, nil
}

func (r *classReader) u4() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrTruncatedClass
	}
	v := beU32(r.data, r.offset)
	r.offset += 4
	return v, nil
}

func (r *classReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, ErrTruncatedClass
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// Parse reads a class file produced by this package (or any conforming
// assembler) into a ClassFile.
func Parse(data []byte) (*ClassFile, error) {
	r := &classReader{data: data}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08X", ErrInvalidMagic, magic)
	}

	cf := &ClassFile{}
	if cf.Minor, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.Major, err = r.u2(); err != nil {
		return nil, err
	}

	if err := cf.readPool(r); err != nil {
		return nil, err
	}

	if cf.Access, err = r.u2(); err != nil {
		return nil, err
	}
	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cf.ThisName, err = cf.className(thisIdx); err != nil {
		return nil, err
	}
	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if cf.SuperName, err = cf.className(superIdx); err != nil {
			return nil, err
		}
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < ifaceCount; i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := cf.className(idx)
		if err != nil {
			return nil, err
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	if cf.Fields, err = cf.readMembers(r, false); err != nil {
		return nil, err
	}
	if cf.Methods, err = cf.readMembers(r, true); err != nil {
		return nil, err
	}

	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < attrCount; i++ {
		name, body, err := cf.readAttr(r)
		if err != nil {
			return nil, err
		}
		if name == attrSourceFile && len(body) == 2 {
			cf.SourceFile, _ = cf.utf8(int(beU16(body, 0)))
		}
	}
	return cf, nil
}

func (cf *ClassFile) readPool(r *classReader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("constant pool count is zero")
	}
	cf.pool = make([]poolEntry, count)
	for i := 1; i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return err
		}
		e := poolEntry{tag: tag}
		switch tag {
		case TagUtf8:
			n, err := r.u2()
			if err != nil {
				return err
			}
			raw, err := r.bytes(n)
			if err != nil {
				return err
			}
			e.str = decodeModifiedUTF8(raw)
		case TagInteger, TagFloat:
			v, err := r.u4()
			if err != nil {
				return err
			}
			e.num = uint64(v)
		case TagLong, TagDouble:
			hi, err := r.u4()
			if err != nil {
				return err
			}
			lo, err := r.u4()
			if err != nil {
				return err
			}
			e.num = uint64(hi)<<32 | uint64(lo)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			idx, err := r.u2()
			if err != nil {
				return err
			}
			e.ref1 = uint16(idx)
		case TagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return err
			}
			idx, err := r.u2()
			if err != nil {
				return err
			}
			e.ref1 = uint16(kind)
			e.ref2 = uint16(idx)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			a, err := r.u2()
			if err != nil {
				return err
			}
			b, err := r.u2()
			if err != nil {
				return err
			}
			e.ref1 = uint16(a)
			e.ref2 = uint16(b)
		default:
			return fmt.Errorf("unknown constant pool tag %d at entry %d", tag, i)
		}
		cf.pool[i] = e
		if tag == TagLong || tag == TagDouble {
			i++ // second slot stays empty
		}
	}
	return nil
}

func (cf *ClassFile) readMembers(r *classReader, methods bool) ([]Member, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	var members []Member
	for i := 0; i < count; i++ {
		var m Member
		if m.Access, err = r.u2(); err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if m.Name, err = cf.utf8(nameIdx); err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if m.Descriptor, err = cf.utf8(descIdx); err != nil {
			return nil, err
		}

		attrCount, err := r.u2()
		if err != nil {
			return nil, err
		}
		for j := 0; j < attrCount; j++ {
			name, body, err := cf.readAttr(r)
			if err != nil {
				return nil, err
			}
			switch {
			case methods && name == attrCode:
				code, err := cf.parseCode(body)
				if err != nil {
					return nil, err
				}
				m.Code = code
			case !methods && name == attrConstantValue && len(body) == 2:
				m.ConstValue = cf.describeConstant(int(beU16(body, 0)))
			}
		}
		members = append(members, m)
	}
	return members, nil
}

func (cf *ClassFile) readAttr(r *classReader) (string, []byte, error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	name, err := cf.utf8(nameIdx)
	if err != nil {
		return "", nil, err
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	body, err := r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return name, body, nil
}

func (cf *ClassFile) parseCode(body []byte) (*CodeAttr, error) {
	r := &classReader{data: body}
	code := &CodeAttr{}
	var err error
	if code.MaxStack, err = r.u2(); err != nil {
		return nil, err
	}
	if code.MaxLocals, err = r.u2(); err != nil {
		return nil, err
	}
	codeLen, err := r.u4()
	if err != nil {
		return nil, err
	}
	if code.Code, err = r.bytes(int(codeLen)); err != nil {
		return nil, err
	}

	excCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < excCount; i++ {
		var h HandlerInfo
		if h.Start, err = r.u2(); err != nil {
			return nil, err
		}
		if h.End, err = r.u2(); err != nil {
			return nil, err
		}
		if h.Handler, err = r.u2(); err != nil {
			return nil, err
		}
		catchIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if catchIdx != 0 {
			if h.CatchType, err = cf.className(catchIdx); err != nil {
				return nil, err
			}
		}
		code.Handlers = append(code.Handlers, h)
	}

	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < attrCount; i++ {
		name, attrBody, err := cf.readAttr(r)
		if err != nil {
			return nil, err
		}
		switch name {
		case attrStackMapTable:
			if len(attrBody) >= 2 {
				code.FrameNum = int(beU16(attrBody, 0))
			}
		case attrLineNumberTable:
			if len(attrBody) < 2 {
				continue
			}
			n := int(beU16(attrBody, 0))
			for k := 0; k < n && 2+4*k+4 <= len(attrBody); k++ {
				code.Lines = append(code.Lines, LineInfo{
					StartPC: int(beU16(attrBody, 2+4*k)),
					Line:    int(beU16(attrBody, 2+4*k+2)),
				})
			}
		}
	}
	return code, nil
}

func (cf *ClassFile) entry(idx int) (*poolEntry, error) {
	if idx <= 0 || idx >= len(cf.pool) || cf.pool[idx].tag == 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadPoolIndex, idx)
	}
	return &cf.pool[idx], nil
}

func (cf *ClassFile) utf8(idx int) (string, error) {
	e, err := cf.entry(idx)
	if err != nil {
		return "", err
	}
	if e.tag != TagUtf8 {
		return "", fmt.Errorf("pool entry %d is not Utf8 (tag %d)", idx, e.tag)
	}
	return e.str, nil
}

func (cf *ClassFile) className(idx int) (string, error) {
	e, err := cf.entry(idx)
	if err != nil {
		return "", err
	}
	if e.tag != TagClass {
		return "", fmt.Errorf("pool entry %d is not Class (tag %d)", idx, e.tag)
	}
	return cf.utf8(int(e.ref1))
}

// decodeModifiedUTF8 reverses the pool's UTF-8 variant, pairing up
// encoded surrogates back into supplementary code points.
func decodeModifiedUTF8(raw []byte) string {
	var units []uint16
	for i := 0; i < len(raw); {
		b := raw[i]
		switch {
		case b&0x80 == 0:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0 && i+1 < len(raw):
			units = append(units, uint16(b&0x1F)<<6|uint16(raw[i+1]&0x3F))
			i += 2
		case i+2 < len(raw):
			units = append(units, uint16(b&0x0F)<<12|uint16(raw[i+1]&0x3F)<<6|uint16(raw[i+2]&0x3F))
			i += 3
		default:
			units = append(units, uint16(b))
			i++
		}
	}
	return string(utf16.Decode(units))
}
