package classfile

import (
	"fmt"
	"math"
	"strings"
)

// describeConstant renders a pool entry the way a listing shows it, for
// ldc operands and ConstantValue attributes.
func (cf *ClassFile) describeConstant(idx int) string {
	e, err := cf.entry(idx)
	if err != nil {
		return fmt.Sprintf("#%d", idx)
	}
	switch e.tag {
	case TagUtf8:
		return fmt.Sprintf("%q", e.str)
	case TagInteger:
		return fmt.Sprintf("int %d", int32(e.num))
	case TagFloat:
		return fmt.Sprintf("float %g", math.Float32frombits(uint32(e.num)))
	case TagLong:
		return fmt.Sprintf("long %d", int64(e.num))
	case TagDouble:
		return fmt.Sprintf("double %g", math.Float64frombits(e.num))
	case TagString:
		s, err := cf.utf8(int(e.ref1))
		if err != nil {
			return fmt.Sprintf("#%d", idx)
		}
		return fmt.Sprintf("%q", s)
	case TagClass:
		name, err := cf.utf8(int(e.ref1))
		if err != nil {
			return fmt.Sprintf("#%d", idx)
		}
		return name
	case TagMethodType:
		desc, err := cf.utf8(int(e.ref1))
		if err != nil {
			return fmt.Sprintf("#%d", idx)
		}
		return desc
	case TagMethodHandle:
		return fmt.Sprintf("handle kind=%d #%d", e.ref1, e.ref2)
	case TagNameAndType:
		name, _ := cf.utf8(int(e.ref1))
		desc, _ := cf.utf8(int(e.ref2))
		return name + ":" + desc
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		owner, err := cf.className(int(e.ref1))
		if err != nil {
			return fmt.Sprintf("#%d", idx)
		}
		nt, err := cf.entry(int(e.ref2))
		if err != nil || nt.tag != TagNameAndType {
			return owner
		}
		name, _ := cf.utf8(int(nt.ref1))
		desc, _ := cf.utf8(int(nt.ref2))
		return owner + "." + name + ":" + desc
	case TagDynamic, TagInvokeDynamic:
		nt, err := cf.entry(int(e.ref2))
		if err != nil || nt.tag != TagNameAndType {
			return fmt.Sprintf("#%d", idx)
		}
		name, _ := cf.utf8(int(nt.ref1))
		desc, _ := cf.utf8(int(nt.ref2))
		return fmt.Sprintf("bsm=%d %s:%s", e.ref1, name, desc)
	default:
		return fmt.Sprintf("#%d", idx)
	}
}

// disassembleInstruction renders the instruction at pos and returns its
// encoded length.
func (cf *ClassFile) disassembleInstruction(code []byte, pos int) (string, int) {
	op := Opcode(code[pos])
	name := opcodeNames[op]
	if name == "" {
		return fmt.Sprintf("%04d  .byte 0x%02X", pos, byte(op)), 1
	}
	size, err := instructionSize(code, pos)
	if err != nil || pos+size > len(code) {
		return fmt.Sprintf("%04d  %s <truncated>", pos, name), len(code) - pos
	}

	switch {
	case op == Bipush:
		return fmt.Sprintf("%04d  %s %d", pos, name, int8(code[pos+1])), size
	case op == Sipush:
		return fmt.Sprintf("%04d  %s %d", pos, name, int16(beU16(code, pos+1))), size
	case op == Ldc:
		return fmt.Sprintf("%04d  %s %s", pos, name, cf.describeConstant(int(code[pos+1]))), size
	case op == LdcW || op == Ldc2W:
		return fmt.Sprintf("%04d  %s %s", pos, name, cf.describeConstant(int(beU16(code, pos+1)))), size
	case op >= Iload && op <= Aload || op >= Istore && op <= Astore || op == Ret:
		return fmt.Sprintf("%04d  %s %d", pos, name, code[pos+1]), size
	case op == Iinc:
		return fmt.Sprintf("%04d  %s %d %d", pos, name, code[pos+1], int8(code[pos+2])), size
	case op == Goto || op == Jsr || isConditionalBranch(op):
		target := pos + int(int16(beU16(code, pos+1)))
		return fmt.Sprintf("%04d  %s %04d", pos, name, target), size
	case op == GotoW || op == JsrW:
		target := pos + int(int32(beU32(code, pos+1)))
		return fmt.Sprintf("%04d  %s %04d", pos, name, target), size
	case op == Tableswitch || op == Lookupswitch:
		targets := branchTargets(code, pos)
		parts := make([]string, len(targets))
		parts[0] = fmt.Sprintf("default=%04d", targets[0])
		for i, t := range targets[1:] {
			parts[i+1] = fmt.Sprintf("%04d", t)
		}
		return fmt.Sprintf("%04d  %s %s", pos, name, strings.Join(parts, " ")), size
	case op == Getstatic || op == Putstatic || op == Getfield || op == Putfield ||
		op == Invokevirtual || op == Invokespecial || op == Invokestatic ||
		op == New || op == Anewarray || op == Checkcast || op == Instanceof:
		return fmt.Sprintf("%04d  %s %s", pos, name, cf.describeConstant(int(beU16(code, pos+1)))), size
	case op == Invokeinterface:
		return fmt.Sprintf("%04d  %s %s count=%d", pos, name,
			cf.describeConstant(int(beU16(code, pos+1))), code[pos+3]), size
	case op == Invokedynamic:
		return fmt.Sprintf("%04d  %s %s", pos, name, cf.describeConstant(int(beU16(code, pos+1)))), size
	case op == Newarray:
		return fmt.Sprintf("%04d  %s %d", pos, name, code[pos+1]), size
	case op == Multianewarray:
		return fmt.Sprintf("%04d  %s %s dims=%d", pos, name,
			cf.describeConstant(int(beU16(code, pos+1))), code[pos+3]), size
	case op == Wide:
		inner := Opcode(code[pos+1])
		if inner == Iinc {
			return fmt.Sprintf("%04d  wide %s %d %d", pos, opcodeNames[inner],
				beU16(code, pos+2), int16(beU16(code, pos+4))), size
		}
		return fmt.Sprintf("%04d  wide %s %d", pos, opcodeNames[inner], beU16(code, pos+2)), size
	default:
		return fmt.Sprintf("%04d  %s", pos, name), size
	}
}

// Disassemble returns a full listing of the parsed class.
func (cf *ClassFile) Disassemble() string {
	return cf.Listing(true, true)
}

// Listing renders the class; lines and frames select whether
// LineNumberTable rows and stack-map frame counts are included.
func (cf *ClassFile) Listing(lines, frames bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "class %s\n", cf.ThisName)
	fmt.Fprintf(&sb, "  version: %d.%d\n", cf.Major, cf.Minor)
	fmt.Fprintf(&sb, "  access: 0x%04X\n", cf.Access)
	if cf.SuperName != "" {
		fmt.Fprintf(&sb, "  super: %s\n", cf.SuperName)
	}
	for _, iface := range cf.Interfaces {
		fmt.Fprintf(&sb, "  implements: %s\n", iface)
	}
	if cf.SourceFile != "" {
		fmt.Fprintf(&sb, "  source: %s\n", cf.SourceFile)
	}

	for _, f := range cf.Fields {
		fmt.Fprintf(&sb, "\nfield %s %s (access 0x%04X)\n", f.Name, f.Descriptor, f.Access)
		if f.ConstValue != "" {
			fmt.Fprintf(&sb, "  value: %s\n", f.ConstValue)
		}
	}

	for _, m := range cf.Methods {
		fmt.Fprintf(&sb, "\nmethod %s%s (access 0x%04X)\n", m.Name, m.Descriptor, m.Access)
		if m.Code == nil {
			continue
		}
		fmt.Fprintf(&sb, "  max_stack=%d max_locals=%d\n", m.Code.MaxStack, m.Code.MaxLocals)
		for pos := 0; pos < len(m.Code.Code); {
			line, size := cf.disassembleInstruction(m.Code.Code, pos)
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
			if size <= 0 {
				break
			}
			pos += size
		}
		for _, h := range m.Code.Handlers {
			catch := h.CatchType
			if catch == "" {
				catch = "any"
			}
			fmt.Fprintf(&sb, "  try [%04d,%04d) -> %04d catch %s\n", h.Start, h.End, h.Handler, catch)
		}
		if frames && m.Code.FrameNum > 0 {
			fmt.Fprintf(&sb, "  stack map frames: %d\n", m.Code.FrameNum)
		}
		if lines {
			for _, l := range m.Code.Lines {
				fmt.Fprintf(&sb, "  line %d at %04d\n", l.Line, l.StartPC)
			}
		}
	}
	return sb.String()
}
