package classfile

import (
	"bytes"
	"errors"
	"testing"
)

func buildClass(t *testing.T, build func(cw *ClassWriter)) *ClassFile {
	t.Helper()
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	build(cw)
	data, err := cw.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse of own output: %v", err)
	}
	return cf
}

func findMethod(t *testing.T, cf *ClassFile, name string) *Member {
	t.Helper()
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	t.Fatalf("method %s not found", name)
	return nil
}

func TestAddMethodEncoding(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "add", "(II)I")
		m.VarInsn(Iload, 0)
		m.VarInsn(Iload, 1)
		m.Insn(Iadd)
		m.Insn(Ireturn)
	})

	m := findMethod(t, cf, "add")
	if m.Code == nil {
		t.Fatal("add has no Code attribute")
	}
	want := []byte{0x1A, 0x1B, 0x60, 0xAC} // iload_0 iload_1 iadd ireturn
	if !bytes.Equal(m.Code.Code, want) {
		t.Errorf("code = % X, want % X", m.Code.Code, want)
	}
	if m.Code.MaxStack != 2 {
		t.Errorf("max_stack = %d, want 2", m.Code.MaxStack)
	}
	if m.Code.MaxLocals != 2 {
		t.Errorf("max_locals = %d, want 2", m.Code.MaxLocals)
	}
	// straight-line code needs no stack map
	if m.Code.FrameNum != 0 {
		t.Errorf("frame count = %d, want 0", m.Code.FrameNum)
	}
}

func TestClassHeader(t *testing.T) {
	cw := NewClassWriter(V11, AccPublic|AccSuper, "com/example/Hdr", "java/lang/Object",
		"java/io/Serializable")
	cw.SetSourceFile("Hdr.java")
	data, err := cw.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	if got := beU32(data, 0); got != Magic {
		t.Errorf("magic = 0x%08X", got)
	}

	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cf.Major != V11 || cf.Minor != 0 {
		t.Errorf("version = %d.%d, want %d.0", cf.Major, cf.Minor, V11)
	}
	if cf.ThisName != "com/example/Hdr" {
		t.Errorf("this = %q", cf.ThisName)
	}
	if cf.SuperName != "java/lang/Object" {
		t.Errorf("super = %q", cf.SuperName)
	}
	if len(cf.Interfaces) != 1 || cf.Interfaces[0] != "java/io/Serializable" {
		t.Errorf("interfaces = %v", cf.Interfaces)
	}
	if cf.SourceFile != "Hdr.java" {
		t.Errorf("source = %q", cf.SourceFile)
	}
}

func TestConstantValueField(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		if err := cw.NewField(AccPublic|AccStatic|AccFinal, "LIMIT", "I", 42); err != nil {
			t.Fatalf("NewField: %v", err)
		}
		if err := cw.NewField(AccPrivate, "name", "Ljava/lang/String;", nil); err != nil {
			t.Fatalf("NewField: %v", err)
		}
	})

	if len(cf.Fields) != 2 {
		t.Fatalf("field count = %d, want 2", len(cf.Fields))
	}
	if cf.Fields[0].ConstValue != "int 42" {
		t.Errorf("LIMIT value = %q, want \"int 42\"", cf.Fields[0].ConstValue)
	}
	if cf.Fields[1].ConstValue != "" {
		t.Errorf("name has unexpected ConstantValue %q", cf.Fields[1].ConstValue)
	}
}

func TestBranchGetsStackMapFrame(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "max", "(II)I")
		second := NewLabel()
		m.VarInsn(Iload, 0)
		m.VarInsn(Iload, 1)
		m.JumpInsn(IfIcmplt, second)
		m.VarInsn(Iload, 0)
		m.Insn(Ireturn)
		m.Bind(second)
		m.VarInsn(Iload, 1)
		m.Insn(Ireturn)
	})

	m := findMethod(t, cf, "max")
	if m.Code.FrameNum != 1 {
		t.Errorf("frame count = %d, want 1", m.Code.FrameNum)
	}
	if m.Code.MaxStack != 2 {
		t.Errorf("max_stack = %d, want 2", m.Code.MaxStack)
	}
}

func TestBackwardBranchLoop(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "sum", "(I)I")
		loop := NewLabel()
		done := NewLabel()
		m.Insn(Iconst0)
		m.VarInsn(Istore, 1)
		m.Bind(loop)
		m.VarInsn(Iload, 0)
		m.JumpInsn(Ifle, done)
		m.VarInsn(Iload, 1)
		m.VarInsn(Iload, 0)
		m.Insn(Iadd)
		m.VarInsn(Istore, 1)
		m.IincInsn(0, -1)
		m.JumpInsn(Goto, loop)
		m.Bind(done)
		m.VarInsn(Iload, 1)
		m.Insn(Ireturn)
	})

	m := findMethod(t, cf, "sum")
	// loop head and exit both need frames
	if m.Code.FrameNum != 2 {
		t.Errorf("frame count = %d, want 2", m.Code.FrameNum)
	}
	if m.Code.MaxLocals != 2 {
		t.Errorf("max_locals = %d, want 2", m.Code.MaxLocals)
	}
}

func TestTryCatchTable(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "parse", "(Ljava/lang/String;)I")
		start, end, handler := NewLabel(), NewLabel(), NewLabel()
		m.TryCatch(start, end, handler, "java/lang/NumberFormatException")
		m.Bind(start)
		m.VarInsn(Aload, 0)
		m.MethodInsn(Invokestatic, "java/lang/Integer", "parseInt", "(Ljava/lang/String;)I", false)
		m.Bind(end)
		m.Insn(Ireturn)
		m.Bind(handler)
		m.Insn(Pop)
		m.Insn(Iconst0)
		m.Insn(Ireturn)
	})

	m := findMethod(t, cf, "parse")
	if len(m.Code.Handlers) != 1 {
		t.Fatalf("handler count = %d, want 1", len(m.Code.Handlers))
	}
	h := m.Code.Handlers[0]
	if h.CatchType != "java/lang/NumberFormatException" {
		t.Errorf("catch type = %q", h.CatchType)
	}
	if h.Start != 0 || h.End != 4 {
		t.Errorf("protected range = [%d,%d), want [0,4)", h.Start, h.End)
	}
	if h.Handler != 5 {
		t.Errorf("handler pc = %d, want 5", h.Handler)
	}
	// the handler entry needs a frame with the throwable on the stack
	if m.Code.FrameNum != 1 {
		t.Errorf("frame count = %d, want 1", m.Code.FrameNum)
	}
}

func TestUnreachableCodeDropped(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "()I")
		m.Insn(Iconst0)
		m.Insn(Ireturn)
		// dead tail
		m.Insn(Iconst1)
		m.Insn(Ireturn)
	})

	m := findMethod(t, cf, "f")
	want := []byte{0x03, 0xAC} // iconst_0 ireturn
	if !bytes.Equal(m.Code.Code, want) {
		t.Errorf("code = % X, want % X", m.Code.Code, want)
	}
}

func TestUnboundLabelInDeadCodeTolerated(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "()I")
		never := NewLabel()
		m.Insn(Iconst0)
		m.Insn(Ireturn)
		m.JumpInsn(Goto, never) // unreachable, never bound
	})
	m := findMethod(t, cf, "f")
	if len(m.Code.Code) != 2 {
		t.Errorf("code length = %d, want 2", len(m.Code.Code))
	}
}

func TestUnboundLabelReachableFails(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	m := cw.NewMethod(AccPublic|AccStatic, "f", "()I")
	never := NewLabel()
	m.Insn(Iconst0)
	m.JumpInsn(Ifne, never)
	m.Insn(Iconst0)
	m.Insn(Ireturn)

	_, err := cw.ToBytes()
	if err == nil {
		t.Fatal("expected error for reachable unbound label")
	}
	var unbound *UnboundLabelError
	if !errors.As(err, &unbound) {
		t.Errorf("error = %v (%T), want *UnboundLabelError", err, err)
	}
}

func TestStackUnderflowFails(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	m := cw.NewMethod(AccPublic|AccStatic, "f", "()V")
	m.Insn(Pop) // nothing on the stack
	m.Insn(Return)

	_, err := cw.ToBytes()
	if err == nil {
		t.Fatal("expected error for operand stack underflow")
	}
	var inconsistent *InconsistentFrameError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("error = %v (%T), want *InconsistentFrameError", err, err)
	}
	if inconsistent.Offset != 0 {
		t.Errorf("offset = %d, want 0", inconsistent.Offset)
	}
}

func TestVisitAfterFinalizationFails(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	m := cw.NewMethod(AccPublic|AccStatic, "f", "()V")
	m.Insn(Return)
	if _, err := cw.ToBytes(); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	codeLen := m.code.Len()
	l := NewLabel()
	m.VarInsn(Iload, 0)
	m.JumpInsn(Goto, l)
	m.LdcInsn(int32(7))
	m.TryCatch(l, l, l, "java/lang/Exception")
	if m.Err() == nil {
		t.Fatal("expected error from visits on a finalized method")
	}
	if m.code.Len() != codeLen {
		t.Errorf("code grew from %d to %d bytes after finalization", codeLen, m.code.Len())
	}
	if len(m.handlers) != 0 {
		t.Errorf("handler count = %d, want 0", len(m.handlers))
	}
}

func TestMethodTooLarge(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/Big", "java/lang/Object")
	m := cw.NewMethod(AccPublic|AccStatic, "huge", "()V")
	for i := 0; i < MaxCodeLength; i++ {
		m.Insn(Nop)
	}
	m.Insn(Return)

	_, err := cw.ToBytes()
	var tooLarge *MethodTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error = %v (%T), want *MethodTooLargeError", err, err)
	}
	if tooLarge.ClassName != "com/example/Big" || tooLarge.MethodName != "huge" {
		t.Errorf("error identifies %s.%s", tooLarge.ClassName, tooLarge.MethodName)
	}
	if tooLarge.CodeSize <= MaxCodeLength {
		t.Errorf("reported size = %d", tooLarge.CodeSize)
	}
}

func TestLdcForms(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "c", "()J")
		m.LdcInsn("greeting")
		m.Insn(Pop)
		m.LdcInsn(int64(1234567890123))
		m.Insn(Lreturn)
	})

	m := findMethod(t, cf, "c")
	code := m.Code.Code
	if Opcode(code[0]) != Ldc {
		t.Errorf("first opcode = 0x%02X, want ldc", code[0])
	}
	if Opcode(code[3]) != Ldc2W {
		t.Errorf("opcode at 3 = 0x%02X, want ldc2_w", code[3])
	}
	if m.Code.MaxStack != 2 {
		t.Errorf("max_stack = %d, want 2", m.Code.MaxStack)
	}
}

func TestLineNumbers(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic|AccStatic, "f", "()V")
		start := NewLabel()
		m.Bind(start)
		m.LineNumber(10, start)
		m.Insn(Return)
	})

	m := findMethod(t, cf, "f")
	if len(m.Code.Lines) != 1 {
		t.Fatalf("line count = %d, want 1", len(m.Code.Lines))
	}
	if m.Code.Lines[0].Line != 10 || m.Code.Lines[0].StartPC != 0 {
		t.Errorf("line entry = %+v", m.Code.Lines[0])
	}
}

func TestConstructorWithUninitializedThis(t *testing.T) {
	cf := buildClass(t, func(cw *ClassWriter) {
		m := cw.NewMethod(AccPublic, "<init>", "()V")
		m.VarInsn(Aload, 0)
		m.MethodInsn(Invokespecial, "java/lang/Object", "<init>", "()V", false)
		m.Insn(Return)
	})

	m := findMethod(t, cf, "<init>")
	want := []byte{0x2A, 0xB7, 0x00, 0x01, 0xB1}
	if len(m.Code.Code) != len(want) {
		t.Errorf("code length = %d, want %d", len(m.Code.Code), len(want))
	}
	if m.Code.MaxStack != 1 || m.Code.MaxLocals != 1 {
		t.Errorf("maxs = %d/%d, want 1/1", m.Code.MaxStack, m.Code.MaxLocals)
	}
}

func TestDoubleFinalizeFails(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	if _, err := cw.ToBytes(); err != nil {
		t.Fatalf("first ToBytes: %v", err)
	}
	if _, err := cw.ToBytes(); err == nil {
		t.Error("second ToBytes succeeded")
	}
}
