package classfile

import (
	"errors"
	"strings"
	"testing"
)

func assembleFixture(t *testing.T) []byte {
	t.Helper()
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/Calc", "java/lang/Object")
	cw.SetSourceFile("Calc.java")
	if err := cw.NewField(AccPublic|AccStatic|AccFinal, "LIMIT", "I", int32(100)); err != nil {
		t.Fatal(err)
	}

	init := cw.NewMethod(AccPublic, "<init>", "()V")
	init.VarInsn(Aload, 0)
	init.MethodInsn(Invokespecial, "java/lang/Object", "<init>", "()V", false)
	init.Insn(Return)

	abs := cw.NewMethod(AccPublic|AccStatic, "abs", "(I)I")
	neg := NewLabel()
	abs.VarInsn(Iload, 0)
	abs.JumpInsn(Iflt, neg)
	abs.VarInsn(Iload, 0)
	abs.Insn(Ireturn)
	abs.Bind(neg)
	abs.VarInsn(Iload, 0)
	abs.Insn(Ineg)
	abs.Insn(Ireturn)

	data, err := cw.ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestParseRoundTrip(t *testing.T) {
	cf, err := Parse(assembleFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	if cf.ThisName != "com/example/Calc" {
		t.Errorf("ThisName = %q", cf.ThisName)
	}
	if cf.SuperName != "java/lang/Object" {
		t.Errorf("SuperName = %q", cf.SuperName)
	}
	if cf.Major != V1_8 {
		t.Errorf("Major = %d, want %d", cf.Major, V1_8)
	}
	if cf.SourceFile != "Calc.java" {
		t.Errorf("SourceFile = %q", cf.SourceFile)
	}
	if len(cf.Fields) != 1 || cf.Fields[0].Name != "LIMIT" {
		t.Fatalf("fields = %+v", cf.Fields)
	}
	if cf.Fields[0].ConstValue != "int 100" {
		t.Errorf("ConstValue = %q", cf.Fields[0].ConstValue)
	}
	if len(cf.Methods) != 2 {
		t.Fatalf("method count = %d", len(cf.Methods))
	}

	abs := findMethod(t, cf, "abs")
	if abs.Descriptor != "(I)I" {
		t.Errorf("descriptor = %q", abs.Descriptor)
	}
	if abs.Code == nil {
		t.Fatal("abs has no code")
	}
	if abs.Code.MaxLocals != 1 {
		t.Errorf("max_locals = %d, want 1", abs.Code.MaxLocals)
	}
	if abs.Code.FrameNum != 1 {
		t.Errorf("frame count = %d, want 1", abs.Code.FrameNum)
	}
}

func TestParseBadMagic(t *testing.T) {
	data := assembleFixture(t)
	data[0] = 0xDE
	if _, err := Parse(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestParseTruncated(t *testing.T) {
	data := assembleFixture(t)
	for _, n := range []int{0, 3, 9, len(data) / 2, len(data) - 1} {
		if _, err := Parse(data[:n]); !errors.Is(err, ErrTruncatedClass) {
			t.Errorf("Parse(%d bytes): err = %v, want ErrTruncatedClass", n, err)
		}
	}
}

func TestDisassembleListing(t *testing.T) {
	cf, err := Parse(assembleFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	out := cf.Disassemble()
	for _, want := range []string{
		"class com/example/Calc",
		"super: java/lang/Object",
		"source: Calc.java",
		"field LIMIT I",
		"value: int 100",
		"method abs(I)I",
		"max_stack=1 max_locals=1",
		"iload_0",
		"iflt",
		"ineg",
		"ireturn",
		"invokespecial java/lang/Object.<init>:()V",
		"stack map frames: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q\n%s", want, out)
		}
	}
}

func TestDisassembleTryCatch(t *testing.T) {
	cw := NewClassWriter(V1_8, AccPublic|AccSuper, "com/example/T", "java/lang/Object")
	m := cw.NewMethod(AccPublic|AccStatic, "f", "()I")
	start, end, handler := NewLabel(), NewLabel(), NewLabel()
	m.TryCatch(start, end, handler, "java/lang/RuntimeException")
	m.Bind(start)
	m.Insn(Iconst1)
	m.Insn(Ireturn)
	m.Bind(end)
	m.Bind(handler)
	m.Insn(Pop)
	m.Insn(Iconst0)
	m.Insn(Ireturn)
	data, err := cw.ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	out := cf.Disassemble()
	if !strings.Contains(out, "catch java/lang/RuntimeException") {
		t.Errorf("listing missing catch clause\n%s", out)
	}
}
