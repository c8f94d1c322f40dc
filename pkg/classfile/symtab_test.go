package classfile

import (
	"bytes"
	"testing"
)

func TestUtf8InterningIdempotent(t *testing.T) {
	st := NewSymbolTable()
	first := st.Utf8("Code")
	entries := st.EntryCount()
	poolLen := st.pool.Len()

	for i := 0; i < 10; i++ {
		if got := st.Utf8("Code"); got != first {
			t.Fatalf("re-intern returned index %d, want %d", got, first)
		}
	}
	if st.EntryCount() != entries {
		t.Errorf("entry count grew from %d to %d", entries, st.EntryCount())
	}
	if st.pool.Len() != poolLen {
		t.Errorf("pool bytes grew from %d to %d", poolLen, st.pool.Len())
	}
}

func TestDistinctStringsDistinctIndices(t *testing.T) {
	st := NewSymbolTable()
	a := st.Utf8("Code")
	b := st.Utf8("LineNumberTable")
	if a == b {
		t.Errorf("distinct strings share index %d", a)
	}
	if a != 1 || b != 2 {
		t.Errorf("indices = %d, %d, want 1, 2", a, b)
	}
}

func TestLongDoubleTakeTwoSlots(t *testing.T) {
	st := NewSymbolTable()
	l := st.Long(1)
	next := st.Utf8("after")
	if l != 1 {
		t.Errorf("long index = %d, want 1", l)
	}
	if next != 3 {
		t.Errorf("index after long = %d, want 3", next)
	}

	d := st.Double(2.5)
	if d != 4 {
		t.Errorf("double index = %d, want 4", d)
	}
	if got := st.Count(); got != 6 {
		t.Errorf("pool count = %d, want 6", got)
	}
}

func TestClassEncodesNameRef(t *testing.T) {
	st := NewSymbolTable()
	idx := st.Class("java/lang/Object")
	if idx == 0 {
		t.Fatal("class index is zero")
	}
	// Utf8 for the name precedes the Class entry
	nameIdx := st.Utf8("java/lang/Object")
	if nameIdx >= idx {
		t.Errorf("name index %d not before class index %d", nameIdx, idx)
	}
	if again := st.Class("java/lang/Object"); again != idx {
		t.Errorf("re-intern class = %d, want %d", again, idx)
	}
}

func TestMemberRefsDistinctByTag(t *testing.T) {
	st := NewSymbolTable()
	f := st.FieldRef("A", "x", "I")
	m := st.MethodRef("A", "x", "I")
	if f == m {
		t.Error("field and method refs with same triple share an index")
	}
	if st.FieldRef("A", "x", "I") != f {
		t.Error("field ref not idempotent")
	}
}

func TestMethodHandleInterfaceBitDistinct(t *testing.T) {
	st := NewSymbolTable()
	class := st.MethodHandle(Handle{Kind: RefInvokeStatic, Owner: "Foo", Name: "m", Desc: "()V"})
	iface := st.MethodHandle(Handle{Kind: RefInvokeStatic, Owner: "Foo", Name: "m", Desc: "()V", Interface: true})
	if class == iface {
		t.Error("class and interface method handles share an index")
	}
	if st.MethodHandle(Handle{Kind: RefInvokeStatic, Owner: "Foo", Name: "m", Desc: "()V", Interface: true}) != iface {
		t.Error("interface method handle not idempotent")
	}
}

func TestConstantDispatch(t *testing.T) {
	st := NewSymbolTable()
	tests := []struct {
		value   interface{}
		wantTag int
		wide    bool
	}{
		{5, TagInteger, false},
		{int32(-1), TagInteger, false},
		{int64(7), TagLong, true},
		{float32(1.5), TagFloat, false},
		{2.5, TagDouble, true},
		{"str", TagString, false},
		{ClassName("java/lang/Object"), TagClass, false},
	}
	for _, tt := range tests {
		sym, err := st.Constant(tt.value)
		if err != nil {
			t.Fatalf("Constant(%v): %v", tt.value, err)
		}
		if sym.Tag != tt.wantTag {
			t.Errorf("Constant(%v) tag = %d, want %d", tt.value, sym.Tag, tt.wantTag)
		}
		if sym.Wide() != tt.wide {
			t.Errorf("Constant(%v) wide = %v, want %v", tt.value, sym.Wide(), tt.wide)
		}
	}

	if _, err := st.Constant(struct{}{}); err == nil {
		t.Error("expected error for unrepresentable constant")
	}
}

func TestBootstrapMethodDedup(t *testing.T) {
	st := NewSymbolTable()
	bsm := Handle{
		Kind:  RefInvokeStatic,
		Owner: "java/lang/invoke/LambdaMetafactory",
		Name:  "metafactory",
		Desc:  "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
	}

	a := st.InvokeDynamic("run", "()Ljava/lang/Runnable;", bsm)
	b := st.InvokeDynamic("run", "()Ljava/lang/Runnable;", bsm)
	if a != b {
		t.Errorf("identical invokedynamic entries got indices %d and %d", a, b)
	}
	if got := st.BootstrapMethodCount(); got != 1 {
		t.Errorf("bootstrap count = %d, want 1", got)
	}

	// different name, same bootstrap: new pool entry, same bootstrap slot
	c := st.InvokeDynamic("call", "()Ljava/lang/Runnable;", bsm)
	if c == a {
		t.Error("distinct invokedynamic entries share an index")
	}
	if got := st.BootstrapMethodCount(); got != 1 {
		t.Errorf("bootstrap count after reuse = %d, want 1", got)
	}
}

func TestWritePool(t *testing.T) {
	st := NewSymbolTable()
	st.Utf8("A")

	out := NewBuffer(0)
	st.WritePool(out)

	want := []byte{
		0x00, 0x02, // constant_pool_count
		0x01,       // CONSTANT_Utf8
		0x00, 0x01, // length
		'A',
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("pool = % X, want % X", out.Bytes(), want)
	}
}

func TestPoolOverflow(t *testing.T) {
	st := NewSymbolTable()
	for i := 0; i < 70000; i++ {
		st.Integer(int32(i))
		if st.Err() != nil {
			break
		}
	}
	if st.Err() == nil {
		t.Fatal("expected overflow error")
	}
	if _, ok := st.Err().(*ClassTooLargeError); !ok {
		t.Errorf("error type = %T, want *ClassTooLargeError", st.Err())
	}
}
