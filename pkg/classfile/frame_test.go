package classfile

import "testing"

func TestMergeTypeCommutative(t *testing.T) {
	pairs := []struct {
		a, b VerifType
		want VerifType
	}{
		{typeInteger, typeInteger, typeInteger},
		{typeLong, typeLong, typeLong},
		{typeNull, objectType("java/lang/String"), objectType("java/lang/String")},
		{objectType("A"), objectType("A"), objectType("A")},
		{objectType("A"), objectType("B"), objectType("java/lang/Object")},
		{typeInteger, typeFloat, typeTop},
		{typeInteger, objectType("A"), typeTop},
		{typeTop, typeInteger, typeTop},
		{typeNull, typeNull, typeNull},
	}
	for _, p := range pairs {
		ab, err := mergeType(p.a, p.b, defaultCommonSuper)
		if err != nil {
			t.Fatalf("mergeType(%v, %v): %v", p.a, p.b, err)
		}
		ba, err := mergeType(p.b, p.a, defaultCommonSuper)
		if err != nil {
			t.Fatalf("mergeType(%v, %v): %v", p.b, p.a, err)
		}
		if ab != ba {
			t.Errorf("merge not commutative: %v vs %v for (%v, %v)", ab, ba, p.a, p.b)
		}
		if ab != p.want {
			t.Errorf("mergeType(%v, %v) = %v, want %v", p.a, p.b, ab, p.want)
		}
	}
}

func TestMergeTypeIdempotent(t *testing.T) {
	types := []VerifType{
		typeTop, typeInteger, typeFloat, typeLong, typeDouble, typeNull,
		objectType("java/lang/Object"), objectType("A"), uninitType(7),
	}
	for _, v := range types {
		got, err := mergeType(v, v, defaultCommonSuper)
		if err != nil {
			t.Fatalf("mergeType(%v, %v): %v", v, v, err)
		}
		if got != v {
			t.Errorf("mergeType(%v, %v) = %v, want unchanged", v, v, got)
		}
	}
}

func TestMergeUninitConflictFails(t *testing.T) {
	_, err := mergeType(uninitType(3), objectType("A"), defaultCommonSuper)
	if err == nil {
		t.Fatal("expected error merging uninitialized with initialized")
	}
	if _, ok := err.(*InconsistentFrameError); !ok {
		t.Errorf("error type = %T, want *InconsistentFrameError", err)
	}
}

func TestFrameMergeConvergence(t *testing.T) {
	// merging the same incoming state twice must report no change the
	// second time, or the work list would never drain
	target := &frameState{
		locals: []VerifType{typeInteger, objectType("A")},
		stack:  []VerifType{typeInteger},
	}
	incoming := &frameState{
		locals: []VerifType{typeInteger, objectType("B")},
		stack:  []VerifType{typeInteger},
	}

	changed, err := target.merge(incoming, defaultCommonSuper)
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if !changed {
		t.Error("first merge reported no change")
	}
	changed, err = target.merge(incoming, defaultCommonSuper)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if changed {
		t.Error("second merge of identical state reported a change")
	}
	if target.locals[1] != objectType("java/lang/Object") {
		t.Errorf("merged local = %v, want java/lang/Object", target.locals[1])
	}
}

func TestMergeStackDepthMismatch(t *testing.T) {
	a := &frameState{stack: []VerifType{typeInteger}}
	b := &frameState{stack: []VerifType{typeInteger, typeInteger}}
	if _, err := a.merge(b, defaultCommonSuper); err == nil {
		t.Error("expected error for stack depth mismatch")
	}
}

func TestInitialFrame(t *testing.T) {
	tests := []struct {
		name   string
		access int
		owner  string
		method string
		desc   string
		want   []VerifType
	}{
		{
			"static two ints", AccStatic, "T", "add", "(II)I",
			[]VerifType{typeInteger, typeInteger},
		},
		{
			"instance", 0, "com/example/T", "f", "(J)V",
			[]VerifType{objectType("com/example/T"), typeLong, typeHalf},
		},
		{
			"constructor", 0, "com/example/T", "<init>", "()V",
			[]VerifType{typeUninitThis},
		},
		{
			"reference args", AccStatic, "T", "g", "(Ljava/lang/String;[I)V",
			[]VerifType{objectType("java/lang/String"), objectType("[I")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := initialFrame(tt.access, tt.owner, tt.method, tt.desc)
			if err != nil {
				t.Fatalf("initialFrame: %v", err)
			}
			if len(f.stack) != 0 {
				t.Errorf("entry stack depth = %d, want 0", len(f.stack))
			}
			if len(f.locals) != len(tt.want) {
				t.Fatalf("locals = %v, want %v", f.locals, tt.want)
			}
			for i := range tt.want {
				if f.locals[i] != tt.want[i] {
					t.Errorf("local %d = %v, want %v", i, f.locals[i], tt.want[i])
				}
			}
		})
	}
}

func TestItemsCollapseWideHalves(t *testing.T) {
	slots := []VerifType{typeLong, typeHalf, typeInteger, typeDouble, typeHalf}
	got := items(slots)
	want := []VerifType{typeLong, typeInteger, typeDouble}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %v, want %v", i, got[i], want[i])
		}
	}
	if n := itemCount(slots); n != 3 {
		t.Errorf("itemCount = %d, want 3", n)
	}
}
