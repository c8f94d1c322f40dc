package descriptor

import "testing"

func TestParseField(t *testing.T) {
	tests := []struct {
		desc string
		kind Kind
		name string
		size int
	}{
		{"I", Int, "", 1},
		{"Z", Boolean, "", 1},
		{"B", Byte, "", 1},
		{"C", Char, "", 1},
		{"S", Short, "", 1},
		{"F", Float, "", 1},
		{"J", Long, "", 2},
		{"D", Double, "", 2},
		{"Ljava/lang/String;", Object, "java/lang/String", 1},
		{"[I", Array, "[I", 1},
		{"[[Ljava/lang/Object;", Array, "[[Ljava/lang/Object;", 1},
	}
	for _, tt := range tests {
		got, err := ParseField(tt.desc)
		if err != nil {
			t.Errorf("ParseField(%q): %v", tt.desc, err)
			continue
		}
		if got.Kind != tt.kind {
			t.Errorf("ParseField(%q).Kind = %v, want %v", tt.desc, got.Kind, tt.kind)
		}
		if got.Name != tt.name {
			t.Errorf("ParseField(%q).Name = %q, want %q", tt.desc, got.Name, tt.name)
		}
		if got.Size() != tt.size {
			t.Errorf("ParseField(%q).Size() = %d, want %d", tt.desc, got.Size(), tt.size)
		}
	}
}

func TestParseFieldErrors(t *testing.T) {
	for _, desc := range []string{"", "V", "II", "Ljava/lang/String", "[V", "X", "[", "I;"} {
		if _, err := ParseField(desc); err == nil {
			t.Errorf("ParseField(%q) succeeded, want error", desc)
		}
	}
}

func TestParseMethod(t *testing.T) {
	args, ret, err := ParseMethod("(ILjava/lang/String;[JD)V")
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 4 {
		t.Fatalf("arg count = %d, want 4", len(args))
	}
	wantKinds := []Kind{Int, Object, Array, Double}
	for i, k := range wantKinds {
		if args[i].Kind != k {
			t.Errorf("arg %d kind = %v, want %v", i, args[i].Kind, k)
		}
	}
	if args[1].Name != "java/lang/String" {
		t.Errorf("arg 1 name = %q", args[1].Name)
	}
	if args[2].Name != "[J" {
		t.Errorf("arg 2 name = %q", args[2].Name)
	}
	if ret.Kind != Void {
		t.Errorf("return kind = %v, want Void", ret.Kind)
	}
}

func TestParseMethodNoArgs(t *testing.T) {
	args, ret, err := ParseMethod("()Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 0 {
		t.Errorf("arg count = %d, want 0", len(args))
	}
	if ret.Kind != Object || ret.Name != "java/lang/Object" {
		t.Errorf("return = %+v", ret)
	}
}

func TestParseMethodErrors(t *testing.T) {
	for _, desc := range []string{"", "I", "(I", "(I)", "()VV", "(V)V", "()"} {
		if _, _, err := ParseMethod(desc); err == nil {
			t.Errorf("ParseMethod(%q) succeeded, want error", desc)
		}
	}
}

func TestArgSlots(t *testing.T) {
	tests := []struct {
		desc string
		want int
	}{
		{"()V", 0},
		{"(II)I", 2},
		{"(JD)V", 4},
		{"(Ljava/lang/String;J)I", 3},
		{"([[D)V", 1},
	}
	for _, tt := range tests {
		got, err := ArgSlots(tt.desc)
		if err != nil {
			t.Errorf("ArgSlots(%q): %v", tt.desc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ArgSlots(%q) = %d, want %d", tt.desc, got, tt.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	if got := (Type{Kind: Int}).String(); got != "int" {
		t.Errorf("String() = %q, want int", got)
	}
	if got := (Type{Kind: Object, Name: "java/util/List"}).String(); got != "java/util/List" {
		t.Errorf("String() = %q", got)
	}
}
