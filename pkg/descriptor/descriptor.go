// Package descriptor parses JVM type and method descriptors, the
// compact string encoding used by class files for field types and
// method signatures (e.g. "(ILjava/lang/String;)V").
package descriptor

import "fmt"

// Kind classifies a parsed type.
type Kind int

const (
	Void Kind = iota
	Boolean
	Char
	Byte
	Short
	Int
	Float
	Long
	Double
	Object
	Array
)

// Type is a parsed field or return type.
type Type struct {
	Kind Kind

	// Name holds the class internal name for Object types and the full
	// descriptor (e.g. "[I", "[Ljava/lang/String;") for Array types.
	Name string
}

// Size returns the number of local-variable or operand-stack slots the
// type occupies: 2 for long and double, 0 for void, 1 otherwise.
func (t Type) Size() int {
	switch t.Kind {
	case Long, Double:
		return 2
	case Void:
		return 0
	default:
		return 1
	}
}

// Reference reports whether the type is an object or array reference.
func (t Type) Reference() bool {
	return t.Kind == Object || t.Kind == Array
}

// InternalName returns the name used for the type in a constant-pool
// Class entry: the internal name for objects, the descriptor itself for
// arrays.
func (t Type) InternalName() string {
	return t.Name
}

func (t Type) String() string {
	switch t.Kind {
	case Void:
		return "void"
	case Boolean:
		return "boolean"
	case Char:
		return "char"
	case Byte:
		return "byte"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Long:
		return "long"
	case Double:
		return "double"
	default:
		return t.Name
	}
}

// parseOne parses a single type starting at desc[pos], returning the
// type and the position after it.
func parseOne(desc string, pos int) (Type, int, error) {
	if pos >= len(desc) {
		return Type{}, 0, fmt.Errorf("truncated descriptor %q", desc)
	}
	switch desc[pos] {
	case 'V':
		return Type{Kind: Void}, pos + 1, nil
	case 'Z':
		return Type{Kind: Boolean}, pos + 1, nil
	case 'C':
		return Type{Kind: Char}, pos + 1, nil
	case 'B':
		return Type{Kind: Byte}, pos + 1, nil
	case 'S':
		return Type{Kind: Short}, pos + 1, nil
	case 'I':
		return Type{Kind: Int}, pos + 1, nil
	case 'F':
		return Type{Kind: Float}, pos + 1, nil
	case 'J':
		return Type{Kind: Long}, pos + 1, nil
	case 'D':
		return Type{Kind: Double}, pos + 1, nil
	case 'L':
		end := pos + 1
		for end < len(desc) && desc[end] != ';' {
			end++
		}
		if end >= len(desc) {
			return Type{}, 0, fmt.Errorf("unterminated class type in %q", desc)
		}
		return Type{Kind: Object, Name: desc[pos+1 : end]}, end + 1, nil
	case '[':
		start := pos
		for pos < len(desc) && desc[pos] == '[' {
			pos++
		}
		elem, next, err := parseOne(desc, pos)
		if err != nil {
			return Type{}, 0, err
		}
		if elem.Kind == Void {
			return Type{}, 0, fmt.Errorf("array of void in %q", desc)
		}
		return Type{Kind: Array, Name: desc[start:next]}, next, nil
	default:
		return Type{}, 0, fmt.Errorf("unexpected character %q in descriptor %q", desc[pos], desc)
	}
}

// ParseField parses a field descriptor.
func ParseField(desc string) (Type, error) {
	t, next, err := parseOne(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if t.Kind == Void {
		return Type{}, fmt.Errorf("void is not a field type: %q", desc)
	}
	if next != len(desc) {
		return Type{}, fmt.Errorf("trailing characters in field descriptor %q", desc)
	}
	return t, nil
}

// ParseMethod parses a method descriptor into its argument types and
// return type.
func ParseMethod(desc string) (args []Type, ret Type, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, Type{}, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		var t Type
		t, pos, err = parseOne(desc, pos)
		if err != nil {
			return nil, Type{}, err
		}
		if t.Kind == Void {
			return nil, Type{}, fmt.Errorf("void argument in method descriptor %q", desc)
		}
		args = append(args, t)
	}
	if pos >= len(desc) {
		return nil, Type{}, fmt.Errorf("method descriptor %q has no ')'", desc)
	}
	ret, next, err := parseOne(desc, pos+1)
	if err != nil {
		return nil, Type{}, err
	}
	if next != len(desc) {
		return nil, Type{}, fmt.Errorf("trailing characters in method descriptor %q", desc)
	}
	return args, ret, nil
}

// ArgSlots returns the total number of argument slots for a method
// descriptor, counting long and double arguments twice.
func ArgSlots(desc string) (int, error) {
	args, _, err := ParseMethod(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range args {
		n += a.Size()
	}
	return n, nil
}
