package classfile

// Opcode is a JVM instruction opcode.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	Nop        Opcode = 0x00
	AconstNull Opcode = 0x01
	IconstM1   Opcode = 0x02
	Iconst0    Opcode = 0x03
	Iconst1    Opcode = 0x04
	Iconst2    Opcode = 0x05
	Iconst3    Opcode = 0x06
	Iconst4    Opcode = 0x07
	Iconst5    Opcode = 0x08
	Lconst0    Opcode = 0x09
	Lconst1    Opcode = 0x0A
	Fconst0    Opcode = 0x0B
	Fconst1    Opcode = 0x0C
	Fconst2    Opcode = 0x0D
	Dconst0    Opcode = 0x0E
	Dconst1    Opcode = 0x0F
	Bipush     Opcode = 0x10 // operand: i8
	Sipush     Opcode = 0x11 // operand: i16
	Ldc        Opcode = 0x12 // operand: u8 pool index
	LdcW       Opcode = 0x13 // operand: u16 pool index
	Ldc2W      Opcode = 0x14 // operand: u16 pool index (long/double)

	// ========================================================================
	// Loads (0x15-0x35)
	// ========================================================================

	Iload  Opcode = 0x15
	Lload  Opcode = 0x16
	Fload  Opcode = 0x17
	Dload  Opcode = 0x18
	Aload  Opcode = 0x19
	Iload0 Opcode = 0x1A
	Iload1 Opcode = 0x1B
	Iload2 Opcode = 0x1C
	Iload3 Opcode = 0x1D
	Lload0 Opcode = 0x1E
	Lload1 Opcode = 0x1F
	Lload2 Opcode = 0x20
	Lload3 Opcode = 0x21
	Fload0 Opcode = 0x22
	Fload1 Opcode = 0x23
	Fload2 Opcode = 0x24
	Fload3 Opcode = 0x25
	Dload0 Opcode = 0x26
	Dload1 Opcode = 0x27
	Dload2 Opcode = 0x28
	Dload3 Opcode = 0x29
	Aload0 Opcode = 0x2A
	Aload1 Opcode = 0x2B
	Aload2 Opcode = 0x2C
	Aload3 Opcode = 0x2D
	Iaload Opcode = 0x2E
	Laload Opcode = 0x2F
	Faload Opcode = 0x30
	Daload Opcode = 0x31
	Aaload Opcode = 0x32
	Baload Opcode = 0x33
	Caload Opcode = 0x34
	Saload Opcode = 0x35

	// ========================================================================
	// Stores (0x36-0x56)
	// ========================================================================

	Istore  Opcode = 0x36
	Lstore  Opcode = 0x37
	Fstore  Opcode = 0x38
	Dstore  Opcode = 0x39
	Astore  Opcode = 0x3A
	Istore0 Opcode = 0x3B
	Istore1 Opcode = 0x3C
	Istore2 Opcode = 0x3D
	Istore3 Opcode = 0x3E
	Lstore0 Opcode = 0x3F
	Lstore1 Opcode = 0x40
	Lstore2 Opcode = 0x41
	Lstore3 Opcode = 0x42
	Fstore0 Opcode = 0x43
	Fstore1 Opcode = 0x44
	Fstore2 Opcode = 0x45
	Fstore3 Opcode = 0x46
	Dstore0 Opcode = 0x47
	Dstore1 Opcode = 0x48
	Dstore2 Opcode = 0x49
	Dstore3 Opcode = 0x4A
	Astore0 Opcode = 0x4B
	Astore1 Opcode = 0x4C
	Astore2 Opcode = 0x4D
	Astore3 Opcode = 0x4E
	Iastore Opcode = 0x4F
	Lastore Opcode = 0x50
	Fastore Opcode = 0x51
	Dastore Opcode = 0x52
	Aastore Opcode = 0x53
	Bastore Opcode = 0x54
	Castore Opcode = 0x55
	Sastore Opcode = 0x56

	// ========================================================================
	// Stack manipulation (0x57-0x5F)
	// ========================================================================

	Pop    Opcode = 0x57
	Pop2   Opcode = 0x58
	Dup    Opcode = 0x59
	DupX1  Opcode = 0x5A
	DupX2  Opcode = 0x5B
	Dup2   Opcode = 0x5C
	Dup2X1 Opcode = 0x5D
	Dup2X2 Opcode = 0x5E
	Swap   Opcode = 0x5F

	// ========================================================================
	// Arithmetic (0x60-0x84)
	// ========================================================================

	Iadd  Opcode = 0x60
	Ladd  Opcode = 0x61
	Fadd  Opcode = 0x62
	Dadd  Opcode = 0x63
	Isub  Opcode = 0x64
	Lsub  Opcode = 0x65
	Fsub  Opcode = 0x66
	Dsub  Opcode = 0x67
	Imul  Opcode = 0x68
	Lmul  Opcode = 0x69
	Fmul  Opcode = 0x6A
	Dmul  Opcode = 0x6B
	Idiv  Opcode = 0x6C
	Ldiv  Opcode = 0x6D
	Fdiv  Opcode = 0x6E
	Ddiv  Opcode = 0x6F
	Irem  Opcode = 0x70
	Lrem  Opcode = 0x71
	Frem  Opcode = 0x72
	Drem  Opcode = 0x73
	Ineg  Opcode = 0x74
	Lneg  Opcode = 0x75
	Fneg  Opcode = 0x76
	Dneg  Opcode = 0x77
	Ishl  Opcode = 0x78
	Lshl  Opcode = 0x79
	Ishr  Opcode = 0x7A
	Lshr  Opcode = 0x7B
	Iushr Opcode = 0x7C
	Lushr Opcode = 0x7D
	Iand  Opcode = 0x7E
	Land  Opcode = 0x7F
	Ior   Opcode = 0x80
	Lor   Opcode = 0x81
	Ixor  Opcode = 0x82
	Lxor  Opcode = 0x83
	Iinc  Opcode = 0x84 // operands: u8 slot, i8 increment

	// ========================================================================
	// Conversions (0x85-0x93)
	// ========================================================================

	I2l Opcode = 0x85
	I2f Opcode = 0x86
	I2d Opcode = 0x87
	L2i Opcode = 0x88
	L2f Opcode = 0x89
	L2d Opcode = 0x8A
	F2i Opcode = 0x8B
	F2l Opcode = 0x8C
	F2d Opcode = 0x8D
	D2i Opcode = 0x8E
	D2l Opcode = 0x8F
	D2f Opcode = 0x90
	I2b Opcode = 0x91
	I2c Opcode = 0x92
	I2s Opcode = 0x93

	// ========================================================================
	// Comparisons and branches (0x94-0xA8)
	// ========================================================================

	Lcmp      Opcode = 0x94
	Fcmpl     Opcode = 0x95
	Fcmpg     Opcode = 0x96
	Dcmpl     Opcode = 0x97
	Dcmpg     Opcode = 0x98
	Ifeq      Opcode = 0x99
	Ifne      Opcode = 0x9A
	Iflt      Opcode = 0x9B
	Ifge      Opcode = 0x9C
	Ifgt      Opcode = 0x9D
	Ifle      Opcode = 0x9E
	IfIcmpeq  Opcode = 0x9F
	IfIcmpne  Opcode = 0xA0
	IfIcmplt  Opcode = 0xA1
	IfIcmpge  Opcode = 0xA2
	IfIcmpgt  Opcode = 0xA3
	IfIcmple  Opcode = 0xA4
	IfAcmpeq  Opcode = 0xA5
	IfAcmpne  Opcode = 0xA6
	Goto      Opcode = 0xA7
	Jsr       Opcode = 0xA8

	// ========================================================================
	// Returns and switches (0xA9-0xB1)
	// ========================================================================

	Ret          Opcode = 0xA9
	Tableswitch  Opcode = 0xAA
	Lookupswitch Opcode = 0xAB
	Ireturn      Opcode = 0xAC
	Lreturn      Opcode = 0xAD
	Freturn      Opcode = 0xAE
	Dreturn      Opcode = 0xAF
	Areturn      Opcode = 0xB0
	Return       Opcode = 0xB1

	// ========================================================================
	// References (0xB2-0xC3)
	// ========================================================================

	Getstatic       Opcode = 0xB2
	Putstatic       Opcode = 0xB3
	Getfield        Opcode = 0xB4
	Putfield        Opcode = 0xB5
	Invokevirtual   Opcode = 0xB6
	Invokespecial   Opcode = 0xB7
	Invokestatic    Opcode = 0xB8
	Invokeinterface Opcode = 0xB9
	Invokedynamic   Opcode = 0xBA
	New             Opcode = 0xBB
	Newarray        Opcode = 0xBC
	Anewarray       Opcode = 0xBD
	Arraylength     Opcode = 0xBE
	Athrow          Opcode = 0xBF
	Checkcast       Opcode = 0xC0
	Instanceof      Opcode = 0xC1
	Monitorenter    Opcode = 0xC2
	Monitorexit     Opcode = 0xC3

	// ========================================================================
	// Extended (0xC4-0xC9)
	// ========================================================================

	Wide           Opcode = 0xC4
	Multianewarray Opcode = 0xC5 // operands: u16 pool index, u8 dims
	Ifnull         Opcode = 0xC6
	Ifnonnull      Opcode = 0xC7
	GotoW          Opcode = 0xC8
	JsrW           Opcode = 0xC9
)

// Array type codes for the newarray instruction.
const (
	TBoolean = 4
	TChar    = 5
	TFloat   = 6
	TDouble  = 7
	TByte    = 8
	TShort   = 9
	TInt     = 10
	TLong    = 11
)

// opcodeNames maps opcodes to their mnemonics. Entries beyond JsrW are
// not valid instructions.
var opcodeNames = [256]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2",
	"iconst_3", "iconst_4", "iconst_5", "lconst_0", "lconst_1", "fconst_0",
	"fconst_1", "fconst_2", "dconst_0", "dconst_1", "bipush", "sipush",
	"ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload", "dload", "aload",
	"iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1",
	"lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3",
	"dload_0", "dload_1", "dload_2", "dload_3", "aload_0", "aload_1",
	"aload_2", "aload_3", "iaload", "laload", "faload", "daload", "aaload",
	"baload", "caload", "saload", "istore", "lstore", "fstore", "dstore",
	"astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0",
	"lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2",
	"fstore_3", "dstore_0", "dstore_1", "dstore_2", "dstore_3", "astore_0",
	"astore_1", "astore_2", "astore_3", "iastore", "lastore", "fastore",
	"dastore", "aastore", "bastore", "castore", "sastore", "pop", "pop2",
	"dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub", "imul",
	"lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv", "irem", "lrem",
	"frem", "drem", "ineg", "lneg", "fneg", "dneg", "ishl", "lshl", "ishr",
	"lshr", "iushr", "lushr", "iand", "land", "ior", "lor", "ixor", "lxor",
	"iinc", "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d",
	"d2i", "d2l", "d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg",
	"dcmpl", "dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
	"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt",
	"if_icmple", "if_acmpeq", "if_acmpne", "goto", "jsr", "ret",
	"tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn",
	"dreturn", "areturn", "return", "getstatic", "putstatic", "getfield",
	"putfield", "invokevirtual", "invokespecial", "invokestatic",
	"invokeinterface", "invokedynamic", "new", "newarray", "anewarray",
	"arraylength", "athrow", "checkcast", "instanceof", "monitorenter",
	"monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull",
	"goto_w", "jsr_w",
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if name := opcodeNames[op]; name != "" {
		return name
	}
	return "<illegal>"
}

// operandBytes returns the number of operand bytes following each opcode,
// or -1 for variable-length instructions (wide, tableswitch,
// lookupswitch).
var operandBytes = [256]int8{
	Bipush: 1, Sipush: 2, Ldc: 1, LdcW: 2, Ldc2W: 2,
	Iload: 1, Lload: 1, Fload: 1, Dload: 1, Aload: 1,
	Istore: 1, Lstore: 1, Fstore: 1, Dstore: 1, Astore: 1,
	Iinc: 2, Ret: 1,
	Ifeq: 2, Ifne: 2, Iflt: 2, Ifge: 2, Ifgt: 2, Ifle: 2,
	IfIcmpeq: 2, IfIcmpne: 2, IfIcmplt: 2, IfIcmpge: 2, IfIcmpgt: 2,
	IfIcmple: 2, IfAcmpeq: 2, IfAcmpne: 2,
	Goto: 2, Jsr: 2, Ifnull: 2, Ifnonnull: 2,
	GotoW: 4, JsrW: 4,
	Getstatic: 2, Putstatic: 2, Getfield: 2, Putfield: 2,
	Invokevirtual: 2, Invokespecial: 2, Invokestatic: 2,
	Invokeinterface: 4, Invokedynamic: 4,
	New: 2, Newarray: 1, Anewarray: 2, Checkcast: 2, Instanceof: 2,
	Multianewarray: 3,
	Wide: -1, Tableswitch: -1, Lookupswitch: -1,
}

// stackDelta gives the net operand-stack size change for opcodes whose
// effect does not depend on a descriptor or constant type. Field, method,
// ldc and multianewarray instructions are computed by the encoder. The
// table is used for the running max-stack watermark; the frame engine
// recomputes precise values.
var stackDelta = [256]int8{
	AconstNull: 1, IconstM1: 1, Iconst0: 1, Iconst1: 1, Iconst2: 1,
	Iconst3: 1, Iconst4: 1, Iconst5: 1,
	Lconst0: 2, Lconst1: 2, Fconst0: 1, Fconst1: 1, Fconst2: 1,
	Dconst0: 2, Dconst1: 2, Bipush: 1, Sipush: 1,
	Iload: 1, Lload: 2, Fload: 1, Dload: 2, Aload: 1,
	Iload0: 1, Iload1: 1, Iload2: 1, Iload3: 1,
	Lload0: 2, Lload1: 2, Lload2: 2, Lload3: 2,
	Fload0: 1, Fload1: 1, Fload2: 1, Fload3: 1,
	Dload0: 2, Dload1: 2, Dload2: 2, Dload3: 2,
	Aload0: 1, Aload1: 1, Aload2: 1, Aload3: 1,
	Iaload: -1, Laload: 0, Faload: -1, Daload: 0, Aaload: -1,
	Baload: -1, Caload: -1, Saload: -1,
	Istore: -1, Lstore: -2, Fstore: -1, Dstore: -2, Astore: -1,
	Istore0: -1, Istore1: -1, Istore2: -1, Istore3: -1,
	Lstore0: -2, Lstore1: -2, Lstore2: -2, Lstore3: -2,
	Fstore0: -1, Fstore1: -1, Fstore2: -1, Fstore3: -1,
	Dstore0: -2, Dstore1: -2, Dstore2: -2, Dstore3: -2,
	Astore0: -1, Astore1: -1, Astore2: -1, Astore3: -1,
	Iastore: -3, Lastore: -4, Fastore: -3, Dastore: -4, Aastore: -3,
	Bastore: -3, Castore: -3, Sastore: -3,
	Pop: -1, Pop2: -2, Dup: 1, DupX1: 1, DupX2: 1,
	Dup2: 2, Dup2X1: 2, Dup2X2: 2,
	Iadd: -1, Ladd: -2, Fadd: -1, Dadd: -2,
	Isub: -1, Lsub: -2, Fsub: -1, Dsub: -2,
	Imul: -1, Lmul: -2, Fmul: -1, Dmul: -2,
	Idiv: -1, Ldiv: -2, Fdiv: -1, Ddiv: -2,
	Irem: -1, Lrem: -2, Frem: -1, Drem: -2,
	Ishl: -1, Lshl: -1, Ishr: -1, Lshr: -1, Iushr: -1, Lushr: -1,
	Iand: -1, Land: -2, Ior: -1, Lor: -2, Ixor: -1, Lxor: -2,
	I2l: 1, I2d: 1, L2i: -1, L2f: -1, F2l: 1, F2d: 1, D2i: -1, D2f: -1,
	Lcmp: -3, Fcmpl: -1, Fcmpg: -1, Dcmpl: -3, Dcmpg: -3,
	Ifeq: -1, Ifne: -1, Iflt: -1, Ifge: -1, Ifgt: -1, Ifle: -1,
	IfIcmpeq: -2, IfIcmpne: -2, IfIcmplt: -2, IfIcmpge: -2,
	IfIcmpgt: -2, IfIcmple: -2, IfAcmpeq: -2, IfAcmpne: -2,
	Jsr: 1, JsrW: 1,
	Ireturn: -1, Lreturn: -2, Freturn: -1, Dreturn: -2, Areturn: -1,
	Tableswitch: -1, Lookupswitch: -1,
	Newarray: 0, Anewarray: 0, Arraylength: 0,
	Athrow: -1, Instanceof: 0,
	Monitorenter: -1, Monitorexit: -1,
	Ifnull: -1, Ifnonnull: -1,
	New: 1,
}

// isConditionalBranch reports whether op is a two-byte-offset conditional
// branch (an instruction with no wide form).
func isConditionalBranch(op Opcode) bool {
	return (op >= Ifeq && op <= IfAcmpne) || op == Ifnull || op == Ifnonnull
}

// oppositeBranch returns the branch with the inverted condition. Used
// when a conditional jump must be widened: the format has no 32-bit
// conditional form, so the condition is inverted to skip over a goto_w.
func oppositeBranch(op Opcode) Opcode {
	if op == Ifnull {
		return Ifnonnull
	}
	if op == Ifnonnull {
		return Ifnull
	}
	// The remaining pairs differ only in the low bit of (op - iconst
	// base); the table is laid out so that eq/ne, lt/ge, gt/le alternate.
	return ((op + 1) ^ 1) - 1
}
