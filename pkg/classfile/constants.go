package classfile

// Class-file header constants.
const (
	Magic = 0xCAFEBABE

	// Class-file versions (major version numbers).
	V1_5 = 49
	V1_6 = 50
	V1_7 = 51
	V1_8 = 52
	V9   = 53
	V11  = 55
	V17  = 61
	V21  = 65
)

// Format limits.
const (
	// MaxCodeLength is the largest Code attribute body the format can
	// express (the exception table and stack map index into it with
	// 16-bit offsets).
	MaxCodeLength = 65535

	// MaxPoolCount is the largest constant_pool_count value; usable
	// indices are 1..MaxPoolCount-1.
	MaxPoolCount = 65535
)

// Constant-pool entry tags.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Access flags. Some values are shared between classes, fields and
// methods; the format assigns meaning by context.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020 // class
	AccSynchronized = 0x0020 // method
	AccVolatile     = 0x0040 // field
	AccBridge       = 0x0040 // method
	AccTransient    = 0x0080 // field
	AccVarargs      = 0x0080 // method
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// Method-handle reference kinds (CONSTANT_MethodHandle reference_kind).
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

// Verification type tags used in StackMapTable entries.
const (
	ItemTop               = 0
	ItemInteger           = 1
	ItemFloat             = 2
	ItemDouble            = 3
	ItemLong              = 4
	ItemNull              = 5
	ItemUninitializedThis = 6
	ItemObject            = 7
	ItemUninitialized     = 8
)

// StackMapTable frame kinds. Frames between the named boundaries encode
// a small offset delta in the kind byte itself.
const (
	frameSameMax             = 63
	frameSameLocals1Stack    = 64 // 64..127
	frameSameLocals1StackExt = 247
	frameChopBase            = 251 // 251-k chops k locals, k in 1..3
	frameSameExtended        = 251
	frameAppendBase          = 251 // 251+k appends k locals, k in 1..3
	frameFull                = 255
)

// Names of the attributes this writer emits.
const (
	attrCode             = "Code"
	attrStackMapTable    = "StackMapTable"
	attrLineNumberTable  = "LineNumberTable"
	attrExceptions       = "Exceptions"
	attrSourceFile       = "SourceFile"
	attrConstantValue    = "ConstantValue"
	attrBootstrapMethods = "BootstrapMethods"
)
