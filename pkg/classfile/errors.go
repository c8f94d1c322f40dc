package classfile

import "fmt"

// MethodTooLargeError reports a method whose resolved code length exceeds
// the 65535-byte limit of the Code attribute.
type MethodTooLargeError struct {
	ClassName  string
	MethodName string
	Descriptor string
	CodeSize   int
}

func (e *MethodTooLargeError) Error() string {
	return fmt.Sprintf("method %s.%s%s too large: %d bytes (limit %d)",
		e.ClassName, e.MethodName, e.Descriptor, e.CodeSize, MaxCodeLength)
}

// ClassTooLargeError reports a class whose constant pool overflows the
// 16-bit pool count.
type ClassTooLargeError struct {
	ClassName string
	PoolCount int
}

func (e *ClassTooLargeError) Error() string {
	return fmt.Sprintf("class %s too large: constant pool count %d (limit %d)",
		e.ClassName, e.PoolCount, MaxPoolCount)
}

// UnsupportedConstantError reports a value with no constant-pool
// representation.
type UnsupportedConstantError struct {
	Value string // description of the offending value
}

func (e *UnsupportedConstantError) Error() string {
	return fmt.Sprintf("unsupported constant: %s", e.Value)
}

// InconsistentFrameError reports a verification-state contradiction
// during frame inference: a merge between irreconcilable types (such as
// an uninitialized object meeting an initialized one), a stack depth
// mismatch at a join point, or an operand stack underflow.
type InconsistentFrameError struct {
	Offset int // bytecode offset where the contradiction surfaced
	Detail string
}

func (e *InconsistentFrameError) Error() string {
	return fmt.Sprintf("inconsistent stack map frame at offset %d: %s", e.Offset, e.Detail)
}

// UnboundLabelError reports a reachable branch to a label that was never
// bound before the method was finalized.
type UnboundLabelError struct {
	SourceOffset int // offset of the referencing instruction
}

func (e *UnboundLabelError) Error() string {
	return fmt.Sprintf("branch at offset %d targets a label that was never bound", e.SourceOffset)
}
