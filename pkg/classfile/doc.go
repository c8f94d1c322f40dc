// Package classfile assembles JVM class files.
//
// This package contains:
//   - Big-endian byte buffer with modified UTF-8 encoding
//   - Content-interned constant pool (SymbolTable)
//   - Label binding and forward-reference patching
//   - Stack map frame inference by abstract interpretation
//   - Instruction encoding with automatic jump widening
//   - ClassWriter producing the final class-file bytes
//   - A reader and disassembler for inspecting the output
package classfile
