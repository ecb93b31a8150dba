// Package chunk defines the compiled-unit format executed by the Candy VM.
//
// This package contains:
//   - The opcode set and its operand layout table
//   - Variable width constant-pool index encoding
//   - Constant values, the constant pool and code attributes
//   - Line tables and error handler tables
//   - A Builder for assembling chunks and a disassembler for reading them
package chunk
