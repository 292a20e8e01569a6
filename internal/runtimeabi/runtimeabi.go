// Package runtimeabi fixes the names and contracts of the C runtime
// entry points the emitter calls (spec §6) and the fixed in-memory
// layouts of strings and arrays (spec §3.3/§3.4) that those entry points
// implement. It implements none of the runtime: its functions are table
// lookups (BuiltinReturnType, ArrayElemSizeSuffix) that the analyzer and
// emitter consult at compile time. It is a naming and offset contract,
// grounded the same way the teacher's backend treats its runtime.*
// symbol table: a fixed list of names the emitter must get right, not
// code it executes.
package runtimeabi

import "github.com/albanread/fbcqbe/internal/typesys"

// StringField offsets within the on-heap string descriptor (spec §3.3).
const (
	StringOffData       = 0
	StringOffLength     = 8
	StringOffCapacity   = 16
	StringOffRefcount   = 24
	StringOffEncoding   = 28
	StringOffDirty      = 29
	StringOffPadding    = 30
	StringOffUTF8Cache  = 32
	StringDescriptorSize = 40
)

// String encoding tags (spec §3.3).
const (
	EncodingASCII uint8 = 0
	EncodingUTF32 uint8 = 1
)

// Runtime entry points (spec §6). Names may be adjusted by the actual
// runtime implementation; the contracts (argument count and order) are
// fixed and this package is the single source of truth the emitter
// consults so a renamed runtime symbol only has to change in one place.
const (
	Init             = "basic_runtime_init"
	Cleanup          = "basic_runtime_cleanup"
	GlobalInit       = "basic_global_init"
	GlobalBase       = "basic_global_base"
	GlobalCleanup    = "basic_global_cleanup"

	StringNewUTF8   = "string_new_utf8"
	StringRetain    = "string_retain"
	StringRelease   = "string_release"
	StringClone     = "string_clone"
	StringConcat    = "string_concat"
	StringMid       = "string_mid"
	StringLeft      = "string_left"
	StringRight     = "string_right"
	StringInstr     = "string_instr"
	StringUpper     = "string_upper"
	StringLower     = "string_lower"
	StringTrim      = "string_trim"
	StringCompare   = "string_compare"
	StringCharAt    = "string_char_at"
	StringSetChar   = "string_set_char"
	StringLength    = "string_length"
	StringFromInt   = "string_from_int"
	StringFromDouble = "string_from_double"
	StringChr       = "string_chr"
	StringToDouble  = "string_to_double"

	ArrayNew         = "array_new"
	ArrayGetAddress  = "array_get_address"
	ArrayRedim       = "array_redim"
	ArrayErase       = "array_erase"
	ArrayLBound      = "array_lbound"
	ArrayUBound      = "array_ubound"

	ReadInt    = "fb_read_int"
	ReadDouble = "fb_read_double"
	ReadString = "fb_read_string"
	Restore         = "fb_restore"
	RestoreToLabel  = "fb_restore_to_label"
	RestoreToLine   = "fb_restore_to_line"
	ErrOutOfData    = "fb_error_out_of_data"
	ErrTypeMismatch = "fb_error_data_type_mismatch"
	ErrSetCode      = "fb_error_set_code"
	ErrCurrentCode  = "fb_error_current_code"

	PrintInt        = "basic_print_int"
	PrintDouble     = "basic_print_double"
	PrintStringDesc = "basic_print_string_desc"
	PrintUsing      = "basic_print_using"

	SetJmp  = "setjmp"
	LongJmp = "longjmp"
)

// GOSUBStack names the module-scope data items backing the ID-stack
// GOSUB mechanism (spec §4.6).
const (
	GosubReturnStack = "$gosub_return_stack"
	GosubReturnSP    = "$gosub_return_sp"
	GosubStackDepth  = 1000 // words; exceeding this is a runtime stack-overflow error
)

// GlobalVector names the module-scope data item holding the global
// count passed to basic_global_init (spec §4.6).
const GlobalVector = "$basic_global_count"

// BuiltinReturnType names the result type of the fixed BASIC builtin
// functions that lower directly to a runtime call instead of a
// user-procedure lookup (spec §4.1's "builtin-registry calls" case of
// infer_expression, spec §6's runtime contract). Both the semantic
// analyzer and the emitter consult this one table so a builtin that
// type-checks is guaranteed to also be reachable at emission.
func BuiltinReturnType(name string) (*typesys.Descriptor, bool) {
	switch name {
	case "LEN", "INSTR", "ASC", "ERR":
		return typesys.New(typesys.INTEGER), true
	case "MID$", "LEFT$", "RIGHT$", "UCASE$", "LCASE$", "TRIM$", "STR$", "CHR$":
		return typesys.New(typesys.STRING), true
	case "VAL":
		return typesys.New(typesys.DOUBLE), true
	}
	return nil, false
}

// ArrayElemSizeSuffix returns the runtime's element-size/type suffix
// argument convention for array_new: the element width in bytes, or -1
// for a descriptor-typed (string/record) element that the runtime
// refcounts or deep-copies on its own.
func ArrayElemSizeSuffix(widthBytes int, isStringOrRecord bool) int {
	if isStringOrRecord {
		return -1
	}
	return widthBytes
}
