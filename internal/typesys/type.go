// Package typesys implements the QBE-aligned type descriptor described in
// spec §3.1/§4.1: a single tagged-variant struct for every type the
// front end can produce, plus the coercion and promotion rules that keep
// the CFG/AST emitters from ever handing QBE a type error.
package typesys

import (
	"fmt"

	"github.com/willf/bitset"
)

// BaseKind is the scalar/aggregate family of a TypeDescriptor.
type BaseKind int

const (
	UNKNOWN BaseKind = iota
	VOID
	BYTE
	SHORT
	INTEGER
	LONG
	UBYTE
	USHORT
	UINTEGER
	ULONG
	SINGLE
	DOUBLE
	STRING
	UNICODE
	RECORD
	POINTER
	ARRAY_DESC
	STRING_DESC
	LOOP_INDEX
)

func (b BaseKind) String() string {
	switch b {
	case VOID:
		return "VOID"
	case BYTE:
		return "BYTE"
	case SHORT:
		return "SHORT"
	case INTEGER:
		return "INTEGER"
	case LONG:
		return "LONG"
	case UBYTE:
		return "UBYTE"
	case USHORT:
		return "USHORT"
	case UINTEGER:
		return "UINTEGER"
	case ULONG:
		return "ULONG"
	case SINGLE:
		return "SINGLE"
	case DOUBLE:
		return "DOUBLE"
	case STRING:
		return "STRING"
	case UNICODE:
		return "UNICODE"
	case RECORD:
		return "RECORD"
	case POINTER:
		return "POINTER"
	case ARRAY_DESC:
		return "ARRAY_DESC"
	case STRING_DESC:
		return "STRING_DESC"
	case LOOP_INDEX:
		return "LOOP_INDEX"
	default:
		return "UNKNOWN"
	}
}

// Attr is a bit position within a TypeDescriptor's Attrs bitset.
type Attr uint

const (
	AttrArray Attr = iota
	AttrPointer
	AttrConst
	AttrByRef
	AttrUnsigned
	AttrDynamic
	AttrStatic
	AttrHidden
)

// DimRange is one dimension of an array type: BASIC's (lower, upper) bound pair.
type DimRange struct {
	Lower int
	Upper int
}

// Descriptor is the single type-system value: every scalar, record, array,
// and pointer type the front end produces is one of these. Per spec §9's
// design note, there is deliberately no separate "variable type enum" —
// every site that used to branch on a lightweight enum now inspects Base.
type Descriptor struct {
	Base       BaseKind
	Attrs      *bitset.BitSet
	RecordID   int
	RecordName string
	Dims       []DimRange
	Element    *Descriptor
}

// New returns a plain scalar descriptor with no attributes set.
func New(base BaseKind) *Descriptor {
	return &Descriptor{Base: base, Attrs: bitset.New(8)}
}

// NewRecord returns a descriptor identifying a user-defined record type.
// Two record descriptors are the same type iff RecordID matches (spec §3.1
// invariant) — RecordName exists only for diagnostics.
func NewRecord(id int, name string) *Descriptor {
	d := New(RECORD)
	d.RecordID = id
	d.RecordName = name
	return d
}

// NewArray returns a descriptor for an array of elem with the given dims.
func NewArray(elem *Descriptor, dims []DimRange) *Descriptor {
	d := New(ARRAY_DESC)
	d.Attrs.Set(uint(AttrArray))
	d.Dims = dims
	d.Element = elem
	return d
}

// NewPointer returns a descriptor for a pointer to elem.
func NewPointer(elem *Descriptor) *Descriptor {
	d := New(POINTER)
	d.Attrs.Set(uint(AttrPointer))
	d.Element = elem
	return d
}

func (d *Descriptor) has(a Attr) bool {
	return d != nil && d.Attrs != nil && d.Attrs.Test(uint(a))
}

// WithAttr returns d with the given attribute set; d itself is unmodified.
func (d *Descriptor) WithAttr(a Attr) *Descriptor {
	cp := *d
	cp.Attrs = d.Attrs.Clone()
	cp.Attrs.Set(uint(a))
	return &cp
}

func (d *Descriptor) IsArray() bool    { return d != nil && d.Base == ARRAY_DESC }
func (d *Descriptor) IsPointer() bool  { return d != nil && d.Base == POINTER }
func (d *Descriptor) IsRecord() bool   { return d != nil && d.Base == RECORD }
func (d *Descriptor) IsString() bool   { return d != nil && (d.Base == STRING || d.Base == UNICODE) }
func (d *Descriptor) IsByRef() bool    { return d.has(AttrByRef) }
func (d *Descriptor) IsConst() bool    { return d.has(AttrConst) }
func (d *Descriptor) IsUnsigned() bool { return d.has(AttrUnsigned) }

func (d *Descriptor) IsInteger() bool {
	if d == nil {
		return false
	}
	switch d.Base {
	case BYTE, SHORT, INTEGER, LONG, UBYTE, USHORT, UINTEGER, ULONG, LOOP_INDEX:
		return true
	}
	return false
}

func (d *Descriptor) IsFloat() bool {
	if d == nil {
		return false
	}
	return d.Base == SINGLE || d.Base == DOUBLE
}

func (d *Descriptor) IsNumeric() bool { return d.IsInteger() || d.IsFloat() }

// QBEScalar returns the QBE base type letter used for SSA temps of this
// type: w/l for integers and pointers, s/d for floats. Sub-word integers
// are always promoted to w in registers (spec §4.1); only memory ops
// narrow.
func (d *Descriptor) QBEScalar() string {
	if d == nil {
		return "w"
	}
	switch d.Base {
	case BYTE, SHORT, INTEGER, UBYTE, USHORT, UINTEGER, LOOP_INDEX:
		return "w"
	case LONG, ULONG, POINTER, STRING, UNICODE, ARRAY_DESC, STRING_DESC, RECORD:
		return "l"
	case SINGLE:
		return "s"
	case DOUBLE:
		return "d"
	default:
		return "w"
	}
}

// QBEMemOp returns the load/store suffix used when this type is the target
// of a memory operation, preserving sign/zero semantics for sub-word
// fields (spec §4.1's "correctness-critical rule": a RECORD field storing
// an INTEGER uses storew/loadsw, never storel/loadl).
func (d *Descriptor) QBEMemOp() string {
	if d == nil {
		return "w"
	}
	switch d.Base {
	case BYTE:
		return "sb"
	case UBYTE:
		return "ub"
	case SHORT:
		return "sh"
	case USHORT:
		return "uh"
	case INTEGER, LOOP_INDEX:
		return "w"
	case UINTEGER:
		return "w"
	case LONG, ULONG, POINTER, STRING, UNICODE, ARRAY_DESC, STRING_DESC, RECORD:
		return "l"
	case SINGLE:
		return "s"
	case DOUBLE:
		return "d"
	default:
		return "w"
	}
}

// LoadOp returns the extending load mnemonic for a sub-word memory type,
// e.g. "loadsw" for a signed INTEGER field, "loadub" for UBYTE. Wide
// types (l/s/d) load with their QBEMemOp directly prefixed by "load".
func (d *Descriptor) LoadOp() string {
	op := d.QBEMemOp()
	switch op {
	case "sb", "ub", "sh", "uh":
		return "load" + op
	case "w":
		if d.IsUnsigned() {
			return "loaduw"
		}
		return "loadsw"
	default:
		return "load" + op
	}
}

// StoreOp returns the storing mnemonic for this type's native width.
func (d *Descriptor) StoreOp() string {
	switch d.QBEMemOp() {
	case "sb", "ub":
		return "storeb"
	case "sh", "uh":
		return "storeh"
	default:
		return "store" + d.QBEScalar()
	}
}

// BitWidth returns the in-memory width of this type in bits.
func (d *Descriptor) BitWidth() int {
	if d == nil {
		return 32
	}
	switch d.Base {
	case BYTE, UBYTE:
		return 8
	case SHORT, USHORT:
		return 16
	case INTEGER, UINTEGER, SINGLE, LOOP_INDEX:
		return 32
	case LONG, ULONG, DOUBLE, POINTER, STRING, UNICODE, ARRAY_DESC, STRING_DESC:
		return 64
	case RECORD:
		return 0 // size comes from the symbol table's record layout, not the descriptor
	default:
		return 32
	}
}

func (d *Descriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	switch d.Base {
	case RECORD:
		return fmt.Sprintf("RECORD %s#%d", d.RecordName, d.RecordID)
	case ARRAY_DESC:
		return fmt.Sprintf("ARRAY(%s)", d.Element.String())
	case POINTER:
		return fmt.Sprintf("POINTER(%s)", d.Element.String())
	default:
		return d.Base.String()
	}
}

// SameRecord reports whether a and b are the same record type per the
// record_id identity invariant (spec §3.1).
func SameRecord(a, b *Descriptor) bool {
	return a != nil && b != nil && a.Base == RECORD && b.Base == RECORD && a.RecordID == b.RecordID
}
