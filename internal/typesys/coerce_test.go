package typesys

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCoercion_IdenticalIsNoop(t *testing.T) {
	for _, base := range []BaseKind{BYTE, INTEGER, LONG, DOUBLE, STRING} {
		d := New(base)
		assert.Equal(t, Identical, CheckCoercion(d, d), base.String())
	}
}

func TestCheckCoercion_Widening(t *testing.T) {
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(BYTE), New(SHORT)))
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(SHORT), New(INTEGER)))
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(INTEGER), New(LONG)))
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(SINGLE), New(DOUBLE)))
}

func TestCheckCoercion_Narrowing(t *testing.T) {
	assert.Equal(t, ImplicitLossy, CheckCoercion(New(LONG), New(INTEGER)))
	assert.Equal(t, ImplicitLossy, CheckCoercion(New(DOUBLE), New(SINGLE)))
}

func TestCheckCoercion_StringUnicodeSymmetric(t *testing.T) {
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(STRING), New(UNICODE)))
	assert.Equal(t, ImplicitSafe, CheckCoercion(New(UNICODE), New(STRING)))
}

func TestCheckCoercion_ExplicitRequired(t *testing.T) {
	assert.Equal(t, ExplicitRequired, CheckCoercion(New(DOUBLE), New(INTEGER)))
	assert.Equal(t, ExplicitRequired, CheckCoercion(New(INTEGER), New(STRING)))
}

func TestCheckCoercion_RecordIdentityByID(t *testing.T) {
	a := NewRecord(1, "Point")
	b := NewRecord(1, "PointAlias")
	c := NewRecord(2, "Point")
	assert.Equal(t, Identical, CheckCoercion(a, b), "same record_id must be Identical regardless of name")
	assert.Equal(t, Incompatible, CheckCoercion(a, c), "different record_id is always Incompatible")
}

func TestCheckCoercion_RecordVsPrimitiveIncompatible(t *testing.T) {
	assert.Equal(t, Incompatible, CheckCoercion(NewRecord(1, "R"), New(INTEGER)))
}

func TestCheckCoercion_VoidAlwaysIncompatible(t *testing.T) {
	assert.Equal(t, Incompatible, CheckCoercion(New(VOID), New(INTEGER)))
	assert.Equal(t, Incompatible, CheckCoercion(New(INTEGER), New(VOID)))
}

func TestValidateAssignment_IdenticalEmitsNoCast(t *testing.T) {
	ok, kind := ValidateAssignment(New(INTEGER), New(INTEGER))
	require.True(t, ok)
	assert.Equal(t, Identical, kind)
}

func TestPromoteTypes_CommutativeOnLattice(t *testing.T) {
	pairs := [][2]*Descriptor{
		{New(BYTE), New(SHORT)},
		{New(INTEGER), New(LONG)},
		{New(SINGLE), New(DOUBLE)},
		{New(INTEGER), New(DOUBLE)},
		{New(LONG), New(SINGLE)},
	}
	for _, p := range pairs {
		ab := PromoteTypes(p[0], p[1])
		ba := PromoteTypes(p[1], p[0])
		if diff := cmp.Diff(ab.Base, ba.Base); diff != "" {
			t.Errorf("PromoteTypes not commutative for %s/%s: %s", p[0], p[1], diff)
		}
	}
}

func TestPromoteTypes_Associative(t *testing.T) {
	a, b, c := New(BYTE), New(INTEGER), New(DOUBLE)
	left := PromoteTypes(PromoteTypes(a, b), c)
	right := PromoteTypes(a, PromoteTypes(b, c))
	assert.Equal(t, left.Base, right.Base)
}

func TestInferIntLiteral_SmallestFit(t *testing.T) {
	assert.Equal(t, BYTE, InferIntLiteral(100).Base)
	assert.Equal(t, SHORT, InferIntLiteral(1000).Base)
	assert.Equal(t, INTEGER, InferIntLiteral(100000).Base)
	assert.Equal(t, LONG, InferIntLiteral(1<<40).Base)
}

func TestQBEScalarMapping(t *testing.T) {
	cases := map[BaseKind]string{
		BYTE: "w", SHORT: "w", INTEGER: "w", UBYTE: "w",
		LONG: "l", POINTER: "l", STRING: "l",
		SINGLE: "s", DOUBLE: "d",
	}
	for base, want := range cases {
		assert.Equal(t, want, New(base).QBEScalar(), base.String())
	}
}

func TestRecordFieldMemoryWidthNotPromoted(t *testing.T) {
	// spec §4.1: an INTEGER field stores with storew/loadsw, never storel/loadl,
	// even though INTEGER promotes to "w" anyway and LONG stores with "l".
	assert.Equal(t, "w", New(INTEGER).QBEMemOp())
	assert.Equal(t, "loadsw", New(INTEGER).LoadOp())
	assert.Equal(t, "storew", New(INTEGER).StoreOp())
	assert.Equal(t, "l", New(LONG).QBEMemOp())
}

func TestDivisionResult(t *testing.T) {
	assert.Equal(t, INTEGER, DivisionResult(New(INTEGER), New(INTEGER)).Base)
	assert.Equal(t, DOUBLE, DivisionResult(New(INTEGER), New(DOUBLE)).Base)
}
