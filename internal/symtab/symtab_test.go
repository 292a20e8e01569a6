package symtab

import (
	"testing"

	"github.com/albanread/fbcqbe/internal/typesys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareVariable_GlobalsAndLocalsDontCollide(t *testing.T) {
	tbl := New()
	_, err := tbl.DeclareVariable(GlobalScope, "X", typesys.New(typesys.INTEGER))
	require.NoError(t, err)
	_, err = tbl.DeclareVariable(FuncScope("F"), "X", typesys.New(typesys.STRING))
	require.NoError(t, err, "a function-local X must not collide with the global X")

	g, ok := tbl.LookupVariable(GlobalScope, "X")
	require.True(t, ok)
	assert.Equal(t, typesys.INTEGER, g.Type.Base)

	l, ok := tbl.LookupVariable(FuncScope("F"), "X")
	require.True(t, ok)
	assert.Equal(t, typesys.STRING, l.Type.Base)
}

func TestDeclareVariable_DuplicateInSameScopeErrors(t *testing.T) {
	tbl := New()
	_, err := tbl.DeclareVariable(GlobalScope, "N", typesys.New(typesys.INTEGER))
	require.NoError(t, err)
	_, err = tbl.DeclareVariable(GlobalScope, "N", typesys.New(typesys.LONG))
	assert.Error(t, err)
	assert.IsType(t, DuplicateDeclErr{}, err)
}

func TestDeclareRecord_UniqueIDs(t *testing.T) {
	tbl := New()
	a, err := tbl.DeclareRecord("Point")
	require.NoError(t, err)
	b, err := tbl.DeclareRecord("Rect")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = tbl.DeclareRecord("Point")
	assert.Error(t, err, "redeclaring a record name must fail")
}

func TestLayoutRecord_8ByteAlignment(t *testing.T) {
	tbl := New()
	rt, _ := tbl.DeclareRecord("Mixed")
	tbl.LayoutRecord(rt, []struct {
		Name string
		Type *typesys.Descriptor
	}{
		{"B", typesys.New(typesys.BYTE)},
		{"L", typesys.New(typesys.LONG)}, // must move to offset 8, not 1
		{"I", typesys.New(typesys.INTEGER)},
	})
	require.Len(t, rt.Fields, 3)
	assert.Equal(t, 0, rt.Fields[0].Offset)
	assert.Equal(t, 8, rt.Fields[1].Offset)
	assert.Equal(t, 16, rt.Fields[2].Offset)
	assert.Equal(t, 24, rt.Size, "total size rounds up to a multiple of 8")
}

func TestScopeKey_DistinguishesGlobalAndFunction(t *testing.T) {
	g := GlobalScope.Key("X")
	f := FuncScope("F").Key("X")
	assert.NotEqual(t, g, f)
}

func TestParamRecordedAsVariableInFunctionScope(t *testing.T) {
	// spec §3.2: a function parameter must be both part of the signature
	// and resolvable as a plain variable lookup inside that function.
	tbl := New()
	scope := FuncScope("Add")
	_, err := tbl.DeclareVariable(scope, "N", typesys.New(typesys.INTEGER))
	require.NoError(t, err)
	proc := &ProcSymbol{
		Name:       "Add",
		IsFunction: true,
		RetType:    typesys.New(typesys.INTEGER),
		Params:     []ParamInfo{{Name: "N", Type: typesys.New(typesys.INTEGER)}},
	}
	require.NoError(t, tbl.DeclareProcedure(proc))

	v, ok := tbl.LookupVariable(scope, "N")
	require.True(t, ok)
	assert.Equal(t, typesys.INTEGER, v.Type.Base)
}
