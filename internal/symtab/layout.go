package symtab

import "github.com/albanread/fbcqbe/internal/typesys"

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	if n%8 == 0 {
		return n
	}
	return n + (8 - n%8)
}

// fieldSize returns a field's storage size in bytes. Records nest at
// their own computed Size; everything else comes from the type's bit
// width.
func fieldSize(t *typesys.Descriptor, records *Table) int {
	if t.IsRecord() {
		if rt, ok := records.recordByID(t.RecordID); ok {
			return rt.Size
		}
		return 8
	}
	if t.IsArray() || t.IsPointer() {
		return 8 // opaque runtime pointer, per spec §3.4
	}
	return t.BitWidth() / 8
}

func (t *Table) recordByID(id int) (*RecordType, bool) {
	for _, rt := range t.Records {
		if rt.ID == id {
			return rt, true
		}
	}
	return nil, false
}

// LayoutRecord assigns each field an offset, in declaration order, and
// sets the record's total Size (spec §4.2 pass 1). Field storage stays
// at native width (an INTEGER field takes 4 bytes); each field starts at
// the next multiple of its own size, capped at 8, and Size is rounded up
// to a multiple of 8.
func (t *Table) LayoutRecord(rt *RecordType, fields []struct {
	Name string
	Type *typesys.Descriptor
}) {
	offset := 0
	out := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		size := fieldSize(f.Type, t)
		align := size
		if align > 8 {
			align = 8
		}
		if align > 0 && offset%align != 0 {
			offset += align - offset%align
		}
		out = append(out, FieldInfo{Name: f.Name, Type: f.Type, Offset: offset})
		offset += size
	}
	rt.Fields = out
	rt.Size = align8(offset)
}
