package pgoutput

import "time"

type cstr string

// build concatenates wire values: byte, uint16, uint32, uint64, cstr
// (zero-terminated) and []byte.
func build(parts ...interface{}) []byte {
	w := NewWriter(64)
	for _, p := range parts {
		switch v := p.(type) {
		case byte:
			w.WriteByte(v)
		case rune:
			w.WriteByte(byte(v))
		case uint16:
			w.WriteUint16(v)
		case uint32:
			w.WriteUint32(v)
		case int:
			w.WriteUint32(uint32(v))
		case uint64:
			w.WriteUint64(v)
		case cstr:
			w.WriteCString(string(v))
		case []byte:
			w.WriteBytes(v)
		default:
			panic("bad part")
		}
	}
	return w.Bytes()
}

func textCol(s string) []byte {
	return build('t', uint32(len(s)), []byte(s))
}

func testRelation(id uint32, cols ...string) *RelationInfo {
	r := &RelationInfo{
		ID:              id,
		Namespace:       "public",
		Name:            "t",
		ReplicaIdentity: ReplicaIdentityDefault,
	}
	for i, c := range cols {
		ci := ColumnInfo{Name: c, TypeID: 25, TypeModifier: -1}
		if i == 0 {
			ci.Flags = 1
			ci.TypeID = 23
		}
		r.Columns = append(r.Columns, ci)
	}
	return r
}

func testDecoder(rels ...*RelationInfo) *Decoder {
	d := NewDecoder(nil)
	for _, r := range rels {
		d.Catalog().Upsert(r)
	}
	return d
}

var testTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
