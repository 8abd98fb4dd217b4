package pgoutput

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pkg/errors"
)

/*
NewTypeMap returns a pgtype map set up for decoding column values from
the text format that pgoutput uses. JSON columns are passed through as
raw messages rather than unmarshalled.
*/
func NewTypeMap() *pgtype.Map {
	m := pgtype.NewMap()
	m.RegisterType(&pgtype.Type{
		Name:  "json",
		OID:   pgtype.JSONOID,
		Codec: &rawJSONCodec{JSONCodec: pgtype.JSONCodec{Marshal: json.Marshal, Unmarshal: json.Unmarshal}},
	})
	m.RegisterType(&pgtype.Type{
		Name:  "jsonb",
		OID:   pgtype.JSONBOID,
		Codec: &rawJSONCodec{JSONCodec: pgtype.JSONCodec{Marshal: json.Marshal, Unmarshal: json.Unmarshal}},
	})
	return m
}

type rawJSONCodec struct {
	pgtype.JSONCodec
}

func (c *rawJSONCodec) DecodeValue(m *pgtype.Map, oid uint32, format int16, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}
	return json.RawMessage(src), nil
}

/*
DecodeValue converts a text-format column value to a Go value using the
column's type. Types the map does not know are returned as strings.
*/
func DecodeValue(m *pgtype.Map, col ColumnInfo, v ColumnValue) (interface{}, error) {
	if v.Kind != ColumnText {
		return nil, nil
	}
	dt, ok := m.TypeForOID(col.TypeID)
	if !ok {
		return string(v.Data), nil
	}
	val, err := dt.Codec.DecodeValue(m, col.TypeID, pgtype.TextFormatCode, v.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding column %q of type %d", col.Name, col.TypeID)
	}
	return val, nil
}

/*
Values decodes every column of "row" into a map keyed by column name.
Unchanged TOAST columns are left out of the map and returned by name in
the second result, since their value is not known.
*/
func (row Row) Values(m *pgtype.Map, rel *RelationInfo) (map[string]interface{}, []string, error) {
	if len(row) != rel.ColumnCount() {
		return nil, nil, newError(ColumnCountMismatch, -1,
			"row has %d columns, relation %s has %d", len(row), rel.QualifiedName(), rel.ColumnCount())
	}
	vals := make(map[string]interface{}, len(row))
	var unchanged []string
	for i, v := range row {
		col := rel.Columns[i]
		if v.IsUnchanged() {
			unchanged = append(unchanged, col.Name)
			continue
		}
		val, err := DecodeValue(m, col, v)
		if err != nil {
			return nil, nil, err
		}
		vals[col.Name] = val
	}
	return vals, unchanged, nil
}
