package common

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	indentPrefix = ""
	indent       = "  "
	// A protobuf double holds integers up to this size exactly. Larger ones
	// are stored as strings.
	maxExactInt = 1 << 53
)

/*
UnmarshalChange turns a set of JSON into a single Change.
*/
func UnmarshalChange(data []byte) (*Change, error) {
	var c Change
	err := json.Unmarshal(data, &c)
	if err == nil {
		return &c, nil
	}
	return nil, err
}

/*
Marshal turns a Change into JSON.
*/
func (c *Change) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

/*
MarshalProto turns a Change into a protobuf "Struct." This is how changes
are stored. Column values keep their JSON form, so a time is a string after
a round trip, and every number is a double unless it was an integer too
large for one.
*/
func (c *Change) MarshalProto() ([]byte, error) {
	return marshalProto(c)
}

/*
UnmarshalChangeProto turns the result of MarshalProto back into a Change.
*/
func UnmarshalChangeProto(data []byte) (*Change, error) {
	var c Change
	if err := unmarshalProto(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

/*
UnmarshalChangeList turns a set of JSON into an entire change list.
*/
func UnmarshalChangeList(data []byte) (*ChangeList, error) {
	var l ChangeList
	err := json.Unmarshal(data, &l)
	if err == nil {
		return &l, nil
	}
	return nil, err
}

/*
Marshal turns a change list into formatted, indented JSON.
*/
func (l *ChangeList) Marshal() ([]byte, error) {
	return json.MarshalIndent(l, indentPrefix, indent)
}

func (l *ChangeList) MarshalProto() ([]byte, error) {
	return marshalProto(l)
}

func UnmarshalChangeListProto(data []byte) (*ChangeList, error) {
	var l ChangeList
	if err := unmarshalProto(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func marshalProto(v interface{}) ([]byte, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func unmarshalProto(data []byte, v interface{}) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "invalid protobuf")
	}
	js, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(js, v)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var m map[string]interface{}
	if err = dec.Decode(&m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fixNumbers(m).(map[string]interface{}))
}

// fixNumbers replaces every json.Number with something structpb accepts.
func fixNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = fixNumbers(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = fixNumbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i <= maxExactInt && i >= -maxExactInt {
				return float64(i)
			}
			return t.String()
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
