package data

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Values cross into storage backends that keep attributes as JSON
// documents (sqlite, consul, s3). The wire form is a small tagged
// object so the kind survives a round trip:
//
//	{"t":"u32","v":42}
//	{"t":"seq","v":[...]}
//	{"t":"map","v":[{"k":"user.foo","v":{...}}, ...]}
//
// Binary payloads are base64-encoded.

type jsonValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
	Opts  uint32          `json:"o,omitempty"`
}

type jsonPair struct {
	Key   string `json:"k"`
	Value Value  `json:"v"`
}

var jsonTypeNames = map[ValueType]string{
	ValueBinary:   "bin",
	ValueUInt32:   "u32",
	ValueUInt64:   "u64",
	ValueInt32:    "i32",
	ValueInt64:    "i64",
	ValueString:   "str",
	ValueRegex:    "re",
	ValueSequence: "seq",
	ValueMap:      "map",
}

func (v Value) MarshalJSON() ([]byte, error) {
	name, ok := jsonTypeNames[v.kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown value type %d", ErrInvalid, int(v.kind))
	}

	var payload any
	var opts uint32

	switch v.kind {
	case ValueBinary:
		payload = base64.StdEncoding.EncodeToString(v.binary)
	case ValueUInt32, ValueUInt64:
		payload = v.u64
	case ValueInt32, ValueInt64:
		payload = v.i64
	case ValueString:
		payload = v.str
	case ValueRegex:
		payload = v.str
		opts = uint32(v.regexOpts)
	case ValueSequence:
		payload = v.seq
	case ValueMap:
		pairs := make([]jsonPair, len(v.pairs))
		for i, p := range v.pairs {
			pairs[i] = jsonPair{Key: p.Key, Value: p.Value}
		}
		payload = pairs
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{Type: name, Value: raw, Opts: opts})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(b, &jv); err != nil {
		return err
	}

	switch jv.Type {
	case "bin":
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		*v = Value{kind: ValueBinary, binary: raw}
	case "u32", "u64":
		var u uint64
		if err := json.Unmarshal(jv.Value, &u); err != nil {
			return err
		}
		kind := ValueUInt64
		if jv.Type == "u32" {
			kind = ValueUInt32
		}
		*v = Value{kind: kind, u64: u}
	case "i32", "i64":
		var i int64
		if err := json.Unmarshal(jv.Value, &i); err != nil {
			return err
		}
		kind := ValueInt64
		if jv.Type == "i32" {
			kind = ValueInt32
		}
		*v = Value{kind: kind, i64: i}
	case "str":
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return err
		}
		*v = NewStringValue(s)
	case "re":
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return err
		}
		*v = NewRegexValue(s, RegexOption(jv.Opts))
	case "seq":
		var seq []Value
		if err := json.Unmarshal(jv.Value, &seq); err != nil {
			return err
		}
		*v = Value{kind: ValueSequence, seq: seq}
	case "map":
		var pairs []jsonPair
		if err := json.Unmarshal(jv.Value, &pairs); err != nil {
			return err
		}
		cp := make([]ValuePair, len(pairs))
		for i, p := range pairs {
			cp[i] = ValuePair{Key: p.Key, Value: p.Value}
		}
		*v = Value{kind: ValueMap, pairs: cp}
	default:
		return fmt.Errorf("%w: unknown value type %q", ErrInvalid, jv.Type)
	}

	return nil
}
