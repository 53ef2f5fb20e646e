package data

import "fmt"

// ValueType discriminates the union held by a Value.
type ValueType int

const (
	ValueBinary ValueType = iota
	ValueUInt32
	ValueUInt64
	ValueInt32
	ValueInt64
	ValueString
	ValueRegex
	ValueSequence
	ValueMap
)

func (t ValueType) String() string {
	switch t {
	case ValueBinary:
		return "binary"
	case ValueUInt32:
		return "uint32"
	case ValueUInt64:
		return "uint64"
	case ValueInt32:
		return "int32"
	case ValueInt64:
		return "int64"
	case ValueString:
		return "string"
	case ValueRegex:
		return "regex"
	case ValueSequence:
		return "sequence"
	case ValueMap:
		return "map"
	}
	return fmt.Sprintf("valuetype(%d)", int(t))
}

// IsInteger reports whether t is one of the four integer kinds.
func (t ValueType) IsInteger() bool {
	switch t {
	case ValueUInt32, ValueUInt64, ValueInt32, ValueInt64:
		return true
	}
	return false
}

// RegexOption is a bitmask of options attached to a regex value.
type RegexOption uint32

const (
	RegexCaseInsensitive RegexOption = 1 << iota
)

// ValuePair is one (key, value) element of a map value. Order is preserved.
type ValuePair struct {
	Key   string
	Value Value
}

// Value is a tagged value used inside filters, records and fsevents.
// Constructors deep-copy their input, so a Value never aliases memory
// owned by the caller. Treat a built Value as immutable; accessors for
// owned slices return copies.
type Value struct {
	kind ValueType

	binary    []byte
	u64       uint64
	i64       int64
	str       string
	regexOpts RegexOption
	seq       []Value
	pairs     []ValuePair
}

// NewBinaryValue builds a binary value from a copy of b.
func NewBinaryValue(b []byte) Value {
	buf := make([]byte, len(b))
	copy(buf, b)
	return Value{kind: ValueBinary, binary: buf}
}

func NewUInt32Value(u uint32) Value {
	return Value{kind: ValueUInt32, u64: uint64(u)}
}

func NewUInt64Value(u uint64) Value {
	return Value{kind: ValueUInt64, u64: u}
}

func NewInt32Value(i int32) Value {
	return Value{kind: ValueInt32, i64: int64(i)}
}

func NewInt64Value(i int64) Value {
	return Value{kind: ValueInt64, i64: i}
}

func NewStringValue(s string) Value {
	return Value{kind: ValueString, str: s}
}

// NewRegexValue builds a regex value from a pattern and a bitmask of
// RegexOption flags. The pattern is kept verbatim; it is only compiled
// when a backend evaluates it.
func NewRegexValue(pattern string, opts RegexOption) Value {
	return Value{kind: ValueRegex, str: pattern, regexOpts: opts}
}

// NewSequenceValue builds a sequence value from a deep copy of values.
func NewSequenceValue(values []Value) Value {
	seq := make([]Value, len(values))
	for i := range values {
		seq[i] = values[i].Clone()
	}
	return Value{kind: ValueSequence, seq: seq}
}

// NewMapValue builds a map value from a deep copy of pairs, preserving
// their order.
func NewMapValue(pairs []ValuePair) Value {
	cp := make([]ValuePair, len(pairs))
	for i := range pairs {
		cp[i] = ValuePair{Key: pairs[i].Key, Value: pairs[i].Value.Clone()}
	}
	return Value{kind: ValueMap, pairs: cp}
}

// Kind returns the tag of the union.
func (v Value) Kind() ValueType {
	return v.kind
}

// Binary returns a copy of the binary payload.
func (v Value) Binary() []byte {
	buf := make([]byte, len(v.binary))
	copy(buf, v.binary)
	return buf
}

func (v Value) UInt32() uint32 { return uint32(v.u64) }
func (v Value) UInt64() uint64 { return v.u64 }
func (v Value) Int32() int32   { return int32(v.i64) }
func (v Value) Int64() int64   { return v.i64 }
func (v Value) String() string { return v.str }

// Regex returns the pattern and option flags of a regex value.
func (v Value) Regex() (string, RegexOption) {
	return v.str, v.regexOpts
}

// Sequence returns a copy of the elements of a sequence value.
func (v Value) Sequence() []Value {
	seq := make([]Value, len(v.seq))
	copy(seq, v.seq)
	return seq
}

// Map returns a copy of the pairs of a map value, in order.
func (v Value) Map() []ValuePair {
	pairs := make([]ValuePair, len(v.pairs))
	copy(pairs, v.pairs)
	return pairs
}

// Clone deep-copies v.
func (v Value) Clone() Value {
	switch v.kind {
	case ValueBinary:
		return NewBinaryValue(v.binary)
	case ValueSequence:
		return NewSequenceValue(v.seq)
	case ValueMap:
		return NewMapValue(v.pairs)
	}
	return v
}

// Validate checks that v is structurally well-formed: the kind tag is
// known, and every element of a sequence or map is itself valid.
func (v Value) Validate() error {
	switch v.kind {
	case ValueBinary, ValueUInt32, ValueUInt64, ValueInt32, ValueInt64,
		ValueString, ValueRegex:
		return nil
	case ValueSequence:
		for i := range v.seq {
			if err := v.seq[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	case ValueMap:
		for i := range v.pairs {
			if err := v.pairs[i].Value.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown value type %d", ErrInvalid, int(v.kind))
}
