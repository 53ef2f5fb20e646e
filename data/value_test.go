package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

// TestValue_ConstructorsDeepCopy verifies that a value never aliases
// memory owned by the caller.
func TestValue_ConstructorsDeepCopy(t *testing.T) {
	buf := []byte{1, 2, 3}
	v := NewBinaryValue(buf)
	buf[0] = 99
	if got := v.Binary(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("binary value aliases caller memory: %v", got)
	}

	elems := []Value{NewUInt32Value(1), NewUInt32Value(2)}
	seq := NewSequenceValue(elems)
	elems[0] = NewStringValue("mutated")
	if got := seq.Sequence(); got[0].Kind() != ValueUInt32 {
		t.Errorf("sequence value aliases caller memory: %v", got[0].Kind())
	}

	pairs := []ValuePair{{Key: "user.blob", Value: NewStringValue("a")}}
	m := NewMapValue(pairs)
	pairs[0].Key = "mutated"
	if got := m.Map(); got[0].Key != "user.blob" {
		t.Errorf("map value aliases caller memory: %q", got[0].Key)
	}
}

func TestValue_AccessorsReturnCopies(t *testing.T) {
	v := NewBinaryValue([]byte{1, 2, 3})
	got := v.Binary()
	got[0] = 99
	if fresh := v.Binary(); fresh[0] != 1 {
		t.Errorf("Binary() exposes internal buffer: %v", fresh)
	}
}

func TestValue_Validate(t *testing.T) {
	valid := []Value{
		NewBinaryValue(nil),
		NewUInt32Value(0),
		NewInt64Value(-1),
		NewStringValue(""),
		NewRegexValue(".*", RegexCaseInsensitive),
		NewSequenceValue([]Value{NewStringValue("a")}),
		NewMapValue([]ValuePair{{Key: "k", Value: NewUInt64Value(7)}}),
	}
	for _, v := range valid {
		if err := v.Validate(); err != nil {
			t.Errorf("Validate(%s) failed: %v", v.Kind(), err)
		}
	}

	bogus := Value{kind: ValueType(42)}
	if err := bogus.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown kind, got %v", err)
	}

	// A bad element deep inside a sequence must surface.
	nested := Value{kind: ValueSequence, seq: []Value{
		NewStringValue("fine"),
		{kind: ValueType(42)},
	}}
	if err := nested.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for nested bad element, got %v", err)
	}
}

// TestValue_JSONRoundTrip pushes one deliberately nested value through
// the JSON codec used by the sql and object-store backends.
func TestValue_JSONRoundTrip(t *testing.T) {
	original := NewMapValue([]ValuePair{
		{Key: "raw", Value: NewBinaryValue([]byte{0, 255, 1})},
		{Key: "seq", Value: NewSequenceValue([]Value{
			NewInt32Value(-5),
			NewRegexValue("\\.c$", RegexCaseInsensitive),
		})},
	})

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Value
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	cmp, err := compareValues(original, decoded)
	if err != nil || cmp != 0 {
		t.Errorf("Round trip changed the value: cmp=%d err=%v", cmp, err)
	}
}
