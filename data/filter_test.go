package data

import (
	"errors"
	"strings"
	"testing"
)

// TestCompare_OperatorValueMatrix exercises every comparison operator
// against every value kind and checks the accepted pairings.
func TestCompare_OperatorValueMatrix(t *testing.T) {
	values := map[ValueType]Value{
		ValueBinary:   NewBinaryValue([]byte{1}),
		ValueUInt32:   NewUInt32Value(1),
		ValueUInt64:   NewUInt64Value(1),
		ValueInt32:    NewInt32Value(1),
		ValueInt64:    NewInt64Value(1),
		ValueString:   NewStringValue("a"),
		ValueRegex:    NewRegexValue(".*", 0),
		ValueSequence: NewSequenceValue([]Value{NewUInt32Value(1)}),
		ValueMap:      NewMapValue([]ValuePair{{Key: "k", Value: NewUInt32Value(1)}}),
	}

	integers := func(t ValueType) bool { return t.IsInteger() }
	everything := func(ValueType) bool { return true }

	cases := []struct {
		ops     []FilterOperator
		accepts func(ValueType) bool
	}{
		{[]FilterOperator{OpEqual, OpStrictlyLower, OpLowerOrEqual,
			OpStrictlyGreater, OpGreaterOrEqual}, everything},
		{[]FilterOperator{OpRegex}, func(t ValueType) bool { return t == ValueRegex }},
		{[]FilterOperator{OpIn}, func(t ValueType) bool {
			return t == ValueSequence || t.IsInteger()
		}},
		{[]FilterOperator{OpBitsAnySet, OpBitsAllSet, OpBitsAnyClear,
			OpBitsAllClear}, integers},
	}

	for _, tc := range cases {
		for _, op := range tc.ops {
			for kind, value := range values {
				f, err := Compare(op, FieldName, value)
				if tc.accepts(kind) {
					if err != nil {
						t.Errorf("Compare(%s, %s) rejected: %v", op, kind, err)
					} else if err := f.Validate(); err != nil {
						t.Errorf("Validate(%s, %s) failed: %v", op, kind, err)
					}
					continue
				}
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Compare(%s, %s) expected ErrInvalid, got %v", op, kind, err)
				}
			}
		}
	}
}

// TestFilter_EmptyLogical checks the identity elements: an empty AND
// matches everything, an empty OR matches nothing.
func TestFilter_EmptyLogical(t *testing.T) {
	record := &Record{Mask: FieldMaskName, Name: "file.c"}

	and := And()
	if err := and.Validate(); err != nil {
		t.Fatalf("And() should be valid: %v", err)
	}
	if ok, err := and.Matches(record); err != nil || !ok {
		t.Errorf("And() should match everything, got (%v, %v)", ok, err)
	}

	or := Or()
	if err := or.Validate(); err != nil {
		t.Fatalf("Or() should be valid: %v", err)
	}
	if ok, err := or.Matches(record); err != nil || ok {
		t.Errorf("Or() should match nothing, got (%v, %v)", ok, err)
	}
}

func TestFilter_NotArity(t *testing.T) {
	none := &Filter{Op: OpNot}
	if err := none.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("NOT with no child: expected ErrInvalid, got %v", err)
	}

	child, err := CompareString(OpEqual, FieldName, "a")
	if err != nil {
		t.Fatalf("CompareString failed: %v", err)
	}
	two := &Filter{Op: OpNot, Filters: []*Filter{child, child}}
	if err := two.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("NOT with two children: expected ErrInvalid, got %v", err)
	}

	if err := Not(child).Validate(); err != nil {
		t.Errorf("NOT with one child should be valid: %v", err)
	}
	if err := Not(nil).Validate(); err != nil {
		t.Errorf("Not(nil) should be valid: %v", err)
	}
}

// TestFilter_LogicalConstructorsDeepCopy verifies that mutating a child
// after building a combination does not reach into the combination.
func TestFilter_LogicalConstructorsDeepCopy(t *testing.T) {
	child, err := CompareString(OpEqual, FieldName, "file.c")
	if err != nil {
		t.Fatalf("CompareString failed: %v", err)
	}

	combined := And(child, nil)
	child.Field = FieldSymlink
	child.Xattr = "mutated"

	if got := combined.Filters[0].Field; got != FieldName {
		t.Errorf("Child mutation leaked into combination: field %s", got)
	}
	if combined.Filters[1] != nil {
		t.Errorf("Clone of nil child should stay nil")
	}
}

// TestFilter_ValidateFirstViolation checks depth-first, in-order
// validation: the reported violation is the first one in tree order.
func TestFilter_ValidateFirstViolation(t *testing.T) {
	first := &Filter{Op: OpRegex, Field: FieldName, Value: NewStringValue("not-a-regex")}
	second := &Filter{Op: OpEqual, Field: FilterField(99), Value: NewStringValue("x")}

	err := And(first, second).Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not accept") {
		t.Errorf("Expected the first (operator) violation, got %q", err)
	}
}

func TestFilter_CloneNil(t *testing.T) {
	var f *Filter
	if f.Clone() != nil {
		t.Errorf("Clone of nil filter should be nil")
	}
	if err := f.Validate(); err != nil {
		t.Errorf("nil filter should be valid: %v", err)
	}
}
