package data

import "fmt"

// Filters abstract predicates over the properties of a record.
//
// There are two types of filters: comparison filters, and logical
// filters. A comparison filter represents a single predicate ("name
// matches `.*\.c`") and is made of a field, an operator, and a value.
// A logical filter combines other filters with AND, OR, or NOT.
//
// A nil *Filter is valid and matches every record. The negation of a
// nil filter, Not(nil), is the distinguished filter that matches
// nothing.

// FilterOperator tags a filter node.
type FilterOperator int

const (
	// Comparison
	OpEqual FilterOperator = iota
	OpStrictlyLower
	OpLowerOrEqual
	OpStrictlyGreater
	OpGreaterOrEqual
	OpRegex
	OpIn
	OpBitsAnySet
	OpBitsAllSet
	OpBitsAnyClear
	OpBitsAllClear

	// Logical
	OpAnd
	OpOr
	OpNot
)

func (op FilterOperator) String() string {
	switch op {
	case OpEqual:
		return "equal"
	case OpStrictlyLower:
		return "strictly-lower"
	case OpLowerOrEqual:
		return "lower-or-equal"
	case OpStrictlyGreater:
		return "strictly-greater"
	case OpGreaterOrEqual:
		return "greater-or-equal"
	case OpRegex:
		return "regex"
	case OpIn:
		return "in"
	case OpBitsAnySet:
		return "bits-any-set"
	case OpBitsAllSet:
		return "bits-all-set"
	case OpBitsAnyClear:
		return "bits-any-clear"
	case OpBitsAllClear:
		return "bits-all-clear"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	}
	return fmt.Sprintf("operator(%d)", int(op))
}

// IsComparison reports whether op compares a field to a value.
func (op FilterOperator) IsComparison() bool {
	return op >= OpEqual && op <= OpBitsAllClear
}

// IsLogical reports whether op combines other filters.
func (op FilterOperator) IsLogical() bool {
	return op >= OpAnd && op <= OpNot
}

// FilterField names the record property a comparison applies to.
type FilterField int

const (
	FieldID FilterField = iota
	FieldParentID
	FieldName
	FieldType
	FieldSize
	FieldAtime
	FieldMtime
	FieldCtime
	FieldSymlink
	FieldInodeXattrs
	FieldNamespaceXattrs
)

func (f FilterField) String() string {
	switch f {
	case FieldID:
		return "id"
	case FieldParentID:
		return "parent-id"
	case FieldName:
		return "name"
	case FieldType:
		return "type"
	case FieldSize:
		return "size"
	case FieldAtime:
		return "atime"
	case FieldMtime:
		return "mtime"
	case FieldCtime:
		return "ctime"
	case FieldSymlink:
		return "symlink"
	case FieldInodeXattrs:
		return "xattrs"
	case FieldNamespaceXattrs:
		return "ns-xattrs"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

func validField(f FilterField) bool {
	return f >= FieldID && f <= FieldNamespaceXattrs
}

// Filter is one node of a filter tree. Comparison nodes use Field,
// Xattr and Value; logical nodes use Filters. Op tells them apart.
// Filters are immutable after construction; constructors deep-copy
// the children and values they are given.
type Filter struct {
	Op FilterOperator

	// Comparison
	Field FilterField
	Xattr string // set when Field is FieldInodeXattrs or FieldNamespaceXattrs
	Value Value

	// Logical
	Filters []*Filter
}

/* Valid combinations of comparison operator / value type:
 *
 * ----------------------------------------------------
 * |##########| EQUAL | LOWER/GREATER | REGEX | IN | BITS |
 * |----------|-------|---------------|-------|----|------|
 * | BINARY   |   X   |       X       |       |    |      |
 * | INTEGERS |   X   |       X       |       |  X |   X  |
 * | STRING   |   X   |       X       |       |    |      |
 * | REGEX    |   X   |       X       |   X   |    |      |
 * | SEQUENCE |   X   |       X       |       |  X |      |
 * | MAP      |   X   |       X       |       |    |      |
 * ----------------------------------------------------
 *
 * Ordering operators on non-integer value types are valid filters but
 * may yield different results depending on the backend interpreting
 * them.
 */
func operatorAcceptsValue(op FilterOperator, t ValueType) bool {
	switch op {
	case OpEqual, OpStrictlyLower, OpLowerOrEqual, OpStrictlyGreater,
		OpGreaterOrEqual:
		return true
	case OpRegex:
		return t == ValueRegex
	case OpIn:
		return t == ValueSequence || t.IsInteger()
	case OpBitsAnySet, OpBitsAllSet, OpBitsAnyClear, OpBitsAllClear:
		return t.IsInteger()
	}
	return false
}

// Compare builds a comparison filter, dispatching on the value's kind
// to check operator compatibility.
func Compare(op FilterOperator, field FilterField, value Value) (*Filter, error) {
	if !operatorAcceptsValue(op, value.Kind()) {
		return nil, fmt.Errorf("%w: operator %s does not accept %s values",
			ErrInvalid, op, value.Kind())
	}

	return &Filter{
		Op:    op,
		Field: field,
		Value: value.Clone(),
	}, nil
}

// CompareXattr builds a comparison filter against one inode xattr.
func CompareXattr(op FilterOperator, xattr string, value Value) (*Filter, error) {
	f, err := Compare(op, FieldInodeXattrs, value)
	if err != nil {
		return nil, err
	}
	f.Xattr = xattr
	return f, nil
}

// CompareNamespaceXattr builds a comparison filter against one
// namespace xattr.
func CompareNamespaceXattr(op FilterOperator, xattr string, value Value) (*Filter, error) {
	f, err := Compare(op, FieldNamespaceXattrs, value)
	if err != nil {
		return nil, err
	}
	f.Xattr = xattr
	return f, nil
}

func CompareBinary(op FilterOperator, field FilterField, b []byte) (*Filter, error) {
	return Compare(op, field, NewBinaryValue(b))
}

func CompareUInt32(op FilterOperator, field FilterField, u uint32) (*Filter, error) {
	return Compare(op, field, NewUInt32Value(u))
}

func CompareUInt64(op FilterOperator, field FilterField, u uint64) (*Filter, error) {
	return Compare(op, field, NewUInt64Value(u))
}

func CompareInt32(op FilterOperator, field FilterField, i int32) (*Filter, error) {
	return Compare(op, field, NewInt32Value(i))
}

func CompareInt64(op FilterOperator, field FilterField, i int64) (*Filter, error) {
	return Compare(op, field, NewInt64Value(i))
}

func CompareString(op FilterOperator, field FilterField, s string) (*Filter, error) {
	return Compare(op, field, NewStringValue(s))
}

func CompareRegex(field FilterField, pattern string, opts RegexOption) (*Filter, error) {
	return Compare(OpRegex, field, NewRegexValue(pattern, opts))
}

func CompareSequence(op FilterOperator, field FilterField, values []Value) (*Filter, error) {
	return Compare(op, field, NewSequenceValue(values))
}

func CompareMap(op FilterOperator, field FilterField, pairs []ValuePair) (*Filter, error) {
	return Compare(op, field, NewMapValue(pairs))
}

func logical(op FilterOperator, filters []*Filter) *Filter {
	children := make([]*Filter, len(filters))
	for i, f := range filters {
		children[i] = f.Clone()
	}
	return &Filter{Op: op, Filters: children}
}

// And builds the conjunction of filters. And() with no argument is the
// identity element of conjunction: it matches everything.
func And(filters ...*Filter) *Filter {
	return logical(OpAnd, filters)
}

// Or builds the disjunction of filters. Or() with no argument is the
// identity element of disjunction: it matches nothing.
func Or(filters ...*Filter) *Filter {
	return logical(OpOr, filters)
}

// Not negates a filter. Not(nil) matches nothing.
func Not(filter *Filter) *Filter {
	return logical(OpNot, []*Filter{filter})
}

// Clone deep-copies a filter tree. Clone of a nil filter is nil.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}

	clone := &Filter{
		Op:    f.Op,
		Field: f.Field,
		Xattr: f.Xattr,
		Value: f.Value.Clone(),
	}
	if f.Filters != nil {
		clone.Filters = make([]*Filter, len(f.Filters))
		for i, child := range f.Filters {
			clone.Filters[i] = child.Clone()
		}
	}
	return clone
}

// Validate checks a filter tree depth-first, children in list order,
// and stops at the first violation found. A nil filter is valid.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}

	switch {
	case f.Op.IsComparison():
		return f.validateComparison()
	case f.Op.IsLogical():
		return f.validateLogical()
	}
	return fmt.Errorf("%w: unknown filter operator %d", ErrInvalid, int(f.Op))
}

func (f *Filter) validateComparison() error {
	if !validField(f.Field) {
		return fmt.Errorf("%w: unknown filter field %d", ErrInvalid, int(f.Field))
	}
	if !operatorAcceptsValue(f.Op, f.Value.Kind()) {
		return fmt.Errorf("%w: operator %s does not accept %s values",
			ErrInvalid, f.Op, f.Value.Kind())
	}
	return f.Value.Validate()
}

func (f *Filter) validateLogical() error {
	if f.Op == OpNot && len(f.Filters) != 1 {
		return fmt.Errorf("%w: not takes exactly one filter, got %d",
			ErrInvalid, len(f.Filters))
	}

	for _, child := range f.Filters {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}
