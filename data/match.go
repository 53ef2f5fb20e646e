package data

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Reference filter evaluation. Every in-tree backend decodes stored
// rows into records and evaluates filters here, so the semantics of
// the filter language live in exactly one place. Backends that compile
// filters to a native query language are expected to match these
// results.

// Matches evaluates f against r. A nil filter matches every record.
func (f *Filter) Matches(r *Record) (bool, error) {
	if f == nil {
		return true, nil
	}

	switch f.Op {
	case OpAnd:
		// The identity element of conjunction: And() matches everything.
		for _, child := range f.Filters {
			ok, err := child.Matches(r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		// The identity element of disjunction: Or() matches nothing.
		for _, child := range f.Filters {
			ok, err := child.Matches(r)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case OpNot:
		if len(f.Filters) != 1 {
			return false, fmt.Errorf("%w: not takes exactly one filter, got %d",
				ErrInvalid, len(f.Filters))
		}
		ok, err := f.Filters[0].Matches(r)
		return !ok, err
	}

	return f.matchComparison(r)
}

func (f *Filter) matchComparison(r *Record) (bool, error) {
	subject, ok := fieldValue(r, f.Field, f.Xattr)
	if !ok {
		// The record does not carry the field: no match.
		return false, nil
	}

	switch f.Op {
	case OpEqual:
		return valuesEqual(subject, f.Value), nil
	case OpStrictlyLower, OpLowerOrEqual, OpStrictlyGreater, OpGreaterOrEqual:
		cmp, err := compareValues(subject, f.Value)
		if err != nil {
			return false, nil
		}
		switch f.Op {
		case OpStrictlyLower:
			return cmp < 0, nil
		case OpLowerOrEqual:
			return cmp <= 0, nil
		case OpStrictlyGreater:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpRegex:
		return matchRegex(subject, f.Value)
	case OpIn:
		return matchIn(subject, f.Value), nil
	case OpBitsAnySet, OpBitsAllSet, OpBitsAnyClear, OpBitsAllClear:
		return matchBits(f.Op, subject, f.Value)
	}

	return false, fmt.Errorf("%w: unknown filter operator %d", ErrInvalid, int(f.Op))
}

// fieldValue extracts the record property a comparison applies to.
// The second return is false when the record does not carry the field.
func fieldValue(r *Record, field FilterField, xattr string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}

	switch field {
	case FieldID:
		if r.Mask&FieldMaskID == 0 {
			return Value{}, false
		}
		return NewBinaryValue([]byte(r.ID)), true
	case FieldParentID:
		if r.Mask&FieldMaskParentID == 0 {
			return Value{}, false
		}
		return NewBinaryValue([]byte(r.ParentID)), true
	case FieldName:
		if r.Mask&FieldMaskName == 0 {
			return Value{}, false
		}
		return NewStringValue(r.Name), true
	case FieldType:
		if r.Mask&FieldMaskType == 0 {
			return Value{}, false
		}
		return NewInt32Value(int32(r.Type)), true
	case FieldSymlink:
		if r.Mask&FieldMaskSymlink == 0 {
			return Value{}, false
		}
		return NewStringValue(r.Symlink), true
	case FieldSize:
		if r.Mask&FieldMaskStat == 0 || r.Stat == nil || r.StatMask&StatMaskSize == 0 {
			return Value{}, false
		}
		return NewUInt64Value(r.Stat.Size), true
	case FieldAtime:
		if r.Mask&FieldMaskStat == 0 || r.Stat == nil || r.StatMask&StatMaskAtime == 0 {
			return Value{}, false
		}
		return NewInt64Value(r.Stat.Atime), true
	case FieldMtime:
		if r.Mask&FieldMaskStat == 0 || r.Stat == nil || r.StatMask&StatMaskMtime == 0 {
			return Value{}, false
		}
		return NewInt64Value(r.Stat.Mtime), true
	case FieldCtime:
		if r.Mask&FieldMaskStat == 0 || r.Stat == nil || r.StatMask&StatMaskCtime == 0 {
			return Value{}, false
		}
		return NewInt64Value(r.Stat.Ctime), true
	case FieldInodeXattrs:
		if r.Mask&FieldMaskInodeXattrs == 0 {
			return Value{}, false
		}
		v, ok := r.Xattrs[xattr]
		return v, ok
	case FieldNamespaceXattrs:
		if r.Mask&FieldMaskNamespaceXattrs == 0 {
			return Value{}, false
		}
		v, ok := r.NamespaceXattrs[xattr]
		return v, ok
	}
	return Value{}, false
}

// integerParts extracts the magnitude and sign of an integer value.
func integerParts(v Value) (mag uint64, negative bool, ok bool) {
	switch v.Kind() {
	case ValueUInt32, ValueUInt64:
		return v.UInt64(), false, true
	case ValueInt32, ValueInt64:
		i := v.Int64()
		if i < 0 {
			return uint64(-i), true, true
		}
		return uint64(i), false, true
	}
	return 0, false, false
}

func textParts(v Value) (string, bool) {
	switch v.Kind() {
	case ValueString:
		return v.String(), true
	case ValueBinary:
		return string(v.Binary()), true
	case ValueRegex:
		pattern, _ := v.Regex()
		return pattern, true
	}
	return "", false
}

func valuesEqual(a, b Value) bool {
	cmp, err := compareValues(a, b)
	return err == nil && cmp == 0
}

// compareValues orders a against b. Integers compare numerically with
// sign awareness across signed/unsigned kinds; strings, binaries and
// regex patterns compare bytewise; sequences compare elementwise;
// maps compare pairwise in order. Anything else is incomparable.
func compareValues(a, b Value) (int, error) {
	if am, aneg, ok := integerParts(a); ok {
		bm, bneg, ok := integerParts(b)
		if !ok {
			return 0, fmt.Errorf("%w: cannot compare %s with %s",
				ErrInvalid, a.Kind(), b.Kind())
		}
		switch {
		case aneg && !bneg:
			return -1, nil
		case !aneg && bneg:
			return 1, nil
		case am == bm:
			return 0, nil
		case am < bm:
			if aneg {
				return 1, nil
			}
			return -1, nil
		default:
			if aneg {
				return -1, nil
			}
			return 1, nil
		}
	}

	if as, ok := textParts(a); ok {
		bs, ok := textParts(b)
		if !ok {
			return 0, fmt.Errorf("%w: cannot compare %s with %s",
				ErrInvalid, a.Kind(), b.Kind())
		}
		return strings.Compare(as, bs), nil
	}

	if a.Kind() == ValueSequence && b.Kind() == ValueSequence {
		as, bs := a.Sequence(), b.Sequence()
		for i := 0; i < len(as) && i < len(bs); i++ {
			cmp, err := compareValues(as[i], bs[i])
			if err != nil || cmp != 0 {
				return cmp, err
			}
		}
		return len(as) - len(bs), nil
	}

	if a.Kind() == ValueMap && b.Kind() == ValueMap {
		ap, bp := a.Map(), b.Map()
		for i := 0; i < len(ap) && i < len(bp); i++ {
			if cmp := strings.Compare(ap[i].Key, bp[i].Key); cmp != 0 {
				return cmp, nil
			}
			cmp, err := compareValues(ap[i].Value, bp[i].Value)
			if err != nil || cmp != 0 {
				return cmp, err
			}
		}
		return len(ap) - len(bp), nil
	}

	return 0, fmt.Errorf("%w: cannot compare %s with %s",
		ErrInvalid, a.Kind(), b.Kind())
}

func matchRegex(subject, pattern Value) (bool, error) {
	text, ok := subjectText(subject)
	if !ok {
		return false, nil
	}

	expr, opts := pattern.Regex()
	if opts&RegexCaseInsensitive != 0 {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("%w: bad regex %q: %v", ErrInvalid, expr, err)
	}
	return re.MatchString(text), nil
}

func subjectText(v Value) (string, bool) {
	switch v.Kind() {
	case ValueString:
		return v.String(), true
	case ValueBinary:
		b := v.Binary()
		if bytes.IndexByte(b, 0) >= 0 {
			return "", false
		}
		return string(b), true
	}
	return "", false
}

// matchIn tests membership. A sequence filter value matches when any
// of its elements equals the subject; an integer filter value (the
// degenerate single-element case) matches on plain equality.
func matchIn(subject, set Value) bool {
	if set.Kind() != ValueSequence {
		return valuesEqual(subject, set)
	}
	for _, candidate := range set.Sequence() {
		if valuesEqual(subject, candidate) {
			return true
		}
	}
	return false
}

func matchBits(op FilterOperator, subject, mask Value) (bool, error) {
	v, vneg, ok := integerParts(subject)
	if !ok || vneg {
		return false, nil
	}
	m, mneg, ok := integerParts(mask)
	if !ok || mneg {
		return false, fmt.Errorf("%w: bit tests need a non-negative integer mask",
			ErrInvalid)
	}

	switch op {
	case OpBitsAnySet:
		return v&m != 0, nil
	case OpBitsAllSet:
		return v&m == m, nil
	case OpBitsAnyClear:
		return v&m != m, nil
	case OpBitsAllClear:
		return v&m == 0, nil
	}
	return false, fmt.Errorf("%w: %s is not a bit test", ErrInvalid, op)
}
