package core

import (
	"strconv"

	"github.com/google/uuid"
)

// ParseKeyText parses the textual form of a primary key into the declared
// type. Audit tables store keys as text regardless of their column type.
func ParseKeyText(t Type, s string) (Value, error) {
	switch t.Kind {
	case KindInt32:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, &TypeConversionError{Declared: t, Got: s, Err: err}
		}
		return Int32(int32(i)), nil
	case KindInt64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &TypeConversionError{Declared: t, Got: s, Err: err}
		}
		return Int64(i), nil
	case KindUuid:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, &TypeConversionError{Declared: t, Got: s, Err: err}
		}
		return Uuid(u), nil
	case KindText:
		return Text(s), nil
	case KindDecimal:
		if !isDecimalText(s) {
			return nil, &TypeConversionError{Declared: t, Got: s}
		}
		return Decimal{Text: s, Precision: t.Precision, Scale: t.Scale}, nil
	}
	return nil, &UnsupportedError{What: t.String() + " as primary key"}
}
