package core

import "fmt"

// Kind enumerates the logical types every source maps into. Each source's
// physical type maps to exactly one Kind; unknown physical types must fail
// with UnsupportedError rather than fall back.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal
	KindText
	KindBytes
	KindUuid
	KindDate
	KindTime
	KindDateTime
	KindTimestamp
	KindInterval
	KindJson
	KindJsonb
	KindArray
	KindMap
	KindSet
	KindRecordRef
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindDecimal:   "decimal",
	KindText:      "text",
	KindBytes:     "bytes",
	KindUuid:      "uuid",
	KindDate:      "date",
	KindTime:      "time",
	KindDateTime:  "datetime",
	KindTimestamp: "timestamp",
	KindInterval:  "interval",
	KindJson:      "json",
	KindJsonb:     "jsonb",
	KindArray:     "array",
	KindMap:       "map",
	KindSet:       "set",
	KindRecordRef: "record",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is a universal logical type: a Kind plus the parametric payload some
// kinds carry. The zero Type is invalid.
type Type struct {
	Kind Kind

	// Decimal parameters. Zero means unconstrained.
	Precision int
	Scale     int

	// Element type of Array and Set.
	Elem *Type

	// Key and value types of Map.
	Key   *Type
	Value *Type

	// Referenced table of RecordRef.
	Table string
}

func (t Type) String() string {
	switch t.Kind {
	case KindDecimal:
		if t.Precision != 0 {
			return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
		}
		return "decimal"
	case KindArray:
		return fmt.Sprintf("array<%s>", t.Elem)
	case KindSet:
		return fmt.Sprintf("set<%s>", t.Elem)
	case KindMap:
		return fmt.Sprintf("map<%s,%s>", t.Key, t.Value)
	case KindRecordRef:
		return fmt.Sprintf("record<%s>", t.Table)
	default:
		return t.Kind.String()
	}
}

// Equal reports structural equality of two types. Decimal precision and scale
// participate so that declared schemas pin the exact numeric shape.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindDecimal:
		return t.Precision == o.Precision && t.Scale == o.Scale
	case KindArray, KindSet:
		return ptrTypeEqual(t.Elem, o.Elem)
	case KindMap:
		return ptrTypeEqual(t.Key, o.Key) && ptrTypeEqual(t.Value, o.Value)
	case KindRecordRef:
		return t.Table == o.Table
	default:
		return true
	}
}

func ptrTypeEqual(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Simple constructs a Type with no parametric payload.
func Simple(k Kind) Type { return Type{Kind: k} }

// DecimalType constructs a decimal type with the given precision and scale.
func DecimalType(precision, scale int) Type {
	return Type{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// ArrayOf constructs an array type over elem.
func ArrayOf(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }

// SetOf constructs a set type over elem.
func SetOf(elem Type) Type { return Type{Kind: KindSet, Elem: &elem} }

// MapOf constructs a map type from key to value.
func MapOf(key, value Type) Type { return Type{Kind: KindMap, Key: &key, Value: &value} }

// RecordRefType constructs a record reference type into table.
func RecordRefType(table string) Type { return Type{Kind: KindRecordRef, Table: table} }

// ParseType parses the textual type notation used by schema files, such as
// "int64", "decimal(20,5)", "array<text>" or "record<users>".
func ParseType(s string) (Type, error) {
	for k, name := range kindNames {
		if s == name {
			switch k {
			case KindArray, KindSet, KindMap, KindRecordRef:
				// These require a parameter.
			default:
				return Type{Kind: k}, nil
			}
		}
	}
	var p, sc int
	if n, _ := fmt.Sscanf(s, "decimal(%d,%d)", &p, &sc); n == 2 {
		return DecimalType(p, sc), nil
	}
	var inner string
	if n, _ := fmt.Sscanf(s, "array<%s", &inner); n == 1 && len(inner) > 0 && inner[len(inner)-1] == '>' {
		elem, err := ParseType(inner[:len(inner)-1])
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	}
	if n, _ := fmt.Sscanf(s, "set<%s", &inner); n == 1 && len(inner) > 0 && inner[len(inner)-1] == '>' {
		elem, err := ParseType(inner[:len(inner)-1])
		if err != nil {
			return Type{}, err
		}
		return SetOf(elem), nil
	}
	if n, _ := fmt.Sscanf(s, "record<%s", &inner); n == 1 && len(inner) > 0 && inner[len(inner)-1] == '>' {
		return RecordRefType(inner[:len(inner)-1]), nil
	}
	return Type{}, &UnsupportedError{What: fmt.Sprintf("type notation %q", s)}
}
