package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Value is a universal value: a tagged union with one concrete type per Kind.
// The discriminant of a Value always matches the Type it reports; adapters
// producing values against a declared schema coerce or fail, never emit a
// mismatched pair.
type Value interface {
	Type() Type
	isValue()
}

// Null is the absence of a value for a nullable field. Of records the
// declared type when known.
type Null struct{ Of Type }

func (n Null) Type() Type { return n.Of }
func (Null) isValue()     {}

type Bool bool

func (Bool) Type() Type { return Simple(KindBool) }
func (Bool) isValue()   {}

type Int32 int32

func (Int32) Type() Type { return Simple(KindInt32) }
func (Int32) isValue()   {}

type Int64 int64

func (Int64) Type() Type { return Simple(KindInt64) }
func (Int64) isValue()   {}

type Float32 float32

func (Float32) Type() Type { return Simple(KindFloat32) }
func (Float32) isValue()   {}

type Float64 float64

func (Float64) Type() Type { return Simple(KindFloat64) }
func (Float64) isValue()   {}

// Decimal preserves the exact textual representation of an arbitrary
// precision number. It is never routed through binary floats.
type Decimal struct {
	Text      string
	Precision int
	Scale     int
}

func (d Decimal) Type() Type { return DecimalType(d.Precision, d.Scale) }
func (Decimal) isValue()     {}

type Text string

func (Text) Type() Type { return Simple(KindText) }
func (Text) isValue()   {}

// Bytes is raw binary, never base64-encoded in memory.
type Bytes []byte

func (Bytes) Type() Type { return Simple(KindBytes) }
func (Bytes) isValue()   {}

type Uuid uuid.UUID

func (Uuid) Type() Type { return Simple(KindUuid) }
func (Uuid) isValue()   {}

func (u Uuid) String() string { return uuid.UUID(u).String() }

// Date is a calendar date at UTC midnight.
type Date struct{ T time.Time }

func (Date) Type() Type { return Simple(KindDate) }
func (Date) isValue()   {}

// Time is a time of day anchored to 1970-01-01 UTC.
type Time struct{ T time.Time }

func (Time) Type() Type { return Simple(KindTime) }
func (Time) isValue()   {}

// DateTime is an instant normalised to UTC. SourceZone records the source
// timezone when the source carried one.
type DateTime struct {
	T          time.Time
	SourceZone string
}

func (DateTime) Type() Type { return Simple(KindDateTime) }
func (DateTime) isValue()   {}

// Timestamp is an instant normalised to UTC, distinguished from DateTime so
// sources with both physical types round-trip.
type Timestamp struct {
	T          time.Time
	SourceZone string
}

func (Timestamp) Type() Type { return Simple(KindTimestamp) }
func (Timestamp) isValue()   {}

type Interval time.Duration

func (Interval) Type() Type { return Simple(KindInterval) }
func (Interval) isValue()   {}

type Json struct{ Raw json.RawMessage }

func (Json) Type() Type { return Simple(KindJson) }
func (Json) isValue()   {}

type Jsonb struct{ Raw json.RawMessage }

func (Jsonb) Type() Type { return Simple(KindJsonb) }
func (Jsonb) isValue()   {}

type Array struct {
	Elem  Type
	Items []Value
}

func (a Array) Type() Type { return ArrayOf(a.Elem) }
func (Array) isValue()     {}

type Set struct {
	Elem  Type
	Items []Value
}

func (s Set) Type() Type { return SetOf(s.Elem) }
func (Set) isValue()     {}

type MapEntry struct {
	K Value
	V Value
}

type Map struct {
	Key     Type
	Value   Type
	Entries []MapEntry
}

func (m Map) Type() Type { return MapOf(m.Key, m.Value) }
func (Map) isValue()     {}

// RecordRef is a value reference to a row of another table. Relations hold
// RecordRefs, not owning pointers, so graph edges never form cyclic
// ownership.
type RecordRef struct {
	Table string
	ID    Value
}

func (r RecordRef) Type() Type { return RecordRefType(r.Table) }
func (RecordRef) isValue()     {}

// IsNull reports whether v is the Null variant.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}
