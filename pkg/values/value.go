// Package values implements the channel value model: a closed sum type
// (Value), the Format contract channels use to parse/serialize it, and
// the Predicate/Exactly machinery the watch subsystem uses for range
// filtering and tri-state matching.
//
// The kind list below is taken from the original taxonomy's Value enum
// (OnOff, OpenClosed, Duration, TimeStamp, Temperature, Color, String,
// ExtBool, ExtNumeric, Json, Binary); the router and watch subsystem never
// switch on it themselves, they only carry it through a channel's chosen
// Format.
package values

import (
	"fmt"
	"time"
)

// Type identifies which kind of data a Value holds.
type Type int

const (
	TypeUnit Type = iota
	TypeOnOff
	TypeOpenClosed
	TypeDuration
	TypeTimeStamp
	TypeTemperature
	TypeColor
	TypeString
	TypeExtBool
	TypeExtNumeric
	TypeJSON
	TypeBinary
)

func (t Type) String() string {
	switch t {
	case TypeUnit:
		return "Unit"
	case TypeOnOff:
		return "OnOff"
	case TypeOpenClosed:
		return "OpenClosed"
	case TypeDuration:
		return "Duration"
	case TypeTimeStamp:
		return "TimeStamp"
	case TypeTemperature:
		return "Temperature"
	case TypeColor:
		return "Color"
	case TypeString:
		return "String"
	case TypeExtBool:
		return "ExtBool"
	case TypeExtNumeric:
		return "ExtNumeric"
	case TypeJSON:
		return "Json"
	case TypeBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// OnOff is a binary device state.
type OnOff bool

const (
	On  OnOff = true
	Off OnOff = false
)

// OpenClosed is a binary position state, distinct from OnOff so the two
// are never accidentally compared against one another.
type OpenClosed bool

const (
	Open   OpenClosed = true
	Closed OpenClosed = false
)

// Color is a simple RGB triple in [0, 1].
type Color struct{ R, G, B float64 }

// Value is a closed sum type. Exactly one of the typed fields is
// meaningful, selected by Type. Values are immutable and safe to share
// across goroutines.
type Value struct {
	typ         Type
	onOff       OnOff
	openClosed  OpenClosed
	duration    time.Duration
	timestamp   time.Time
	temperature float64 // degrees Celsius
	color       Color
	str         string
	extBool     bool
	extNumeric  float64
	binary      []byte
	mimeType    string
}

func Unit() Value                           { return Value{typ: TypeUnit} }
func NewOnOff(v OnOff) Value                { return Value{typ: TypeOnOff, onOff: v} }
func NewOpenClosed(v OpenClosed) Value       { return Value{typ: TypeOpenClosed, openClosed: v} }
func NewDuration(v time.Duration) Value     { return Value{typ: TypeDuration, duration: v} }
func NewTimeStamp(v time.Time) Value        { return Value{typ: TypeTimeStamp, timestamp: v} }
func NewTemperature(celsius float64) Value  { return Value{typ: TypeTemperature, temperature: celsius} }
func NewColor(c Color) Value                { return Value{typ: TypeColor, color: c} }
func NewString(s string) Value              { return Value{typ: TypeString, str: s} }
func NewExtBool(b bool) Value               { return Value{typ: TypeExtBool, extBool: b} }
func NewExtNumeric(f float64) Value         { return Value{typ: TypeExtNumeric, extNumeric: f} }
func NewJSON(raw []byte) Value              { return Value{typ: TypeJSON, binary: raw} }
func NewBinary(data []byte, mime string) Value {
	return Value{typ: TypeBinary, binary: data, mimeType: mime}
}

func (v Value) Type() Type { return v.typ }

func (v Value) OnOff() (OnOff, bool)             { return v.onOff, v.typ == TypeOnOff }
func (v Value) OpenClosed() (OpenClosed, bool)   { return v.openClosed, v.typ == TypeOpenClosed }
func (v Value) Duration() (time.Duration, bool)  { return v.duration, v.typ == TypeDuration }
func (v Value) TimeStamp() (time.Time, bool)     { return v.timestamp, v.typ == TypeTimeStamp }
func (v Value) Temperature() (float64, bool)     { return v.temperature, v.typ == TypeTemperature }
func (v Value) Color() (Color, bool)             { return v.color, v.typ == TypeColor }
func (v Value) String() (string, bool)           { return v.str, v.typ == TypeString }
func (v Value) ExtBool() (bool, bool)            { return v.extBool, v.typ == TypeExtBool }
func (v Value) ExtNumeric() (float64, bool)      { return v.extNumeric, v.typ == TypeExtNumeric }
func (v Value) JSON() ([]byte, bool)             { return v.binary, v.typ == TypeJSON }
func (v Value) Binary() ([]byte, string, bool)   { return v.binary, v.mimeType, v.typ == TypeBinary }

// Equal reports whether two values of the same type hold the same data.
// Values of different types are never equal.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUnit:
		return true
	case TypeOnOff:
		return v.onOff == other.onOff
	case TypeOpenClosed:
		return v.openClosed == other.openClosed
	case TypeDuration:
		return v.duration == other.duration
	case TypeTimeStamp:
		return v.timestamp.Equal(other.timestamp)
	case TypeTemperature:
		return v.temperature == other.temperature
	case TypeColor:
		return v.color == other.color
	case TypeString:
		return v.str == other.str
	case TypeExtBool:
		return v.extBool == other.extBool
	case TypeExtNumeric:
		return v.extNumeric == other.extNumeric
	case TypeJSON:
		return string(v.binary) == string(other.binary)
	case TypeBinary:
		return string(v.binary) == string(other.binary) && v.mimeType == other.mimeType
	default:
		return false
	}
}

// Less orders two values of the same type, used by range Predicates. It
// panics if the types differ or the type has no natural order - callers
// must check Type() first (Predicate does).
func (v Value) Less(other Value) bool {
	if v.typ != other.typ {
		panic(fmt.Sprintf("values: cannot compare %s to %s", v.typ, other.typ))
	}
	switch v.typ {
	case TypeDuration:
		return v.duration < other.duration
	case TypeTimeStamp:
		return v.timestamp.Before(other.timestamp)
	case TypeTemperature:
		return v.temperature < other.temperature
	case TypeExtNumeric:
		return v.extNumeric < other.extNumeric
	case TypeString:
		return v.str < other.str
	default:
		panic(fmt.Sprintf("values: type %s has no natural order", v.typ))
	}
}
