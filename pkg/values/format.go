package values

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/foxbox/adapters/pkg/apierror"
)

// Format is the external, opaque parse/serialize contract a channel
// chooses for its accepted argument and returned value (spec §6). The
// router never inspects Value contents directly beyond comparing the
// kind SniffType reads from a raw payload against Type() - it otherwise
// only ever goes through a channel's chosen Format.
type Format interface {
	// Name identifies the format for error messages and logging.
	Name() string
	// Type reports the Value kind this Format parses into and serializes
	// from, so callers can check a decoded Value's kind without
	// depending on the Format's own internals.
	Type() Type
	// Parse turns wire JSON into a Value. path identifies the channel the
	// value is destined for or came from, purely for error messages.
	Parse(path string, raw json.RawMessage) (Value, error)
	// Serialize turns a Value back into wire JSON.
	Serialize(path string, v Value) (json.RawMessage, error)
}

// JSONFormat is a straightforward Format backed by encoding/json,
// constrained to a single expected Type. It is the default Format used
// by tests and by simple adapters that do not need a custom wire
// representation.
type JSONFormat struct {
	FormatName string
	Want       Type
}

func (f JSONFormat) Name() string { return f.FormatName }

func (f JSONFormat) Type() Type { return f.Want }

// onOffWire and openClosedWire mirror the original taxonomy's wire
// representation (values.rs: OnOff as "On"/"Off", OpenClosed as
// "Open"/"Closed") rather than bare JSON booleans, so the two kinds stay
// distinguishable on the wire instead of collapsing to the same bool.
func onOffWire(v OnOff) string {
	if v {
		return "On"
	}
	return "Off"
}

func parseOnOffWire(path, s string) (OnOff, error) {
	switch s {
	case "On":
		return On, nil
	case "Off":
		return Off, nil
	default:
		return false, apierror.ParseError(path, fmt.Errorf("invalid OnOff value %q, want \"On\" or \"Off\"", s))
	}
}

func openClosedWire(v OpenClosed) string {
	if v {
		return "Open"
	}
	return "Closed"
}

func parseOpenClosedWire(path, s string) (OpenClosed, error) {
	switch s {
	case "Open":
		return Open, nil
	case "Closed":
		return Closed, nil
	default:
		return false, apierror.ParseError(path, fmt.Errorf("invalid OpenClosed value %q, want \"Open\" or \"Closed\"", s))
	}
}

func (f JSONFormat) Parse(path string, raw json.RawMessage) (Value, error) {
	var v Value
	var err error
	switch f.Want {
	case TypeOnOff:
		var s string
		if jsonErr := json.Unmarshal(raw, &s); jsonErr != nil {
			return Value{}, apierror.ParseError(path, jsonErr)
		}
		oo, parseErr := parseOnOffWire(path, s)
		if parseErr != nil {
			return Value{}, parseErr
		}
		return NewOnOff(oo), nil
	case TypeOpenClosed:
		var s string
		if jsonErr := json.Unmarshal(raw, &s); jsonErr != nil {
			return Value{}, apierror.ParseError(path, jsonErr)
		}
		oc, parseErr := parseOpenClosedWire(path, s)
		if parseErr != nil {
			return Value{}, parseErr
		}
		return NewOpenClosed(oc), nil
	case TypeString:
		var s string
		err = json.Unmarshal(raw, &s)
		v = NewString(s)
	case TypeTemperature:
		var f64 float64
		err = json.Unmarshal(raw, &f64)
		v = NewTemperature(f64)
	case TypeExtNumeric:
		var f64 float64
		err = json.Unmarshal(raw, &f64)
		v = NewExtNumeric(f64)
	case TypeExtBool:
		var b bool
		err = json.Unmarshal(raw, &b)
		v = NewExtBool(b)
	case TypeTimeStamp:
		var s string
		if jsonErr := json.Unmarshal(raw, &s); jsonErr != nil {
			return Value{}, apierror.ParseError(path, jsonErr)
		}
		t, parseErr := time.Parse(time.RFC3339Nano, s)
		if parseErr != nil {
			return Value{}, apierror.ParseError(path, parseErr)
		}
		return NewTimeStamp(t), nil
	case TypeDuration:
		var nanos int64
		err = json.Unmarshal(raw, &nanos)
		v = NewDuration(time.Duration(nanos))
	case TypeJSON:
		v = NewJSON(raw)
	default:
		return Value{}, apierror.ParseError(path, fmt.Errorf("unsupported format type %s", f.Want))
	}
	if err != nil {
		return Value{}, apierror.ParseError(path, err)
	}
	return v, nil
}

func (f JSONFormat) Serialize(path string, v Value) (json.RawMessage, error) {
	if v.Type() != f.Want {
		return nil, apierror.SerializeError(path, fmt.Errorf("value has type %s, format wants %s", v.Type(), f.Want))
	}
	var raw []byte
	var err error
	switch f.Want {
	case TypeOnOff:
		b, _ := v.OnOff()
		raw, err = json.Marshal(onOffWire(b))
	case TypeOpenClosed:
		b, _ := v.OpenClosed()
		raw, err = json.Marshal(openClosedWire(b))
	case TypeString:
		s, _ := v.String()
		raw, err = json.Marshal(s)
	case TypeTemperature:
		t, _ := v.Temperature()
		raw, err = json.Marshal(t)
	case TypeExtNumeric:
		n, _ := v.ExtNumeric()
		raw, err = json.Marshal(n)
	case TypeExtBool:
		b, _ := v.ExtBool()
		raw, err = json.Marshal(b)
	case TypeTimeStamp:
		t, _ := v.TimeStamp()
		raw, err = json.Marshal(t.Format(time.RFC3339Nano))
	case TypeDuration:
		d, _ := v.Duration()
		raw, err = json.Marshal(int64(d))
	case TypeJSON:
		j, _ := v.JSON()
		raw = j
	default:
		return nil, apierror.SerializeError(path, fmt.Errorf("unsupported format type %s", f.Want))
	}
	if err != nil {
		return nil, apierror.SerializeError(path, err)
	}
	return raw, nil
}

// SniffType inspects raw wire JSON for one of the kind-discriminating
// string tags the original taxonomy's wire format relies on (values.rs:
// OnOff as "On"/"Off", OpenClosed as "Open"/"Closed") without committing
// to either kind's Format. Callers use this to catch a value sent as the
// wrong kind before attempting a kind-constrained Parse, which would
// otherwise only report "invalid value", not which kind was actually
// sent.
func SniffType(raw json.RawMessage) (Type, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return TypeUnit, false
	}
	switch s {
	case "On", "Off":
		return TypeOnOff, true
	case "Open", "Closed":
		return TypeOpenClosed, true
	default:
		return TypeUnit, false
	}
}

// Decoder decodes a raw payload using the Format a channel's signature
// names for its accepted argument. Callers of the router supply this
// (spec §4.4 step 2); the router is otherwise agnostic to wire format.
type Decoder func(f Format, path string, raw json.RawMessage) (Value, error)

// Encoder serializes a Value the adapter returned, using the Format a
// channel's signature names for its return value.
type Encoder func(f Format, path string, v Value) (json.RawMessage, error)

// DefaultDecoder simply calls f.Parse.
func DefaultDecoder(f Format, path string, raw json.RawMessage) (Value, error) {
	return f.Parse(path, raw)
}

// DefaultEncoder simply calls f.Serialize.
func DefaultEncoder(f Format, path string, v Value) (json.RawMessage, error) {
	return f.Serialize(path, v)
}
