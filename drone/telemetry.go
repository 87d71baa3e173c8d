package drone

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoPairs is returned for a telemetry line without a single key:value pair.
var ErrNoPairs = errors.New("telemetry line has no key:value pairs")

// Kind is the type a telemetry value is coerced to.
type Kind uint8

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return "text"
}

// ParseKind maps a type name from a config file to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "int", "integer":
		return KindInt, nil
	case "float", "double":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "text", "string":
		return KindText, nil
	}
	return KindText, fmt.Errorf("unknown telemetry value type %q", s)
}

// Value is one decoded sensor reading.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }
func TextValue(v string) Value   { return Value{kind: KindText, s: v} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the value as an integer; floats are truncated.
func (v Value) Int() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float returns the value as a float; integers are converted.
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

func (v Value) Bool() bool { return v.b }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return v.s
}

// Any returns the value as a plain Go value, for encoders.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	}
	return v.s
}

// Sensor keys broadcast by the drone.
var defaultKeyTypes = map[string]Kind{
	"mid":   KindInt,
	"x":     KindInt,
	"y":     KindInt,
	"z":     KindInt,
	"mpry":  KindText,
	"pitch": KindInt,
	"roll":  KindInt,
	"yaw":   KindInt,
	"vgx":   KindInt,
	"vgy":   KindInt,
	"vgz":   KindInt,
	"templ": KindInt,
	"temph": KindInt,
	"tof":   KindInt,
	"h":     KindInt,
	"bat":   KindInt,
	"baro":  KindFloat,
	"time":  KindInt,
	"agx":   KindFloat,
	"agy":   KindFloat,
	"agz":   KindFloat,
}

// Update is the result of decoding one telemetry line.
type Update struct {
	Values map[string]Value
	// Dropped lists known keys whose value did not parse.
	Dropped []string
}

// TelemetryCodec decodes telemetry lines using a per-key type table. Keys
// missing from the table are kept as text.
type TelemetryCodec struct {
	types map[string]Kind
}

// NewTelemetryCodec builds a codec from the default key table plus extra,
// which may also override default entries.
func NewTelemetryCodec(extra map[string]Kind) *TelemetryCodec {
	types := make(map[string]Kind, len(defaultKeyTypes)+len(extra))
	for k, v := range defaultKeyTypes {
		types[k] = v
	}
	for k, v := range extra {
		types[k] = v
	}
	return &TelemetryCodec{types: types}
}

// Decode parses one "key:value;key:value;..." line.
func (c *TelemetryCodec) Decode(line []byte) (Update, error) {
	u := Update{Values: make(map[string]Value)}
	pairs := 0
	for _, field := range strings.Split(strings.TrimSpace(string(line)), ";") {
		field = strings.TrimSpace(field)
		key, raw, ok := strings.Cut(field, ":")
		if !ok || key == "" {
			continue
		}
		pairs++

		kind, known := c.types[key]
		if !known {
			u.Values[key] = TextValue(raw)
			continue
		}
		v, err := parseValue(kind, raw)
		if err != nil {
			u.Dropped = append(u.Dropped, key)
			continue
		}
		u.Values[key] = v
	}
	if pairs == 0 {
		return Update{}, ErrNoPairs
	}
	return u, nil
}

func parseValue(kind Kind, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindInt:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return IntValue(i), nil
		}
		// some firmware sends "-100.00" for integer keys
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
			return Value{}, fmt.Errorf("not an integer: %q", raw)
		}
		return IntValue(int64(f)), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	}
	return TextValue(raw), nil
}
