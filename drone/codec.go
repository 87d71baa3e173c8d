package drone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnvalidated is returned when a zero Command reaches the wire layer.
	ErrUnvalidated = errors.New("command was not validated")
	// ErrLocalCommand is returned when a command answered from telemetry is
	// handed to the wire layer.
	ErrLocalCommand = errors.New("command has no wire form")
)

// Result is the kind of a command outcome.
type Result uint8

const (
	Success Result = iota + 1
	SuccessWithValue
	Failure
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case SuccessWithValue:
		return "value"
	case Failure:
		return "failure"
	case TimedOut:
		return "timeout"
	}
	return "none"
}

// Outcome is what the drone made of a command.
type Outcome struct {
	Result Result
	// Value holds the payload of a SuccessWithValue outcome.
	Value string
	// Reason holds the raw reply of a Failure outcome.
	Reason string
	// Attempts is the number of transmissions made.
	Attempts int
}

// Ok reports whether the drone accepted the command.
func (o Outcome) Ok() bool {
	return o.Result == Success || o.Result == SuccessWithValue
}

// Int parses a numeric query value. Unit suffixes such as the "s" of a
// flight time are ignored.
func (o Outcome) Int() (int, error) {
	f, err := o.Float()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Float parses a numeric query value.
func (o Outcome) Float() (float64, error) {
	if o.Result != SuccessWithValue {
		return 0, fmt.Errorf("outcome %s carries no value", o.Result)
	}
	v := strings.TrimRightFunc(o.Value, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
	})
	return strconv.ParseFloat(v, 64)
}

func (o Outcome) String() string {
	switch o.Result {
	case SuccessWithValue:
		return fmt.Sprintf("%s(%s)", o.Result, o.Value)
	case Failure:
		return fmt.Sprintf("%s(%s)", o.Result, strings.TrimSpace(o.Reason))
	}
	return o.Result.String()
}

// Encode returns the wire text of a validated command.
func Encode(c Command) ([]byte, error) {
	if !c.valid() {
		return nil, ErrUnvalidated
	}
	if c.Local() {
		return nil, ErrLocalCommand
	}
	return []byte(c.sig.encode(c)), nil
}

func encodeBare(c Command) string {
	return string(c.op)
}

func encodeFlip(c Command) string {
	return "flip " + c.textArg("direction")
}

func encodeMove(c Command) string {
	speed, ok := c.Arg("speed")
	if !ok {
		return fmt.Sprintf("%s %d", c.textArg("direction"), c.intArg("distance"))
	}
	x, y, z := moveVector(c)
	return fmt.Sprintf("go %d %d %d %d", x, y, z, speed.Int)
}

// moveVector maps a directional move onto go's axes: x forward, y left, z up.
func moveVector(c Command) (x, y, z int) {
	dist := c.intArg("distance")
	switch Direction(c.textArg("direction")) {
	case Forward:
		x = dist
	case Backward:
		x = -dist
	case Left:
		y = dist
	case Right:
		y = -dist
	case Up:
		z = dist
	case Down:
		z = -dist
	}
	return x, y, z
}

func encodeRotate(c Command) string {
	deg := c.intArg("degrees")
	if deg < 0 {
		return fmt.Sprintf("ccw %d", -deg)
	}
	return fmt.Sprintf("cw %d", deg)
}

func encodeGo(c Command) string {
	return fmt.Sprintf("go %d %d %d %d", c.intArg("x"), c.intArg("y"), c.intArg("z"), c.intArg("speed"))
}

func encodeCurve(c Command) string {
	return fmt.Sprintf("curve %d %d %d %d %d %d %d",
		c.intArg("x1"), c.intArg("y1"), c.intArg("z1"),
		c.intArg("x2"), c.intArg("y2"), c.intArg("z2"),
		c.intArg("speed"))
}

func encodeSpeed(c Command) string {
	return fmt.Sprintf("speed %d", c.intArg("speed"))
}

func encodePadDirection(c Command) string {
	switch c.textArg("direction") {
	case "forward":
		return "mdirection 1"
	case "both":
		return "mdirection 2"
	}
	return "mdirection 0"
}

func encodeGoPad(c Command) string {
	return fmt.Sprintf("go %d %d %d %d %s", c.intArg("x"), c.intArg("y"), c.intArg("z"),
		c.intArg("speed"), c.textArg("pad"))
}

func encodeJump(c Command) string {
	return fmt.Sprintf("jump %d %d %d %d %d %s %s", c.intArg("x"), c.intArg("y"), c.intArg("z"),
		c.intArg("speed"), c.intArg("yaw"), c.textArg("from"), c.textArg("to"))
}

// replies that are errors even when a query expects a free-form value
var errorPrefixes = []string{"error", "unknown command", "out of range", "not joystick"}

func isDeviceError(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range errorPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Decode turns a raw reply to c into an outcome.
func Decode(c Command, raw []byte) Outcome {
	text := strings.TrimSpace(string(raw))
	if strings.EqualFold(text, "ok") {
		return Outcome{Result: Success}
	}
	if c.Response() == ResponseValue && text != "" && !isDeviceError(text) {
		return Outcome{Result: SuccessWithValue, Value: text}
	}
	return Outcome{Result: Failure, Reason: string(raw)}
}
