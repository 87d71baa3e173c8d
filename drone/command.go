package drone

import (
	"fmt"
	"strconv"
)

// Opcode names a command family. It is the name callers use, not the wire
// text: Rotate with a negative angle is sent as "ccw", a Move with a speed is
// sent as "go".
type Opcode string

const (
	OpEnterSDK     Opcode = "command"
	OpTakeOff      Opcode = "takeoff"
	OpLand         Opcode = "land"
	OpEmergency    Opcode = "emergency"
	OpStop         Opcode = "stop"
	OpFlip         Opcode = "flip"
	OpMove         Opcode = "move"
	OpRotate       Opcode = "rotate"
	OpGo           Opcode = "go"
	OpCurve        Opcode = "curve"
	OpSetSpeed     Opcode = "speed"
	OpBattery      Opcode = "battery?"
	OpSpeedQuery   Opcode = "speed?"
	OpFlightTime   Opcode = "time?"
	OpWifi         Opcode = "wifi?"
	OpSerial       Opcode = "sn?"
	OpSDKVersion   Opcode = "sdk?"
	OpPadOn        Opcode = "mon"
	OpPadOff       Opcode = "moff"
	OpPadDirection Opcode = "mdirection"
	OpGoPad        Opcode = "gopad"
	OpJump         Opcode = "jump"
	// OpPadLocation is answered from telemetry and never transmitted.
	OpPadLocation Opcode = "padlocation"
)

// Family groups commands that share a response timeout.
type Family uint8

const (
	FamilyControl Family = iota
	FamilyQuery
	FamilyMotion
	FamilyLaunch
)

func (f Family) String() string {
	switch f {
	case FamilyControl:
		return "control"
	case FamilyQuery:
		return "query"
	case FamilyMotion:
		return "motion"
	case FamilyLaunch:
		return "launch"
	}
	return "unknown"
}

// ResponseKind is what a successful reply to a command looks like.
type ResponseKind uint8

const (
	ResponseOK ResponseKind = iota
	ResponseValue
)

// Direction of a relative move.
type Direction string

const (
	Up       Direction = "up"
	Down     Direction = "down"
	Left     Direction = "left"
	Right    Direction = "right"
	Forward  Direction = "forward"
	Backward Direction = "back"
)

// FlipDirection uses the single letters the drone expects.
type FlipDirection string

const (
	FlipLeft     FlipDirection = "l"
	FlipRight    FlipDirection = "r"
	FlipForward  FlipDirection = "f"
	FlipBackward FlipDirection = "b"
)

// Mission pad ids accepted besides 1..8.
const (
	PadNearest = -1
	PadCurrent = -2
)

// Arg is one named argument of a request. Numeric arguments use Int, choice
// arguments (directions, pad ids) use Text.
type Arg struct {
	Name   string
	Int    int
	Text   string
	IsText bool
}

// IntArg builds a numeric argument.
func IntArg(name string, v int) Arg {
	return Arg{Name: name, Int: v}
}

// TextArg builds a choice argument.
func TextArg(name string, v string) Arg {
	return Arg{Name: name, Text: v, IsText: true}
}

func (a Arg) String() string {
	if a.IsText {
		return a.Text
	}
	return strconv.Itoa(a.Int)
}

// Request is an unvalidated command as issued by a caller.
type Request struct {
	Op   Opcode
	Args []Arg
}

// NewRequest builds a request from an opcode and raw arguments.
func NewRequest(op Opcode, args ...Arg) Request {
	return Request{Op: op, Args: args}
}

// Command is a request that passed validation. It can only be obtained from
// Validate, and the Sequencer refuses the zero value.
type Command struct {
	op   Opcode
	args []Arg
	sig  *signature
}

func (c Command) Op() Opcode { return c.op }

// Args returns the arguments in declaration order. Omitted optional
// arguments are absent.
func (c Command) Args() []Arg {
	out := make([]Arg, len(c.args))
	copy(out, c.args)
	return out
}

// Arg looks up an argument by name.
func (c Command) Arg(name string) (Arg, bool) {
	for _, a := range c.args {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

func (c Command) Family() Family {
	if c.sig == nil {
		return FamilyControl
	}
	return c.sig.family
}

func (c Command) Response() ResponseKind {
	if c.sig == nil {
		return ResponseOK
	}
	return c.sig.response
}

// Local reports whether the command is answered without touching the drone.
func (c Command) Local() bool {
	return c.sig != nil && c.sig.encode == nil
}

func (c Command) valid() bool {
	return c.sig != nil
}

func (c Command) intArg(name string) int {
	a, _ := c.Arg(name)
	return a.Int
}

func (c Command) textArg(name string) string {
	a, _ := c.Arg(name)
	return a.Text
}

func (c Command) String() string {
	s := string(c.op)
	for _, a := range c.args {
		s += fmt.Sprintf(" %s=%s", a.Name, a)
	}
	return s
}

// Typed constructors, one per opcode.

func EnterSDK() Request  { return NewRequest(OpEnterSDK) }
func TakeOff() Request   { return NewRequest(OpTakeOff) }
func Land() Request      { return NewRequest(OpLand) }
func Emergency() Request { return NewRequest(OpEmergency) }

// Stop makes the drone hover in place.
func Stop() Request { return NewRequest(OpStop) }

func Flip(dir FlipDirection) Request {
	return NewRequest(OpFlip, TextArg("direction", string(dir)))
}

// Move flies cm centimetres in one direction at the default speed.
func Move(dir Direction, cm int) Request {
	return NewRequest(OpMove, TextArg("direction", string(dir)), IntArg("distance", cm))
}

// MoveAt is Move with an explicit speed in cm/s.
func MoveAt(dir Direction, cm int, speed int) Request {
	return NewRequest(OpMove, TextArg("direction", string(dir)), IntArg("distance", cm),
		IntArg("speed", speed))
}

// Rotate turns clockwise for positive degrees, counter-clockwise for negative.
func Rotate(degrees int) Request {
	return NewRequest(OpRotate, IntArg("degrees", degrees))
}

// Go flies to x, y, z (cm, relative to the current position) at speed.
func Go(x, y, z, speed int) Request {
	return NewRequest(OpGo, IntArg("x", x), IntArg("y", y), IntArg("z", z), IntArg("speed", speed))
}

// Curve flies a curve through (x1,y1,z1) to (x2,y2,z2).
func Curve(x1, y1, z1, x2, y2, z2, speed int) Request {
	return NewRequest(OpCurve,
		IntArg("x1", x1), IntArg("y1", y1), IntArg("z1", z1),
		IntArg("x2", x2), IntArg("y2", y2), IntArg("z2", z2),
		IntArg("speed", speed))
}

func SetSpeed(speed int) Request {
	return NewRequest(OpSetSpeed, IntArg("speed", speed))
}

func QueryBattery() Request    { return NewRequest(OpBattery) }
func QuerySpeed() Request      { return NewRequest(OpSpeedQuery) }
func QueryFlightTime() Request { return NewRequest(OpFlightTime) }
func QueryWifi() Request       { return NewRequest(OpWifi) }
func QuerySerial() Request     { return NewRequest(OpSerial) }
func QuerySDKVersion() Request { return NewRequest(OpSDKVersion) }

func MissionPadOn() Request  { return NewRequest(OpPadOn) }
func MissionPadOff() Request { return NewRequest(OpPadOff) }

// MissionPadDirection selects which cameras look for pads. At least one must
// be enabled.
func MissionPadDirection(forward, downward bool) Request {
	dir := "none"
	switch {
	case forward && downward:
		dir = "both"
	case forward:
		dir = "forward"
	case downward:
		dir = "downward"
	}
	return NewRequest(OpPadDirection, TextArg("direction", dir))
}

// GoPad flies to x, y, z relative to mission pad pad.
func GoPad(x, y, z, speed, pad int) Request {
	return NewRequest(OpGoPad, IntArg("x", x), IntArg("y", y), IntArg("z", z),
		IntArg("speed", speed), TextArg("pad", PadID(pad)))
}

// Jump flies to x, y, z over pad from, turns to yaw and looks for pad to.
func Jump(x, y, z, speed, yaw, from, to int) Request {
	return NewRequest(OpJump, IntArg("x", x), IntArg("y", y), IntArg("z", z),
		IntArg("speed", speed), IntArg("yaw", yaw),
		TextArg("from", PadID(from)), TextArg("to", PadID(to)))
}

// PadID formats a mission pad number the way the drone expects it.
func PadID(pad int) string {
	return "m" + strconv.Itoa(pad)
}
