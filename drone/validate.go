package drone

import (
	"fmt"
	"strconv"
	"strings"
)

// Argument bounds, in device units.
const (
	MinDistance   = 20
	MaxDistance   = 500
	MinSpeed      = 10
	MaxSpeed      = 100
	MaxCurveSpeed = 60
	MinDegrees    = -360
	MaxDegrees    = 360
	MinAxis       = -500
	MaxAxis       = 500
	// go and curve refuse targets with every axis inside this box
	deadZone = 20
)

// ValidationError reports a request that was refused before any I/O.
type ValidationError struct {
	Command Opcode
	Arg     string
	Value   string
	Allowed string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("invalid %s: %s", e.Command, e.Reason)
	}
	if e.Allowed == "" {
		return fmt.Sprintf("invalid %s %s=%s: %s", e.Command, e.Arg, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s=%s: %s (allowed %s)", e.Command, e.Arg, e.Value, e.Reason, e.Allowed)
}

// Flags is the part of the session state the validator looks at.
type Flags struct {
	State               State
	MissionPadDetection bool
	PadForward          bool
	PadDownward         bool
	DefaultSpeed        int
}

type constraint struct {
	name     string
	min, max int
	choices  []string
	optional bool
}

func (c constraint) isChoice() bool {
	return c.choices != nil
}

func (c constraint) allowed() string {
	if c.isChoice() {
		return strings.Join(c.choices, "|")
	}
	return fmt.Sprintf("[%d,%d]", c.min, c.max)
}

func (c constraint) check(op Opcode, a Arg) error {
	if c.isChoice() {
		if !a.IsText {
			return &ValidationError{Command: op, Arg: c.name, Value: a.String(),
				Allowed: c.allowed(), Reason: "expected one of the choices"}
		}
		for _, ch := range c.choices {
			if a.Text == ch {
				return nil
			}
		}
		return &ValidationError{Command: op, Arg: c.name, Value: a.Text,
			Allowed: c.allowed(), Reason: "not a valid choice"}
	}
	if a.IsText {
		return &ValidationError{Command: op, Arg: c.name, Value: a.Text,
			Allowed: c.allowed(), Reason: "expected a number"}
	}
	if a.Int < c.min || a.Int > c.max {
		return &ValidationError{Command: op, Arg: c.name, Value: strconv.Itoa(a.Int),
			Allowed: c.allowed(), Reason: "out of range"}
	}
	return nil
}

type signature struct {
	args     []constraint
	family   Family
	response ResponseKind
	needsPad bool
	// rule checks constraints spanning several arguments
	rule   func(c Command) error
	encode func(c Command) string
}

func number(name string, min, max int) constraint {
	return constraint{name: name, min: min, max: max}
}

func choice(name string, choices ...string) constraint {
	return constraint{name: name, choices: choices}
}

var (
	distanceArg = number("distance", MinDistance, MaxDistance)
	speedArg    = number("speed", MinSpeed, MaxSpeed)
	padChoices  = []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8",
		PadID(PadNearest), PadID(PadCurrent)}
)

func axes(names ...string) []constraint {
	out := make([]constraint, 0, len(names))
	for _, n := range names {
		out = append(out, number(n, MinAxis, MaxAxis))
	}
	return out
}

func withArgs(groups ...[]constraint) []constraint {
	var out []constraint
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var signatures = map[Opcode]*signature{
	OpEnterSDK:  {family: FamilyControl, encode: encodeBare},
	OpTakeOff:   {family: FamilyLaunch, encode: encodeBare},
	OpLand:      {family: FamilyLaunch, encode: encodeBare},
	OpEmergency: {family: FamilyControl, encode: encodeBare},
	OpStop:      {family: FamilyControl, encode: encodeBare},
	OpFlip: {
		args:   []constraint{choice("direction", "l", "r", "f", "b")},
		family: FamilyMotion,
		encode: encodeFlip,
	},
	OpMove: {
		args: []constraint{
			choice("direction", "up", "down", "left", "right", "forward", "back"),
			distanceArg,
			{name: "speed", min: MinSpeed, max: MaxSpeed, optional: true},
		},
		family: FamilyMotion,
		rule:   moveAtOutsideDeadZone,
		encode: encodeMove,
	},
	OpRotate: {
		args:   []constraint{number("degrees", MinDegrees, MaxDegrees)},
		family: FamilyMotion,
		rule:   nonZero("degrees"),
		encode: encodeRotate,
	},
	OpGo: {
		args:   withArgs(axes("x", "y", "z"), []constraint{speedArg}),
		family: FamilyMotion,
		rule:   outsideDeadZone("x", "y", "z"),
		encode: encodeGo,
	},
	OpCurve: {
		args: withArgs(axes("x1", "y1", "z1", "x2", "y2", "z2"),
			[]constraint{number("speed", MinSpeed, MaxCurveSpeed)}),
		family: FamilyMotion,
		rule:   both(outsideDeadZone("x1", "y1", "z1"), outsideDeadZone("x2", "y2", "z2")),
		encode: encodeCurve,
	},
	OpSetSpeed: {
		args:   []constraint{speedArg},
		family: FamilyControl,
		encode: encodeSpeed,
	},
	OpBattery:    {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpSpeedQuery: {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpFlightTime: {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpWifi:       {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpSerial:     {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpSDKVersion: {family: FamilyQuery, response: ResponseValue, encode: encodeBare},
	OpPadOn:      {family: FamilyControl, encode: encodeBare},
	OpPadOff:     {family: FamilyControl, encode: encodeBare},
	OpPadDirection: {
		args:   []constraint{choice("direction", "downward", "forward", "both")},
		family: FamilyControl,
		encode: encodePadDirection,
	},
	OpGoPad: {
		args:     withArgs(axes("x", "y", "z"), []constraint{speedArg, choice("pad", padChoices...)}),
		family:   FamilyMotion,
		needsPad: true,
		rule:     outsideDeadZone("x", "y", "z"),
		encode:   encodeGoPad,
	},
	OpJump: {
		args: withArgs(axes("x", "y", "z"), []constraint{
			speedArg,
			number("yaw", MinDegrees, MaxDegrees),
			choice("from", padChoices...),
			choice("to", padChoices...),
		}),
		family:   FamilyMotion,
		needsPad: true,
		rule:     outsideDeadZone("x", "y", "z"),
		encode:   encodeJump,
	},
	OpPadLocation: {family: FamilyQuery, response: ResponseValue, needsPad: true},
}

func outsideDeadZone(x, y, z string) func(c Command) error {
	in := func(v int) bool { return v >= -deadZone && v <= deadZone }
	return func(c Command) error {
		if in(c.intArg(x)) && in(c.intArg(y)) && in(c.intArg(z)) {
			return &ValidationError{Command: c.op, Arg: x + "," + y + "," + z,
				Value:  fmt.Sprintf("%d,%d,%d", c.intArg(x), c.intArg(y), c.intArg(z)),
				Reason: fmt.Sprintf("at least one axis must be outside [-%d,%d]", deadZone, deadZone)}
		}
		return nil
	}
}

// moveAtOutsideDeadZone applies the go dead zone to a move that carries a
// speed, since it is sent as go.
func moveAtOutsideDeadZone(c Command) error {
	if _, ok := c.Arg("speed"); !ok {
		return nil
	}
	x, y, z := moveVector(c)
	if max(abs(x), abs(y), abs(z)) > deadZone {
		return nil
	}
	return &ValidationError{Command: c.op, Arg: "distance", Value: strconv.Itoa(c.intArg("distance")),
		Reason: fmt.Sprintf("with a speed the distance must be outside [-%d,%d]", deadZone, deadZone)}
}

func nonZero(name string) func(c Command) error {
	return func(c Command) error {
		if c.intArg(name) == 0 {
			return &ValidationError{Command: c.op, Arg: name, Value: "0", Reason: "must not be zero"}
		}
		return nil
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func both(a, b func(c Command) error) func(c Command) error {
	return func(c Command) error {
		if err := a(c); err != nil {
			return err
		}
		return b(c)
	}
}

// Validate checks a request against the argument table of its opcode and the
// current session flags. It performs no I/O.
func Validate(req Request, flags Flags) (Command, error) {
	sig, ok := signatures[req.Op]
	if !ok {
		return Command{}, &ValidationError{Command: req.Op, Reason: "unknown command"}
	}

	switch {
	case req.Op == OpEnterSDK:
		if flags.State == Disconnected {
			return Command{}, &ValidationError{Command: req.Op, Reason: "session is not open"}
		}
	case flags.State != Connected:
		return Command{}, &ValidationError{Command: req.Op, Reason: "requires a connected session"}
	}

	given := make(map[string]Arg, len(req.Args))
	for _, a := range req.Args {
		if _, dup := given[a.Name]; dup {
			return Command{}, &ValidationError{Command: req.Op, Arg: a.Name, Value: a.String(),
				Reason: "given more than once"}
		}
		given[a.Name] = a
	}

	cmd := Command{op: req.Op, sig: sig, args: make([]Arg, 0, len(sig.args))}
	for _, c := range sig.args {
		a, ok := given[c.name]
		if !ok {
			if c.optional {
				continue
			}
			return Command{}, &ValidationError{Command: req.Op, Arg: c.name,
				Allowed: c.allowed(), Reason: "missing"}
		}
		delete(given, c.name)
		if err := c.check(req.Op, a); err != nil {
			return Command{}, err
		}
		cmd.args = append(cmd.args, a)
	}
	for _, a := range req.Args {
		if _, left := given[a.Name]; left {
			return Command{}, &ValidationError{Command: req.Op, Arg: a.Name, Value: a.String(),
				Reason: "unexpected argument"}
		}
	}

	if sig.rule != nil {
		if err := sig.rule(cmd); err != nil {
			return Command{}, err
		}
	}

	if sig.needsPad && !flags.MissionPadDetection {
		return Command{}, &ValidationError{Command: req.Op, Reason: "mission pad detection is off"}
	}

	return cmd, nil
}
