package core

import (
	"encoding/json"

	"github.com/moosethebrown/tello-net-bridge/drone"
)

const (
	RequestTypeCmd        = "cmd"
	RequestTypeQuery      = "query"
	RequestTypeConnect    = "connect"
	RequestTypeDisconnect = "disconnect"
)

// Request is a remote request as received from MQTT, e.g.
//
//	{"id":"42","type":"cmd","cmd":"move","args":{"direction":"forward","distance":50},"waitMs":2000}
type Request struct {
	Id     string                     `json:"id"`
	Type   string                     `json:"type"`
	Cmd    string                     `json:"cmd"`
	Args   map[string]json.RawMessage `json:"args"`
	WaitMs int                        `json:"waitMs"`
	args   []drone.Arg
}

// Response answers one Request.
type Response struct {
	Id       string             `json:"id,omitempty"`
	Type     string             `json:"type"`
	Cmd      string             `json:"cmd,omitempty"`
	Outcome  string             `json:"outcome,omitempty"`
	Value    string             `json:"value,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Attempts int                `json:"attempts,omitempty"`
	State    string             `json:"state,omitempty"`
	Error    string             `json:"error,omitempty"`
	Snapshot *drone.Snapshot    `json:"snapshot,omitempty"`
	Location *drone.PadLocation `json:"location,omitempty"`
}
