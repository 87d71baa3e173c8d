/*
Package drone is the command/telemetry protocol engine for a Tello drone
speaking the SDK text protocol.

Connection types

The drone exposes two UDP channels. The command channel carries one ASCII
command per datagram and the drone answers each with one datagram ("ok", an
error text, or a query value). The telemetry channel is pushed by the drone at
roughly 10 Hz as a single "key:value;key:value;..." line and is never
acknowledged.

Commands

Callers build a Request with one of the typed constructors (TakeOff, Move,
Rotate, Go, ...) and hand it to Session.Execute. The request is validated
against the argument tables and the session mode flags before anything is
written to the socket. Only one command is ever outstanding: concurrent
callers queue in arrival order. Execute returns as soon as the drone
acknowledges the command, not when the motion is over.

Telemetry

Session.Snapshot never blocks. It returns the latest complete snapshot, which
the listener goroutine replaces as a whole on every decoded broadcast.
*/
package drone
