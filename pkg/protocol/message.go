// Package protocol defines the line-oriented message format spoken by the
// sensor hub over its serial link.
//
// Every outbound record is a single JSON-like object terminated by Newline:
//
//	{"type":"DATA","ts":1234,"sensor":"DHT","values":{"temperature_c":21.500000}}
//
// Messages are plain values built with the constructors below and rendered by
// Append / Encoder. Decode parses a received line back into a Message.
package protocol

import (
	"github.com/chewxy/math32"
)

// Newline terminates every encoded message.
const Newline = "\r\n"

// Type enumerates message kinds.
type Type string

const (
	TypeLog       Type = "LOG"
	TypeError     Type = "ERROR"
	TypeInventory Type = "INVENTORY"
	TypeData      Type = "DATA"
	TypeHeartbeat Type = "HEARTBEAT"
)

// Valid reports whether t is one of the known message types.
func (t Type) Valid() bool {
	switch t {
	case TypeLog, TypeError, TypeInventory, TypeData, TypeHeartbeat:
		return true
	}
	return false
}

// Mode is the streaming mode reported in heartbeats.
type Mode string

const (
	ModeStreaming Mode = "STREAMING"
	ModePaused    Mode = "PAUSED"
)

// ValueKind selects how a Value is rendered on the wire.
type ValueKind uint8

const (
	// KindFloat values are rendered with 6 fractional digits.
	KindFloat ValueKind = iota
	// KindInt values are rendered as plain integers.
	KindInt
)

// Value is one named field of a DATA payload.
type Value struct {
	Key   string
	Kind  ValueKind
	Float float32
	Int   int64
}

// FloatValue returns a fixed-precision field.
func FloatValue(key string, v float32) Value {
	return Value{Key: key, Kind: KindFloat, Float: v}
}

// IntValue returns an integer field.
func IntValue(key string, v int64) Value {
	return Value{Key: key, Kind: KindInt, Int: v}
}

// Number returns the value as float64 regardless of its kind.
func (v Value) Number() float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return float64(v.Float)
}

// Valid reports whether the value can be rendered as a JSON number.
func (v Value) Valid() bool {
	if v.Kind == KindInt {
		return true
	}
	return !math32.IsNaN(v.Float) && !math32.IsInf(v.Float, 0)
}

// Attr is a string attribute of an inventory entry.
type Attr struct {
	Key   string
	Value string
}

// SensorInfo is one entry of an INVENTORY message.
type SensorInfo struct {
	Name  string
	Attrs []Attr
	// Channels lists channel identities for grouped sensors (analog pins).
	// A nil slice omits the "channels" key.
	Channels []string
}

// Attr returns the value of the named attribute.
func (s SensorInfo) Attr(key string) (string, bool) {
	for _, a := range s.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Message is a single record of the hub protocol. Which payload fields are
// meaningful depends on Type:
//
//	LOG, ERROR  Text
//	INVENTORY   Sensors
//	DATA        Sensor, Values
//	HEARTBEAT   IntervalMS, Mode
type Message struct {
	Type Type
	TS   int64 // milliseconds since boot

	Text string

	Sensors []SensorInfo

	Sensor string
	Values []Value

	IntervalMS int64
	Mode       Mode
}

// Log returns an informational message.
func Log(ts int64, text string) Message {
	return Message{Type: TypeLog, TS: ts, Text: text}
}

// Error returns an error report.
func Error(ts int64, text string) Message {
	return Message{Type: TypeError, TS: ts, Text: text}
}

// Inventory returns an inventory of the present sensors.
func Inventory(ts int64, sensors []SensorInfo) Message {
	return Message{Type: TypeInventory, TS: ts, Sensors: sensors}
}

// Data returns a reading of one sensor.
func Data(ts int64, sensor string, values ...Value) Message {
	return Message{Type: TypeData, TS: ts, Sensor: sensor, Values: values}
}

// Heartbeat returns a liveness message.
func Heartbeat(ts int64, intervalMS int64, mode Mode) Message {
	return Message{Type: TypeHeartbeat, TS: ts, IntervalMS: intervalMS, Mode: mode}
}

// Value returns the named DATA field.
func (m Message) Value(key string) (Value, bool) {
	for _, v := range m.Values {
		if v.Key == key {
			return v, true
		}
	}
	return Value{}, false
}

// SensorInfo returns the named INVENTORY entry.
func (m Message) SensorInfo(name string) (SensorInfo, bool) {
	for _, s := range m.Sensors {
		if s.Name == name {
			return s, true
		}
	}
	return SensorInfo{}, false
}
