package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for lines that are not a protocol object.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for objects with an unsupported "type".
	ErrUnknownType = errors.New("unknown message type")
)

type wireMessage struct {
	Type       Type            `json:"type"`
	TS         int64           `json:"ts"`
	Message    string          `json:"message"`
	Sensors    json.RawMessage `json:"sensors"`
	Sensor     string          `json:"sensor"`
	Values     json.RawMessage `json:"values"`
	IntervalMS int64           `json:"interval_ms"`
	Mode       Mode            `json:"mode"`
}

// Decode parses one received line into a Message. Surrounding whitespace and
// the line terminator are ignored.
func Decode(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	var w wireMessage
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !w.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}

	m := Message{Type: w.Type, TS: w.TS}
	switch w.Type {
	case TypeLog, TypeError:
		m.Text = w.Message
	case TypeInventory:
		sensors, err := decodeSensors(w.Sensors)
		if err != nil {
			return Message{}, err
		}
		m.Sensors = sensors
	case TypeData:
		values, err := decodeValues(w.Values)
		if err != nil {
			return Message{}, err
		}
		m.Sensor = w.Sensor
		m.Values = values
	case TypeHeartbeat:
		m.IntervalMS = w.IntervalMS
		m.Mode = w.Mode
	}
	return m, nil
}

// eachField walks the members of a JSON object in document order.
func eachField(raw json.RawMessage, fn func(key string, val json.RawMessage) error) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformed)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected key", ErrMalformed)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func decodeSensors(raw json.RawMessage) ([]SensorInfo, error) {
	sensors := make([]SensorInfo, 0)
	err := eachField(raw, func(name string, body json.RawMessage) error {
		info := SensorInfo{Name: name}
		err := eachField(body, func(key string, val json.RawMessage) error {
			if key == "channels" {
				var channels []string
				if err := json.Unmarshal(val, &channels); err != nil {
					return fmt.Errorf("%w: sensor %s channels: %v", ErrMalformed, name, err)
				}
				info.Channels = channels
				return nil
			}
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("%w: sensor %s attribute %s: %v", ErrMalformed, name, key, err)
			}
			info.Attrs = append(info.Attrs, Attr{Key: key, Value: s})
			return nil
		})
		if err != nil {
			return err
		}
		sensors = append(sensors, info)
		return nil
	})
	return sensors, err
}

func decodeValues(raw json.RawMessage) ([]Value, error) {
	values := make([]Value, 0)
	err := eachField(raw, func(key string, val json.RawMessage) error {
		text := string(bytes.TrimSpace(val))
		if text == "null" {
			return nil
		}
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 32)
			if err != nil {
				return fmt.Errorf("%w: value %s: %v", ErrMalformed, key, err)
			}
			values = append(values, FloatValue(key, float32(f)))
			return nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: value %s: %v", ErrMalformed, key, err)
		}
		values = append(values, IntValue(key, i))
		return nil
	})
	return values, err
}
