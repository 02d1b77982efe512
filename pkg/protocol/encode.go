package protocol

import (
	"io"
	"strconv"
)

// FloatPrecision is the number of fractional digits used for float fields.
const FloatPrecision = 6

// Append renders m followed by Newline onto dst and returns the extended slice.
func Append(dst []byte, m Message) []byte {
	dst = append(dst, '{')
	dst = appendKey(dst, "type")
	dst = appendString(dst, string(m.Type))
	dst = append(dst, ',')
	dst = appendKey(dst, "ts")
	dst = strconv.AppendInt(dst, m.TS, 10)

	switch m.Type {
	case TypeLog, TypeError:
		dst = append(dst, ',')
		dst = appendKey(dst, "message")
		dst = appendString(dst, m.Text)
	case TypeInventory:
		dst = append(dst, ',')
		dst = appendKey(dst, "sensors")
		dst = appendSensors(dst, m.Sensors)
	case TypeData:
		dst = append(dst, ',')
		dst = appendKey(dst, "sensor")
		dst = appendString(dst, m.Sensor)
		dst = append(dst, ',')
		dst = appendKey(dst, "values")
		dst = appendValues(dst, m.Values)
	case TypeHeartbeat:
		dst = append(dst, ',')
		dst = appendKey(dst, "interval_ms")
		dst = strconv.AppendInt(dst, m.IntervalMS, 10)
		dst = append(dst, ',')
		dst = appendKey(dst, "mode")
		dst = appendString(dst, string(m.Mode))
	}

	dst = append(dst, '}')
	return append(dst, Newline...)
}

// Encoder writes messages to an underlying writer, one Write per message.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, buf: make([]byte, 0, 256)}
}

// Encode renders m and writes it in full before returning.
func (e *Encoder) Encode(m Message) error {
	e.buf = Append(e.buf[:0], m)
	_, err := e.w.Write(e.buf)
	return err
}

func appendSensors(dst []byte, sensors []SensorInfo) []byte {
	dst = append(dst, '{')
	for i, s := range sensors {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendKey(dst, s.Name)
		dst = append(dst, '{')
		for j, a := range s.Attrs {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = appendKey(dst, a.Key)
			dst = appendString(dst, a.Value)
		}
		if s.Channels != nil {
			if len(s.Attrs) > 0 {
				dst = append(dst, ',')
			}
			dst = appendKey(dst, "channels")
			dst = append(dst, '[')
			for j, c := range s.Channels {
				if j > 0 {
					dst = append(dst, ',')
				}
				dst = appendString(dst, c)
			}
			dst = append(dst, ']')
		}
		dst = append(dst, '}')
	}
	return append(dst, '}')
}

func appendValues(dst []byte, values []Value) []byte {
	dst = append(dst, '{')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendKey(dst, v.Key)
		switch {
		case v.Kind == KindInt:
			dst = strconv.AppendInt(dst, v.Int, 10)
		case v.Valid():
			dst = strconv.AppendFloat(dst, float64(v.Float), 'f', FloatPrecision, 32)
		default:
			dst = append(dst, "null"...)
		}
	}
	return append(dst, '}')
}

func appendKey(dst []byte, key string) []byte {
	dst = appendString(dst, key)
	return append(dst, ':')
}

const hexDigits = "0123456789abcdef"

// appendString writes s as a quoted JSON string.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
