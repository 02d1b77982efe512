package hub

import (
	"strings"
)

// Command names accepted on the serial line.
const (
	CmdPing      = "PING"
	CmdInventory = "INVENTORY"
	CmdStart     = "START"
	CmdStop      = "STOP"
	CmdSetRate   = "SET_RATE"
	CmdStatus    = "STATUS"
	CmdReset     = "RESET"
)

// Replies sent by the command processor.
const (
	ReplyPong             = "PONG"
	ReplyStreamingEnabled = "Streaming enabled"
	ReplyStreamingPaused  = "Streaming paused"
	ReplyRateUpdated      = "Sample rate updated"
	ReplyRateMissing      = "SET_RATE requires value"
	ReplyRateTooLow       = "SET_RATE too low (min 100 ms)"
	ReplyResetting        = "Resetting..."
	ReplyUnknownCommand   = "Unknown command"
)

// Execute runs one command line. Replies are written to the transport; the
// returned error mirrors ERROR replies and is ErrReset for RESET. Empty lines
// are ignored.
func (h *Hub) Execute(line string) error {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	if cmd == "" {
		return nil
	}

	// SET_RATE matches as a prefix; the value follows the first space.
	if strings.HasPrefix(cmd, CmdSetRate) {
		_, arg, hasArg := strings.Cut(cmd, " ")
		return h.setRate(arg, hasArg)
	}
	name, _, hasArg := strings.Cut(cmd, " ")
	if hasArg {
		return h.unknown()
	}

	switch name {
	case CmdPing:
		h.sendLog(ReplyPong)
	case CmdInventory:
		h.sendInventory()
	case CmdStart:
		h.state.Streaming = true
		h.sendLog(ReplyStreamingEnabled)
	case CmdStop:
		h.state.Streaming = false
		h.sendLog(ReplyStreamingPaused)
	case CmdStatus:
		h.sendInventory()
		h.sendHeartbeat()
	case CmdReset:
		h.sendLog(ReplyResetting)
		h.clock.Sleep(resetDelay)
		return ErrReset
	default:
		return h.unknown()
	}
	return nil
}

func (h *Hub) unknown() error {
	h.sendError(ReplyUnknownCommand)
	return ErrUnknownCommand
}

func (h *Hub) setRate(arg string, hasArg bool) error {
	arg = strings.TrimSpace(arg)
	if !hasArg || arg == "" {
		h.sendError(ReplyRateMissing)
		return ErrMissingValue
	}
	if err := h.state.setSampleInterval(parseLeadingInt(arg)); err != nil {
		h.sendError(ReplyRateTooLow)
		return err
	}
	h.sendLog(ReplyRateUpdated)
	return nil
}

// parseLeadingInt parses an optional sign followed by decimal digits at the
// start of s. Parsing stops at the first other character; no digits yields 0.
func parseLeadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		if n > (1<<62)/10 {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
