package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/link"
)

var (
	ErrReconnectFailed = errors.New("reconnection failed")
	ErrLinkLost        = errors.New("link lost")
)

// Event types and severities reported by the supervisor.
const (
	EventSerial = "SERIAL"

	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Supervisor keeps a chain running, reopening the device whenever the link
// drops.
type Supervisor struct {
	open   func() link.Device
	h      *history.History
	cfg    *config.Config
	logger *slog.Logger

	// OnEvent is called for connects, link losses and failed reconnects.
	OnEvent func(eventType, severity, message string)

	mu    sync.Mutex
	chain *Chain
}

// NewSupervisor returns a supervisor that opens devices with open and feeds
// them into h.
func NewSupervisor(open func() link.Device, h *history.History, cfg *config.Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{open: open, h: h, cfg: cfg, logger: logger}
}

// Run connects and keeps reconnecting until ctx is done. It returns nil
// when ctx is done, ErrLinkLost when the link drops with auto reconnect off
// and ErrReconnectFailed after MaxReconnectAttempts consecutive failures.
func (s *Supervisor) Run(ctx context.Context) error {
	attempts := 0
	lost := false
	for {
		chain, err := Start(s.open(), s.h, s.cfg)
		if err != nil {
			attempts++
			s.logger.Warn("failed to connect", "attempt", attempts, "error", err)
			if limit := s.cfg.Serial.MaxReconnectAttempts; limit >= 0 && attempts >= limit {
				s.event(SeverityError, "Reconnection failed")
				return fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, attempts, err)
			}
			if !s.wait(ctx) {
				return nil
			}
			continue
		}

		switch {
		case lost:
			s.logger.Info("reconnected", "attempts", attempts+1)
			s.event(SeverityInfo, fmt.Sprintf("Reconnected after %d attempts", attempts+1))
		default:
			s.logger.Info("connected")
			s.event(SeverityInfo, "Connected")
		}
		attempts = 0
		s.setChain(chain)

		select {
		case <-ctx.Done():
			s.setChain(nil)
			if err := chain.Close(); err != nil {
				s.logger.Warn("failed to close device", "error", err)
			}
			return nil
		case <-chain.Done():
		}

		s.setChain(nil)
		_ = chain.Close()
		lost = true
		s.logger.Warn("link lost")
		s.event(SeverityWarning, "Link lost")
		if !s.cfg.Serial.AutoReconnect {
			return ErrLinkLost
		}
		if !s.wait(ctx) {
			return nil
		}
	}
}

// Send forwards a command to the connected device.
func (s *Supervisor) Send(cmd string) error {
	s.mu.Lock()
	chain := s.chain
	s.mu.Unlock()
	if chain == nil {
		return link.ErrNotConnected
	}
	return chain.Device().Send(cmd)
}

// Connected reports whether a chain is running.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain != nil
}

func (s *Supervisor) setChain(c *Chain) {
	s.mu.Lock()
	s.chain = c
	s.mu.Unlock()
}

func (s *Supervisor) wait(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.Serial.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Supervisor) event(severity, message string) {
	if s.OnEvent != nil {
		s.OnEvent(EventSerial, severity, message)
	}
}
