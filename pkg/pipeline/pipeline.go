// Package pipeline wires a hub link to the reading history:
//
//	link.Device -> sample.Converter -> [averaging] -> history.History
//
// Consumers (metrics, MQTT, UI) hook in through history.OnUpdate.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/sample"
)

const bufferSize = 500

var ErrNilDevice = errors.New("nil device")

// OpenDevice creates the simulated hub when mock is set, the serial link otherwise.
func OpenDevice(cfg *config.Config, mock bool, logger *slog.Logger) link.Device {
	if mock {
		return link.NewMock(cfg, link.WithLogger(logger), link.WithBufferSize(bufferSize))
	}
	return link.New(cfg.Serial.Port, cfg.Serial.Baud, link.WithLogger(logger), link.WithBufferSize(bufferSize))
}

// Chain tracks the components of the processing chain for graceful shutdown.
type Chain struct {
	device link.Device
	done   chan struct{} // Closed when the history goroutine exits
}

// Start connects device and feeds its frames into h until the device is closed.
func Start(device link.Device, h *history.History, cfg *config.Config) (*Chain, error) {
	if device == nil {
		return nil, ErrNilDevice
	}

	// Reset history shutdown flag for new chain
	h.ResetShutdown()

	if err := device.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	updates := sample.NewConverter(bufferSize)(device.Frames())
	if cfg.Monitor.AverageSamples > 0 {
		updates = sample.NewAveragingConverter(cfg.Monitor.AverageSamples, bufferSize)(updates)
	}

	c := &Chain{
		device: device,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		h.ProcessUpdates(updates)
	}()

	return c, nil
}

// Device returns the connected device.
func (c *Chain) Device() link.Device { return c.device }

// Done is closed once every queued update reached the history.
func (c *Chain) Done() <-chan struct{} { return c.done }

// Close closes the device and waits for the chain to drain.
func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	err := c.device.Close()
	<-c.done
	return err
}
