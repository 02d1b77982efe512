package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/hub"
)

// Run runs the hub firmware on a simulated board over t until ctx is done.
// RESET reboots it with a fresh clock and board, the way a microcontroller
// restarts.
func Run(ctx context.Context, cfg *config.Config, t hub.Transport, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hc, err := cfg.HubConfig()
	if err != nil {
		return fmt.Errorf("invalid hub config: %w", err)
	}

	for {
		clock := hub.NewSystemClock()
		board, err := NewBoard(&cfg.Mock, clock)
		if err != nil {
			return fmt.Errorf("failed to create simulated board: %w", err)
		}
		h, err := hub.New(hc, board, clock, t, hub.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create hub: %w", err)
		}

		err = h.Run(ctx)
		if errors.Is(err, hub.ErrReset) {
			logger.Info("simulated hub restarting")
			continue
		}
		return err
	}
}
