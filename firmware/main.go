//go:build tinygo

//go:generate tinygo flash -target=arduino

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/itohio/gosensorhub/pkg/hub"
)

func main() {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})
	machine.InitADC()

	cfg := hubConfig()

	// RESET restarts the hub from scratch: fresh clock, fresh detection.
	for {
		clock := hub.NewSystemClock()
		h, err := hub.New(cfg, newBoard(clock), clock, uart)
		if err != nil {
			println("hub:", err.Error())
			time.Sleep(time.Second)
			continue
		}

		if err := h.Run(context.Background()); errors.Is(err, hub.ErrReset) {
			continue
		}
		println("hub stopped")
		time.Sleep(time.Second)
	}
}
