package sim

import (
	"encoding/binary"
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// ErrNack is returned for transfers to an address nobody answers.
var ErrNack = errors.New("i2c: no acknowledge")

var _ drivers.I2C = (*BMP280Chip)(nil)

const (
	bmpRegCalib  = 0x88
	bmpRegID     = 0xD0
	bmpRegPress  = 0xF7
	bmpRegTemp   = 0xFA
	bmpChipID    = 0x58
	bmpCalibSize = 24
)

// Datasheet example trimming parameters (BST-BMP280-DS001, section 3.12).
var bmpCalibration = [12]int32{
	27504, 26435, -1000, // T1..T3
	36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000, // P1..P9
}

const (
	// Raw readings that compensate to 25.08 °C and 100653.27 Pa with the
	// calibration above.
	BMP280RawTemperature int32 = 519888
	BMP280RawPressure    int32 = 415148
)

// BMP280Chip emulates the register file of a BMP280 on an I2C bus. Status
// always reads idle, so forced conversions complete immediately.
type BMP280Chip struct {
	mu   sync.Mutex
	addr uint16
	regs [256]byte
	ptr  byte
	txs  int
}

// NewBMP280Chip returns a chip answering at addr with the datasheet
// calibration and example raw readings loaded.
func NewBMP280Chip(addr uint16) *BMP280Chip {
	c := &BMP280Chip{addr: addr}
	c.regs[bmpRegID] = bmpChipID
	for i, v := range bmpCalibration {
		binary.LittleEndian.PutUint16(c.regs[bmpRegCalib+2*i:], uint16(v))
	}
	c.SetRaw(BMP280RawTemperature, BMP280RawPressure)
	return c
}

// SetRaw loads 20-bit ADC readings into the data registers.
func (c *BMP280Chip) SetRaw(temperature, pressure int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	putRaw20(c.regs[bmpRegPress:], pressure)
	putRaw20(c.regs[bmpRegTemp:], temperature)
}

func putRaw20(dst []byte, v int32) {
	dst[0] = byte(v >> 12)
	dst[1] = byte(v >> 4)
	dst[2] = byte(v<<4) & 0xF0
}

// Tx implements drivers.I2C. The first written byte selects the register;
// further written bytes are stored from there on, reads continue from it.
func (c *BMP280Chip) Tx(addr uint16, w, r []byte) error {
	if addr != c.addr {
		return ErrNack
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs++

	if len(w) > 0 {
		c.ptr = w[0]
		for i, b := range w[1:] {
			reg := c.ptr + byte(i)
			if reg == bmpRegID || (reg >= bmpRegCalib && reg < bmpRegCalib+bmpCalibSize) {
				continue
			}
			c.regs[reg] = b
		}
	}
	for i := range r {
		r[i] = c.regs[c.ptr+byte(i)]
	}
	return nil
}

// Transfers returns the number of transactions addressed to the chip.
func (c *BMP280Chip) Transfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs
}
