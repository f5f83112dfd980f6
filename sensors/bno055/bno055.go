// Package bno055 is the inertial unit capability object for a Bosch BNO055
// running its on-chip fusion (NDOF mode) on an I2C bus.
package bno055

import (
	"fmt"
	"time"

	"github.com/kidoman/embd"
	"github.com/westphae/gorocket/sensors"
)

const (
	// I2C Address Definitions
	Address1 = 0x28
	Address2 = 0x29

	ChipID = 0xA0

	// Operating modes
	ModeConfig = 0x00
	ModeNDOF   = 0x0C

	PowerNormal  = 0x00
	ResetTrigger = 0x20

	// Registers
	RegisterChipID    = 0x00
	RegisterAccelData = 0x08 // Start of accel, mag, gyro, euler, quaternion block
	RegisterTemp      = 0x34
	RegisterUnitSel   = 0x3B
	RegisterOprMode   = 0x3D
	RegisterPwrMode   = 0x3E
	RegisterSysTrig   = 0x3F

	dataBlockLen = 32

	scaleAccel = 1.0 / 100     // m/s² per LSB
	scaleGyro  = 1.0 / 16      // °/s per LSB
	scaleQuat  = 1.0 / (1 << 14)

	resetDelay  = 650 * time.Millisecond
	switchDelay = 20 * time.Millisecond
)

// BNO055 reads the fused orientation and raw rates on each Update.
type BNO055 struct {
	bus     embd.I2CBus
	Address byte

	block []byte
	temp  []byte
	data  sensors.IMUData
	ok    bool

	sleep func(time.Duration)
}

// New returns a BNO055 at the given address. Nothing is written until Init.
func New(bus embd.I2CBus, address byte) *BNO055 {
	return &BNO055{
		bus:     bus,
		Address: address,
		block:   make([]byte, dataBlockLen),
		temp:    make([]byte, 1),
		sleep:   time.Sleep,
	}
}

// Init checks the chip ID, resets the chip and starts NDOF fusion with
// m/s², °/s and °C units.
func (imu *BNO055) Init() error {
	v := make([]byte, 1)
	if err := imu.read(RegisterChipID, v); err != nil {
		return fmt.Errorf("bno055: couldn't find chip at address %x: %w", imu.Address, err)
	}
	if v[0] != ChipID {
		return fmt.Errorf("bno055: wrong ChipID, got %x", v[0])
	}

	steps := []struct {
		reg, val byte
		delay    time.Duration
	}{
		{RegisterOprMode, ModeConfig, switchDelay},
		{RegisterSysTrig, ResetTrigger, resetDelay},
		{RegisterPwrMode, PowerNormal, 0},
		{RegisterUnitSel, 0x00, 0}, // m/s², °/s, °C
		{RegisterSysTrig, 0x00, 0},
		{RegisterOprMode, ModeNDOF, switchDelay},
	}
	for _, s := range steps {
		if err := imu.write(s.reg, s.val); err != nil {
			return err
		}
		if s.delay > 0 {
			imu.sleep(s.delay)
		}
	}

	imu.ok = true
	return nil
}

// Update reads accel, gyro, quaternion and temperature in two bus transactions.
func (imu *BNO055) Update() error {
	if !imu.ok {
		return sensors.ErrNotInitialized
	}
	if err := imu.read(RegisterAccelData, imu.block); err != nil {
		return err
	}
	if err := imu.read(RegisterTemp, imu.temp); err != nil {
		return err
	}

	b := imu.block
	imu.data.A1 = float64(le16(b, 0)) * scaleAccel
	imu.data.A2 = float64(le16(b, 2)) * scaleAccel
	imu.data.A3 = float64(le16(b, 4)) * scaleAccel
	imu.data.G1 = float64(le16(b, 12)) * scaleGyro
	imu.data.G2 = float64(le16(b, 14)) * scaleGyro
	imu.data.G3 = float64(le16(b, 16)) * scaleGyro
	imu.data.Q0 = float64(le16(b, 24)) * scaleQuat
	imu.data.Q1 = float64(le16(b, 26)) * scaleQuat
	imu.data.Q2 = float64(le16(b, 28)) * scaleQuat
	imu.data.Q3 = float64(le16(b, 30)) * scaleQuat
	imu.data.Temp = int8(imu.temp[0])
	return nil
}

// Data returns the values read by the last successful Update.
func (imu *BNO055) Data() sensors.IMUData {
	return imu.data
}

// le16 decodes the signed little-endian word at offset i.
func le16(b []byte, i int) int16 {
	return int16(uint16(b[i]) | uint16(b[i+1])<<8)
}

func (imu *BNO055) write(register, value byte) error {
	if err := imu.bus.WriteByteToReg(imu.Address, register, value); err != nil {
		return fmt.Errorf("bno055 error writing %X to %X: %w", value, register, err)
	}
	return nil
}

func (imu *BNO055) read(register byte, value []byte) error {
	if err := imu.bus.ReadFromReg(imu.Address, register, value); err != nil {
		return fmt.Errorf("bno055 error reading from %X: %w", register, err)
	}
	return nil
}
