/*
Reference 1: https://github.com/BoschSensortec/BMP280_driver
Reference 2: https://forums.adafruit.com/viewtopic.php?f=19&t=89049
*/

// Package bmp280 is the barometer capability object for a Bosch BMP280 on an I2C bus.
package bmp280

import (
	"fmt"
	"math"
	"time"

	"github.com/kidoman/embd"
	"github.com/westphae/gorocket/sensors"
)

const resetDelay = 2 * time.Millisecond

// BMP280 reads pressure and temperature from the chip on each Update.
// It does not run a goroutine: the flight loop owns the bus.
type BMP280 struct {
	bus embd.I2CBus

	Address byte
	ChipID  byte
	config  byte
	control byte

	DigT map[int]int32
	DigP map[int]int64

	T_fine int32

	raw  []byte
	data sensors.BaroData
	ok   bool
}

/*
New returns a BMP280 with the flight settings: normal mode, 0.5ms standby,
filter coefficient 4, 2x temperature and 16x pressure oversampling.
address is one of bmp280.Address1 (0x76) or bmp280.Address2 (0x77).
Nothing is written to the chip until Init.
*/
func New(bus embd.I2CBus, address byte) *BMP280 {
	return &BMP280{
		bus:     bus,
		Address: address,
		config:  (StandbyTime1ms << 5) + (FilterCoeff4 << 2),
		control: (Oversamp2x << 5) + (Oversamp16x << 2) + NormalMode,
		DigT:    make(map[int]int32),
		DigP:    make(map[int]int64),
		raw:     make([]byte, 6),
	}
}

// Init checks the chip ID, resets the chip, applies the settings and reads the
// factory calibration.
func (bmp *BMP280) Init() error {
	v := make([]byte, 1)
	if err := bmp.i2cReadBytes(RegisterChipID, v); err != nil {
		return fmt.Errorf("bmp280: couldn't find chip at address %x: %w", bmp.Address, err)
	}
	if v[0] != ChipID1 && v[0] != ChipID2 && v[0] != ChipID3 {
		return fmt.Errorf("bmp280: wrong ChipID, got %x", v[0])
	}
	bmp.ChipID = v[0]

	if err := bmp.i2cWrite(RegisterSoftReset, SoftResetCode); err != nil {
		return err
	}
	time.Sleep(resetDelay)
	if err := bmp.i2cWrite(RegisterControl, bmp.control); err != nil {
		return err
	}
	if err := bmp.i2cWrite(RegisterConfig, bmp.config); err != nil {
		return err
	}
	if err := bmp.ReadCorrectionSettings(); err != nil {
		return err
	}

	bmp.ok = true
	return nil
}

// Update reads the latest conversion from the chip.
func (bmp *BMP280) Update() error {
	if !bmp.ok {
		return sensors.ErrNotInitialized
	}
	if err := bmp.i2cReadBytes(RegisterPressDataMSB, bmp.raw); err != nil {
		return err
	}
	raw := bmp.raw

	// combine 3 bytes  msb 12 bits left, lsb 4 bits left, xlsb 4 bits right
	rawPress := (int64(raw[0]) << 12) + (int64(raw[1]) << 4) + (int64(raw[2]) >> 4)
	rawTemp := (int32(raw[3]) << 12) + (int32(raw[4]) << 4) + (int32(raw[5]) >> 4)

	bmp.data.Temperature = bmp.CalcCompensatedTemp(rawTemp)
	bmp.data.Pressure = bmp.CalcCompensatedPress(rawPress)
	bmp.data.Altitude = CalcAltitude(bmp.data.Pressure)
	return nil
}

// Data returns the values read by the last successful Update.
func (bmp *BMP280) Data() sensors.BaroData {
	return bmp.data
}

// Close puts the chip to sleep.
func (bmp *BMP280) Close() error {
	return bmp.SetPowerMode(SleepMode)
}

// ReadCorrectionSettings is used to read correction settings for the chip, set at the
// factory to read properly calibrated temperature and pressure.
func (bmp *BMP280) ReadCorrectionSettings() error {
	raw := make([]byte, 24)

	if err := bmp.i2cReadBytes(RegisterCompData, raw); err != nil {
		return fmt.Errorf("bmp280: error reading calibration: %w", err)
	}

	bmp.DigT[1] = int32(raw[1])<<8 + int32(raw[0])
	for i := 1; i < 3; i++ {
		bmp.DigT[i+1] = int32(int16(raw[2*i+1])<<8 + int16(raw[2*i]))
	}

	bmp.DigP[1] = int64(raw[7])<<8 + int64(raw[6])
	for i := 1; i < 9; i++ {
		bmp.DigP[i+1] = int64(int16(raw[2*i+7])<<8 + int16(raw[2*i+6]))
	}

	return nil
}

// CalcCompensatedTemp converts the raw measurement from the sensor, a 32-bit int,
// to an actual float temperature in deg C.
func (bmp *BMP280) CalcCompensatedTemp(rawTemp int32) (temp float64) {
	var var1, var2, t int32

	var1 = (((rawTemp >> 3) - (bmp.DigT[1] << 1)) * bmp.DigT[2]) >> 11
	var2 = (((((rawTemp >> 4) - bmp.DigT[1]) * ((rawTemp >> 4) - bmp.DigT[1])) >> 12) * bmp.DigT[3]) >> 14
	bmp.T_fine = var1 + var2
	t = (bmp.T_fine*5 + 128) >> 8
	temp = float64(t) / 100 // Temperature in degC
	return
}

// CalcCompensatedPress converts the raw measurement from the sensor, a 64-bit int,
// to an actual float pressure in hPa.
func (bmp *BMP280) CalcCompensatedPress(rawPress int64) (press float64) {
	var var1, var2, p int64

	var1 = int64(bmp.T_fine) - 128000
	var2 = var1 * var1 * bmp.DigP[6]
	var2 += (var1 * bmp.DigP[5]) << 17
	var2 += bmp.DigP[4] << 35
	var1 = ((var1 * var1 * bmp.DigP[3]) >> 8) + ((var1 * bmp.DigP[2]) << 12)
	var1 = ((int64(1) << 47) + var1) * bmp.DigP[1] >> 33
	if var1 == 0 {
		return 0
	}
	p = 1048576 - rawPress
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (bmp.DigP[9] * (p >> 13) * (p >> 13)) >> 25
	var2 = (bmp.DigP[8] * p) >> 19
	p = ((p + var1 + var2) >> 8) + (bmp.DigP[7] << 4)
	press = float64(p) / 25600
	return
}

// CalcAltitude converts pressure in hPa to pressure altitude in m.
func CalcAltitude(press float64) (altitude float64) {
	altitude = 44330.77 * (1.0 - math.Pow(press/QNH, 0.190284))
	return
}

// SetPowerMode sets the power mode of the chip.
// Possible values are:
// bmp280.SleepMode     = 0x00
// bmp280.ForcedMode    = 0x01
// bmp280.NormalMode    = 0x03
// See BMP280 datasheet for explanations.
func (bmp *BMP280) SetPowerMode(powerMode byte) error {
	v := make([]byte, 1)
	if errv := bmp.i2cReadBytes(RegisterControl, v); errv != nil {
		return fmt.Errorf("bmp280 error: couldn't read power mode: %w", errv)
	}
	v[0] = (v[0] & 0xfc) | powerMode

	if errv := bmp.i2cWrite(RegisterControl, v[0]); errv != nil {
		return fmt.Errorf("bmp280 error: couldn't write power mode: %w", errv)
	}
	return nil
}

func (bmp *BMP280) i2cWrite(register, value byte) error {
	if err := bmp.bus.WriteByteToReg(bmp.Address, register, value); err != nil {
		return fmt.Errorf("bmp280 error writing %X to %X: %w", value, register, err)
	}
	return nil
}

func (bmp *BMP280) i2cReadBytes(register byte, value []byte) error {
	if err := bmp.bus.ReadFromReg(bmp.Address, register, value); err != nil {
		return fmt.Errorf("bmp280 error reading from %X: %w", register, err)
	}
	return nil
}
