package bmp280

import (
	"errors"
	"math"
	"testing"

	"github.com/kidoman/embd"
	"github.com/westphae/gorocket/sensors"
)

// fakeBus serves register reads from a map and records register writes.
type fakeBus struct {
	embd.I2CBus
	regs   map[byte][]byte
	writes map[byte]byte
	fail   bool
}

func (b *fakeBus) ReadFromReg(addr, reg byte, value []byte) error {
	if b.fail {
		return errors.New("nack")
	}
	copy(value, b.regs[reg])
	return nil
}

func (b *fakeBus) WriteByteToReg(addr, reg, value byte) error {
	if b.fail {
		return errors.New("nack")
	}
	b.writes[reg] = value
	return nil
}

// Datasheet example values: T1..T3, P1..P9.
var datasheetCalibration = []byte{
	112, 107, 67, 103, 0x18, 0xFC,
	125, 142, 67, 214, 208, 11, 39, 11, 140, 0, 249, 255, 140, 60, 248, 198, 112, 23,
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs: map[byte][]byte{
			RegisterChipID:   {ChipID3},
			RegisterCompData: datasheetCalibration,
			// raw_press 415148, raw_temp 519888
			RegisterPressDataMSB: {101, 90, 0xC0, 126, 237, 0x00},
			RegisterControl:      {0x57},
		},
		writes: make(map[byte]byte),
	}
}

func TestBMP280Math(t *testing.T) {
	bmp := BMP280{
		DigT: map[int]int32{
			1: 27504,
			2: 26435,
			3: -1000,
		},
		DigP: map[int]int64{
			1: 36477,
			2: -10685,
			3: 3024,
			4: 2855,
			5: 140,
			6: -7,
			7: 15500,
			8: -14600,
			9: 6000,
		},
	}

	temp := bmp.CalcCompensatedTemp(519888)
	press := bmp.CalcCompensatedPress(415148)

	if bmp.T_fine != 128422 {
		t.Errorf("t_fine mismatch: calculated %d, should be %d", bmp.T_fine, 128422)
	}
	if math.Abs(temp-25.08) > 0.01 {
		t.Errorf("temp mismatch: calculated %f, should be %f", temp, 25.08)
	}
	if math.Abs(press-1006.5327) > 0.001 {
		t.Errorf("press mismatch: calculated %f, should be %f", press, 1006.5327)
	}
}

func TestInitAndUpdate(t *testing.T) {
	bus := newFakeBus()
	bmp := New(bus, Address1)

	if err := bmp.Update(); !errors.Is(err, sensors.ErrNotInitialized) {
		t.Fatalf("update before init: got %v", err)
	}

	if err := bmp.Init(); err != nil {
		t.Fatalf("init: %s", err)
	}
	if bus.writes[RegisterSoftReset] != SoftResetCode {
		t.Errorf("expected soft reset to be written")
	}
	if bus.writes[RegisterControl] != bmp.control || bus.writes[RegisterConfig] != bmp.config {
		t.Errorf("settings not written: %v", bus.writes)
	}
	if bmp.DigT[3] != -1000 || bmp.DigP[6] != -7 || bmp.DigP[8] != -14600 {
		t.Errorf("calibration decoded wrongly: T %v P %v", bmp.DigT, bmp.DigP)
	}

	if err := bmp.Update(); err != nil {
		t.Fatalf("update: %s", err)
	}
	d := bmp.Data()
	if math.Abs(d.Temperature-25.08) > 0.01 || math.Abs(d.Pressure-1006.5327) > 0.001 {
		t.Errorf("unexpected data %+v", d)
	}
	if math.Abs(d.Altitude-CalcAltitude(d.Pressure)) > 1e-9 || d.Altitude < 50 || d.Altitude > 60 {
		t.Errorf("unexpected altitude %f", d.Altitude)
	}
}

func TestInitRejectsWrongChip(t *testing.T) {
	bus := newFakeBus()
	bus.regs[RegisterChipID] = []byte{0x60}
	if err := New(bus, Address2).Init(); err == nil {
		t.Error("expected chip ID error")
	}

	bus.fail = true
	if err := New(bus, Address2).Init(); err == nil {
		t.Error("expected bus error")
	}
}

func TestCalcAltitudeAtReferencePressure(t *testing.T) {
	if a := CalcAltitude(QNH); math.Abs(a) > 1e-9 {
		t.Errorf("altitude at QNH should be 0, got %f", a)
	}
	if CalcAltitude(900) <= CalcAltitude(1000) {
		t.Error("altitude must increase as pressure falls")
	}
}
