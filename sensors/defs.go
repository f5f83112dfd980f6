package sensors

import "errors"

// StandardGravity is used when no rest calibration is available, m/s².
const StandardGravity = 9.80665

var ErrNotInitialized = errors.New("sensor not initialized")

// BaroData holds the values measured by a barometer such as a BMP280.
type BaroData struct {
	Pressure    float64 // hPa
	Temperature float64 // °C
	Altitude    float64 // m above mean sea level
}

// IMUData holds the values measured by a fused inertial unit such as a BNO055.
// The quaternion rotates body-frame vectors into the earth frame (Z up).
type IMUData struct {
	A1, A2, A3     float64 // Accelerometer, m/s², body frame
	G1, G2, G3     float64 // Gyro rates, °/s, body frame
	Q0, Q1, Q2, Q3 float64 // Orientation quaternion W, X, Y, Z
	Temp           int8    // °C
}

// Barometer is the capability object wrapping a vendor barometer driver.
type Barometer interface {
	Init() error
	Update() error
	Data() BaroData
}

// IMU is the capability object wrapping a vendor inertial unit driver.
type IMU interface {
	Init() error
	Update() error
	Data() IMUData
}

// Reading is the single polled sample produced each tick.
type Reading struct {
	Pressure     float64
	Temperature  float64
	BaroAltitude float64

	AccelX, AccelY, AccelZ float64
	AccelVertical          float64 // Earth-frame vertical specific force, gravity included
	GyroX, GyroY, GyroZ    float64
	QuatW, QuatX           float64
	QuatY, QuatZ           float64
	IMUTemperature         int8
}

// Calibration is the result of averaging readings while the vehicle rests on the pad.
type Calibration struct {
	LaunchpadAltitude float64
	AltitudeVariance  float64
	Gravity           float64
	AccelVariance     float64
	Samples           int
}
