package telemetry

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Decoder reads frames sequentially from a recorded file.
type Decoder struct {
	r   *bufio.Reader
	buf [FrameSize]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next decodes the next frame. It returns io.EOF at a clean end of input and
// ErrShortFrame when the input ends part way through a frame.
func (d *Decoder) Next() (Frame, error) {
	var f Frame
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return f, fmt.Errorf("%w: %v", ErrShortFrame, err)
		}
		return f, err
	}
	err := f.UnmarshalBinary(d.buf[:])
	return f, err
}

// Header is the column row of the converted text file.
var Header = []string{
	"Time",
	"State",
	"Filtered Altitude",
	"Filtered Velocity",
	"Filtered Acceleration",
	"Pressure",
	"Temperature",
	"Barometer Altitude",
	"IMU Temperature",
	"Accel X",
	"Accel Y",
	"Accel Z",
	"Accel Vertical",
	"Gyro X",
	"Gyro Y",
	"Gyro Z",
	"Quat W",
	"Quat X",
	"Quat Y",
	"Quat Z",
	"LP Altitude",
}

// CSVWriter writes frames as comma-separated rows under Header.
type CSVWriter struct {
	w           *csv.Writer
	row         []string
	wroteHeader bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), row: make([]string, len(Header))}
}

func f4(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 4, 32)
}

// Row renders f as the converter's text fields.
func Row(f *Frame, row []string) []string {
	row = append(row[:0],
		f4(f.Time),
		f.Phase.Label(),
		f4(f.Altitude),
		f4(f.Velocity),
		f4(f.Acceleration),
		f4(f.Pressure),
		f4(f.Temperature),
		f4(f.BaroAltitude),
		strconv.Itoa(int(f.IMUTemperature)),
		f4(f.AccelX),
		f4(f.AccelY),
		f4(f.AccelZ),
		f4(f.AccelVertical),
		f4(f.GyroX),
		f4(f.GyroY),
		f4(f.GyroZ),
		f4(f.QuatW),
		f4(f.QuatX),
		f4(f.QuatY),
		f4(f.QuatZ),
		f4(f.LaunchpadAltitude),
	)
	return row
}

// Write emits the header before the first row.
func (c *CSVWriter) Write(f *Frame) error {
	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	c.row = Row(f, c.row)
	return c.w.Write(c.row)
}

// Flush writes buffered rows and reports any write error.
func (c *CSVWriter) Flush() error {
	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	c.w.Flush()
	return c.w.Error()
}

// Convert decodes every frame from r into CSV on w and returns the frame count.
// A truncated final frame is reported after the complete frames are written.
func Convert(r io.Reader, w io.Writer) (int, error) {
	dec := NewDecoder(r)
	out := NewCSVWriter(w)
	n := 0
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ferr := out.Flush(); ferr != nil {
				return n, ferr
			}
			return n, err
		}
		if err := out.Write(&f); err != nil {
			return n, err
		}
		n++
	}
	return n, out.Flush()
}
