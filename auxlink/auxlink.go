// Package auxlink exchanges the one-byte go/no-go tokens with the auxiliary
// computer before flight.
package auxlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"
)

// Token is a handshake byte.
type Token byte

const (
	NIL Token = 0x00
	AOK Token = 0x01
	ERR Token = 0x02
)

func (t Token) String() string {
	switch t {
	case NIL:
		return "NIL"
	case AOK:
		return "AOK"
	case ERR:
		return "ERR"
	}
	return fmt.Sprintf("token(0x%02x)", byte(t))
}

var (
	ErrTimeout  = errors.New("aux link handshake timed out")
	ErrRejected = errors.New("aux link replied no-go")
)

// pollInterval bounds each blocking read so the deadline and context are
// checked regularly.
const pollInterval = 100 * time.Millisecond

// Port is the part of a serial port the handshake needs. serial.Port satisfies it.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// Open opens the serial device at 8N1.
func Open(device string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening aux link %s: %w", device, err)
	}
	return port, nil
}

// Handshake writes token and waits at most timeout for the reply token.
// It returns the reply and nil only when the reply is AOK; any other reply
// returns ErrRejected, and no reply within timeout returns ErrTimeout.
func Handshake(ctx context.Context, port Port, token Token, timeout time.Duration, clk clock.Clock) (Token, error) {
	if clk == nil {
		clk = clock.New()
	}
	if _, err := port.Write([]byte{byte(token)}); err != nil {
		return NIL, fmt.Errorf("sending %s: %w", token, err)
	}

	deadline := clk.Now().Add(timeout)
	var buf [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return NIL, err
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return NIL, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		if err := port.SetReadTimeout(remaining); err != nil {
			return NIL, fmt.Errorf("setting read timeout: %w", err)
		}

		n, err := port.Read(buf[:])
		if err != nil && !errors.Is(err, io.EOF) {
			return NIL, fmt.Errorf("reading reply: %w", err)
		}
		if n == 0 {
			continue
		}
		reply := Token(buf[0])
		if reply != AOK {
			return reply, fmt.Errorf("%w: %s", ErrRejected, reply)
		}
		return reply, nil
	}
}
