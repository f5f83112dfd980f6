package sim

import (
	"sync"
	"time"

	"github.com/westphae/gorocket/auxlink"
)

// AuxPeer is a simulated auxiliary computer on the serial link. It answers
// every token it receives with Reply.
type AuxPeer struct {
	Reply auxlink.Token

	mu       sync.Mutex
	timeout  time.Duration
	pending  int
	received []auxlink.Token
}

// NewAuxPeer returns a peer that answers with reply.
func NewAuxPeer(reply auxlink.Token) *AuxPeer {
	return &AuxPeer{Reply: reply}
}

func (a *AuxPeer) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range p {
		a.received = append(a.received, auxlink.Token(b))
		a.pending++
	}
	return len(p), nil
}

// Read returns one reply per token received, or nothing after the read
// timeout like a serial port does.
func (a *AuxPeer) Read(p []byte) (int, error) {
	a.mu.Lock()
	if a.pending == 0 || len(p) == 0 {
		timeout := a.timeout
		a.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}
	defer a.mu.Unlock()
	a.pending--
	p[0] = byte(a.Reply)
	return 1, nil
}

func (a *AuxPeer) SetReadTimeout(t time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeout = t
	return nil
}

// Received returns the tokens the flight computer sent.
func (a *AuxPeer) Received() []auxlink.Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auxlink.Token(nil), a.received...)
}
