package telemetry

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 64
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// Downlink broadcasts live frames to websocket clients. Each message is the
// recorded frame followed by the ledger status byte.
// The flight loop only ever does a non-blocking send into it; a full queue
// drops the frame.
type Downlink struct {
	// forward holds messages to be sent to every client.
	forward chan []byte
	join    chan *client
	leave   chan *client
	done    chan struct{}
	clients map[*client]bool

	logger *zap.Logger
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *Downlink
}

// NewDownlink makes a room that is ready to Run.
func NewDownlink(logger *zap.Logger) *Downlink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downlink{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		done:    make(chan struct{}),
		clients: make(map[*client]bool),
		logger:  logger.Named("downlink"),
	}
}

// Run services the room until Close.
func (d *Downlink) Run() {
	for {
		select {
		case <-d.done:
			for c := range d.clients {
				delete(d.clients, c)
				close(c.send)
			}
			return
		case c := <-d.join:
			d.clients[c] = true
			d.logger.Info("client joined", zap.Int("clients", len(d.clients)))
		case c := <-d.leave:
			if d.clients[c] {
				delete(d.clients, c)
				close(c.send)
			}
			d.logger.Info("client left", zap.Int("clients", len(d.clients)))
		case msg := <-d.forward:
			for c := range d.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client, skip this frame
				}
			}
		}
	}
}

// Close stops Run and disconnects every client.
func (d *Downlink) Close() error {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	return nil
}

// Append queues a copy of the frame without blocking.
func (d *Downlink) Append(f *Frame, record []byte) error {
	msg := make([]byte, len(record)+1)
	copy(msg, record)
	msg[len(record)] = f.Status
	select {
	case d.forward <- msg:
	default:
	}
	return nil
}

func (d *Downlink) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   d,
	}
	select {
	case d.join <- c:
	case <-d.done:
		socket.Close()
		return
	}
	go c.write()
	c.read()
	select {
	case d.leave <- c:
	case <-d.done:
	}
}

// read discards anything the client sends until the connection drops.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}
