package gateway

import (
	"encoding/binary"
	"log"
	"sync"
	"time"

	"relay-backend/internal/model"
)

// WebSocket frame opcodes used on the wire. Kept local so the hub depends on
// the Conn interface only.
const (
	textMessage  = 1
	closeMessage = 8
)

// Conn is the slice of the WebSocket connection the gateway uses. Satisfied
// by *websocket.Conn; tests plug in an in-memory double.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one live WebSocket connection with its ordered outbound queue.
// All writes go through the queue goroutine; per-connection ordering follows
// from the single writer.
type client struct {
	connectionID string
	sessionID    string
	role         model.Role
	targetLang   string
	conn         Conn

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	// gone is called exactly once, from the write loop or close path, so the
	// gateway can reap the registry entry.
	gone func(*client)
}

func newClient(connectionID, sessionID string, role model.Role, targetLang string, conn Conn, queueSize int, gone func(*client)) *client {
	if queueSize < 1 {
		queueSize = 1
	}
	return &client{
		connectionID: connectionID,
		sessionID:    sessionID,
		role:         role,
		targetLang:   targetLang,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		gone:         gone,
	}
}

// writeLoop drains the outbound queue. A write failure or timeout marks the
// connection gone; queued frames after that are discarded.
func (c *client) writeLoop(sendTimeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.conn.WriteMessage(textMessage, frame)
			c.writeMu.Unlock()
			if err != nil {
				log.Printf("[Gateway] Write failed on %s: %v", c.connectionID, err)
				c.gone(c)
				return
			}
		}
	}
}

// enqueue never blocks. A full queue means the consumer stopped reading;
// the frame is dropped and the slow connection logged.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		log.Printf("[Gateway] Send queue full on %s, dropping frame", c.connectionID)
	}
}

// shutdown stops the write loop, flushes any final frames, sends a close
// frame and closes the socket. Safe to call more than once.
func (c *client) shutdown(code int, reason string, final ...[]byte) {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		for _, frame := range final {
			_ = c.conn.WriteMessage(textMessage, frame)
		}
		_ = c.conn.WriteMessage(closeMessage, closeFrame(code, reason))
		_ = c.conn.Close()
	})
}

func closeFrame(code int, text string) []byte {
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], text)
	return buf
}
