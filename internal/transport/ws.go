package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed is returned by Send on a connection that is gone.
	ErrConnClosed = errors.New("connection closed")

	// ErrSlowConsumer is returned when the outbound buffer is full; the
	// caller treats the connection as dead rather than blocking broadcast.
	ErrSlowConsumer = errors.New("send buffer full")
)

const (
	sendBufferSize = 64
	writeTimeout   = 5 * time.Second
)

// WSConn adapts a gorilla websocket connection to the domain Conn
// interface. A single writer goroutine drains a buffered channel, which
// both serializes writes and preserves FIFO order per connection.
type WSConn struct {
	conn      *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSConn wraps an upgraded websocket connection and starts its writer.
func NewWSConn(conn *websocket.Conn) *WSConn {
	w := &WSConn{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WSConn) run() {
	for {
		select {
		case msg := <-w.sendCh:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.shutdown()
				return
			}
		case <-w.done:
			return
		}
	}
}

// Send queues a message for delivery. It never blocks: a full buffer
// means the client cannot keep up and the connection is reported dead.
func (w *WSConn) Send(msg []byte) error {
	select {
	case <-w.done:
		return ErrConnClosed
	default:
	}

	select {
	case w.sendCh <- msg:
		return nil
	case <-w.done:
		return ErrConnClosed
	default:
		return ErrSlowConsumer
	}
}

// Close sends a close frame with the given reason and tears the
// connection down. Safe to call more than once.
func (w *WSConn) Close(reason string) error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
		close(w.done)
		_ = w.conn.Close()
	})
	return nil
}

func (w *WSConn) shutdown() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}
