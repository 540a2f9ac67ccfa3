package ws

import (
	"net"
	"sync"
	"time"
)

// transport is the live handle the registry closes connections through. Its
// Close emits a proper close frame before releasing the socket.
type transport struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newTransport(conn net.Conn, writeTimeout time.Duration) *transport {
	return &transport{conn: conn, writeTimeout: writeTimeout}
}

func (t *transport) write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return net.ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	_, err := t.conn.Write(frame)
	return err
}

// WriteText sends a single unfragmented text frame.
func (t *transport) WriteText(payload []byte) error {
	return t.write(EncodeFrame(OpcodeText, payload))
}

// WritePong echoes a ping payload.
func (t *transport) WritePong(payload []byte) error {
	return t.write(EncodeFrame(OpcodePong, payload))
}

// Close sends a close frame with the given status code, then tears the
// socket down. Safe to call more than once.
func (t *transport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	_, writeErr := t.conn.Write(EncodeClose(code, reason))
	closeErr := t.conn.Close()
	t.mu.Unlock()

	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
