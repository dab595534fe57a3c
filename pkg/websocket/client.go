package websocket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientConn is the client side of a connection. Its frames are masked on
// write and must arrive unmasked on read.
type ClientConn struct {
	nc      net.Conn
	reader  *FrameReader
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr and performs the upgrade handshake for path.
func Dial(ctx context.Context, addr, path string) (*ClientConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	cc, err := NewClientConn(nc, addr, path)
	if err != nil {
		nc.Close()
		return nil, err
	}

	_ = nc.SetDeadline(time.Time{})
	return cc, nil
}

// NewClientConn performs the client handshake over an established
// connection.
func NewClientConn(nc net.Conn, host, path string) (*ClientConn, error) {
	if path == "" {
		path = "/"
	}

	key, err := GenerateSecKey()
	if err != nil {
		return nil, err
	}

	req := fmt.Sprintf("GET %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", path, host, key)
	if _, err := io.WriteString(nc, req); err != nil {
		return nil, fmt.Errorf("failed to write upgrade request: %w", err)
	}

	br := bufio.NewReader(nc)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read upgrade response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, &HandshakeError{Err: ErrHandshakeRejected, Status: resp.StatusCode}
	}
	if !VerifyAcceptKey(key, resp.Header.Get("Sec-WebSocket-Accept")) {
		return nil, &HandshakeError{Err: ErrSecAcceptMismatch, Status: resp.StatusCode}
	}

	return &ClientConn{nc: nc, reader: newServerFrameReader(br)}, nil
}

// WriteText sends payload as a masked text frame.
func (c *ClientConn) WriteText(payload []byte) error {
	return c.WriteFrame(OpcodeText, payload)
}

// WriteFrame sends payload as a masked final frame with the given opcode.
func (c *ClientConn) WriteFrame(op Opcode, payload []byte) error {
	frame, err := EncodeMasked(op, payload)
	if err != nil {
		return err
	}
	return c.WriteRaw(frame)
}

// WriteRaw writes b to the connection as is.
func (c *ClientConn) WriteRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(b)
	return err
}

// ReadFrame reads the next frame sent by the server.
func (c *ClientConn) ReadFrame() (*Frame, error) {
	return c.reader.ReadFrame()
}

// SetReadDeadline sets the deadline for future ReadFrame calls.
func (c *ClientConn) SetReadDeadline(t time.Time) error {
	return c.nc.SetReadDeadline(t)
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once; only the first call writes.
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.WriteFrame(OpcodeClose, nil)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
