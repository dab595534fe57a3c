package websocket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// acceptOne runs the server side of the handshake on nc and returns the
// upgraded connection.
func acceptOne(t *testing.T, nc net.Conn) (*Conn, error) {
	t.Helper()
	br := bufio.NewReader(nc)
	req, err := ReadHandshakeRequest(br)
	if err != nil {
		return nil, err
	}
	key, err := ValidateUpgrade(req)
	if err != nil {
		return nil, err
	}
	if err := WriteHandshakeResponse(nc, key); err != nil {
		return nil, err
	}
	return NewConn(nc, br), nil
}

func pipe(t *testing.T) (*Conn, *ClientConn) {
	t.Helper()
	serverNC, clientNC := net.Pipe()
	t.Cleanup(func() {
		serverNC.Close()
		clientNC.Close()
	})

	type result struct {
		conn *Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := acceptOne(t, serverNC)
		ch <- result{c, err}
	}()

	cc, err := NewClientConn(clientNC, "example.test", "/")
	if err != nil {
		t.Fatalf("NewClientConn() error = %v", err)
	}
	res := <-ch
	if res.err != nil {
		t.Fatalf("server handshake error = %v", res.err)
	}
	return res.conn, cc
}

// TestConnExchange tests a masked client frame and an unmasked reply.
func TestConnExchange(t *testing.T) {
	conn, cc := pipe(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- cc.WriteText([]byte(`{"type":"JOIN_ROOM"}`))
	}()

	f, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if !f.Masked || string(f.Payload) != `{"type":"JOIN_ROOM"}` {
		t.Errorf("server got %+v", f)
	}

	go func() {
		errCh <- conn.WriteText([]byte("reply"))
	}()
	f, err = cc.ReadFrame()
	if err != nil {
		t.Fatalf("client ReadFrame() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server WriteText() error = %v", err)
	}
	if f.Masked || string(f.Payload) != "reply" {
		t.Errorf("client got %+v", f)
	}
}

// TestConnUnmaskedFrame tests that an unmasked client frame is a protocol
// violation.
func TestConnUnmaskedFrame(t *testing.T) {
	conn, cc := pipe(t)

	go cc.WriteRaw([]byte{0x81, 0x02, 'h', 'i'})

	_, err := conn.ReadFrame()
	if !errors.Is(err, ErrProtocolViolation) || !errors.Is(err, ErrUnmaskedFrame) {
		t.Fatalf("ReadFrame() error = %v, want %v", err, ErrUnmaskedFrame)
	}
	if conn.DecodeState() != StateAwaitingLength {
		t.Errorf("DecodeState() = %v, want %v", conn.DecodeState(), StateAwaitingLength)
	}
}

// TestConnClose tests that Close is idempotent and stops sends.
func TestConnClose(t *testing.T) {
	conn, _ := pipe(t)

	if conn.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", conn.State(), StateOpen)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	conn.Close()

	if conn.State() != StateClosed {
		t.Errorf("State() = %v, want %v", conn.State(), StateClosed)
	}
	if err := conn.Send([]byte{0x81, 0x00}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send() error = %v, want %v", err, ErrConnectionClosed)
	}
	if _, err := conn.ReadFrame(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("ReadFrame() error = %v, want %v", err, ErrConnectionClosed)
	}
}

// TestConnSendFailureCloses tests that a write cut short by the write
// timeout closes the connection instead of leaving half a frame on the wire.
func TestConnSendFailureCloses(t *testing.T) {
	conn, cc := pipe(t)
	conn.SetWriteTimeout(50 * time.Millisecond)

	// The peer reads the first 5 of 22 bytes and then stalls.
	go func() {
		buf := make([]byte, 5)
		_, _ = io.ReadFull(cc.nc, buf)
	}()

	err := conn.WriteText([]byte("twenty bytes payload"))
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Fatalf("WriteText() error = %v, want timeout", err)
	}
	if conn.State() != StateClosed {
		t.Errorf("State() = %v, want %v", conn.State(), StateClosed)
	}
	if err := conn.Send([]byte{0x81, 0x00}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send() error = %v, want %v", err, ErrConnectionClosed)
	}
}

type countingConn struct {
	net.Conn
	writes int
}

func (c *countingConn) Write(b []byte) (int, error) {
	c.writes++
	return c.Conn.Write(b)
}

// TestClientCloseOnce tests that only the first Close sends a close frame.
func TestClientCloseOnce(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	go func() {
		_, _ = io.Copy(io.Discard, remote)
	}()

	nc := &countingConn{Conn: local}
	cc := &ClientConn{nc: nc, reader: newServerFrameReader(nc)}

	if err := cc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := cc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if nc.writes != 1 {
		t.Errorf("writes = %d, want 1", nc.writes)
	}
}

// TestConnIdleTimeout tests that a silent client times out.
func TestConnIdleTimeout(t *testing.T) {
	conn, _ := pipe(t)
	conn.SetIdleTimeout(20 * time.Millisecond)

	_, err := conn.ReadFrame()
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Errorf("ReadFrame() error = %v, want timeout", err)
	}
}

// TestClientHandshakeRejected tests a non-101 response.
func TestClientHandshakeRejected(t *testing.T) {
	serverNC, clientNC := net.Pipe()
	defer serverNC.Close()
	defer clientNC.Close()

	go func() {
		br := bufio.NewReader(serverNC)
		if _, err := ReadHandshakeRequest(br); err != nil {
			return
		}
		WriteHandshakeRejection(serverNC, 400)
	}()

	_, err := NewClientConn(clientNC, "example.test", "/")
	var herr *HandshakeError
	if !errors.Is(err, ErrHandshakeRejected) || !errors.As(err, &herr) || herr.Status != 400 {
		t.Errorf("NewClientConn() error = %v, want rejection with status 400", err)
	}
}

// TestClientAcceptMismatch tests a server answering with a wrong token.
func TestClientAcceptMismatch(t *testing.T) {
	serverNC, clientNC := net.Pipe()
	defer serverNC.Close()
	defer clientNC.Close()

	go func() {
		br := bufio.NewReader(serverNC)
		if _, err := ReadHandshakeRequest(br); err != nil {
			return
		}
		serverNC.Write([]byte(BuildHandshakeResponse("bogus")))
	}()

	_, err := NewClientConn(clientNC, "example.test", "/")
	if !errors.Is(err, ErrSecAcceptMismatch) {
		t.Errorf("NewClientConn() error = %v, want %v", err, ErrSecAcceptMismatch)
	}
}
