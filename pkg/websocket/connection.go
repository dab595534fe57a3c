package websocket

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

// Connection states.
const (
	StateOpen ConnState = iota
	StateClosed
)

func (s ConnState) String() string {
	if s == StateOpen {
		return "OPEN"
	}
	return "CLOSED"
}

// Conn is the server side of an upgraded connection. Frames are read by a
// single goroutine; writes may come from any goroutine and are serialised.
type Conn struct {
	// nc is the underlying network connection.
	nc net.Conn
	// reader decodes client frames.
	reader *FrameReader
	// createdAt is the time the upgrade completed.
	createdAt time.Time

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	// writeMu serialises writes so that frames never interleave.
	writeMu      sync.Mutex
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// NewConn wraps an upgraded connection. br must be the reader the
// handshake was read from, or nil to read from nc directly.
func NewConn(nc net.Conn, br *bufio.Reader) *Conn {
	if br == nil {
		br = bufio.NewReader(nc)
	}
	return &Conn{
		nc:           nc,
		reader:       NewFrameReader(br),
		createdAt:    time.Now(),
		writeTimeout: 10 * time.Second,
	}
}

// SetWriteTimeout bounds every frame write. Zero disables the bound.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.writeTimeout = d
}

// SetIdleTimeout closes the read side when no frame starts within d.
// Zero disables the bound. It must be called before reading starts.
func (c *Conn) SetIdleTimeout(d time.Duration) {
	c.idleTimeout = d
}

// ReadFrame reads the next frame from the client.
func (c *Conn) ReadFrame() (*Frame, error) {
	if c.State() == StateClosed {
		return nil, ErrConnectionClosed
	}

	var deadline time.Time
	if c.idleTimeout > 0 {
		deadline = time.Now().Add(c.idleTimeout)
	}
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	return c.reader.ReadFrame()
}

// DecodeState reports where the last ReadFrame stopped.
func (c *Conn) DecodeState() DecodeState {
	return c.reader.State()
}

// Send writes an already encoded frame in a single write. A failed write
// may have delivered part of the frame, so it closes the connection; later
// sends return ErrConnectionClosed.
func (c *Conn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() == StateClosed {
		return ErrConnectionClosed
	}

	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			_ = c.Close()
			return err
		}
	}

	if _, err := c.nc.Write(frame); err != nil {
		_ = c.Close()
		return err
	}
	return nil
}

// WriteText encodes payload as a text frame and sends it.
func (c *Conn) WriteText(payload []byte) error {
	frame, err := EncodeText(payload)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// State returns the lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// CreatedAt returns the time the connection was upgraded.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}
