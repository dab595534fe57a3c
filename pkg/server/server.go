package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/someonegg/gox/syncx"

	"wsrooms/pkg/config"
	"wsrooms/pkg/logging"
	"wsrooms/pkg/registry"
	"wsrooms/pkg/room"
	"wsrooms/pkg/router"
	"wsrooms/pkg/websocket"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
// or after their context is cancelled.
var ErrServerClosed = errors.New("server closed")

// Server accepts connections, upgrades them and routes their envelopes.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	conns  *registry.Registry
	rooms  *room.Manager
	router *router.Router

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	active    map[net.Conn]struct{}
	admin     *http.Server

	stopD    syncx.DoneChan
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server from a validated configuration.
func New(cfg config.Config, logger *slog.Logger) *Server {
	logger = logging.OrNop(logger)

	conns := registry.New(registry.Config{
		MaxConnections:      cfg.MaxConnections,
		MaxConnectionsPerIP: cfg.MaxConnectionsPerIP,
	})
	rooms := room.NewManager(room.WithCapacity(cfg.Rooms.Capacity))

	return &Server{
		cfg:    cfg,
		logger: logger,
		conns:  conns,
		rooms:  rooms,
		router: router.New(rooms, conns, logger, router.Config{
			Acknowledge:       cfg.AcknowledgeMessages,
			MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}),
		listeners: make(map[net.Listener]struct{}),
		active:    make(map[net.Conn]struct{}),
		stopD:     syncx.NewDoneChan(),
	}
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.conns
}

// Rooms returns the room manager.
func (s *Server) Rooms() *room.Manager {
	return s.rooms
}

// ListenAndServe listens on the configured address, starts the admin API
// when an admin address is set, and serves until ctx is done or Shutdown
// is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	if s.cfg.AdminAddr != "" {
		aln, err := net.Listen("tcp", s.cfg.AdminAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen admin %s: %w", s.cfg.AdminAddr, err)
		}
		s.serveAdmin(aln)
	}

	return s.Serve(ctx, ln)
}

func (s *Server) serveAdmin(ln net.Listener) {
	srv := &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.admin = srv
	s.mu.Unlock()

	s.logger.Info("admin API listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin API stopped", logging.Err(err))
		}
	}()
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It always returns a non-nil error; after a shutdown it is ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	serveDone := make(chan struct{})
	defer close(serveDone)
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.stopD:
		case <-serveDone:
		}
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.stopping() {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.trackConn(nc) {
			nc.Close()
			return ErrServerClosed
		}
		go s.handleConn(ctx, nc)
	}
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	s.mu.Lock()
	admin := s.admin
	s.mu.Unlock()

	var errs []error
	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopD.SetDone()
		for ln := range s.listeners {
			ln.Close()
		}
		for nc := range s.active {
			nc.Close()
		}
		s.mu.Unlock()

		s.conns.CloseAll()
		s.logger.Info("server stopped")
	})
}

func (s *Server) stopping() bool {
	return s.stopD.R().Done()
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.stopping() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

// trackConn records an accepted socket and counts its goroutine. It holds
// the same lock as stop, so no goroutine starts once Shutdown is waiting.
func (s *Server) trackConn(nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping() {
		return false
	}
	s.active[nc] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(nc net.Conn) {
	s.mu.Lock()
	delete(s.active, nc)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	defer s.untrackConn(nc)
	defer nc.Close()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("connection panic", "remote", nc.RemoteAddr().String(), "panic", rec)
		}
	}()

	br, ok := s.handshake(nc)
	if !ok {
		return
	}

	conn := websocket.NewConn(nc, br)
	conn.SetWriteTimeout(s.cfg.WriteTimeout)
	conn.SetIdleTimeout(s.cfg.IdleTimeout)

	id, err := s.conns.Register(conn)
	if err != nil {
		s.logger.Warn("connection refused", "remote", nc.RemoteAddr().String(), logging.Err(err))
		return
	}
	defer s.disconnect(id)

	log := s.logger.With(logging.KeyConn, id)
	log.Debug("connection registered", "remote", nc.RemoteAddr().String())

	if s.cfg.AnnounceRegistration {
		if err := s.router.Announce(id); err != nil {
			log.Debug("announce failed", logging.Err(err))
			return
		}
	}

	s.readLoop(ctx, id, conn, log)
}

// handshake reads and answers the upgrade request. On success the returned
// reader holds any bytes the client sent after the request.
func (s *Server) handshake(nc net.Conn) (*bufio.Reader, bool) {
	if s.cfg.HandshakeTimeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	}

	br := bufio.NewReader(nc)
	key, err := readUpgrade(br)
	if err != nil {
		var herr *websocket.HandshakeError
		status := http.StatusBadRequest
		if errors.As(err, &herr) && herr.Status != 0 {
			status = herr.Status
		}
		s.logger.Info("upgrade rejected",
			"remote", nc.RemoteAddr().String(),
			"status", status,
			logging.Err(err))
		_ = websocket.WriteHandshakeRejection(nc, status)
		return nil, false
	}

	if err := websocket.WriteHandshakeResponse(nc, key); err != nil {
		s.logger.Debug("handshake write failed", logging.Err(err))
		return nil, false
	}
	_ = nc.SetDeadline(time.Time{})
	return br, true
}

func readUpgrade(br *bufio.Reader) (string, error) {
	req, err := websocket.ReadHandshakeRequest(br)
	if err != nil {
		return "", err
	}
	return websocket.ValidateUpgrade(req)
}

// readLoop decodes and dispatches frames until the connection ends. A
// frame error ends it; a malformed envelope does not.
func (s *Server) readLoop(ctx context.Context, id uint64, conn *websocket.Conn, log *slog.Logger) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrProtocolViolation), errors.Is(err, websocket.ErrOversizedPayload):
				log.Warn("closing connection", "state", conn.DecodeState(), logging.Err(err))
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrConnectionClosed):
				log.Debug("connection closed")
			default:
				log.Debug("read failed", logging.Err(err))
			}
			return
		}

		log.Debug("frame", "opcode", f.Opcode, "fin", f.Fin, "length", f.Length)

		if f.Opcode == websocket.OpcodeClose {
			log.Debug("close frame received")
			return
		}
		if !f.Fin || f.Opcode == websocket.OpcodeContinuation {
			log.Debug("fragmented frame handled as a standalone message", "opcode", f.Opcode, "fin", f.Fin)
		}
		if f.Trailing > 0 {
			log.Debug("bytes buffered after frame", "trailing", f.Trailing)
		}

		// Dispatch logs its own failures and none of them close the
		// connection.
		_ = s.router.Dispatch(ctx, id, f.Payload)
	}
}

func (s *Server) disconnect(id uint64) {
	s.conns.Remove(id)
	s.router.Forget(id)
	if s.cfg.Rooms.PurgeOnDisconnect {
		if left := s.rooms.LeaveAll(id); len(left) > 0 {
			s.logger.Debug("purged from rooms", logging.KeyConn, id, "rooms", left)
		}
	}
}
