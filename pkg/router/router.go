package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wsrooms/pkg/logging"
	"wsrooms/pkg/protocol"
	"wsrooms/pkg/registry"
	"wsrooms/pkg/room"
	"wsrooms/pkg/websocket"
)

// Config controls optional router behaviour.
type Config struct {
	// Acknowledge sends ACKNOWLEDGE to the sender before handling each
	// envelope.
	Acknowledge bool
	// MessagesPerSecond limits envelopes per connection. Zero disables the
	// limit.
	MessagesPerSecond float64
	// Burst is the token bucket size when a limit is set.
	Burst int
}

// Router dispatches client envelopes to the room manager and the
// connection registry.
type Router struct {
	rooms   *room.Manager
	conns   *registry.Registry
	logger  *slog.Logger
	cfg     Config
	limiter *RateLimiter
	handler Handler
}

// New creates a router. Extra middlewares run inside recovery, logging and
// rate limiting.
func New(rooms *room.Manager, conns *registry.Registry, logger *slog.Logger, cfg Config, extra ...Middleware) *Router {
	r := &Router{
		rooms:  rooms,
		conns:  conns,
		logger: logging.OrNop(logger),
		cfg:    cfg,
	}

	mws := []Middleware{RecoveryMiddleware(r.logger), LoggingMiddleware(r.logger)}
	if cfg.MessagesPerSecond > 0 {
		r.limiter = NewRateLimiter(cfg.MessagesPerSecond, cfg.Burst)
		mws = append(mws, r.limiter.Middleware())
	}
	mws = append(mws, extra...)
	r.handler = Chain(mws...)(r.handle)

	return r
}

// IsRoutingMiss reports whether err names a room or connection that does
// not exist (or no longer exists). Such errors are not fatal.
func IsRoutingMiss(err error) bool {
	return errors.Is(err, room.ErrRoomNotFound) ||
		errors.Is(err, room.ErrNotMember) ||
		errors.Is(err, registry.ErrNotRegistered)
}

// Dispatch decodes payload and routes it on behalf of connID. A malformed
// or unknown envelope is logged and returned; the caller keeps the
// connection open.
func (r *Router) Dispatch(ctx context.Context, connID uint64, payload []byte) error {
	msg, err := protocol.DecodeClientMessage(payload)
	if err != nil {
		r.logger.Info("discarding envelope",
			logging.KeyConn, connID,
			"length", len(payload),
			logging.Err(err))
		return err
	}
	return r.handler(ctx, connID, msg)
}

// Forget releases per-connection router state.
func (r *Router) Forget(connID uint64) {
	if r.limiter != nil {
		r.limiter.Forget(connID)
	}
}

// Announce sends CLIENT_REGISTERED to connID.
func (r *Router) Announce(connID uint64) error {
	return r.reply(connID, protocol.ClientRegistered{ClientID: connID})
}

func (r *Router) handle(ctx context.Context, connID uint64, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.cfg.Acknowledge {
		if err := r.reply(connID, protocol.Acknowledge{ClientID: connID}); err != nil {
			return err
		}
	}

	switch m := msg.(type) {
	case protocol.JoinRoom:
		return r.joinRoom(connID)
	case protocol.LeaveRoom:
		return r.leaveRoom(connID, m)
	case protocol.RoomMessage:
		return r.roomMessage(connID, m)
	case protocol.AllMessage:
		return r.allMessage(connID, m)
	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownType, msg.MessageType())
	}
}

func (r *Router) joinRoom(connID uint64) error {
	rm := r.rooms.JoinRandomRoom(connID)
	return r.reply(connID, protocol.RoomJoined{Room: RoomInfo(rm)})
}

func (r *Router) leaveRoom(connID uint64, m protocol.LeaveRoom) error {
	if _, err := r.rooms.LeaveRoom(m.RoomID, connID); err != nil {
		return err
	}
	return r.reply(connID, protocol.RoomLeft{RoomID: m.RoomID})
}

func (r *Router) roomMessage(connID uint64, m protocol.RoomMessage) error {
	rm, ok := r.rooms.Get(m.RoomID)
	if !ok {
		return fmt.Errorf("%w: %d", room.ErrRoomNotFound, m.RoomID)
	}

	frame, err := encodeFrame(protocol.RoomMessageDelivery{Msg: m.Msg, SenderID: connID})
	if err != nil {
		return err
	}

	var errs []error
	for _, member := range rm.Members {
		err := r.conns.Send(member, frame)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrNotRegistered):
			r.logger.Info("skipping departed member",
				logging.KeyConn, connID,
				logging.KeyRoom, rm.ID,
				"member", member)
		default:
			errs = append(errs, fmt.Errorf("member %d: %w", member, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) allMessage(connID uint64, m protocol.AllMessage) error {
	frame, err := encodeFrame(protocol.ToAllMessage{Msg: m.Msg, SenderID: connID})
	if err != nil {
		return err
	}

	delivered, err := r.conns.Broadcast(frame)
	r.logger.Debug("broadcast", logging.KeyConn, connID, "delivered", delivered)
	return err
}

func (r *Router) reply(connID uint64, msg protocol.Message) error {
	frame, err := encodeFrame(msg)
	if err != nil {
		return err
	}
	return r.conns.Send(connID, frame)
}

// encodeFrame renders msg as a single unmasked text frame. Payloads over
// the 16-bit length limit fail with websocket.ErrOversizedPayload.
func encodeFrame(msg protocol.Message) ([]byte, error) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	frame, err := websocket.EncodeText(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg.MessageType(), err)
	}
	return frame, nil
}

// RoomInfo converts a room snapshot to its wire form.
func RoomInfo(rm room.Room) protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:                 rm.ID,
		Name:               rm.Name,
		CreatedBy:          rm.CreatedBy,
		PeopleLimit:        rm.Capacity,
		ActiveClientIDs:    rm.Members,
		ActiveClientsCount: rm.Count(),
	}
}
