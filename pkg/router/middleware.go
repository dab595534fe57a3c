package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wsrooms/pkg/logging"
	"wsrooms/pkg/protocol"
)

// Middleware errors.
var (
	// ErrRateLimited is returned when a connection exceeds its message budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrHandlerPanic is returned when a handler panicked.
	ErrHandlerPanic = errors.New("handler panic")
)

// Handler processes one decoded envelope from connID.
type Handler func(ctx context.Context, connID uint64, msg protocol.Message) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain composes middlewares. The first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RecoveryMiddleware turns a handler panic into ErrHandlerPanic.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	logger = logging.OrNop(logger)
	return func(next Handler) Handler {
		return func(ctx context.Context, connID uint64, msg protocol.Message) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						logging.KeyConn, connID,
						logging.KeyType, msg.MessageType(),
						"panic", rec)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
				}
			}()
			return next(ctx, connID, msg)
		}
	}
}

// LoggingMiddleware logs the outcome of every envelope. Routing misses and
// rate limiting are expected conditions and log at info; other failures
// log at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	logger = logging.OrNop(logger)
	return func(next Handler) Handler {
		return func(ctx context.Context, connID uint64, msg protocol.Message) error {
			start := time.Now()
			err := next(ctx, connID, msg)

			attrs := []any{
				logging.KeyConn, connID,
				logging.KeyType, msg.MessageType(),
				"duration", time.Since(start),
			}
			switch {
			case err == nil:
				logger.Debug("envelope handled", attrs...)
			case IsRoutingMiss(err):
				logger.Info("routing miss", append(attrs, logging.Err(err))...)
			case errors.Is(err, ErrRateLimited):
				logger.Info("envelope dropped", append(attrs, logging.Err(err))...)
			default:
				logger.Warn("envelope failed", append(attrs, logging.Err(err))...)
			}
			return err
		}
	}
}

// RateLimiter holds one token bucket per connection.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
}

// NewRateLimiter allows perSecond envelopes per connection with the given
// burst. A burst below 1 is raised to 1.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[uint64]*rate.Limiter),
	}
}

// Allow reports whether connID may send another envelope now.
func (l *RateLimiter) Allow(connID uint64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[connID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Forget drops the bucket of connID.
func (l *RateLimiter) Forget(connID uint64) {
	l.mu.Lock()
	delete(l.limiters, connID)
	l.mu.Unlock()
}

// Len returns the number of tracked connections.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware drops envelopes over budget with ErrRateLimited. The
// connection stays open.
func (l *RateLimiter) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, connID uint64, msg protocol.Message) error {
			if !l.Allow(connID) {
				return fmt.Errorf("%w: connection %d", ErrRateLimited, connID)
			}
			return next(ctx, connID, msg)
		}
	}
}
