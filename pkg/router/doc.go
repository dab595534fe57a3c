// Package router dispatches decoded client envelopes.
//
// A payload is decoded into one of the client message kinds and then
// handled through a middleware chain:
//
//	JOIN_ROOM     -> room.Manager.JoinRandomRoom, reply ROOM_JOINED
//	LEAVE_ROOM    -> room.Manager.LeaveRoom, reply ROOM_LEFT
//	ROOM_MESSAGE  -> ROOM_MESSAGE{msg, senderId} to every registered member
//	ALL_MESSAGE   -> TO_ALL_MESSAGE{msg, senderId} to every connection
//
// Malformed and unknown envelopes are logged and dropped. Unknown rooms and
// departed connections are routing misses: logged, never fatal.
//
// Example usage:
//
//	r := router.New(rooms, conns, logger, router.Config{})
//	if err := r.Dispatch(ctx, connID, frame.Payload); err != nil {
//		// the connection stays open
//	}
package router
