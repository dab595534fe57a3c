// Package protocol defines the application envelopes exchanged over text
// frames and their JSON encoding.
//
// Every envelope is a JSON object with a "type" tag:
//
//	{"type":"JOIN_ROOM"}
//	{"type":"ROOM_MESSAGE","roomId":1,"msg":"hello"}
//
// Each tag maps to exactly one Go type per direction, so handlers switch on
// the concrete type instead of the tag string:
//
//	msg, err := protocol.DecodeClientMessage(payload)
//	if err != nil {
//	    // errors.Is(err, protocol.ErrMalformedEnvelope) or ErrUnknownType
//	}
//	switch m := msg.(type) {
//	case protocol.JoinRoom:
//	case protocol.RoomMessage:
//	    _ = m.RoomID
//	}
//
// An envelope never spans more than one frame.
package protocol
