// Package websocket implements the subset of RFC 6455 used by the room
// server directly on top of stream sockets: the upgrade handshake, a frame
// decoder driven as a small state machine, and an encoder for server frames.
//
// Only single-frame text messages with payloads up to 65535 bytes are
// supported. Continuation frames are decoded but never reassembled, ping and
// pong are treated as unsupported opcodes, and close frames carry no status
// code.
//
// # Usage
//
// Upgrading a raw connection:
//
//	br := bufio.NewReader(nc)
//	req, err := websocket.ReadHandshakeRequest(br)
//	if err != nil {
//	    return err
//	}
//	key, err := websocket.ValidateUpgrade(req)
//	if err != nil {
//	    websocket.WriteHandshakeRejection(nc, http.StatusBadRequest)
//	    return err
//	}
//	if err := websocket.WriteHandshakeResponse(nc, key); err != nil {
//	    return err
//	}
//	conn := websocket.NewConn(nc, br)
package websocket

/*
   WebSocket Frame Format (RFC 6455), subset decoded here:

   0                   1                   2                   3
   0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
  +-+-+-+-+-------+-+-------------+-------------------------------+
  |F|R|R|R| opcode|M| Payload len |    Extended payload length    |
  |I|S|S|S|  (4)  |A|     (7)     |     (16, if payload len==126) |
  |N|V|V|V|       |S|             |                               |
  | |1|2|3|       |K|             |                               |
  +-+-+-+-+-------+-+-------------+-------------------------------+
  |                Masking-key, if MASK set to 1                  |
  +---------------------------------------------------------------+
  |                     Payload Data ...                          |
  +---------------------------------------------------------------+

   A payload len of 127 (64-bit extended length) is rejected.
*/
