package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Codec errors.
var (
	// ErrMalformedEnvelope is returned when a payload is not a UTF-8 JSON
	// object with a string "type" field, or its fields have the wrong shape.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnknownType is returned when the type tag is not one the decoding
	// side accepts.
	ErrUnknownType = errors.New("unknown envelope type")
)

// Encode serialises m as a JSON object whose first member is "type".
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	tag, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(body)+len(tag)+9)
	buf = append(buf, `{"type":`...)
	buf = append(buf, tag...)
	if len(body) > 2 {
		buf = append(buf, ',')
		buf = append(buf, body[1:]...)
	} else {
		buf = append(buf, '}')
	}
	return buf, nil
}

// DecodeClientMessage decodes an envelope sent by a client. Server-only
// types are reported as ErrUnknownType.
func DecodeClientMessage(data []byte) (Message, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeJoinRoom:
		return decodeAs[JoinRoom](data)
	case TypeLeaveRoom:
		return decodeAs[LeaveRoom](data)
	case TypeRoomMessage:
		return decodeAs[RoomMessage](data)
	case TypeAllMessage:
		return decodeAs[AllMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// DecodeServerMessage decodes an envelope sent by the server.
func DecodeServerMessage(data []byte) (Message, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeClientRegistered:
		return decodeAs[ClientRegistered](data)
	case TypeRoomJoined:
		return decodeAs[RoomJoined](data)
	case TypeRoomLeft:
		return decodeAs[RoomLeft](data)
	case TypeRoomMessage:
		return decodeAs[RoomMessageDelivery](data)
	case TypeToAllMessage:
		return decodeAs[ToAllMessage](data)
	case TypeAcknowledge:
		return decodeAs[Acknowledge](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func peekType(data []byte) (Type, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedEnvelope)
	}

	var head struct {
		Type *Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if head.Type == nil {
		return "", fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return *head.Type, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return m, nil
}
