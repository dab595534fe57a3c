package protocol

import "encoding/json"

// Type is the tag carried in the "type" field of every envelope.
type Type string

// Envelope types.
const (
	TypeClientRegistered Type = "CLIENT_REGISTERED"
	TypeJoinRoom         Type = "JOIN_ROOM"
	TypeRoomJoined       Type = "ROOM_JOINED"
	TypeLeaveRoom        Type = "LEAVE_ROOM"
	TypeRoomLeft         Type = "ROOM_LEFT"
	TypeRoomMessage      Type = "ROOM_MESSAGE"
	TypeAllMessage       Type = "ALL_MESSAGE"
	TypeToAllMessage     Type = "TO_ALL_MESSAGE"
	TypeAcknowledge      Type = "ACKNOWLEDGE"
)

// Message is one envelope. The set of implementations is closed: client
// messages are JoinRoom, LeaveRoom, RoomMessage and AllMessage; the rest
// are sent by the server.
type Message interface {
	MessageType() Type
	message()
}

// RoomInfo is the wire view of a room.
type RoomInfo struct {
	ID                 int      `json:"id"`
	Name               string   `json:"name"`
	CreatedBy          uint64   `json:"createdBy"`
	PeopleLimit        int      `json:"peopleLimit"`
	ActiveClientIDs    []uint64 `json:"activeClientIds"`
	ActiveClientsCount int      `json:"activeClientsCount"`
}

// ClientRegistered announces the identifier assigned to a new connection.
type ClientRegistered struct {
	ClientID uint64 `json:"clientId"`
}

// JoinRoom asks to be placed in any room with free capacity.
type JoinRoom struct{}

// RoomJoined answers JoinRoom.
type RoomJoined struct {
	Room RoomInfo `json:"room"`
}

// LeaveRoom asks to leave a room.
type LeaveRoom struct {
	RoomID int `json:"roomId"`
}

// RoomLeft answers LeaveRoom.
type RoomLeft struct {
	RoomID int `json:"roomId"`
}

// RoomMessage asks to deliver Msg to every member of a room.
type RoomMessage struct {
	RoomID int             `json:"roomId"`
	Msg    json.RawMessage `json:"msg"`
}

// RoomMessageDelivery is what room members receive for a RoomMessage.
type RoomMessageDelivery struct {
	Msg      json.RawMessage `json:"msg"`
	SenderID uint64          `json:"senderId"`
}

// AllMessage asks to deliver Msg to every connection.
type AllMessage struct {
	Msg json.RawMessage `json:"msg"`
}

// ToAllMessage is what every connection receives for an AllMessage.
type ToAllMessage struct {
	Msg      json.RawMessage `json:"msg"`
	SenderID uint64          `json:"senderId"`
}

// Acknowledge confirms receipt of an envelope.
type Acknowledge struct {
	ClientID uint64 `json:"clientId"`
}

func (ClientRegistered) MessageType() Type    { return TypeClientRegistered }
func (JoinRoom) MessageType() Type            { return TypeJoinRoom }
func (RoomJoined) MessageType() Type          { return TypeRoomJoined }
func (LeaveRoom) MessageType() Type           { return TypeLeaveRoom }
func (RoomLeft) MessageType() Type            { return TypeRoomLeft }
func (RoomMessage) MessageType() Type         { return TypeRoomMessage }
func (RoomMessageDelivery) MessageType() Type { return TypeRoomMessage }
func (AllMessage) MessageType() Type          { return TypeAllMessage }
func (ToAllMessage) MessageType() Type        { return TypeToAllMessage }
func (Acknowledge) MessageType() Type         { return TypeAcknowledge }

func (ClientRegistered) message()    {}
func (JoinRoom) message()            {}
func (RoomJoined) message()          {}
func (LeaveRoom) message()           {}
func (RoomLeft) message()            {}
func (RoomMessage) message()         {}
func (RoomMessageDelivery) message() {}
func (AllMessage) message()          {}
func (ToAllMessage) message()        {}
func (Acknowledge) message()         {}
