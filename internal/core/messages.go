package core

import "encoding/json"

// RoutingID addresses one party on the wire. The server only interprets
// its own reserved id; everything else is opaque routing data owned by
// the clients.
type RoutingID string

// ServerRoutingID is the reserved destination for control messages.
// Frames addressed anywhere else are relayed verbatim to room members.
const ServerRoutingID RoutingID = "1"

// ProtocolVersion is reported in DiscoverRooms responses so clients can
// detect incompatible servers.
const ProtocolVersion = "1.0.0"

// Message is the outer wire envelope. Args is itself a JSON-encoded
// document whose shape depends on Type.
type Message struct {
	Type string `json:"type"`
	Args string `json:"args"`
}

// routingHeader is the minimal decode used to decide whether a frame is
// addressed to the server at all. A missing "to" means it is.
type routingHeader struct {
	To RoutingID `json:"to"`
}

type PeerInfo struct {
	UUID     string    `json:"uuid" validate:"required"`
	SceneID  RoutingID `json:"sceneid"`
	ClientID RoutingID `json:"clientid"`
	Keys     []string  `json:"keys"`
	Values   []string  `json:"values"`
}

type JoinArgs struct {
	UUID     string   `json:"uuid"`
	Joincode string   `json:"joincode"`
	Name     string   `json:"name"`
	Publish  bool     `json:"publish"`
	Peer     PeerInfo `json:"peer" validate:"required"`
}

type AppendPropertiesArgs struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

type DiscoverRoomsArgs struct {
	ClientID RoutingID `json:"clientid" validate:"required"`
	Joincode string    `json:"joincode"`
}

type SetBlobArgs struct {
	UUID string `json:"uuid" validate:"required"`
	Blob string `json:"blob"`
}

type GetBlobArgs struct {
	ClientID RoutingID `json:"clientid" validate:"required"`
	UUID     string    `json:"uuid" validate:"required"`
}

type PingArgs struct {
	ClientID RoutingID `json:"clientid" validate:"required"`
}

// RoomInfo is the wire-facing snapshot of a room.
type RoomInfo struct {
	UUID     string   `json:"uuid"`
	Joincode string   `json:"joincode"`
	Publish  bool     `json:"publish"`
	Name     string   `json:"name"`
	Keys     []string `json:"keys"`
	Values   []string `json:"values"`
}

// RejectedArgs carries the original join request back so the client can
// correlate the failure.
type RejectedArgs struct {
	Reason   string   `json:"reason"`
	JoinArgs JoinArgs `json:"joinArgs"`
}

type SetRoomArgs struct {
	Room RoomInfo `json:"room"`
}

type RoomsArgs struct {
	Rooms   []RoomInfo        `json:"rooms"`
	Version string            `json:"version"`
	Request DiscoverRoomsArgs `json:"request"`
}

type PeerAddedArgs struct {
	Peer PeerInfo `json:"peer"`
}

type PeerRemovedArgs struct {
	UUID string `json:"uuid"`
}

type RoomPropertiesAppendedArgs struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

type PeerPropertiesAppendedArgs struct {
	UUID   string   `json:"uuid"`
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

type BlobArgs struct {
	UUID string `json:"uuid"`
	Blob string `json:"blob"`
}

type PingResponseArgs struct {
	SessionID string `json:"sessionId"`
}

// encodeMessage wraps a typed payload in the outer envelope.
func encodeMessage(msgType string, payload any) ([]byte, error) {
	args, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Args: string(args)})
}
