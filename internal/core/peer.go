package core

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Connection is the transport seam. The adapter owns the socket and
// feeds inbound frames to ProcessMessage; Send must not block message
// handling (queue or drop).
type Connection interface {
	Send(data []byte) error
	Close()
}

// Peer is the per-connection protocol state machine. It is unbound
// until a successful Join, pointing at a private lobby sentinel, and
// returns to a fresh one when it leaves a room. The transport's read
// pump drives ProcessMessage, so handlers for one peer never run
// concurrently.
type Peer struct {
	server *Server
	conn   Connection

	sessionID  string
	properties *PropertyDictionary

	mu       sync.Mutex
	uuid     string
	sceneID  RoutingID
	clientID RoutingID
	room     *Room
}

func newPeer(server *Server, conn Connection) *Peer {
	return &Peer{
		server:     server,
		conn:       conn,
		sessionID:  uuid.NewString(),
		properties: NewPropertyDictionary(),
		room:       newLobby(),
	}
}

// SessionID is the keep-alive correlation token, fixed for the life of
// the connection.
func (p *Peer) SessionID() string { return p.sessionID }

func (p *Peer) UUID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uuid
}

// Room never returns nil: unbound peers point at their own lobby
// sentinel.
func (p *Peer) Room() *Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

func (p *Peer) setRoom(r *Room) {
	p.mu.Lock()
	p.room = r
	p.mu.Unlock()
}

// Info snapshots the wire-facing identity of the peer.
func (p *Peer) Info() PeerInfo {
	keys, values := p.properties.Snapshot()
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		UUID:     p.uuid,
		SceneID:  p.sceneID,
		ClientID: p.clientID,
		Keys:     keys,
		Values:   values,
	}
}

// ProcessMessage handles one inbound frame. Errors never propagate to
// the transport: anything malformed is dropped and logged, and the
// connection stays open.
func (p *Peer) ProcessMessage(raw []byte) {
	p.server.stats.Messages.Add(1)
	p.server.stats.BytesIn.Add(uint64(len(raw)))

	var hdr routingHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		log.Error().Err(err).Str("module", "core.peer").Str("session", p.sessionID).Msg("unparseable frame")
		return
	}
	if hdr.To != "" && hdr.To != ServerRoutingID {
		p.Room().ForwardOpaque(p, raw)
		return
	}

	var env Message
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error().Err(err).Str("module", "core.peer").Str("session", p.sessionID).Msg("bad envelope")
		return
	}

	switch env.Type {
	case "Join":
		p.handleJoin(env.Args)
	case "AppendPeerProperties":
		p.handleAppendPeerProperties(env.Args)
	case "AppendRoomProperties":
		p.handleAppendRoomProperties(env.Args)
	case "DiscoverRooms":
		p.handleDiscoverRooms(env.Args)
	case "SetBlob":
		p.handleSetBlob(env.Args)
	case "GetBlob":
		p.handleGetBlob(env.Args)
	case "Ping":
		p.handlePing(env.Args)
	default:
		log.Warn().Str("module", "core.peer").Str("type", env.Type).Msg("unknown message type")
	}
}

// ConnectionClosed finalizes the peer after the transport reports the
// socket gone. Terminal: the peer leaves its room, which may destroy
// the room, and the object is discarded.
func (p *Peer) ConnectionClosed() {
	p.server.peerDisconnected(p)
}

// decodeArgs parses the inner args document and validates its declared
// shape. A false return means the message was dropped and logged.
func (p *Peer) decodeArgs(msgType, args string, out any) bool {
	if err := json.Unmarshal([]byte(args), out); err != nil {
		log.Error().Err(err).Str("module", "core.peer").Str("type", msgType).Msg("bad args payload")
		return false
	}
	if err := p.server.validate.Struct(out); err != nil {
		log.Error().Err(err).Str("module", "core.peer").Str("type", msgType).Msg("args failed validation")
		return false
	}
	return true
}

func (p *Peer) handleJoin(args string) {
	var a JoinArgs
	if !p.decodeArgs("Join", args, &a) {
		return
	}
	p.mu.Lock()
	p.uuid = a.Peer.UUID
	p.sceneID = a.Peer.SceneID
	p.clientID = a.Peer.ClientID
	p.mu.Unlock()
	p.properties.Append(a.Peer.Keys, a.Peer.Values)
	p.server.Join(p, a)
}

func (p *Peer) handleAppendPeerProperties(args string) {
	var a AppendPropertiesArgs
	if !p.decodeArgs("AppendPeerProperties", args, &a) {
		return
	}
	changedKeys, changedValues := p.properties.Append(a.Keys, a.Values)
	if len(changedKeys) == 0 {
		return
	}
	p.Room().BroadcastPeerProperties(p, changedKeys, changedValues)
}

func (p *Peer) handleAppendRoomProperties(args string) {
	var a AppendPropertiesArgs
	if !p.decodeArgs("AppendRoomProperties", args, &a) {
		return
	}
	p.Room().AppendProperties(a.Keys, a.Values)
}

func (p *Peer) handleDiscoverRooms(args string) {
	var a DiscoverRoomsArgs
	if !p.decodeArgs("DiscoverRooms", args, &a) {
		return
	}
	rooms := p.server.DiscoverRooms(a.Joincode)
	p.sendMessage("Rooms", RoomsArgs{Rooms: rooms, Version: ProtocolVersion, Request: a})
}

func (p *Peer) handleSetBlob(args string) {
	var a SetBlobArgs
	if !p.decodeArgs("SetBlob", args, &a) {
		return
	}
	p.Room().SetBlob(a.UUID, a.Blob)
}

// handleGetBlob always responds, with "" when the blob is absent.
func (p *Peer) handleGetBlob(args string) {
	var a GetBlobArgs
	if !p.decodeArgs("GetBlob", args, &a) {
		return
	}
	p.sendMessage("Blob", BlobArgs{UUID: a.UUID, Blob: p.Room().GetBlob(a.UUID)})
}

func (p *Peer) handlePing(args string) {
	var a PingArgs
	if !p.decodeArgs("Ping", args, &a) {
		return
	}
	p.sendMessage("Ping", PingResponseArgs{SessionID: p.sessionID})
}

func (p *Peer) sendMessage(msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.peer").Str("type", msgType).Msg("encode outbound")
		return
	}
	p.sendRaw(data)
}

func (p *Peer) sendRaw(data []byte) {
	if err := p.conn.Send(data); err != nil {
		log.Warn().Err(err).Str("module", "core.peer").Str("session", p.sessionID).Msg("send failed")
		return
	}
	p.server.stats.BytesOut.Add(uint64(len(data)))
}
