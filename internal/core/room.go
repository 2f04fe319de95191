package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Room is an addressable session container: peer membership in join
// order, shared properties, and a per-room blob store. Membership moves
// are driven by the Server under its lock; everything else is guarded
// by the room's own mutex. Broadcasts snapshot the member list under
// that mutex so a concurrent membership change cannot tear a fan-out.
type Room struct {
	server *Server

	uuid     string
	joincode string
	name     string
	publish  bool

	mu         sync.Mutex
	peers      []*Peer
	properties *PropertyDictionary
	blobs      map[string]string

	// propMu serializes read-modify-write property cycles; see
	// UpdateProperty.
	propMu sync.Mutex
}

// newLobby returns a fresh sentinel room for one unbound peer. Lobbies
// are never registered in a directory and never self-destruct; each
// peer gets its own so pre-join blob or property writes cannot leak
// across sessions.
func newLobby() *Room {
	return newRoom(nil, "", "", "", false)
}

// sentinel reports whether this is an unbound peer's lobby rather than
// a directory room.
func (r *Room) sentinel() bool {
	return r.server == nil
}

func newRoom(server *Server, uuid, joincode, name string, publish bool) *Room {
	return &Room{
		server:     server,
		uuid:       uuid,
		joincode:   joincode,
		name:       name,
		publish:    publish,
		properties: NewPropertyDictionary(),
		blobs:      make(map[string]string),
	}
}

func (r *Room) UUID() string     { return r.uuid }
func (r *Room) Joincode() string { return r.joincode }
func (r *Room) Name() string     { return r.name }
func (r *Room) Publish() bool    { return r.publish }

// Info snapshots the wire-facing view of the room.
func (r *Room) Info() RoomInfo {
	keys, values := r.properties.Snapshot()
	return RoomInfo{
		UUID:     r.uuid,
		Joincode: r.joincode,
		Publish:  r.publish,
		Name:     r.name,
		Keys:     keys,
		Values:   values,
	}
}

func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// members returns a snapshot of the current membership for fan-outs.
func (r *Room) members() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Peer(nil), r.peers...)
}

// addPeer appends the peer in join order, rebinds it to this room and
// introduces it pairwise to every existing member, both directions, so
// members can build a full signaling mesh. Caller holds the server
// lock, which serializes membership moves.
func (r *Room) addPeer(p *Peer) {
	info := p.Info()
	r.mu.Lock()
	existing := append([]*Peer(nil), r.peers...)
	r.peers = append(r.peers, p)
	r.mu.Unlock()
	p.setRoom(r)

	for _, member := range existing {
		member.sendMessage("PeerAdded", PeerAddedArgs{Peer: info})
		p.sendMessage("PeerAdded", PeerAddedArgs{Peer: member.Info()})
	}
	log.Info().Str("module", "core.room").Str("room", r.uuid).Str("peer", info.UUID).Int("members", len(existing)+1).Msg("peer joined")
}

// removePeer detaches the peer, rebinds it to a fresh lobby and
// notifies every remaining member and the departing peer symmetrically.
// Caller holds the server lock and runs the empty-room check
// afterwards.
func (r *Room) removePeer(p *Peer) {
	r.mu.Lock()
	kept := make([]*Peer, 0, len(r.peers))
	for _, member := range r.peers {
		if member != p {
			kept = append(kept, member)
		}
	}
	r.peers = kept
	remaining := append([]*Peer(nil), kept...)
	r.mu.Unlock()
	p.setRoom(newLobby())

	notice := PeerRemovedArgs{UUID: p.UUID()}
	for _, member := range remaining {
		member.sendMessage("PeerRemoved", notice)
	}
	p.sendMessage("PeerRemoved", notice)
	log.Info().Str("module", "core.room").Str("room", r.uuid).Str("peer", notice.UUID).Int("members", len(remaining)).Msg("peer left")
}

// UpdateProperty runs an atomic read-modify-write cycle on a single
// property. The edit func sees the current value and returns the next
// one plus whether to write it; writes broadcast through the normal
// property-sync path. Holding propMu across the whole cycle keeps
// concurrent updaters, such as the credential refresh goroutines, from
// overwriting each other's edits with stale snapshots.
func (r *Room) UpdateProperty(key string, edit func(current string) (next string, write bool)) {
	r.propMu.Lock()
	defer r.propMu.Unlock()
	next, write := edit(r.properties.Get(key))
	if !write {
		return
	}
	r.AppendProperties([]string{key}, []string{next})
}

// AppendProperties applies a batch to the room dictionary and echoes
// the change-set to every member, the originator included, confirming
// application. Unchanged keys produce no broadcast at all.
func (r *Room) AppendProperties(keys, values []string) ([]string, []string) {
	changedKeys, changedValues := r.properties.Append(keys, values)
	if len(changedKeys) == 0 {
		return changedKeys, changedValues
	}
	args := RoomPropertiesAppendedArgs{Keys: changedKeys, Values: changedValues}
	for _, member := range r.members() {
		member.sendMessage("RoomPropertiesAppended", args)
	}
	return changedKeys, changedValues
}

// BroadcastPeerProperties notifies every member except the origin of a
// peer-property change-set; the origin already knows its own change.
func (r *Room) BroadcastPeerProperties(origin *Peer, keys, values []string) {
	args := PeerPropertiesAppendedArgs{UUID: origin.UUID(), Keys: keys, Values: values}
	for _, member := range r.members() {
		if member == origin {
			continue
		}
		member.sendMessage("PeerPropertiesAppended", args)
	}
}

// SetBlob stores an opaque value. No versioning, last write wins.
func (r *Room) SetBlob(id, value string) {
	r.mu.Lock()
	r.blobs[id] = value
	r.mu.Unlock()
}

// GetBlob returns "" for absent ids.
func (r *Room) GetBlob(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs[id]
}

// ForwardOpaque relays a frame that was not addressed to the server
// verbatim to every member except its source. The frame is never
// decoded beyond its routing header.
func (r *Room) ForwardOpaque(source *Peer, raw []byte) {
	for _, member := range r.members() {
		if member == source {
			continue
		}
		member.sendRaw(raw)
	}
}
