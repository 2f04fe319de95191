package core

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const joincodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// maxAllocAttempts bounds the uuid/joincode uniqueness retry loops so a
// saturated directory fails the operation instead of spinning.
const maxAllocAttempts = 1000

// RoomObserver is notified of directory lifecycle events. The ICE
// credential issuer uses it to seed newly created rooms.
type RoomObserver interface {
	RoomCreated(room *Room)
	RoomRemoved(room *Room)
}

// Server owns the room directory and the join/discover policy. Its
// mutex serializes directory mutation and membership moves; the lock
// order is always server before room, never the reverse.
type Server struct {
	mu        sync.Mutex
	directory *Directory

	observers []RoomObserver
	stats     Stats
	validate  *validator.Validate
}

func NewServer() *Server {
	return &Server{
		directory: NewDirectory(),
		validate:  validator.New(),
	}
}

// AddObserver registers a lifecycle observer. Call during wiring,
// before connections are accepted.
func (s *Server) AddObserver(o RoomObserver) {
	s.observers = append(s.observers, o)
}

func (s *Server) Stats() *Stats { return &s.stats }

// Accept wraps a transport connection in a new unbound peer. The
// adapter feeds it frames and reports the eventual close.
func (s *Server) Accept(conn Connection) *Peer {
	s.stats.Connections.Add(1)
	p := newPeer(s, conn)
	log.Info().Str("module", "core.server").Str("session", p.sessionID).Msg("connection accepted")
	return p
}

// Join resolves or creates the room addressed by args and moves the
// peer into it. A uuid addresses a room or creates it when absent; a
// joincode only ever addresses; neither always creates. Joining the
// room the peer is already in is a silent no-op. The SetRoom or
// Rejected response is sent from here.
func (s *Server) Join(p *Peer, args JoinArgs) {
	s.mu.Lock()

	var room *Room
	switch {
	case args.UUID != "":
		if !isUUIDv4(args.UUID) {
			s.mu.Unlock()
			log.Warn().Str("module", "core.server").Str("uuid", args.UUID).Msg("join rejected: invalid uuid")
			p.sendMessage("Rejected", RejectedArgs{Reason: "invalid uuid format", JoinArgs: args})
			return
		}
		room = s.directory.ByUUID(args.UUID)
		if room == nil {
			var err error
			if room, err = s.createRoomLocked(args.UUID, args.Name, args.Publish); err != nil {
				s.mu.Unlock()
				p.sendMessage("Rejected", RejectedArgs{Reason: err.Error(), JoinArgs: args})
				return
			}
		}
	case args.Joincode != "":
		room = s.directory.ByJoincode(args.Joincode)
		if room == nil {
			s.mu.Unlock()
			log.Warn().Str("module", "core.server").Str("joincode", args.Joincode).Msg("join rejected: unknown joincode")
			p.sendMessage("Rejected", RejectedArgs{Reason: "no such room", JoinArgs: args})
			return
		}
	default:
		var err error
		if room, err = s.createRoomLocked("", args.Name, args.Publish); err != nil {
			s.mu.Unlock()
			p.sendMessage("Rejected", RejectedArgs{Reason: err.Error(), JoinArgs: args})
			return
		}
	}

	if room == p.Room() {
		s.mu.Unlock()
		return
	}

	s.detachPeerLocked(p)
	p.sendMessage("SetRoom", SetRoomArgs{Room: room.Info()})
	room.addPeer(p)
	s.mu.Unlock()
}

// DiscoverRooms returns rooms matching a joincode regardless of their
// publish flag, or every published room when no filter is given. The
// full matching set is returned, no pagination.
func (s *Server) DiscoverRooms(joincode string) []RoomInfo {
	s.mu.Lock()
	var rooms []*Room
	if joincode != "" {
		if room := s.directory.ByJoincode(joincode); room != nil {
			rooms = append(rooms, room)
		}
	} else {
		for _, room := range s.directory.All() {
			if room.publish {
				rooms = append(rooms, room)
			}
		}
	}
	s.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	return infos
}

// Rooms snapshots the whole directory, for the credential issuer.
func (s *Server) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.All()
}

func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.Count()
}

func (s *Server) PeerCount() int {
	s.mu.Lock()
	rooms := s.directory.All()
	s.mu.Unlock()
	count := 0
	for _, room := range rooms {
		count += room.PeerCount()
	}
	return count
}

// peerDisconnected finalizes a closed connection: the peer leaves its
// room, which is destroyed if that left it empty.
func (s *Server) peerDisconnected(p *Peer) {
	s.mu.Lock()
	s.detachPeerLocked(p)
	s.mu.Unlock()
	log.Info().Str("module", "core.server").Str("session", p.sessionID).Msg("connection closed")
}

func (s *Server) detachPeerLocked(p *Peer) {
	room := p.Room()
	if room.sentinel() {
		return
	}
	room.removePeer(p)
	if room.PeerCount() == 0 {
		s.removeRoomLocked(room)
	}
}

// removeRoomLocked detaches the room from both indexes and notifies
// observers. Rooms leave the directory the instant they are empty.
func (s *Server) removeRoomLocked(room *Room) {
	s.directory.Remove(room.uuid)
	for _, o := range s.observers {
		o.RoomRemoved(room)
	}
	log.Info().Str("module", "core.server").Str("room", room.uuid).Str("joincode", room.joincode).Msg("room destroyed")
}

// createRoomLocked registers a new room. A supplied uuid is trusted to
// be absent (the caller just looked it up); a generated one retries on
// the practically-impossible collision. Observers run before the first
// peer is added so credentials land at creation time.
func (s *Server) createRoomLocked(roomUUID, name string, publish bool) (*Room, error) {
	if roomUUID == "" {
		var err error
		if roomUUID, err = s.newRoomUUIDLocked(); err != nil {
			return nil, err
		}
	}
	joincode, err := s.newJoincodeLocked()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = roomUUID
	}
	room := newRoom(s, roomUUID, joincode, name, publish)
	s.directory.Add(room)
	s.stats.RoomsCreated.Add(1)
	for _, o := range s.observers {
		o.RoomCreated(room)
	}
	log.Info().Str("module", "core.server").Str("room", roomUUID).Str("joincode", joincode).Bool("publish", publish).Msg("room created")
	return room, nil
}

func (s *Server) newRoomUUIDLocked() (string, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		candidate := uuid.NewString()
		if s.directory.ByUUID(candidate) == nil {
			return candidate, nil
		}
	}
	return "", errors.New("could not allocate room uuid")
}

// newJoincodeLocked draws 3-character lowercase alphanumeric codes
// until one is free. The space is small on purpose: codes are meant to
// be typed by humans and are not a security boundary.
func (s *Server) newJoincodeLocked() (string, error) {
	buf := make([]byte, 3)
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		for i := range buf {
			buf[i] = joincodeAlphabet[rand.Intn(len(joincodeAlphabet))]
		}
		code := string(buf)
		if s.directory.ByJoincode(code) == nil {
			return code, nil
		}
	}
	return "", errors.New("could not allocate joincode")
}

// isUUIDv4 accepts only the canonical 36-character v4 form.
func isUUIDv4(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	return err == nil && u.Version() == 4
}
