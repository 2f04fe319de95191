package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// iceServersProperty is the room property carrying relay descriptors as
// a JSON list of {uri, username, password} records.
const iceServersProperty = "ice-servers"

// iceRecord is exactly what clients see. The shared secret never
// appears here.
type iceRecord struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type iceEntry struct {
	uri             string
	secret          string
	ttl             time.Duration
	refreshInterval time.Duration
	static          bool

	username string
	password string

	cancel context.CancelFunc
}

// IceCredentialIssuer derives TURN REST short-term credentials for each
// configured relay and mirrors them into every room's ice-servers
// property, riding the normal property-sync broadcast. Rotating entries
// refresh on their own goroutine; the room lock discipline is the same
// as for message-driven mutation.
type IceCredentialIssuer struct {
	server *Server

	mu      sync.Mutex
	entries map[string]*iceEntry
	ctx     context.Context
	cancel  context.CancelFunc

	// now is swappable so derivation is deterministic under test.
	now func() time.Time
}

func NewIceCredentialIssuer(server *Server) *IceCredentialIssuer {
	ctx, cancel := context.WithCancel(context.Background())
	return &IceCredentialIssuer{
		server:  server,
		entries: make(map[string]*iceEntry),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// AddServer registers a relay. Duplicate URIs are a no-op. A static
// username/password pair is used permanently; otherwise a secret with a
// positive ttl enables rotation every refreshInterval, defaulting to
// 0.8x ttl. Current credentials are applied to every existing room
// immediately, and RoomCreated seeds rooms made later.
func (iss *IceCredentialIssuer) AddServer(uri, secret string, ttl, refreshInterval time.Duration, username, password string) {
	iss.mu.Lock()
	if _, exists := iss.entries[uri]; exists {
		iss.mu.Unlock()
		log.Warn().Str("module", "core.ice").Str("uri", uri).Msg("duplicate ice server ignored")
		return
	}
	e := &iceEntry{uri: uri, secret: secret, ttl: ttl, refreshInterval: refreshInterval}
	switch {
	case username != "" && password != "":
		e.static = true
		e.username = username
		e.password = password
	case secret != "" && ttl > 0:
		if e.refreshInterval <= 0 {
			e.refreshInterval = ttl * 4 / 5
		}
		e.username, e.password = deriveCredentials(secret, iss.now(), ttl)
		ctx, cancel := context.WithCancel(iss.ctx)
		e.cancel = cancel
		go iss.refreshLoop(ctx, uri, e.refreshInterval)
	}
	iss.entries[uri] = e
	rec := iceRecord{URI: e.uri, Username: e.username, Password: e.password}
	iss.mu.Unlock()

	for _, room := range iss.server.Rooms() {
		applyIceRecord(room, rec)
	}
	log.Info().Str("module", "core.ice").Str("uri", uri).Bool("static", e.static).Msg("ice server added")
}

// RemoveServer cancels the entry's rotation, retracts its record from
// every room and forgets it. Unknown URIs are a no-op.
func (iss *IceCredentialIssuer) RemoveServer(uri string) {
	iss.mu.Lock()
	e, ok := iss.entries[uri]
	if !ok {
		iss.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(iss.entries, uri)
	iss.mu.Unlock()

	for _, room := range iss.server.Rooms() {
		retractIceRecord(room, uri)
	}
	log.Info().Str("module", "core.ice").Str("uri", uri).Msg("ice server removed")
}

// Close cancels every refresh timer. Already-distributed credentials
// stay in room properties.
func (iss *IceCredentialIssuer) Close() {
	iss.cancel()
}

// RoomCreated seeds a new room with the current credential set. Part of
// the RoomObserver contract; called under the server lock, so only the
// issuer and room locks are taken here.
func (iss *IceCredentialIssuer) RoomCreated(room *Room) {
	iss.mu.Lock()
	records := make([]iceRecord, 0, len(iss.entries))
	for _, e := range iss.entries {
		records = append(records, iceRecord{URI: e.uri, Username: e.username, Password: e.password})
	}
	iss.mu.Unlock()
	for _, rec := range records {
		applyIceRecord(room, rec)
	}
}

// RoomRemoved is part of the RoomObserver contract. Nothing to retract:
// the room's property state dies with it.
func (iss *IceCredentialIssuer) RoomRemoved(room *Room) {}

func (iss *IceCredentialIssuer) refreshLoop(ctx context.Context, uri string, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			iss.refresh(uri)
			timer.Reset(interval)
		}
	}
}

// refresh re-derives one entry's credentials and pushes them to every
// room. Entry state is copied out before any room lock is taken.
func (iss *IceCredentialIssuer) refresh(uri string) {
	iss.mu.Lock()
	e, ok := iss.entries[uri]
	if !ok || e.static {
		iss.mu.Unlock()
		return
	}
	e.username, e.password = deriveCredentials(e.secret, iss.now(), e.ttl)
	rec := iceRecord{URI: e.uri, Username: e.username, Password: e.password}
	iss.mu.Unlock()

	for _, room := range iss.server.Rooms() {
		applyIceRecord(room, rec)
	}
	log.Debug().Str("module", "core.ice").Str("uri", uri).Msg("credentials rotated")
}

// deriveCredentials implements the TURN REST convention: the username
// is the expiry timestamp and the password is the keyed hash of it.
func deriveCredentials(secret string, now time.Time, ttl time.Duration) (string, string) {
	username := strconv.FormatInt(now.Unix()+int64(ttl/time.Second), 10)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, password
}

// applyIceRecord appends or updates the record for its uri in the
// room's list. The whole decode-edit-encode cycle runs inside the
// room's property update lock so concurrent refreshers cannot clobber
// each other's records; the property is rewritten, and therefore
// broadcast, only when the record actually changed.
func applyIceRecord(room *Room, rec iceRecord) {
	room.UpdateProperty(iceServersProperty, func(current string) (string, bool) {
		records := decodeIceRecords(current)
		found := false
		changed := false
		for i := range records {
			if records[i].URI != rec.URI {
				continue
			}
			found = true
			if records[i] != rec {
				records[i] = rec
				changed = true
			}
			break
		}
		if !found {
			records = append(records, rec)
			changed = true
		}
		if !changed {
			return "", false
		}
		return encodeIceRecords(records)
	})
}

// retractIceRecord removes the record for a uri, rewriting the property
// only when one was actually present. Same update lock as apply.
func retractIceRecord(room *Room, uri string) {
	room.UpdateProperty(iceServersProperty, func(current string) (string, bool) {
		records := decodeIceRecords(current)
		kept := make([]iceRecord, 0, len(records))
		for _, rec := range records {
			if rec.URI != uri {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return "", false
		}
		return encodeIceRecords(kept)
	})
}

// decodeIceRecords treats an absent property as an empty list.
func decodeIceRecords(raw string) []iceRecord {
	if raw == "" {
		return nil
	}
	var records []iceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		log.Error().Err(err).Str("module", "core.ice").Msg("corrupt ice-servers property, rebuilding")
		return nil
	}
	return records
}

func encodeIceRecords(records []iceRecord) (string, bool) {
	data, err := json.Marshal(records)
	if err != nil {
		log.Error().Err(err).Str("module", "core.ice").Msg("encode ice-servers property")
		return "", false
	}
	return string(data), true
}
