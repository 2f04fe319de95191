package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDeriveCredentials(t *testing.T) {
	at := time.Unix(1700000000, 0)

	username, password := deriveCredentials("s3cr3t", at, 3600*time.Second)
	if username != "1700003600" {
		t.Fatalf("username should be the expiry timestamp, got %q", username)
	}
	raw, err := base64.StdEncoding.DecodeString(password)
	if err != nil || len(raw) != 20 {
		t.Fatalf("password should be base64 of a sha1 mac, got %q", password)
	}

	// Deterministic for fixed inputs.
	u2, p2 := deriveCredentials("s3cr3t", at, 3600*time.Second)
	if u2 != username || p2 != password {
		t.Fatalf("re-derivation must reproduce identical credentials")
	}

	// Any timestamp shift changes both halves.
	u3, p3 := deriveCredentials("s3cr3t", at.Add(time.Second), 3600*time.Second)
	if u3 == username || p3 == password {
		t.Fatalf("different expiry must yield different credentials")
	}
}

func roomIceRecords(t *testing.T, room *Room) []iceRecord {
	t.Helper()
	raw := room.properties.Get(iceServersProperty)
	if raw == "" {
		return nil
	}
	var records []iceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		t.Fatalf("ice-servers property is not a record list: %v", err)
	}
	return records
}

func TestIssuerAppliesToExistingRooms(t *testing.T) {
	s := NewServer()
	iss := NewIceCredentialIssuer(s)
	s.AddObserver(iss)
	defer iss.Close()
	at := time.Unix(1700000000, 0)
	iss.now = func() time.Time { return at }

	p, conn := connect(s)
	joinFresh(t, p, conn, "peer-a")
	room := s.Rooms()[0]

	iss.AddServer("turn:relay.example:3478", "s3cr3t", 3600*time.Second, 0, "", "")

	records := roomIceRecords(t, room)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %+v", records)
	}
	if records[0].URI != "turn:relay.example:3478" || records[0].Username != "1700003600" {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if strings.Contains(room.properties.Get(iceServersProperty), "s3cr3t") {
		t.Fatalf("the shared secret must never reach a room property")
	}

	// The member saw the property ride the normal sync path.
	var appended RoomPropertiesAppendedArgs
	if !conn.lastOfType(t, "RoomPropertiesAppended", &appended) || appended.Keys[0] != iceServersProperty {
		t.Fatalf("member should receive the ice-servers update")
	}

	t.Run("Duplicate URI Is A No-Op", func(t *testing.T) {
		before := room.properties.Get(iceServersProperty)
		iss.AddServer("turn:relay.example:3478", "other", 60*time.Second, 0, "", "")
		if room.properties.Get(iceServersProperty) != before {
			t.Fatalf("duplicate AddServer must not touch room state")
		}
	})

	t.Run("Refresh Updates In Place", func(t *testing.T) {
		at = time.Unix(1700001000, 0)
		iss.refresh("turn:relay.example:3478")
		records := roomIceRecords(t, room)
		if len(records) != 1 || records[0].Username != "1700004600" {
			t.Fatalf("refresh should rewrite the record in place, got %+v", records)
		}
	})

	t.Run("Unchanged Refresh Does Not Broadcast", func(t *testing.T) {
		before := conn.countOfType(t, "RoomPropertiesAppended")
		iss.refresh("turn:relay.example:3478")
		if conn.countOfType(t, "RoomPropertiesAppended") != before {
			t.Fatalf("identical credentials must not be re-broadcast")
		}
	})

	t.Run("Remove Retracts Everywhere", func(t *testing.T) {
		iss.RemoveServer("turn:relay.example:3478")
		if records := roomIceRecords(t, room); len(records) != 0 {
			t.Fatalf("record should be retracted, got %+v", records)
		}
		// Removing again changes nothing.
		before := room.properties.Get(iceServersProperty)
		iss.RemoveServer("turn:relay.example:3478")
		if room.properties.Get(iceServersProperty) != before {
			t.Fatalf("second removal should be a no-op")
		}
	})
}

func TestConcurrentCredentialRotation(t *testing.T) {
	s := NewServer()
	p, conn := connect(s)
	joinFresh(t, p, conn, "peer-a")
	room := s.Rooms()[0]

	// Two relays rotating at once. Each writer reads its own record back
	// after every apply; a stale-snapshot rewrite by the other writer
	// would either regress or drop it.
	const writes = 200
	uris := []string{"turn:a.example:3478", "turn:b.example:3478"}
	var mu sync.Mutex
	var lost []string
	var wg sync.WaitGroup
	for _, uri := range uris {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				want := strconv.Itoa(i)
				applyIceRecord(room, iceRecord{URI: uri, Username: want, Password: "p"})
				var records []iceRecord
				_ = json.Unmarshal([]byte(room.properties.Get(iceServersProperty)), &records)
				got := ""
				for _, rec := range records {
					if rec.URI == uri {
						got = rec.Username
					}
				}
				if got != want {
					mu.Lock()
					lost = append(lost, fmt.Sprintf("%s: wrote %s, read back %q", uri, want, got))
					mu.Unlock()
					return
				}
			}
		}(uri)
	}
	wg.Wait()

	if len(lost) != 0 {
		t.Fatalf("lost updates: %v", lost)
	}
	final := roomIceRecords(t, room)
	if len(final) != len(uris) {
		t.Fatalf("expected one record per relay, got %+v", final)
	}
	for _, rec := range final {
		if rec.Username != strconv.Itoa(writes-1) {
			t.Fatalf("stale record survived rotation: %+v", rec)
		}
	}
}

func TestIssuerSeedsNewRooms(t *testing.T) {
	s := NewServer()
	iss := NewIceCredentialIssuer(s)
	s.AddObserver(iss)
	defer iss.Close()
	iss.now = func() time.Time { return time.Unix(1700000000, 0) }

	iss.AddServer("stun:stun.example:3478", "", 0, 0, "", "")
	iss.AddServer("turn:relay.example:3478", "s3cr3t", 3600*time.Second, 0, "", "")

	p, conn := connect(s)
	info := joinFresh(t, p, conn, "peer-a")

	found := false
	for i, k := range info.Keys {
		if k == iceServersProperty {
			found = true
			var records []iceRecord
			if err := json.Unmarshal([]byte(info.Values[i]), &records); err != nil || len(records) != 2 {
				t.Fatalf("new room should carry both records, got %q", info.Values[i])
			}
		}
	}
	if !found {
		t.Fatalf("SetRoom should already include ice-servers, keys: %v", info.Keys)
	}
}

func TestIssuerStaticCredentials(t *testing.T) {
	s := NewServer()
	iss := NewIceCredentialIssuer(s)
	s.AddObserver(iss)
	defer iss.Close()

	p, conn := connect(s)
	joinFresh(t, p, conn, "peer-a")
	room := s.Rooms()[0]

	iss.AddServer("turn:static.example:3478", "", 0, 0, "alice", "hunter2")
	records := roomIceRecords(t, room)
	if len(records) != 1 || records[0].Username != "alice" || records[0].Password != "hunter2" {
		t.Fatalf("static credentials should be used verbatim, got %+v", records)
	}

	// Static entries never rotate.
	before := room.properties.Get(iceServersProperty)
	iss.refresh("turn:static.example:3478")
	if room.properties.Get(iceServersProperty) != before {
		t.Fatalf("refresh must not touch static entries")
	}
}
