package core

// Directory indexes rooms by uuid and by joincode. It is not
// self-locking: the Server mutex guards every access, and the Server
// guarantees uniqueness of both keys before Add. Removal updates both
// indexes together so they never disagree.
type Directory struct {
	byUUID     map[string]*Room
	byJoincode map[string]*Room
}

func NewDirectory() *Directory {
	return &Directory{
		byUUID:     make(map[string]*Room),
		byJoincode: make(map[string]*Room),
	}
}

func (d *Directory) Add(room *Room) {
	d.byUUID[room.uuid] = room
	d.byJoincode[room.joincode] = room
}

func (d *Directory) Remove(uuid string) {
	room, ok := d.byUUID[uuid]
	if !ok {
		return
	}
	delete(d.byUUID, uuid)
	delete(d.byJoincode, room.joincode)
}

// ByUUID returns nil when no room has that uuid.
func (d *Directory) ByUUID(uuid string) *Room {
	return d.byUUID[uuid]
}

// ByJoincode returns nil when no room has that joincode.
func (d *Directory) ByJoincode(code string) *Room {
	return d.byJoincode[code]
}

func (d *Directory) All() []*Room {
	rooms := make([]*Room, 0, len(d.byUUID))
	for _, room := range d.byUUID {
		rooms = append(rooms, room)
	}
	return rooms
}

func (d *Directory) Count() int {
	return len(d.byUUID)
}
