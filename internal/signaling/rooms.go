package signaling

// RoomDirectory maps caller-supplied room tokens to their member sets.
//
// Tokens are chosen by the callers (conceptually the visit id), never
// allocated here: two clients that agree on a token out-of-band rendezvous
// without a discovery step. Anyone who knows the token can join; that trust
// model is deliberate (see DESIGN.md).
//
// A room with zero members is deleted, not retained, so directory size is
// bounded by live membership. Not safe for concurrent use; the hub goroutine
// exclusively owns it.
type RoomDirectory struct {
	members map[string]map[ConnID]struct{}
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		members: make(map[string]map[ConnID]struct{}),
	}
}

// Join adds the connection to the room's member set, creating the room on
// first reference. Never fails for a well-formed token.
func (d *RoomDirectory) Join(room string, id ConnID) {
	set, ok := d.members[room]
	if !ok {
		set = make(map[ConnID]struct{})
		d.members[room] = set
	}
	set[id] = struct{}{}
}

// Leave removes the connection from the room and garbage-collects the room
// entry once its member set is empty. Idempotent.
func (d *RoomDirectory) Leave(room string, id ConnID) {
	set, ok := d.members[room]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(d.members, room)
	}
}

// Occupancy returns the current member count; 0 when the room does not
// exist. Always derived from the live member set, never from a separately
// maintained counter.
func (d *RoomDirectory) Occupancy(room string) int {
	return len(d.members[room])
}

// Members returns the member identifiers of the room, in no particular
// order. The slice is a copy; callers may retain it across hub events.
func (d *RoomDirectory) Members(room string) []ConnID {
	set, ok := d.members[room]
	if !ok {
		return nil
	}
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Len returns the number of active rooms.
func (d *RoomDirectory) Len() int {
	return len(d.members)
}
