package signaling

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ConnID is a process-unique opaque identifier assigned at connect time.
type ConnID string

// Registry tracks live connections and, per connection, the set of room
// tokens it belongs to. The back-references make disconnect teardown a
// bounded lookup instead of a scan over every room.
//
// Registry is not safe for concurrent use; the hub goroutine exclusively
// owns it.
type Registry struct {
	rooms map[ConnID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[ConnID]map[string]struct{}),
	}
}

// Register allocates a fresh connection id and records the connection.
func (r *Registry) Register() (ConnID, error) {
	id, err := newConnID()
	if err != nil {
		return "", err
	}
	r.rooms[id] = make(map[string]struct{})
	return id, nil
}

// Unregister removes the connection and returns the room tokens it belonged
// to so the caller can fan out the corresponding leaves. Idempotent: an
// already-absent id yields nil.
func (r *Registry) Unregister(id ConnID) []string {
	rooms, ok := r.rooms[id]
	if !ok {
		return nil
	}
	delete(r.rooms, id)

	out := make([]string, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
	}
	return out
}

// Known reports whether the connection is currently registered.
func (r *Registry) Known(id ConnID) bool {
	_, ok := r.rooms[id]
	return ok
}

// AddRoom records that the connection joined the room. Unknown connections
// are ignored (the disconnect already won the race).
func (r *Registry) AddRoom(id ConnID, room string) {
	if rooms, ok := r.rooms[id]; ok {
		rooms[room] = struct{}{}
	}
}

// RemoveRoom drops the back-reference. Idempotent.
func (r *Registry) RemoveRoom(id ConnID, room string) {
	if rooms, ok := r.rooms[id]; ok {
		delete(rooms, room)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.rooms)
}

func newConnID() (ConnID, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate connection id: %w", err)
	}
	return ConnID(hex.EncodeToString(buf[:])), nil
}
