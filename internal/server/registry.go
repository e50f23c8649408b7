package server

import (
	"sort"
	"sync"

	"cryptochat/internal/broadcast"
	"cryptochat/internal/crypto"
	"cryptochat/internal/proto"
)

// Room is one live chat room: its creation-time credential tag, the member
// nickname set and the broadcast channel shared by all members.
type Room struct {
	ID         string
	credential string
	members    map[string]struct{}
	Channel    *broadcast.Broadcaster
}

func (r *Room) memberNames() []string {
	names := make([]string, 0, len(r.members))
	for n := range r.members {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry owns the roomID → room mapping. The lock is held only across
// map/set mutation and channel handoff, never across network I/O. It seals
// the member-list control line itself so a membership snapshot can be
// published atomically with the mutation that caused it.
type Registry struct {
	mu     sync.Mutex
	key    crypto.TransportKey
	buffer int
	rooms  map[string]*Room
}

func NewRegistry(key crypto.TransportKey, buffer int) *Registry {
	return &Registry{
		key:    key,
		buffer: buffer,
		rooms:  make(map[string]*Room),
	}
}

// Apply dispatches a negotiation command. The returned error is always a
// *proto.RoomError when non-nil.
func (g *Registry) Apply(cmd proto.Command) (*Room, error) {
	switch cmd.Action {
	case proto.ActionCreate:
		return g.Create(cmd.RoomID, cmd.Credential, cmd.Nickname)
	case proto.ActionJoin:
		return g.Join(cmd.RoomID, cmd.Credential, cmd.Nickname)
	default:
		return nil, &proto.RoomError{Reason: proto.ReasonUnknownAction}
	}
}

// Create inserts a new room with a singleton member set.
func (g *Registry) Create(roomID, credential, nickname string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.rooms[roomID]; exists {
		return nil, &proto.RoomError{Reason: proto.ReasonRoomExists}
	}
	room := &Room{
		ID:         roomID,
		credential: credential,
		members:    map[string]struct{}{nickname: {}},
		Channel:    broadcast.New(g.buffer),
	}
	g.rooms[roomID] = room
	return room, nil
}

// Join adds nickname to an existing room after comparing the credential tag
// against the value recorded at creation. Re-joining with a nickname that
// is already a member is idempotent, not rejected.
func (g *Registry) Join(roomID, credential, nickname string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, exists := g.rooms[roomID]
	if !exists {
		return nil, &proto.RoomError{Reason: proto.ReasonNoSuchRoom}
	}
	if room.credential != credential {
		return nil, &proto.RoomError{Reason: proto.ReasonBadCredential}
	}
	room.members[nickname] = struct{}{}
	return room, nil
}

// Leave removes nickname from the room, publishes the updated member-list
// snapshot, and destroys the room when its member set becomes empty.
// removed reports whether the room was destroyed.
func (g *Registry) Leave(roomID, nickname string) (removed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, exists := g.rooms[roomID]
	if !exists {
		return false
	}
	delete(room.members, nickname)
	g.publishMemberListLocked(room)
	if len(room.members) == 0 {
		delete(g.rooms, roomID)
		room.Channel.Close()
		return true
	}
	return false
}

// PublishMemberList broadcasts a transport-sealed membership snapshot to
// the room. Sessions call it right after subscribing so the newest member
// is guaranteed to observe the current membership even though it raced the
// join announcement.
func (g *Registry) PublishMemberList(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, exists := g.rooms[roomID]; exists {
		g.publishMemberListLocked(room)
	}
}

func (g *Registry) publishMemberListLocked(room *Room) {
	line, err := g.key.Seal(proto.FormatMemberList(room.memberNames()))
	if err != nil {
		// Seal fails only when the CSPRNG does; drop the snapshot.
		return
	}
	room.Channel.Publish(line)
}

// Rooms lists live room ids, sorted.
func (g *Registry) Rooms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Members returns the member-list snapshot of a room, nil if the room does
// not exist.
func (g *Registry) Members(roomID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, exists := g.rooms[roomID]
	if !exists {
		return nil
	}
	return room.memberNames()
}
