package pubsub

import "sync"

// RoomChannels is the broadcast pair for one room: player-originated events
// flow to the host view, host-originated events flow to all player views.
type RoomChannels struct {
	HostEvents   *Broadcaster[PlayerAction]
	PlayerEvents *Broadcaster[HostAction]
}

// Subscribers reports live subscribers across both channels.
func (rc *RoomChannels) Subscribers() int {
	return rc.HostEvents.Subscribers() + rc.PlayerEvents.Subscribers()
}

// Registry maps game codes to their broadcast pair. Rooms are created lazily
// on first access and shared by every concurrent caller for the same code.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*RoomChannels
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*RoomChannels),
	}
}

// Room returns the channel pair for code, creating it on first access.
// Concurrent first callers observe the same pair: creation re-checks the map
// under the write lock so a racing caller cannot insert a duplicate.
func (r *Registry) Room(code string) *RoomChannels {
	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[code]; ok {
		return room
	}
	room = &RoomChannels{
		HostEvents:   NewBroadcaster[PlayerAction](),
		PlayerEvents: NewBroadcaster[HostAction](),
	}
	r.rooms[code] = room
	return room
}

// Peek returns the channel pair for code without creating one.
func (r *Registry) Peek(code string) (*RoomChannels, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	return room, ok
}

// EvictIfIdle removes code's channel pair when it has no live subscribers.
// Callers invoke it once a game is finished so the registry does not grow
// for the lifetime of the process.
func (r *Registry) EvictIfIdle(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return false
	}
	if room.Subscribers() > 0 {
		return false
	}
	delete(r.rooms, code)
	return true
}

// Len reports the number of rooms currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
