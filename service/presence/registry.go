package presence

import (
	"sort"
	"sync"
)

// Snapshot is the registry state right after one mutation.
type Snapshot struct {
	Version uint64
	Online  []string
	Handles []Handle
}

// Registry maps a user to its single live handle. The key set is the online set.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]Handle
	version uint64
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]Handle)}
}

// Register binds h to userID, replacing any other handle. prev is the superseded
// handle (nil if none); the caller closes it. changed is false when h was already bound.
func (r *Registry) Register(userID string, h Handle) (prev Handle, snap Snapshot, changed bool) {
	if userID == "" || h == nil {
		return nil, r.Snapshot(), false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[userID]
	if ok && cur == h {
		return nil, r.snapshotLocked(), false
	}
	r.byUser[userID] = h
	r.version++
	return cur, r.snapshotLocked(), true
}

// Deregister removes userID only while h is still the bound handle, so a late
// disconnect from a replaced connection cannot evict its successor.
func (r *Registry) Deregister(userID string, h Handle) (snap Snapshot, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[userID]
	if !ok || cur != h {
		return r.snapshotLocked(), false
	}
	delete(r.byUser, userID)
	r.version++
	return r.snapshotLocked(), true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// OnlineUserIDs returns the online set, sorted.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	handles := make([]Handle, 0, len(r.byUser))
	for _, h := range r.byUser {
		handles = append(handles, h)
	}
	return Snapshot{Version: r.version, Online: r.onlineLocked(), Handles: handles}
}

func (r *Registry) onlineLocked() []string {
	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
