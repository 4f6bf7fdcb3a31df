package gigboard

import (
	"sort"
	"sync"
)

// PresenceTracker keeps the server's latest online set. Every push replaces
// the whole set; there is no heartbeat or expiry, so a user who dropped
// without the server noticing stays online until the next push.
type PresenceTracker struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	onChange []func(online []string)
}

// NewPresenceTracker creates a tracker with nobody online.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// Attach subscribes the tracker to presence pushes on m.
func (p *PresenceTracker) Attach(m *ConnectionManager) (detach func()) {
	return m.OnOnlineUsers(func(ev OnlineUsersEvent) {
		p.Replace(ev.UserIDs)
	})
}

// Replace makes ids the complete online set.
func (p *PresenceTracker) Replace(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	snap := sortedKeys(set)

	p.mu.Lock()
	p.online = set
	hooks := append([]func([]string){}, p.onChange...)
	p.mu.Unlock()

	for _, h := range hooks {
		h(snap)
	}
}

// IsOnline reports whether userID is in the latest set.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns the latest set, sorted.
func (p *PresenceTracker) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.online)
}

// OnChange registers a hook called after every push with the set that push
// installed.
func (p *PresenceTracker) OnChange(fn func(online []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func sortedKeys(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
