package app

import (
	"sync"

	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps a client id to its single live test Session.
// It is the only synchronization point shared between clients.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ClientID]*Session
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ClientID]*Session),
	}
}

func (r *Registry) Get(cid domain.ClientID) (*Session, bool) {
	if cid == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[cid]
	return s, ok
}

// PutReplacing stores s under cid and hands any previous session to releaseOld
// after the swap, outside the lock. It returns false once the registry is drained;
// the caller still owns s then.
func (r *Registry) PutReplacing(cid domain.ClientID, s *Session, releaseOld func(*Session)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("cid", string(cid)).Msg("put refused, registry drained")
		return false
	}
	old, ok := r.sessions[cid]
	r.sessions[cid] = s
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Bool("replaced", ok).Msg("bound session")
	if ok && old != s && releaseOld != nil {
		releaseOld(old)
	}
	return true
}

func (r *Registry) Remove(cid domain.ClientID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[cid]
	if ok {
		delete(r.sessions, cid)
		log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbind session")
	}
	return s, ok
}

// RemoveIf removes the entry only while it still points at s, so a stale
// release cannot evict a newer session of the same client.
func (r *Registry) RemoveIf(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ClientID()]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, s.ClientID())
	log.Info().Str("module", "app.registry").Str("cid", string(s.ClientID())).Msg("unbind session")
	return true
}

// DrainAll empties the registry, closes it for further puts and returns what it held.
func (r *Registry) DrainAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[domain.ClientID]*Session)
	r.closed = true
	log.Info().Str("module", "app.registry").Int("drained", len(out)).Msg("registry drained")
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type SessionSnap struct {
	ClientID domain.ClientID `json:"cid"`
	State    string          `json:"state"`
	Record   string          `json:"record,omitempty"`
	Play     string          `json:"play,omitempty"`
}

func (r *Registry) Snapshot() []SessionSnap {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	snaps := make([]SessionSnap, 0, len(out))
	for _, s := range out {
		snap := SessionSnap{ClientID: s.ClientID(), State: s.State().String()}
		if p := s.RecordPipeline(); p != nil {
			snap.Record = p.ID()
		}
		if p, ok := s.PlayPipeline(); ok {
			snap.Play = p.ID()
		}
		snaps = append(snaps, snap)
	}
	return snaps
}
