package core

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Entry binds a registered connection to its transport handle.
type Entry struct {
	Conn   domain.Connection
	Handle SignalConnection
}

// connSet is immutable once stored; every mutation swaps in a copy.
type connSet struct {
	byID map[string]Entry
}

func (s *connSet) with(e Entry) *connSet {
	next := make(map[string]Entry, len(s.byID)+1)
	for id, v := range s.byID {
		next[id] = v
	}
	next[e.Conn.ID] = e
	return &connSet{byID: next}
}

func (s *connSet) without(id string) *connSet {
	next := make(map[string]Entry, len(s.byID))
	for k, v := range s.byID {
		if k != id {
			next[k] = v
		}
	}
	return &connSet{byID: next}
}

// Registry maps a conversation key to its live connections.
// Readers get snapshots and never block writers; an empty key is pruned.
type Registry struct {
	keys sync.Map // domain.ConversationKey -> *connSet
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

func validateConn(key domain.ConversationKey, id string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return domain.InvalidArgument("connection_id", "empty")
	}
	if len(id) > domain.MaxConnectionIDLen {
		return domain.InvalidArgument("connection_id", "too long")
	}
	return nil
}

// Register upserts a connection. Re-registering an id replaces its entry.
func (r *Registry) Register(key domain.ConversationKey, id string, role domain.Role, device string, h SignalConnection) (domain.Connection, error) {
	if err := validateConn(key, id); err != nil {
		return domain.Connection{}, err
	}
	if !role.Valid() {
		return domain.Connection{}, domain.InvalidArgument("role", "must be driver or passenger")
	}
	e := Entry{
		Conn: domain.Connection{
			ID:           id,
			Key:          key,
			Role:         role,
			Device:       device,
			RegisteredAt: r.now().UTC(),
		},
		Handle: h,
	}
	for {
		cur, loaded := r.keys.Load(key)
		if !loaded {
			if _, loaded = r.keys.LoadOrStore(key, (&connSet{}).with(e)); !loaded {
				break
			}
			continue
		}
		if r.keys.CompareAndSwap(key, cur, cur.(*connSet).with(e)) {
			break
		}
	}
	log.Info().Str("module", "core.registry").Str("key", string(key)).Str("conn", id).Str("role", string(role)).Msg("connection registered")
	return e.Conn, nil
}

// Unregister is a no-op for unknown ids.
func (r *Registry) Unregister(key domain.ConversationKey, id string) error {
	if err := validateConn(key, id); err != nil {
		return err
	}
	r.remove(key, id, func(Entry) bool { return true })
	return nil
}

// Evict removes id only while it still holds h, so a reconnect that
// reused the id is left alone.
func (r *Registry) Evict(key domain.ConversationKey, id string, h SignalConnection) bool {
	return r.remove(key, id, func(e Entry) bool { return e.Handle == h })
}

func (r *Registry) remove(key domain.ConversationKey, id string, match func(Entry) bool) bool {
	for {
		cur, ok := r.keys.Load(key)
		if !ok {
			return false
		}
		set := cur.(*connSet)
		e, ok := set.byID[id]
		if !ok || !match(e) {
			return false
		}
		if len(set.byID) == 1 {
			if r.keys.CompareAndDelete(key, cur) {
				log.Info().Str("module", "core.registry").Str("key", string(key)).Str("conn", id).Msg("connection removed, key pruned")
				return true
			}
			continue
		}
		if r.keys.CompareAndSwap(key, cur, set.without(id)) {
			log.Info().Str("module", "core.registry").Str("key", string(key)).Str("conn", id).Msg("connection removed")
			return true
		}
	}
}

// Lookup returns the current entry for id.
func (r *Registry) Lookup(key domain.ConversationKey, id string) (Entry, bool) {
	cur, ok := r.keys.Load(key)
	if !ok {
		return Entry{}, false
	}
	e, ok := cur.(*connSet).byID[id]
	return e, ok
}

// Entries is a snapshot of the key's connections, optionally limited to roles,
// ordered by registration time.
func (r *Registry) Entries(key domain.ConversationKey, roles ...domain.Role) []Entry {
	cur, ok := r.keys.Load(key)
	if !ok {
		return nil
	}
	out := lo.Filter(lo.Values(cur.(*connSet).byID), func(e Entry, _ int) bool {
		return len(roles) == 0 || slices.Contains(roles, e.Conn.Role)
	})
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Conn.RegisteredAt.Compare(b.Conn.RegisteredAt); c != 0 {
			return c
		}
		return strings.Compare(a.Conn.ID, b.Conn.ID)
	})
	return out
}

func (r *Registry) ListConnections(key domain.ConversationKey) []domain.Connection {
	return conns(r.Entries(key))
}

func (r *Registry) ListConnectionsByRole(key domain.ConversationKey, role domain.Role) []domain.Connection {
	return conns(r.Entries(key, role))
}

func conns(entries []Entry) []domain.Connection {
	if len(entries) == 0 {
		return nil
	}
	return lo.Map(entries, func(e Entry, _ int) domain.Connection { return e.Conn })
}

// Count is the number of live connections for key.
func (r *Registry) Count(key domain.ConversationKey) int {
	cur, ok := r.keys.Load(key)
	if !ok {
		return 0
	}
	return len(cur.(*connSet).byID)
}

// Stats reports live keys and connections across the registry.
func (r *Registry) Stats() (keys, connections int) {
	r.keys.Range(func(_, v any) bool {
		keys++
		connections += len(v.(*connSet).byID)
		return true
	})
	return keys, connections
}
