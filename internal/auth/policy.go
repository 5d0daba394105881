package auth

import (
	"sort"
	"strings"
	"sync"
)

// Policy decides which accounts may run admin operations.
type Policy interface {
	IsAdmin(accountID string) bool
}

// StaticAdmins is a fixed admin set, typically loaded from configuration.
type StaticAdmins struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewStaticAdmins(ids ...string) *StaticAdmins {
	s := &StaticAdmins{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// ParseAdmins builds the set from a comma-separated id list.
func ParseAdmins(list string) *StaticAdmins {
	return NewStaticAdmins(strings.Split(list, ",")...)
}

func (s *StaticAdmins) Add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *StaticAdmins) IsAdmin(accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[accountID]
	return ok
}

// IDs returns the admin ids in sorted order.
func (s *StaticAdmins) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
