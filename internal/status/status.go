package status

import (
	"slices"
	"sync"

	"github.com/mrussa/meeshosync/internal/accountsync"
)

// Registry keeps the last finished sync report per account in memory.
type Registry struct {
	mu sync.RWMutex
	m  map[int64]accountsync.Report
}

func New() *Registry {
	return &Registry{m: make(map[int64]accountsync.Report, 64)}
}

func (r *Registry) Get(userID int64) (accountsync.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.m[userID]
	return rep, ok
}

// Set stores rep under rep.UserID unless a newer run is already recorded.
func (r *Registry) Set(rep accountsync.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[rep.UserID]; ok && cur.StartedAt.After(rep.StartedAt) {
		return
	}
	r.m[rep.UserID] = rep
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// List returns all reports ordered by user id.
func (r *Registry) List() []accountsync.Report {
	r.mu.RLock()
	out := make([]accountsync.Report, 0, len(r.m))
	for _, rep := range r.m {
		out = append(out, rep)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b accountsync.Report) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return out
}
