// Package resorts holds the set of resorts the user follows.
package resorts

import (
	"context"
	"slices"
	"sync"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// List is a thread-safe, label-ordered set of resorts. Resorts are
// identified by label. A List opened on a Store writes every change through
// to it before applying it in memory.
type List struct {
	mu    sync.RWMutex
	items []domain.Resort
	store *Store
}

// New returns an in-memory List seeded with initial. Later duplicates of a
// label are dropped.
func New(initial []domain.Resort) *List {
	l := &List{}
	for _, r := range initial {
		l.insertLocked(r)
	}
	return l
}

// Open loads the resorts saved in store and then merges in seed. Stored
// resorts win over seeds with the same label; seeds are not written back.
func Open(ctx context.Context, store *Store, seed []domain.Resort) (*List, error) {
	saved, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	l := New(append(saved, seed...))
	l.store = store
	return l, nil
}

// Resorts returns a copy of the current resorts ordered by name.
func (l *List) Resorts() []domain.Resort {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Add inserts r, returning false if a resort with the same label exists.
func (l *List) Add(ctx context.Context, r domain.Resort) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, found := domain.FindResort(r.Location, l.items); found {
		return false, nil
	}
	if l.store != nil {
		if err := l.store.Save(ctx, r); err != nil {
			return false, err
		}
	}
	l.insertLocked(r)
	return true, nil
}

// Remove deletes the resort whose location equals loc and returns it.
func (l *List) Remove(ctx context.Context, loc domain.Location) (domain.Resort, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(loc.Label)
	if i < 0 {
		return domain.Resort{}, false, nil
	}
	r := l.items[i]
	if l.store != nil {
		if err := l.store.Delete(ctx, r.Location.Label); err != nil {
			return domain.Resort{}, false, err
		}
	}
	l.items = slices.Delete(l.items, i, i+1)
	return r, true, nil
}

// SetWakeup changes the wake-up flag of the resort with label.
func (l *List) SetWakeup(ctx context.Context, label string, enabled bool) (domain.Resort, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(label)
	if i < 0 {
		return domain.Resort{}, false, nil
	}
	r := l.items[i]
	r.WakeupEnabled = enabled
	if l.store != nil {
		if err := l.store.Save(ctx, r); err != nil {
			return domain.Resort{}, false, err
		}
	}
	l.items[i] = r
	return r, true, nil
}

// Find looks a resort up by label.
func (l *List) Find(label string) (domain.Resort, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.FindResort(domain.Location{Label: label}, l.items)
}

// Len returns the number of resorts.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *List) insertLocked(r domain.Resort) {
	if _, found := domain.FindResort(r.Location, l.items); found {
		return
	}
	i, _ := slices.BinarySearchFunc(l.items, r, domain.CompareResorts)
	l.items = slices.Insert(l.items, i, r)
}

func (l *List) indexLocked(label string) int {
	loc := domain.Location{Label: label}
	return slices.IndexFunc(l.items, func(r domain.Resort) bool { return loc.Equal(r.Location) })
}
