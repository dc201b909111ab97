package pipeline

import (
	"sort"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/samber/lo"
)

// Overlay corrects item lists that may be stale, such as cached community
// pages. Optimistic items show up right after creation, retracted ones
// disappear right after a failed confirmation.
type Overlay struct {
	mu        sync.RWMutex
	clock     func() time.Time
	optimists map[uint]models.ContentItem
	confirmed map[uint]time.Time
	retracted map[uint]time.Time
}

func NewOverlay(clock func() time.Time) *Overlay {
	return &Overlay{
		clock:     clock,
		optimists: make(map[uint]models.ContentItem),
		confirmed: make(map[uint]time.Time),
		retracted: make(map[uint]time.Time),
	}
}

func (o *Overlay) Put(item models.ContentItem) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimists[item.ID] = item
}

func (o *Overlay) Confirm(id uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.optimists, id)
	o.confirmed[id] = o.clock()
}

func (o *Overlay) Retract(id uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.optimists, id)
	o.retracted[id] = o.clock()
}

func (o *Overlay) IsRetracted(id uint) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.retracted[id]
	return ok
}

// Apply returns a corrected copy of items. Optimistic items accepted by
// match and missing from items are appended.
func (o *Overlay) Apply(items []models.ContentItem, match func(item models.ContentItem) bool) []models.ContentItem {
	o.mu.RLock()
	defer o.mu.RUnlock()

	seen := make(map[uint]bool, len(items))
	out := make([]models.ContentItem, 0, len(items)+len(o.optimists))
	for _, item := range items {
		if _, ok := o.retracted[item.ID]; ok {
			continue
		}
		if _, ok := o.confirmed[item.ID]; ok {
			item.ExternalRef.Confirmed = true
		}
		seen[item.ID] = true
		out = append(out, item)
	}

	extra := lo.Filter(lo.Values(o.optimists), func(item models.ContentItem, _ int) bool {
		return !seen[item.ID] && (match == nil || match(item))
	})
	sort.Slice(extra, func(i, j int) bool {
		return extra[i].ID < extra[j].ID
	})
	return append(out, extra...)
}

// Prune forgets markers older than maxAge, by then every cached list has
// been refreshed.
func (o *Overlay) Prune(maxAge time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	deadline := o.clock().Add(-maxAge)
	var count int
	for _, markers := range []map[uint]time.Time{o.confirmed, o.retracted} {
		for id, at := range markers {
			if at.Before(deadline) {
				delete(markers, id)
				count++
			}
		}
	}
	return count
}
