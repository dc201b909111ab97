package pipeline

import (
	"sort"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
)

type parkedConfirmation struct {
	conf     ledger.Confirmation
	parkedAt time.Time
}

// PendingSet is shared by every in-flight submission. Confirmations may
// arrive in any order and even before their submission is registered, those
// are parked until Add picks them up.
type PendingSet struct {
	mu     sync.Mutex
	clock  func() time.Time
	items  map[string]models.PendingSubmission
	parked map[string]parkedConfirmation
}

func NewPendingSet(clock func() time.Time) *PendingSet {
	return &PendingSet{
		clock:  clock,
		items:  make(map[string]models.PendingSubmission),
		parked: make(map[string]parkedConfirmation),
	}
}

// Add registers the submission and returns a confirmation that arrived
// before it, if any.
func (s *PendingSet) Add(pending models.PendingSubmission) (ledger.Confirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[pending.ExternalTxRef] = pending
	parked, ok := s.parked[pending.ExternalTxRef]
	if ok {
		delete(s.parked, pending.ExternalTxRef)
	}
	return parked.conf, ok
}

// Take removes and returns the submission, each one can be taken once.
func (s *PendingSet) Take(txRef string) (models.PendingSubmission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.items[txRef]
	if ok {
		delete(s.items, txRef)
	}
	return pending, ok
}

// Restore puts back a submission whose reconciliation could not complete.
func (s *PendingSet) Restore(pending models.PendingSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[pending.ExternalTxRef] = pending
}

// Park holds a confirmation for later. Add picks it up for submissions that
// register afterwards, Claim for ones already registered.
func (s *PendingSet) Park(conf ledger.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parked[conf.TxRef] = parkedConfirmation{conf: conf, parkedAt: s.clock()}
}

// List returns the submissions of an author, oldest first. An empty author
// lists everything.
func (s *PendingSet) List(author string) []models.PendingSubmission {
	s.mu.Lock()
	out := make([]models.PendingSubmission, 0, len(s.items))
	for _, item := range s.items {
		if len(author) == 0 || item.AuthorIdentity == author {
			out = append(out, item)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ExternalTxRef < out[j].ExternalTxRef
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Claim removes and returns the parked confirmations whose submission is
// registered, oldest first.
func (s *PendingSet) Claim() []ledger.Confirmation {
	s.mu.Lock()
	claimed := make([]parkedConfirmation, 0)
	for key, item := range s.parked {
		if _, ok := s.items[key]; ok {
			claimed = append(claimed, item)
			delete(s.parked, key)
		}
	}
	s.mu.Unlock()

	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].parkedAt.Equal(claimed[j].parkedAt) {
			return claimed[i].conf.TxRef < claimed[j].conf.TxRef
		}
		return claimed[i].parkedAt.Before(claimed[j].parkedAt)
	})
	out := make([]ledger.Confirmation, len(claimed))
	for idx, item := range claimed {
		out[idx] = item.conf
	}
	return out
}

// PruneParked drops parked confirmations nobody claimed within maxAge. Those
// waiting on a registered submission are kept.
func (s *PendingSet) PruneParked(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.clock().Add(-maxAge)
	var count int
	for key, item := range s.parked {
		if _, ok := s.items[key]; ok {
			continue
		}
		if item.parkedAt.Before(deadline) {
			delete(s.parked, key)
			count++
		}
	}
	return count
}
