package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestPendingSetConcurrentAccess(t *testing.T) {
	set := NewPendingSet(func() time.Time { return fixedNow })

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set.Add(models.PendingSubmission{ExternalTxRef: fmt.Sprintf("tx%d", i), AuthorIdentity: "alice"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 64, set.Len())

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := set.Take(fmt.Sprintf("tx%d", 63-i))
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, set.Len())
}

func TestPendingSetParking(t *testing.T) {
	now := fixedNow
	set := NewPendingSet(func() time.Time { return now })

	set.Park(ledger.Confirmation{TxRef: "early"})
	set.Park(ledger.Confirmation{TxRef: "stray"})

	conf, ok := set.Add(models.PendingSubmission{ExternalTxRef: "early"})
	assert.True(t, ok)
	assert.Equal(t, "early", conf.TxRef)

	_, ok = set.Add(models.PendingSubmission{ExternalTxRef: "late"})
	assert.False(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, set.PruneParked(time.Minute))
	_, ok = set.Add(models.PendingSubmission{ExternalTxRef: "stray"})
	assert.False(t, ok)
}

func TestPendingSetClaim(t *testing.T) {
	now := fixedNow
	set := NewPendingSet(func() time.Time { return now })

	set.Add(models.PendingSubmission{ExternalTxRef: "b"})
	set.Add(models.PendingSubmission{ExternalTxRef: "a"})
	set.Park(ledger.Confirmation{TxRef: "b"})
	now = now.Add(time.Second)
	set.Park(ledger.Confirmation{TxRef: "a"})
	set.Park(ledger.Confirmation{TxRef: "orphan"})

	claimed := lo.Map(set.Claim(), func(item ledger.Confirmation, _ int) string { return item.TxRef })
	assert.Equal(t, []string{"b", "a"}, claimed)
	assert.Empty(t, set.Claim())
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 1, set.PruneParked(-time.Hour))
}

func TestPendingSetListByAuthor(t *testing.T) {
	set := NewPendingSet(func() time.Time { return fixedNow })
	set.Add(models.PendingSubmission{ExternalTxRef: "b", AuthorIdentity: "alice", CreatedAt: fixedNow.Add(time.Minute)})
	set.Add(models.PendingSubmission{ExternalTxRef: "a", AuthorIdentity: "alice", CreatedAt: fixedNow})
	set.Add(models.PendingSubmission{ExternalTxRef: "c", AuthorIdentity: "bob", CreatedAt: fixedNow})

	refs := lo.Map(set.List("alice"), func(item models.PendingSubmission, _ int) string {
		return item.ExternalTxRef
	})
	assert.Equal(t, []string{"a", "b"}, refs)
	assert.Len(t, set.List(""), 3)
}

func TestOverlayApply(t *testing.T) {
	now := fixedNow
	overlay := NewOverlay(func() time.Time { return now })

	mk := func(id uint, community string) models.ContentItem {
		item := models.ContentItem{CommunityID: community}
		item.ID = id
		return item
	}

	overlay.Put(mk(10, "go"))
	overlay.Put(mk(11, "rust"))
	overlay.Retract(2)
	overlay.Confirm(3)

	cached := []models.ContentItem{mk(1, "go"), mk(2, "go"), mk(3, "go")}
	out := overlay.Apply(cached, func(item models.ContentItem) bool { return item.CommunityID == "go" })

	ids := lo.Map(out, func(item models.ContentItem, _ int) uint { return item.ID })
	assert.Equal(t, []uint{1, 3, 10}, ids)
	assert.True(t, out[1].ExternalRef.Confirmed)
	assert.False(t, cached[2].ExternalRef.Confirmed, "input must not be mutated")

	now = now.Add(time.Hour)
	assert.Equal(t, 2, overlay.Prune(time.Minute))
	assert.False(t, overlay.IsRetracted(2))
}

func TestNoticesAreCapped(t *testing.T) {
	notices := NewNotices()
	for i := 0; i < maxNoticesPerAuthor+5; i++ {
		notices.Push("alice", Notice{ItemID: uint(i)})
	}
	drained := notices.Drain("alice")
	assert.Len(t, drained, maxNoticesPerAuthor)
	assert.Equal(t, uint(5), drained[0].ItemID)
}
