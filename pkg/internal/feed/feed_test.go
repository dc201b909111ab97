package feed

import (
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var now = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

func item(t *testing.T, id uint, payload models.Payload, createdAt time.Time, likes, comments int64) models.ContentItem {
	t.Helper()
	out := models.ContentItem{AuthorIdentity: "alice"}
	require.NoError(t, out.SetPayload(payload))
	out.ID = id
	out.CreatedAt = createdAt
	out.Engagement = models.EngagementCounters{LikeCount: likes, CommentCount: comments}
	return out
}

func keys(entries []Entry) []string {
	return lo.Map(entries, func(item Entry, _ int) string { return item.Key })
}

func TestTrendingOrder(t *testing.T) {
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, now.Add(-3*time.Hour), 10, 0),
		item(t, 2, &models.TextPayload{}, now.Add(-2*time.Hour), 0, 6),
		item(t, 3, &models.TextPayload{}, now.Add(-1*time.Hour), 5, 5),
	}}

	out, err := BuildFeed(sources, Filters{Now: now}, SortTrending)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/3", "item/2", "item/1"}, keys(out))
	assert.Equal(t, []int64{15, 12, 10}, lo.Map(out, func(e Entry, _ int) int64 { return e.TrendingScore() }))
}

func TestTrendingTiesBreakOnCreatedAt(t *testing.T) {
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, now.Add(-3*time.Hour), 2, 0),
		item(t, 2, &models.TextPayload{}, now.Add(-1*time.Hour), 0, 1),
	}}
	out, err := BuildFeed(sources, Filters{Now: now}, SortTrending)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/2", "item/1"}, keys(out))
}

func TestLatestAndTop(t *testing.T) {
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, now.Add(-3*time.Hour), 9, 0),
		item(t, 2, &models.TextPayload{}, now.Add(-1*time.Hour), 1, 50),
		item(t, 3, &models.TextPayload{}, now.Add(-2*time.Hour), 4, 0),
	}}

	out, err := BuildFeed(sources, Filters{Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/2", "item/3", "item/1"}, keys(out))

	out, err = BuildFeed(sources, Filters{Now: now}, SortTop)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/1", "item/3", "item/2"}, keys(out))
}

func TestTodayIsCalendarDay(t *testing.T) {
	evening := time.Date(2024, 6, 10, 0, 30, 0, 0, time.UTC)
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, time.Date(2024, 6, 9, 23, 59, 0, 0, time.UTC), 0, 0),
		item(t, 2, &models.TextPayload{}, time.Date(2024, 6, 10, 0, 1, 0, 0, time.UTC), 0, 0),
	}}

	out, err := BuildFeed(sources, Filters{Window: WindowToday, Now: evening}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/2"}, keys(out))
}

func TestTodayUsesEvaluationLocation(t *testing.T) {
	zone := time.FixedZone("UTC+8", 8*60*60)
	at := time.Date(2024, 6, 10, 7, 0, 0, 0, zone)
	sources := Sources{Items: []models.ContentItem{
		// 2024-06-09 23:30 UTC is 2024-06-10 07:30 in UTC+8
		item(t, 1, &models.TextPayload{}, time.Date(2024, 6, 9, 23, 30, 0, 0, time.UTC), 0, 0),
	}}
	out, err := BuildFeed(sources, Filters{Window: WindowToday, Now: at}, SortLatest)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRollingWindows(t *testing.T) {
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, now.Add(-6*24*time.Hour), 0, 0),
		item(t, 2, &models.TextPayload{}, now.Add(-8*24*time.Hour), 0, 0),
		item(t, 3, &models.TextPayload{}, now.Add(-31*24*time.Hour), 0, 0),
	}}

	out, err := BuildFeed(sources, Filters{Window: WindowThisWeek, Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/1"}, keys(out))

	out, err = BuildFeed(sources, Filters{Window: WindowThisMonth, Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/1", "item/2"}, keys(out))

	out, err = BuildFeed(sources, Filters{Window: WindowAll, Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestTypeFilterAcceptsEveryEncoding(t *testing.T) {
	sources := Sources{
		Items: []models.ContentItem{
			item(t, 1, &models.TextPayload{}, now, 0, 0),
			item(t, 2, &models.EventPayload{Location: "Hall"}, now, 0, 0),
		},
		Foreign: []models.BaseFeedItem{
			{ID: "p1", Source: "dao", Variant: models.VariantProposal, CreatedAt: now},
		},
	}

	for _, filter := range []any{"event", "EVENT", 4, float64(4), map[string]any{"type": "Event"}, models.VariantEvent} {
		out, err := BuildFeed(sources, Filters{Type: filter, Now: now}, SortLatest)
		require.NoError(t, err)
		assert.Equal(t, []string{"item/2"}, keys(out), "%#v", filter)
	}

	for _, filter := range []any{nil, "", "all", "ALL"} {
		out, err := BuildFeed(sources, Filters{Type: filter, Now: now}, SortLatest)
		require.NoError(t, err)
		assert.Len(t, out, 3)
	}

	out, err := BuildFeed(sources, Filters{Type: "proposal", Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"dao/p1"}, keys(out))

	_, err = BuildFeed(sources, Filters{Type: "story", Now: now}, SortLatest)
	assert.ErrorIs(t, err, models.ErrUnknownVariant)
}

func TestMergesForeignItems(t *testing.T) {
	sources := Sources{
		Items: []models.ContentItem{
			item(t, 1, &models.TextPayload{}, now.Add(-2*time.Hour), 3, 0),
		},
		Foreign: []models.BaseFeedItem{
			{ID: "n1", Source: "market", Variant: models.VariantNFTListing, ChainID: 1, Creator: "0xabc", CreatedAt: now.Add(-time.Hour)},
			{ID: "bad", Source: "market", Variant: models.VariantUnknown, CreatedAt: now},
		},
	}

	out, err := BuildFeed(sources, Filters{Now: now}, SortLatest)
	require.NoError(t, err)
	require.Equal(t, []string{"market/n1", "item/1"}, keys(out))
	assert.Equal(t, int64(1), out[0].ChainID)
	assert.Equal(t, "0xabc", out[0].Creator)
	require.NotNil(t, out[0].Foreign)
	require.NotNil(t, out[1].Item)
	assert.Nil(t, out[1].Foreign)
}

func TestMismatchedItemsAreExcluded(t *testing.T) {
	broken := models.ContentItem{
		Variant: models.VariantEvent,
		Payload: datatypes.NewJSONType(models.VariantPayload{Poll: &models.PollPayload{}}),
	}
	broken.ID = 9
	empty := models.ContentItem{Variant: models.VariantText}
	empty.ID = 10

	sources := Sources{Items: []models.ContentItem{
		broken,
		empty,
		item(t, 1, &models.TextPayload{}, now, 0, 0),
	}}
	out, err := BuildFeed(sources, Filters{Now: now}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/1"}, keys(out))
}

func TestBuildFeedIsIdempotentAndPure(t *testing.T) {
	same := now.Add(-time.Hour)
	items := []models.ContentItem{
		item(t, 4, &models.TextPayload{}, same, 1, 1),
		item(t, 2, &models.TextPayload{}, same, 1, 1),
		item(t, 3, &models.TextPayload{}, same, 3, 0),
		item(t, 1, &models.TextPayload{}, now, 0, 0),
	}
	before := append([]models.ContentItem(nil), items...)
	sources := Sources{Items: items}

	first, err := BuildFeed(sources, Filters{Now: now}, SortTrending)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := BuildFeed(sources, Filters{Now: now}, SortTrending)
		require.NoError(t, err)
		assert.Equal(t, keys(first), keys(again))
	}
	assert.Equal(t, []string{"item/2", "item/3", "item/4", "item/1"}, keys(first))
	assert.Equal(t, before, items)

	first[0].Item.Title = "changed"
	assert.Empty(t, items[1].Title)
}

func TestLimitAndInvalidOptions(t *testing.T) {
	sources := Sources{Items: []models.ContentItem{
		item(t, 1, &models.TextPayload{}, now.Add(-time.Hour), 0, 0),
		item(t, 2, &models.TextPayload{}, now, 0, 0),
	}}
	out, err := BuildFeed(sources, Filters{Now: now, Limit: 1}, SortLatest)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/2"}, keys(out))

	_, err = BuildFeed(sources, Filters{Now: now}, SortMode("random"))
	assert.Error(t, err)
	_, err = BuildFeed(sources, Filters{Now: now, Window: "yesterday"}, SortLatest)
	assert.Error(t, err)

	mode, err := ParseSortMode(" Trending ")
	require.NoError(t, err)
	assert.Equal(t, SortTrending, mode)
	window, err := ParseWindow("")
	require.NoError(t, err)
	assert.Equal(t, WindowAll, window)
	_, err = ParseWindow("decade")
	assert.Error(t, err)
}
