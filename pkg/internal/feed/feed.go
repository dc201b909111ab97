package feed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

type SortMode string

const (
	SortLatest   = SortMode("latest")
	SortTop      = SortMode("top")
	SortTrending = SortMode("trending")
)

type Window string

const (
	WindowToday     = Window("today")
	WindowThisWeek  = Window("this-week")
	WindowThisMonth = Window("this-month")
	WindowAll       = Window("all")
)

const (
	weekSpan  = 7 * 24 * time.Hour
	monthSpan = 30 * 24 * time.Hour
)

func ParseSortMode(in string) (SortMode, error) {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(in))); mode {
	case "":
		return SortLatest, nil
	case SortLatest, SortTop, SortTrending:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", in)
	}
}

func ParseWindow(in string) (Window, error) {
	switch window := Window(strings.ToLower(strings.TrimSpace(in))); window {
	case "":
		return WindowAll, nil
	case WindowToday, WindowThisWeek, WindowThisMonth, WindowAll:
		return window, nil
	default:
		return "", fmt.Errorf("unknown time window %q", in)
	}
}

// Filters select the entries of a feed. Type takes any variant encoding,
// nil, empty and "all" keep every variant. The today window compares
// calendar days in the location of Now.
type Filters struct {
	Type   any
	Window Window
	Now    time.Time
	Limit  int
}

type Sources struct {
	Items   []models.ContentItem
	Foreign []models.BaseFeedItem
}

// Entry is one element of a built feed, either a content item or a foreign
// item reduced to the same comparison key.
type Entry struct {
	Key        string                    `json:"key"`
	Variant    models.Variant            `json:"variant"`
	CreatedAt  time.Time                 `json:"created_at"`
	ChainID    int64                     `json:"chain_id,omitempty"`
	Creator    string                    `json:"creator"`
	Engagement models.EngagementCounters `json:"engagement"`

	Item    *models.ContentItem  `json:"item,omitempty"`
	Foreign *models.BaseFeedItem `json:"foreign,omitempty"`
}

// TrendingScore weighs a comment as two likes.
func (e Entry) TrendingScore() int64 {
	return e.Engagement.LikeCount + 2*e.Engagement.CommentCount
}

// BuildFeed merges, filters and sorts already fetched sources into a new
// slice. Inputs are never modified and equal inputs give equal output.
// Content items whose variant and payload disagree are left out.
func BuildFeed(sources Sources, filters Filters, mode SortMode) ([]Entry, error) {
	match, err := typeFilter(filters.Type)
	if err != nil {
		return nil, err
	}
	inWindow, err := windowFilter(filters.Window, filters.Now)
	if err != nil {
		return nil, err
	}
	less, err := comparator(mode)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(sources.Items)+len(sources.Foreign))
	for _, item := range sources.Items {
		if _, err := models.CheckSchema(item); err != nil {
			log.Warn().Err(err).Uint("item", item.ID).Str("variant", item.Variant.String()).Msg("Skipping content item with mismatched payload...")
			continue
		}
		entry := fromItem(item)
		if match(entry.Variant) && inWindow(entry.CreatedAt) {
			out = append(out, entry)
		}
	}
	for _, item := range sources.Foreign {
		if !item.Variant.IsKnown() {
			log.Warn().Str("item", item.ID).Str("source", item.Source).Str("variant", item.Variant.String()).Msg("Skipping foreign item with unknown variant...")
			continue
		}
		entry := fromForeign(item)
		if match(entry.Variant) && inWindow(entry.CreatedAt) {
			out = append(out, entry)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func fromItem(item models.ContentItem) Entry {
	return Entry{
		Key:        "item/" + strconv.FormatUint(uint64(item.ID), 10),
		Variant:    item.Variant,
		CreatedAt:  item.CreatedAt,
		Creator:    item.AuthorIdentity,
		Engagement: item.Engagement,
		Item:       &item,
	}
}

func fromForeign(item models.BaseFeedItem) Entry {
	return Entry{
		Key:        item.Source + "/" + item.ID,
		Variant:    item.Variant,
		CreatedAt:  item.CreatedAt,
		ChainID:    item.ChainID,
		Creator:    item.Creator,
		Engagement: item.Engagement,
		Foreign:    &item,
	}
}

func typeFilter(raw any) (func(models.Variant) bool, error) {
	if raw == nil {
		return func(models.Variant) bool { return true }, nil
	}
	if str, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(str)) {
		case "", "all":
			return func(models.Variant) bool { return true }, nil
		}
	}
	want, err := models.NormalizeVariant(raw)
	if err != nil {
		return nil, err
	}
	return func(v models.Variant) bool { return v == want }, nil
}

func windowFilter(window Window, now time.Time) (func(time.Time) bool, error) {
	switch window {
	case WindowAll, "":
		return func(time.Time) bool { return true }, nil
	case WindowToday:
		year, month, day := now.Date()
		return func(at time.Time) bool {
			y, m, d := at.In(now.Location()).Date()
			return y == year && m == month && d == day
		}, nil
	case WindowThisWeek:
		since := now.Add(-weekSpan)
		return func(at time.Time) bool { return !at.Before(since) }, nil
	case WindowThisMonth:
		since := now.Add(-monthSpan)
		return func(at time.Time) bool { return !at.Before(since) }, nil
	default:
		return nil, fmt.Errorf("unknown time window %q", window)
	}
}

// comparator returns a strict order, every mode ends on createdAt then the
// entry key so equal inputs always sort the same way.
func comparator(mode SortMode) (func(a, b Entry) bool, error) {
	tieBreak := func(a, b Entry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Key < b.Key
	}

	switch mode {
	case SortLatest, "":
		return tieBreak, nil
	case SortTop:
		return func(a, b Entry) bool {
			if a.Engagement.LikeCount != b.Engagement.LikeCount {
				return a.Engagement.LikeCount > b.Engagement.LikeCount
			}
			return tieBreak(a, b)
		}, nil
	case SortTrending:
		return func(a, b Entry) bool {
			if sa, sb := a.TrendingScore(), b.TrendingScore(); sa != sb {
				return sa > sb
			}
			return tieBreak(a, b)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sort mode %q", mode)
	}
}
