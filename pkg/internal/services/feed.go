package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/events"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/feed"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/pipeline"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/services/sources"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	contentItemsCacheTag = "content-items"
	feedSourcesCacheTag  = "feed-sources"
)

type FeedQuery struct {
	Community string
	Author    string
	Type      any
	Window    feed.Window
	Sort      feed.SortMode
	Take      int
	Truncate  bool
}

// FeedService fetches stored items and foreign source items, corrects the
// possibly cached lists with the pipeline overlay and hands them to the
// aggregator.
type FeedService struct {
	store   *ContentStore
	overlay *pipeline.Overlay
	sources []sources.Source
	cache   *cache.Cache[any]
	ttl     time.Duration
	clock   func() time.Time
}

type FeedOption func(s *FeedService)

func WithFeedCache(cacheStore store.StoreInterface, ttl time.Duration) FeedOption {
	return func(s *FeedService) {
		if cacheStore != nil {
			s.cache = cache.New[any](cacheStore)
			s.ttl = ttl
		}
	}
}

func WithFeedSources(items ...sources.Source) FeedOption {
	return func(s *FeedService) {
		s.sources = append(s.sources, items...)
	}
}

func WithFeedClock(clock func() time.Time) FeedOption {
	return func(s *FeedService) {
		s.clock = clock
	}
}

func NewFeedService(contentStore *ContentStore, overlay *pipeline.Overlay, opts ...FeedOption) *FeedService {
	s := &FeedService{
		store:   contentStore,
		overlay: overlay,
		ttl:     5 * time.Minute,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FeedService) GetFeed(ctx context.Context, query FeedQuery) ([]feed.Entry, error) {
	var items []models.ContentItem
	foreign := make([][]models.BaseFeedItem, len(s.sources))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		items, err = s.listItems(gctx, query.Community, query.Author)
		return err
	})
	for idx, source := range s.sources {
		idx, source := idx, source
		group.Go(func() error {
			result, err := s.listSource(gctx, source)
			if err != nil {
				log.Warn().Err(err).Str("source", source.ID()).Msg("Unable to load feed source, leaving it out...")
				return nil
			}
			foreign[idx] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	items = s.overlay.Apply(items, func(item models.ContentItem) bool {
		if len(query.Community) > 0 && item.CommunityID != query.Community {
			return false
		}
		return len(query.Author) == 0 || item.AuthorIdentity == query.Author
	})

	merged := lo.Flatten(foreign)
	if len(query.Author) > 0 {
		merged = lo.Filter(merged, func(item models.BaseFeedItem, _ int) bool {
			return strings.EqualFold(item.Creator, query.Author)
		})
	}

	entries, err := feed.BuildFeed(
		feed.Sources{Items: items, Foreign: merged},
		feed.Filters{Type: query.Type, Window: query.Window, Now: s.clock(), Limit: query.Take},
		query.Sort,
	)
	if err != nil {
		return nil, err
	}

	if query.Truncate {
		for idx := range entries {
			if entries[idx].Item != nil {
				entries[idx].Item = lo.ToPtr(TruncateContentItem(*entries[idx].Item))
			}
		}
	}

	return entries, nil
}

func (s *FeedService) listItems(ctx context.Context, community, author string) ([]models.ContentItem, error) {
	cacheKey := fmt.Sprintf("content-items#%s#%s", community, author)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			if items, ok := cached.([]models.ContentItem); ok {
				return items, nil
			}
		}
	}

	items, err := s.store.ListContentItems(ctx, func(tx *gorm.DB) *gorm.DB {
		if len(community) > 0 {
			tx = FilterItemWithCommunity(tx, community)
		}
		if len(author) > 0 {
			tx = FilterItemWithAuthor(tx, author)
		}
		return tx
	}, MaxListTake, 0)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(
			ctx,
			cacheKey,
			items,
			store.WithExpiration(s.ttl),
			store.WithCost(1),
			store.WithTags([]string{contentItemsCacheTag, fmt.Sprintf("community#%s", community)}),
		)
	}

	return items, nil
}

func (s *FeedService) listSource(ctx context.Context, source sources.Source) ([]models.BaseFeedItem, error) {
	cacheKey := fmt.Sprintf("feed-source#%s", source.ID())
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			if items, ok := cached.([]models.BaseFeedItem); ok {
				return items, nil
			}
		}
	}

	items, err := source.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(
			ctx,
			cacheKey,
			items,
			store.WithExpiration(s.ttl),
			store.WithCost(1),
			store.WithTags([]string{feedSourcesCacheTag}),
		)
	}

	return items, nil
}

// RefreshSources drops the cached source results and loads them again.
func (s *FeedService) RefreshSources() {
	if len(s.sources) == 0 {
		return
	}

	ctx := context.Background()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, store.WithInvalidateTags([]string{feedSourcesCacheTag})); err != nil {
			log.Warn().Err(err).Msg("Unable to invalidate feed source cache...")
		}
	}

	log.Debug().Int("count", len(s.sources)).Msg("Refreshing feed sources...")
	for _, source := range s.sources {
		items, err := s.listSource(ctx, source)
		if err != nil {
			log.Error().Err(err).Str("source", source.ID()).Msg("Failed to refresh feed source...")
			continue
		}
		log.Info().Str("source", source.ID()).Int("count", len(items)).Msg("Refreshed feed source...")
	}
}

// Interact changes an engagement counter and drops the cached lists that
// still carry the old value.
func (s *FeedService) Interact(ctx context.Context, id uint, counter string, delta int64) (models.ContentItem, error) {
	item, err := s.store.Interact(ctx, id, counter, delta)
	if err != nil {
		return item, err
	}
	s.invalidateItems(ctx)
	return item, nil
}

// AnswerPoll records a poll answer, the cached lists carry the tallies so they
// are dropped.
func (s *FeedService) AnswerPoll(ctx context.Context, id uint, identity, optionID string) (models.ContentItem, models.PollAnswer, error) {
	item, answer, err := s.store.AnswerPoll(ctx, id, identity, optionID, s.clock())
	if err != nil {
		return item, answer, err
	}
	s.invalidateItems(ctx)
	return item, answer, nil
}

// Publish keeps the cached lists in step with the timeline, it is chained
// behind the pipeline's event publisher.
func (s *FeedService) Publish(ctx context.Context, _ events.Event) error {
	s.invalidateItems(ctx)
	return nil
}

func (s *FeedService) invalidateItems(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, store.WithInvalidateTags([]string{contentItemsCacheTag})); err != nil {
		log.Warn().Err(err).Msg("Unable to invalidate content item cache...")
	}
}
