package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const DefaultBatchSize = 50

// Config describes one foreign feed endpoint, read from feed.sources.
type Config struct {
	ID        string `json:"id" mapstructure:"id"`
	Type      string `json:"type" mapstructure:"type"`
	URL       string `json:"url" mapstructure:"url"`
	ChainID   int64  `json:"chain_id" mapstructure:"chain_id" toml:"chain_id"`
	BatchSize int    `json:"batch_size" mapstructure:"batch_size" toml:"batch_size"`
}

// Source lists read-only items of a foreign system such as governance
// proposals or NFT listings.
type Source interface {
	ID() string
	List(ctx context.Context) ([]models.BaseFeedItem, error)
}

func ReadConfig() []Config {
	var configs []Config
	if err := viper.UnmarshalKey("feed.sources", &configs); err != nil {
		log.Error().Err(err).Msg("Failed to load feed source config...")
		return nil
	}
	log.Info().Int("count", len(configs)).Msg("Loaded feed source config!")
	return configs
}

// NewFromConfig builds every configured source, skipping broken entries.
func NewFromConfig(configs []Config, client *http.Client) []Source {
	var out []Source
	for _, cfg := range configs {
		source, err := New(cfg, client)
		if err != nil {
			log.Error().Err(err).Str("id", cfg.ID).Msg("Skipping invalid feed source...")
			continue
		}
		out = append(out, source)
	}
	return out
}

// New creates an HTTP source. The type must name a foreign variant.
func New(cfg Config, client *http.Client) (*HTTPSource, error) {
	if len(cfg.ID) == 0 {
		return nil, fmt.Errorf("feed source has no id")
	}
	variant, err := models.NormalizeVariant(cfg.Type)
	if err != nil {
		return nil, err
	}
	if !variant.IsForeign() {
		return nil, fmt.Errorf("feed source %s: %s is not a foreign item type", cfg.ID, variant)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("feed source %s: %v", cfg.ID, err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{cfg: cfg, variant: variant, client: client}, nil
}

type HTTPSource struct {
	cfg     Config
	variant models.Variant
	client  *http.Client
}

func (v *HTTPSource) ID() string {
	return v.cfg.ID
}

// remoteItem is the listing shape served by proposal and marketplace
// indexers. Type overrides the source type when present.
type remoteItem struct {
	ID        string         `json:"id"`
	Type      any            `json:"type"`
	ChainID   int64          `json:"chain_id"`
	Creator   string         `json:"creator"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	URL       string         `json:"url"`
	Likes     int64          `json:"likes"`
	Comments  int64          `json:"comments"`
	CreatedAt time.Time      `json:"created_at"`
	Extra     map[string]any `json:"extra"`
}

func (v remoteItem) toFeedItem(cfg Config, fallback models.Variant) models.BaseFeedItem {
	variant := fallback
	if v.Type != nil {
		if parsed, err := models.NormalizeVariant(v.Type); err == nil && parsed.IsForeign() {
			variant = parsed
		} else {
			variant = models.VariantUnknown
		}
	}
	return models.BaseFeedItem{
		ID:        v.ID,
		Variant:   variant,
		ChainID:   lo.Ternary(v.ChainID != 0, v.ChainID, cfg.ChainID),
		CreatedAt: v.CreatedAt,
		Creator:   strings.ToLower(v.Creator),
		Title:     v.Title,
		Summary:   v.Summary,
		URL:       v.URL,
		Source:    cfg.ID,
		Engagement: models.EngagementCounters{
			LikeCount:    v.Likes,
			CommentCount: v.Comments,
		},
		Extra: v.Extra,
	}
}

func (v *HTTPSource) List(ctx context.Context) ([]models.BaseFeedItem, error) {
	target, err := url.Parse(v.cfg.URL)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	query.Set("limit", strconv.Itoa(v.cfg.BatchSize))
	target.RawQuery = query.Encode()

	log.Debug().Str("id", v.cfg.ID).Str("url", target.String()).Msg("Fetching feed source...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed source %s: %v", v.cfg.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, body)
	}

	var items []remoteItem
	if err := jsoniter.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse feed source JSON: %v", err)
	}

	items = lo.Filter(items, func(item remoteItem, _ int) bool {
		return len(item.ID) > 0
	})
	items = lo.UniqBy(items, func(item remoteItem) string {
		return item.ID
	})

	log.Debug().Str("id", v.cfg.ID).Int("count", len(items)).Msg("Fetched feed source...")

	return lo.Map(items, func(item remoteItem, _ int) models.BaseFeedItem {
		return item.toFeedItem(v.cfg, v.variant)
	}), nil
}
