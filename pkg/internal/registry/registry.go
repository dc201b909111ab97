package registry

import (
	"fmt"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type Clock func() time.Time

// Behavior is everything the system knows about one variant.
type Behavior interface {
	Variant() models.Variant
	// RenderSummary projects a stored item into a display-agnostic view.
	RenderSummary(item models.ContentItem) (SummaryView, error)
	// ValidateDraft returns nil or a *models.ValidationFailed naming the
	// first field that broke a rule.
	ValidateDraft(draft models.Draft) error
	// DefaultPayload seeds the payload when a draft switches to this variant.
	DefaultPayload() models.Payload
	// PrepareSubmission builds the final payload and the ledger writes that
	// must succeed before the item may be created.
	PrepareSubmission(draft models.Draft) (Submission, error)
}

type Submission struct {
	Payload  models.Payload
	PreSteps []PreStep
}

// PreStep is an irreversible ledger write, currently always the creation of a
// ticketed resource. Fold writes the returned resource id into the payload.
type PreStep struct {
	Name     string
	Capacity uint64
	Price    decimal.Decimal
	Metadata map[string]string
	Fold     func(payload models.Payload, resourceID string) error
}

const (
	PreStepTicketedResource = "create_ticketed_resource"
	PreStepBountyEscrow     = "create_bounty_escrow"
)

type Registry struct {
	bundles  map[models.Variant]Behavior
	fallback Behavior
	clock    Clock
}

type Option func(r *Registry)

func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New builds a registry with the nine content variants.
func New(opts ...Option) *Registry {
	r := &Registry{clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	b := newBundle(r.clock)
	text := &textBundle{b}
	r.bundles = lo.SliceToMap([]Behavior{
		text,
		&imageBundle{b},
		&videoBundle{b},
		&linkBundle{b},
		&eventBundle{b},
		&pollBundle{b},
		&bountyBundle{b},
		&projectBundle{b},
		&livestreamBundle{b},
	}, func(item Behavior) (models.Variant, Behavior) {
		return item.Variant(), item
	})
	r.fallback = text

	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default is the process-wide registry, populated on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Lookup resolves a tag in any accepted encoding.
func (r *Registry) Lookup(tag any) (Behavior, error) {
	variant, err := models.NormalizeVariant(tag)
	if err != nil {
		return nil, err
	}
	bundle, ok := r.bundles[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no behavior bundle", models.ErrUnknownVariant, variant)
	}
	return bundle, nil
}

// Resolve is Lookup with the text bundle as fallback.
func (r *Registry) Resolve(tag any) Behavior {
	bundle, err := r.Lookup(tag)
	if err != nil {
		log.Warn().Err(err).Any("variant", tag).Msg("Unknown variant, falling back to text behavior...")
		return r.fallback
	}
	return bundle
}

func (r *Registry) Variants() []models.Variant {
	return lo.Filter(models.ContentVariants, func(item models.Variant, _ int) bool {
		_, ok := r.bundles[item]
		return ok
	})
}

func (r *Registry) RenderSummary(item models.ContentItem) (SummaryView, error) {
	return r.Resolve(item.Variant).RenderSummary(item)
}

func (r *Registry) Now() time.Time {
	return r.clock()
}
