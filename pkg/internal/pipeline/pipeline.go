package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/events"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/datatypes"
)

// Store is the persistence collaborator. CreateContentItem assigns the id.
type Store interface {
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	MarkConfirmed(ctx context.Context, id uint, txRef string) error
	Retract(ctx context.Context, id uint) error
}

// ResourceCreator runs the on-ledger pre-steps.
type ResourceCreator interface {
	CreateTicketedResource(ctx context.Context, req ledger.ResourceRequest) (ledger.Receipt, error)
}

type Pipeline struct {
	registry  *registry.Registry
	store     Store
	ledger    ResourceCreator
	publisher events.Publisher
	detect    func(text string) string

	pending *PendingSet
	overlay *Overlay
	notices *Notices
	locks   draftLocks
}

type Option func(p *Pipeline)

func WithPublisher(publisher events.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithLanguageDetector sets how the language of new items is guessed.
func WithLanguageDetector(detect func(text string) string) Option {
	return func(p *Pipeline) {
		p.detect = detect
	}
}

// WithOverlay shares an overlay with the readers of cached lists.
func WithOverlay(overlay *Overlay) Option {
	return func(p *Pipeline) {
		p.overlay = overlay
	}
}

func New(reg *registry.Registry, store Store, resources ResourceCreator, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  reg,
		store:     store,
		ledger:    resources,
		publisher: events.Nop{},
		pending:   NewPendingSet(reg.Now),
		overlay:   NewOverlay(reg.Now),
		notices:   NewNotices(),
		locks:     draftLocks{items: make(map[string]*draftLock)},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Pending() *PendingSet {
	return p.pending
}

func (p *Pipeline) Overlay() *Overlay {
	return p.overlay
}

func (p *Pipeline) Notices() *Notices {
	return p.notices
}

// Submit turns a validated draft into a content item. Pre-steps run first and
// in order, any failure aborts before the item is created. A draft carrying
// the results of earlier pre-steps reuses their transaction. Once the first
// pre-step is sent the submission no longer follows ctx cancellation, an
// on-ledger resource must not be left without its item.
func (p *Pipeline) Submit(ctx context.Context, draft models.Draft) (models.ContentItem, error) {
	if len(draft.ID) > 0 {
		unlock := p.locks.acquire(draft.ID)
		defer unlock()
	}

	behavior, err := p.registry.Lookup(draft.Variant)
	if err != nil {
		return models.ContentItem{}, err
	}
	sub, err := behavior.PrepareSubmission(draft)
	if err != nil {
		return models.ContentItem{}, err
	}

	txRef := draft.LedgerTxRef
	if len(sub.PreSteps) > 0 {
		if err := ctx.Err(); err != nil {
			return models.ContentItem{}, err
		}
		ctx = context.WithoutCancel(ctx)
		if txRef, err = p.runPreSteps(ctx, sub); err != nil {
			return models.ContentItem{}, err
		}
	} else if len(txRef) > 0 {
		ctx = context.WithoutCancel(ctx)
	}

	item, err := p.assemble(draft, sub.Payload, txRef)
	if err != nil {
		return models.ContentItem{}, err
	}
	if err := p.store.CreateContentItem(ctx, &item); err != nil {
		if len(txRef) > 0 {
			log.Error().Err(err).Str("tx", txRef).Str("draft", draft.ID).Msg("Ledger resource was created but its content item could not be stored...")
			return models.ContentItem{}, &models.UnstoredSubmission{Payload: sub.Payload, TxRef: txRef, Cause: err}
		}
		return models.ContentItem{}, err
	}

	p.publish(ctx, events.KindCreated, item, "")
	if len(txRef) == 0 {
		return item, nil
	}

	p.overlay.Put(item)
	early, ok := p.pending.Add(models.PendingSubmission{
		ExternalTxRef:        txRef,
		RelatedContentItemID: lo.ToPtr(item.ID),
		AuthorIdentity:       item.AuthorIdentity,
		CreatedAt:            p.registry.Now(),
	})
	if ok {
		if err := p.Reconcile(ctx, early); err != nil {
			log.Warn().Err(err).Str("tx", txRef).Msg("Early confirmation settled with an error...")
		}
	}
	return item, nil
}

func (p *Pipeline) runPreSteps(ctx context.Context, sub registry.Submission) (string, error) {
	var txRef string
	for _, step := range sub.PreSteps {
		receipt, err := p.ledger.CreateTicketedResource(ctx, ledger.ResourceRequest{
			Capacity: step.Capacity,
			Price:    step.Price,
			Metadata: step.Metadata,
		})
		if err != nil {
			return "", &models.PreStepFailed{Step: step.Name, Cause: err}
		}
		if step.Fold != nil {
			if err := step.Fold(sub.Payload, receipt.ResourceID); err != nil {
				log.Error().Err(err).Str("tx", receipt.TxRef).Str("step", step.Name).Msg("Unable to fold pre-step result into payload...")
				return "", &models.PreStepFailed{Step: step.Name, Cause: err}
			}
		}
		log.Debug().Str("step", step.Name).Str("resource", receipt.ResourceID).Str("tx", receipt.TxRef).Msg("Pre-step completed...")
		txRef = receipt.TxRef
	}
	return txRef, nil
}

func (p *Pipeline) assemble(draft models.Draft, payload models.Payload, txRef string) (models.ContentItem, error) {
	item := models.ContentItem{
		AuthorIdentity: draft.AuthorIdentity,
		CommunityID:    draft.CommunityID,
		Title:          strings.TrimSpace(draft.Title),
		Body:           strings.TrimSpace(draft.Body),
		Tags:           datatypes.JSONSlice[string](models.NormalizeTags(draft.Tags)),
	}
	if err := item.SetPayload(payload); err != nil {
		return item, err
	}
	if p.detect != nil {
		item.Language = p.detect(strings.TrimSpace(item.Title + "\n" + item.Body))
	}
	if len(txRef) > 0 {
		item.ExternalRef = models.ExternalRef{TxRef: txRef}
	}
	return item, nil
}

// Reconcile settles a pending submission with its ledger outcome. It is the
// only place where either outcome is applied. Unknown transactions are
// parked for a submission that has not registered yet, confirmations the
// store could not apply are parked for RetryParked.
func (p *Pipeline) Reconcile(ctx context.Context, conf ledger.Confirmation) error {
	pending, ok := p.pending.Take(conf.TxRef)
	if !ok {
		p.pending.Park(conf)
		return nil
	}
	if pending.RelatedContentItemID == nil {
		return nil
	}

	id := *pending.RelatedContentItemID
	item := models.ContentItem{AuthorIdentity: pending.AuthorIdentity}
	item.ID = id
	item.ExternalRef = models.ExternalRef{TxRef: conf.TxRef}

	if conf.Err == nil {
		if err := p.store.MarkConfirmed(ctx, id, conf.TxRef); err != nil {
			p.pending.Restore(pending)
			p.pending.Park(conf)
			return err
		}
		p.overlay.Confirm(id)
		item.ExternalRef.Confirmed = true
		p.publish(ctx, events.KindConfirmed, item, "")
		log.Info().Uint("item", id).Str("tx", conf.TxRef).Msg("Content item confirmed...")
		return nil
	}

	failure := &models.ConfirmationFailedError{TxRef: conf.TxRef, Cause: conf.Err}
	p.overlay.Retract(id)
	if err := p.store.Retract(ctx, id); err != nil {
		log.Error().Err(err).Uint("item", id).Str("tx", conf.TxRef).Msg("Unable to retract unconfirmed content item, hidden from feeds only...")
	}
	p.notices.Push(pending.AuthorIdentity, Notice{
		TxRef:   conf.TxRef,
		ItemID:  id,
		Message: failure.Error(),
		At:      p.registry.Now(),
	})
	p.publish(ctx, events.KindRetracted, item, conf.Err.Error())
	log.Warn().Err(conf.Err).Uint("item", id).Str("tx", conf.TxRef).Msg("Content item retracted, ledger confirmation failed...")
	return failure
}

// RetryParked settles again the confirmations that could not be applied
// earlier, it returns how many went through.
func (p *Pipeline) RetryParked(ctx context.Context) int {
	var count int
	for _, conf := range p.pending.Claim() {
		err := p.Reconcile(ctx, conf)
		switch {
		case err == nil, errors.Is(err, models.ErrConfirmationFailed):
			count++
		default:
			log.Warn().Err(err).Str("tx", conf.TxRef).Msg("Confirmation still cannot be settled, will retry...")
		}
	}
	return count
}

// Run settles creation confirmations until ctx is done or the stream closes.
func (p *Pipeline) Run(ctx context.Context, confirmations <-chan ledger.Confirmation) {
	for {
		select {
		case <-ctx.Done():
			return
		case conf, ok := <-confirmations:
			if !ok {
				return
			}
			if len(conf.Op) > 0 && conf.Op != ledger.OpCreate {
				continue
			}
			if err := p.Reconcile(ctx, conf); err != nil && !errors.Is(err, models.ErrConfirmationFailed) {
				log.Error().Err(err).Str("tx", conf.TxRef).Msg("Unable to reconcile confirmation...")
			}
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, kind events.Kind, item models.ContentItem, reason string) {
	err := p.publisher.Publish(ctx, events.Event{
		Kind:      kind,
		ItemID:    item.ID,
		TxRef:     item.ExternalRef.TxRef,
		Author:    item.AuthorIdentity,
		Community: item.CommunityID,
		Variant:   item.Variant.String(),
		Reason:    reason,
		At:        p.registry.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Uint("item", item.ID).Msg("Unable to publish timeline event...")
	}
}

type draftLock struct {
	sync.Mutex
	refs int
}

// draftLocks serializes submissions of the same draft.
type draftLocks struct {
	mu    sync.Mutex
	items map[string]*draftLock
}

func (l *draftLocks) acquire(key string) func() {
	l.mu.Lock()
	lock, ok := l.items[key]
	if !ok {
		lock = &draftLock{}
		l.items[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.items, key)
		}
		l.mu.Unlock()
	}
}
