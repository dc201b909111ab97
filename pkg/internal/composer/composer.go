package composer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateEmpty      = State("empty")
	StateEditing    = State("editing")
	StateValidating = State("validating")
	StateSubmitting = State("submitting")
	StateSuccess    = State("success")
	StateFailed     = State("failed")
)

// Submitter hands a validated draft to the submission pipeline and blocks
// until the item exists or the submission failed.
type Submitter interface {
	Submit(ctx context.Context, draft models.Draft) (models.ContentItem, error)
}

var ErrSubmitting = errors.New("draft is being submitted")

// TransitionError is returned when an operation is not allowed in the
// current state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a draft in state %s", e.Op, e.State)
}

// Composer holds the single live draft of one authoring session.
type Composer struct {
	mu sync.Mutex

	registry  *registry.Registry
	submitter Submitter

	author    string
	state     State
	draft     models.Draft
	err       error
	touchedAt time.Time
}

func New(reg *registry.Registry, submitter Submitter, author string) *Composer {
	return &Composer{
		registry:  reg,
		submitter: submitter,
		author:    author,
		state:     StateEmpty,
		touchedAt: reg.Now(),
	}
}

// Snapshot is a detached copy of the composer, safe to hand out.
type Snapshot struct {
	State State        `json:"state"`
	Draft models.Draft `json:"draft"`
	Error string       `json:"error,omitempty"`
	Field string       `json:"field,omitempty"`
	Rule  string       `json:"rule,omitempty"`
}

func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	draft, err := c.draft.Clone()
	if err != nil {
		log.Error().Err(err).Str("draft", c.draft.ID).Msg("Unable to copy draft payload, leaving it out of the snapshot...")
		draft.Tags = append([]string(nil), c.draft.Tags...)
		draft.Payload = nil
	}
	out := Snapshot{State: c.state, Draft: draft}
	if c.err != nil {
		out.Error = c.err.Error()
		var violation *models.ValidationFailed
		if errors.As(c.err, &violation) {
			out.Field, out.Rule = violation.Field, violation.Rule
		}
	}
	return out
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the error attached to the draft by the last submit, if any.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// StartDraft opens a fresh draft of the given variant. Unknown variants
// start a text draft.
func (c *Composer) StartDraft(variant any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEmpty && c.state != StateFailed {
		return &TransitionError{Op: "start", State: c.state}
	}

	behavior := c.registry.Resolve(variant)
	c.draft = models.Draft{
		ID:             uuid.NewString(),
		AuthorIdentity: c.author,
		Variant:        behavior.Variant(),
		Tags:           []string{},
		Payload:        behavior.DefaultPayload(),
	}
	c.err = nil
	c.state = StateEditing
	c.touch()
	return nil
}

// UpdateField merges the patch without validating it, required fields are
// only enforced on submit.
func (c *Composer) UpdateField(patch models.DraftPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editable("update"); err != nil {
		return err
	}
	draft, err := c.draft.Apply(patch)
	if err != nil {
		return err
	}
	c.draft = draft
	c.state = StateEditing
	c.err = nil
	c.touch()
	return nil
}

// ChangeVariant swaps the payload-in-progress for the default of the new
// variant. Title, body and tags are kept.
func (c *Composer) ChangeVariant(variant any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editable("change variant of"); err != nil {
		return err
	}
	behavior := c.registry.Resolve(variant)
	c.draft.Variant = behavior.Variant()
	c.draft.Payload = behavior.DefaultPayload()
	c.draft.LedgerTxRef = ""
	c.state = StateEditing
	c.err = nil
	c.touch()
	return nil
}

// Submit validates the draft and hands it to the pipeline. The lock is not
// held while the pipeline runs, concurrent callers observe StateSubmitting.
// On success the draft is cleared, on failure it is retained with the error
// attached. When the ledger writes went through but the item was not stored,
// the draft keeps their results so a retry does not repeat them.
func (c *Composer) Submit(ctx context.Context) (models.ContentItem, error) {
	c.mu.Lock()
	if err := c.editable("submit"); err != nil {
		c.mu.Unlock()
		return models.ContentItem{}, err
	}

	c.state = StateValidating
	behavior := c.registry.Resolve(c.draft.Variant)
	if err := behavior.ValidateDraft(c.draft); err != nil {
		c.state = StateEditing
		c.err = err
		c.touch()
		c.mu.Unlock()
		return models.ContentItem{}, err
	}

	draft, err := c.draft.Clone()
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.touch()
		c.mu.Unlock()
		return models.ContentItem{}, err
	}
	c.state = StateSubmitting
	c.err = nil
	c.mu.Unlock()

	item, err := c.submitter.Submit(ctx, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err != nil {
		log.Warn().Err(err).Str("draft", draft.ID).Str("variant", draft.Variant.String()).Msg("Draft submission failed, keeping draft for correction...")
		c.state = StateFailed
		c.err = err
		var unstored *models.UnstoredSubmission
		if errors.As(err, &unstored) && unstored.Payload != nil {
			c.draft.Payload = unstored.Payload
			c.draft.LedgerTxRef = unstored.TxRef
		}
		return models.ContentItem{}, err
	}

	c.state = StateSuccess
	c.reset()
	return item, nil
}

// Discard drops the draft. A draft whose submission is in flight cannot be
// discarded, its ledger writes must be allowed to finish.
func (c *Composer) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting || c.state == StateValidating {
		return ErrSubmitting
	}
	c.reset()
	return nil
}

// IdleSince is the time of the last operation on the draft.
func (c *Composer) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touchedAt
}

func (c *Composer) editable(op string) error {
	switch c.state {
	case StateEditing, StateFailed:
		return nil
	case StateSubmitting, StateValidating:
		return ErrSubmitting
	default:
		return &TransitionError{Op: op, State: c.state}
	}
}

func (c *Composer) reset() {
	c.draft = models.Draft{}
	c.err = nil
	c.state = StateEmpty
}

func (c *Composer) touch() {
	c.touchedAt = c.registry.Now()
}
