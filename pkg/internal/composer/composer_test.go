package composer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeSubmitter struct {
	mu      sync.Mutex
	drafts  []models.Draft
	err     error
	release chan struct{}
}

func (f *fakeSubmitter) Submit(_ context.Context, draft models.Draft) (models.ContentItem, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	if f.err != nil {
		return models.ContentItem{}, f.err
	}
	item := models.ContentItem{AuthorIdentity: draft.AuthorIdentity, Title: draft.Title, Body: draft.Body}
	item.ID = uint(len(f.drafts))
	if err := item.SetPayload(draft.Payload); err != nil {
		return models.ContentItem{}, err
	}
	return item, nil
}

func newTestComposer(sub Submitter) *Composer {
	reg := registry.New(registry.WithClock(func() time.Time { return fixedNow }))
	return New(reg, sub, "alice")
}

func ptr[T any](in T) *T {
	return &in
}

func TestStartDraftLoadsDefaults(t *testing.T) {
	c := newTestComposer(&fakeSubmitter{})
	assert.Equal(t, StateEmpty, c.State())

	require.NoError(t, c.StartDraft("POLL"))
	snap := c.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, models.VariantPoll, snap.Draft.Variant)
	assert.Equal(t, "alice", snap.Draft.AuthorIdentity)
	assert.NotEmpty(t, snap.Draft.ID)
	assert.Len(t, snap.Draft.Payload.(*models.PollPayload).Options, 2)

	var transition *TransitionError
	assert.True(t, errors.As(c.StartDraft("text"), &transition))
}

func TestStartDraftUnknownVariantFallsBackToText(t *testing.T) {
	c := newTestComposer(&fakeSubmitter{})
	require.NoError(t, c.StartDraft("story"))
	assert.Equal(t, models.VariantText, c.Snapshot().Draft.Variant)
}

func TestOperationsNeedADraft(t *testing.T) {
	c := newTestComposer(&fakeSubmitter{})
	var transition *TransitionError
	assert.True(t, errors.As(c.UpdateField(models.DraftPatch{Title: ptr("x")}), &transition))
	assert.True(t, errors.As(c.ChangeVariant("event"), &transition))
	_, err := c.Submit(context.Background())
	assert.True(t, errors.As(err, &transition))
	assert.Equal(t, StateEmpty, transition.State)
}

func TestUpdateFieldDoesNotValidate(t *testing.T) {
	c := newTestComposer(&fakeSubmitter{})
	require.NoError(t, c.StartDraft("event"))
	require.NoError(t, c.UpdateField(models.DraftPatch{Title: ptr("")}))
	require.NoError(t, c.UpdateField(models.DraftPatch{Payload: map[string]any{"location": ""}}))
	assert.Equal(t, StateEditing, c.State())
	assert.Error(t, c.UpdateField(models.DraftPatch{Payload: map[string]any{"options": []any{}}}))
}

func TestChangeVariantKeepsSharedFields(t *testing.T) {
	for _, from := range models.ContentVariants {
		for _, to := range models.ContentVariants {
			c := newTestComposer(&fakeSubmitter{})
			require.NoError(t, c.StartDraft(from))
			require.NoError(t, c.UpdateField(models.DraftPatch{
				Title: ptr("Title"),
				Body:  ptr("Body"),
				Tags:  &[]string{"go"},
			}))
			require.NoError(t, c.ChangeVariant(to))

			snap := c.Snapshot()
			assert.Equal(t, to, snap.Draft.Variant)
			assert.Equal(t, to, snap.Draft.Payload.Variant(), "%s -> %s", from, to)
			assert.Equal(t, "Title", snap.Draft.Title)
			assert.Equal(t, "Body", snap.Draft.Body)
			assert.Equal(t, []string{"go"}, snap.Draft.Tags)
		}
	}
}

func TestChangeVariantDiscardsPayloadInProgress(t *testing.T) {
	c := newTestComposer(&fakeSubmitter{})
	require.NoError(t, c.StartDraft("link"))
	require.NoError(t, c.UpdateField(models.DraftPatch{Payload: map[string]any{"url": "https://example.com"}}))
	require.NoError(t, c.ChangeVariant("video"))
	require.NoError(t, c.ChangeVariant("link"))
	assert.Empty(t, c.Snapshot().Draft.Payload.(*models.LinkPayload).URL)
}

func TestSubmitValidationFailureNamesField(t *testing.T) {
	sub := &fakeSubmitter{}
	c := newTestComposer(sub)
	require.NoError(t, c.StartDraft("event"))
	require.NoError(t, c.UpdateField(models.DraftPatch{Title: ptr("Meetup")}))

	_, err := c.Submit(context.Background())
	var violation *models.ValidationFailed
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "start_time", violation.Field)

	snap := c.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, "start_time", snap.Field)
	assert.Equal(t, "required", snap.Rule)
	assert.Empty(t, sub.drafts)
}

func TestSubmitSuccessClearsDraft(t *testing.T) {
	sub := &fakeSubmitter{}
	c := newTestComposer(sub)
	require.NoError(t, c.StartDraft("text"))
	require.NoError(t, c.UpdateField(models.DraftPatch{Body: ptr("hello")}))

	item, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", item.Body)
	assert.Equal(t, StateEmpty, c.State())
	assert.Empty(t, c.Snapshot().Draft.Body)
	require.NoError(t, c.StartDraft("image"))
}

func TestSubmitFailureRetainsDraft(t *testing.T) {
	cause := &models.PreStepFailed{Step: registry.PreStepTicketedResource, Cause: errors.New("execution reverted")}
	sub := &fakeSubmitter{err: cause}
	c := newTestComposer(sub)
	require.NoError(t, c.StartDraft("event"))
	start := fixedNow.Add(48 * time.Hour)
	require.NoError(t, c.UpdateField(models.DraftPatch{
		Title:   ptr("Meetup"),
		Payload: map[string]any{"start_time": start, "location": "Hall 1"},
	}))
	before := c.Snapshot().Draft

	_, err := c.Submit(context.Background())
	assert.Same(t, cause, err)

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, cause.Error(), snap.Error)
	assert.Equal(t, before.Title, snap.Draft.Title)
	assert.Equal(t, before.Payload, snap.Draft.Payload)

	// failed drafts are editable again
	require.NoError(t, c.UpdateField(models.DraftPatch{Body: ptr("retry")}))
	assert.Equal(t, StateEditing, c.State())
	assert.Nil(t, c.Err())
}

func TestDiscardIsRefusedWhileSubmitting(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	c := newTestComposer(sub)
	require.NoError(t, c.StartDraft("text"))
	require.NoError(t, c.UpdateField(models.DraftPatch{Body: ptr("hello")}))

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State() == StateSubmitting }, time.Second, time.Millisecond)
	assert.ErrorIs(t, c.Discard(), ErrSubmitting)
	assert.ErrorIs(t, c.UpdateField(models.DraftPatch{Body: ptr("x")}), ErrSubmitting)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitting)

	close(sub.release)
	require.NoError(t, <-done)
	assert.NoError(t, c.Discard())
	assert.Len(t, sub.drafts, 1)
}

func TestSessions(t *testing.T) {
	reg := registry.New(registry.WithClock(func() time.Time { return fixedNow }))
	sessions := NewSessions(reg, &fakeSubmitter{})

	a, owned := sessions.Open("s1", "alice")
	assert.True(t, owned)
	again, owned := sessions.Open("s1", "alice")
	assert.True(t, owned)
	assert.Same(t, a, again)

	_, owned = sessions.Open("s1", "mallory")
	assert.False(t, owned)

	require.NoError(t, a.StartDraft("text"))
	require.NoError(t, sessions.Close("s1"))
	_, ok := sessions.Get("s1")
	assert.False(t, ok)
	assert.NoError(t, sessions.Close("missing"))
}

func TestSessionsPrune(t *testing.T) {
	now := fixedNow
	reg := registry.New(registry.WithClock(func() time.Time { return now }))
	sessions := NewSessions(reg, &fakeSubmitter{})

	sessions.Open("old", "alice")
	now = now.Add(2 * time.Hour)
	sessions.Open("fresh", "bob")

	assert.Equal(t, 1, sessions.Prune(time.Hour))
	_, ok := sessions.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 1, sessions.Len())
}
