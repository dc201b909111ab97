package registry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func at(offset time.Duration) *time.Time {
	out := fixedNow.Add(offset)
	return &out
}

func requireViolation(t *testing.T, err error, field, rule string) {
	t.Helper()
	var violation *models.ValidationFailed
	require.True(t, errors.As(err, &violation), "expected validation failure, got %v", err)
	assert.Equal(t, field, violation.Field)
	assert.Equal(t, rule, violation.Rule)
}

func TestLookupAndFallback(t *testing.T) {
	r := newTestRegistry()
	assert.Len(t, r.Variants(), 9)

	b, err := r.Lookup("EVENT")
	require.NoError(t, err)
	assert.Equal(t, models.VariantEvent, b.Variant())

	b, err = r.Lookup(5)
	require.NoError(t, err)
	assert.Equal(t, models.VariantPoll, b.Variant())

	_, err = r.Lookup("story")
	assert.ErrorIs(t, err, models.ErrUnknownVariant)
	_, err = r.Lookup(models.VariantProposal)
	assert.ErrorIs(t, err, models.ErrUnknownVariant)

	assert.Equal(t, models.VariantText, r.Resolve("story").Variant())
}

func TestOnlyEventAndBountyHavePreSteps(t *testing.T) {
	r := newTestRegistry()
	for _, v := range models.ContentVariants {
		b, err := r.Lookup(v)
		require.NoError(t, err)
		sub, err := b.PrepareSubmission(models.Draft{Variant: v, Title: "t", Body: "b", Payload: b.DefaultPayload()})
		require.NoError(t, err)
		assert.Equal(t, v, sub.Payload.Variant())
		if v == models.VariantEvent || v == models.VariantBounty {
			assert.Len(t, sub.PreSteps, 1, v)
		} else {
			assert.Empty(t, sub.PreSteps, v)
		}
	}
}

func TestEventValidation(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantEvent)
	draft := models.Draft{Variant: models.VariantEvent, Payload: b.DefaultPayload()}

	requireViolation(t, b.ValidateDraft(draft), "title", "required")

	draft.Title = "Meetup"
	requireViolation(t, b.ValidateDraft(draft), "start_time", "required")

	draft.Payload.(*models.EventPayload).StartTime = at(48 * time.Hour)
	requireViolation(t, b.ValidateDraft(draft), "location", "required")

	draft.Payload.(*models.EventPayload).Location = "Hall 1"
	assert.NoError(t, b.ValidateDraft(draft))

	draft.Payload.(*models.EventPayload).Ticketing.Capacity = 0
	requireViolation(t, b.ValidateDraft(draft), "ticketing.capacity", "gt=0")

	draft.Payload.(*models.EventPayload).Ticketing.Capacity = 10
	draft.Payload.(*models.EventPayload).EndTime = at(24 * time.Hour)
	requireViolation(t, b.ValidateDraft(draft), "end_time", "gtfield=start_time")
}

func TestValidationRejectsForeignPayload(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantEvent)
	err := b.ValidateDraft(models.Draft{Variant: models.VariantEvent, Title: "x", Payload: &models.PollPayload{}})
	requireViolation(t, err, "payload", "variant=event")
}

func TestPollValidation(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantPoll)

	draft := models.Draft{Variant: models.VariantPoll, Payload: &models.PollPayload{
		Options: []models.PollOption{{Label: "Yes"}},
	}}
	requireViolation(t, b.ValidateDraft(draft), "options", "min=2")

	draft.Payload = &models.PollPayload{Options: []models.PollOption{{Label: "Yes"}, {Label: "Yes"}}}
	requireViolation(t, b.ValidateDraft(draft), "options", "unique=Label")

	draft.Payload = &models.PollPayload{Options: []models.PollOption{{Label: "Yes"}, {Label: " "}}}
	requireViolation(t, b.ValidateDraft(draft), "options[1].label", "required")

	draft.Payload = &models.PollPayload{
		Options:  []models.PollOption{{Label: "Yes"}, {Label: "No"}},
		Deadline: at(-time.Hour),
	}
	requireViolation(t, b.ValidateDraft(draft), "deadline", "future")

	draft.Payload.(*models.PollPayload).Deadline = at(time.Hour)
	assert.NoError(t, b.ValidateDraft(draft))
}

func TestBountyValidation(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantBounty)
	draft := models.Draft{Variant: models.VariantBounty, Payload: b.DefaultPayload()}

	requireViolation(t, b.ValidateDraft(draft), "reward", "gt=0")

	draft.Payload.(*models.BountyPayload).Reward = decimal.NewFromInt(5)
	draft.Payload.(*models.BountyPayload).Difficulty = "legendary"
	requireViolation(t, b.ValidateDraft(draft), "difficulty", "oneof=easy medium hard expert")

	draft.Payload.(*models.BountyPayload).Difficulty = "HARD"
	assert.NoError(t, b.ValidateDraft(draft))
}

func TestTextValidation(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantText)
	requireViolation(t, b.ValidateDraft(models.Draft{Variant: models.VariantText, Body: "   "}), "body", "required")
	assert.NoError(t, b.ValidateDraft(models.Draft{Variant: models.VariantText, Body: "hello"}))
}

func TestImageValidation(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantImage)
	draft := models.Draft{Variant: models.VariantImage, Payload: b.DefaultPayload()}
	requireViolation(t, b.ValidateDraft(draft), "urls", "min=1")

	draft.Payload = &models.ImagePayload{URLs: []string{"not a url"}}
	requireViolation(t, b.ValidateDraft(draft), "urls[0]", "url")
}

func TestEventPreStepFoldsResourceID(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantEvent)
	payload := &models.EventPayload{
		StartTime: at(time.Hour),
		Location:  "Hall",
		Ticketing: models.Ticketing{Capacity: 20, Price: decimal.RequireFromString("0.5")},
	}
	draft := models.Draft{Variant: models.VariantEvent, Title: "Meetup", Payload: payload}

	sub, err := b.PrepareSubmission(draft)
	require.NoError(t, err)
	require.Len(t, sub.PreSteps, 1)
	step := sub.PreSteps[0]
	assert.Equal(t, PreStepTicketedResource, step.Name)
	assert.Equal(t, uint64(20), step.Capacity)
	assert.Equal(t, "Meetup", step.Metadata["title"])

	require.NoError(t, step.Fold(sub.Payload, "0xresource"))
	assert.Equal(t, "0xresource", sub.Payload.(*models.EventPayload).Ticketing.ResourceID)
	assert.Empty(t, payload.Ticketing.ResourceID, "draft payload must not be touched")

	// a resubmission carrying the resource id does not create another one
	draft.Payload = sub.Payload
	sub, err = b.PrepareSubmission(draft)
	require.NoError(t, err)
	assert.Empty(t, sub.PreSteps)
}

func TestBountyPreStepEscrowsReward(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantBounty)
	sub, err := b.PrepareSubmission(models.Draft{Variant: models.VariantBounty, Payload: &models.BountyPayload{
		Reward:     decimal.NewFromInt(3),
		Difficulty: "Easy",
	}})
	require.NoError(t, err)
	require.Len(t, sub.PreSteps, 1)
	assert.Equal(t, PreStepBountyEscrow, sub.PreSteps[0].Name)
	assert.Equal(t, uint64(1), sub.PreSteps[0].Capacity)
	assert.True(t, decimal.NewFromInt(3).Equal(sub.PreSteps[0].Price))
	assert.Equal(t, models.DifficultyEasy, sub.Payload.(*models.BountyPayload).Difficulty)

	assert.Error(t, sub.PreSteps[0].Fold(&models.EventPayload{}, "x"))
}

func TestPollPrepareAssignsIDs(t *testing.T) {
	r := newTestRegistry()
	b, _ := r.Lookup(models.VariantPoll)
	sub, err := b.PrepareSubmission(models.Draft{Variant: models.VariantPoll, Payload: &models.PollPayload{
		Options: []models.PollOption{{Label: " Yes ", Votes: 9}, {Label: "No"}},
	}})
	require.NoError(t, err)
	options := sub.Payload.(*models.PollPayload).Options
	assert.Equal(t, "Yes", options[0].Label)
	assert.NotEmpty(t, options[0].ID)
	assert.NotEqual(t, options[0].ID, options[1].ID)
	assert.Zero(t, options[0].Votes)
}

func itemWith(t *testing.T, payload models.Payload) models.ContentItem {
	t.Helper()
	item := models.ContentItem{Title: "Item"}
	require.NoError(t, item.SetPayload(payload))
	return item
}

func TestPollSummary(t *testing.T) {
	r := newTestRegistry()
	view, err := r.RenderSummary(itemWith(t, &models.PollPayload{
		Options: []models.PollOption{{ID: "a", Label: "A", Votes: 3}, {ID: "b", Label: "B", Votes: 1}},
	}))
	require.NoError(t, err)
	require.NotNil(t, view.Poll)
	assert.Equal(t, int64(4), view.Poll.TotalVotes)
	assert.InDelta(t, 75.0, view.Poll.Options[0].Percentage, 0.001)
	assert.InDelta(t, 25.0, view.Poll.Options[1].Percentage, 0.001)
	assert.False(t, view.Poll.Closed)
}

func TestEventSummaryStatus(t *testing.T) {
	r := newTestRegistry()

	view, err := r.RenderSummary(itemWith(t, &models.EventPayload{StartTime: at(50 * time.Hour), Location: "Hall"}))
	require.NoError(t, err)
	assert.Equal(t, EventStatusUpcoming, view.Event.Status)
	assert.Equal(t, 3, view.Event.DaysRemaining)

	view, err = r.RenderSummary(itemWith(t, &models.EventPayload{StartTime: at(-time.Hour)}))
	require.NoError(t, err)
	assert.Equal(t, EventStatusOngoing, view.Event.Status)

	view, err = r.RenderSummary(itemWith(t, &models.EventPayload{StartTime: at(-48 * time.Hour), EndTime: at(-47 * time.Hour)}))
	require.NoError(t, err)
	assert.Equal(t, EventStatusPast, view.Event.Status)
	assert.Zero(t, view.Event.DaysRemaining)
}

func TestBountySummaryStatus(t *testing.T) {
	r := newTestRegistry()
	view, err := r.RenderSummary(itemWith(t, &models.BountyPayload{
		Reward:     decimal.NewFromInt(2),
		Difficulty: models.DifficultyHard,
		Deadline:   at(-time.Minute),
	}))
	require.NoError(t, err)
	assert.Equal(t, BountyStatusExpired, view.Bounty.Status)
	assert.Equal(t, "2", view.Bounty.Reward)
}

func TestSummaryRejectsMismatch(t *testing.T) {
	r := newTestRegistry()
	item := itemWith(t, &models.PollPayload{})
	item.Variant = models.VariantEvent
	_, err := r.RenderSummary(item)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestHeadlineFallsBackToBody(t *testing.T) {
	r := newTestRegistry()
	view, err := r.RenderSummary(models.ContentItem{Variant: models.VariantText, Body: strings.Repeat("é", 100)})
	require.NoError(t, err)
	assert.Equal(t, headlineThreshold+3, len([]rune(view.Headline)))

	exact := strings.Repeat("é", headlineThreshold)
	view, err = r.RenderSummary(models.ContentItem{Variant: models.VariantText, Body: exact})
	require.NoError(t, err)
	assert.Equal(t, exact, view.Headline)
}

func TestFutureRuleRegistration(t *testing.T) {
	clock := func() time.Time { return fixedNow }
	assert.Error(t, registerFutureRule(validator.New(), "", clock))
	assert.NotPanics(t, func() { newBundle(clock) })
}
