package registry

import (
	"strconv"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const DefaultTicketCapacity = 100

type eventBundle struct{ bundle }

func (*eventBundle) Variant() models.Variant { return models.VariantEvent }

func (*eventBundle) DefaultPayload() models.Payload {
	return &models.EventPayload{
		Ticketing: models.Ticketing{Capacity: DefaultTicketCapacity, Price: decimal.Zero},
	}
}

func (b *eventBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.EventPayload](item)
	if err != nil {
		return SummaryView{}, err
	}

	summary := &EventSummary{
		Location: payload.Location,
		Ticketed: len(payload.Ticketing.ResourceID) > 0,
	}
	if payload.StartTime != nil {
		now := b.clock()
		start := *payload.StartTime
		end := endOfDay(start)
		if payload.EndTime != nil {
			end = *payload.EndTime
		}
		switch {
		case now.Before(start):
			summary.Status = EventStatusUpcoming
			summary.DaysRemaining = daysUntil(now, start)
		case now.Before(end):
			summary.Status = EventStatusOngoing
		default:
			summary.Status = EventStatusPast
		}
	}

	return SummaryView{
		Variant:  models.VariantEvent,
		Headline: headline(item),
		Event:    summary,
	}, nil
}

func (b *eventBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.EventPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	type ticketing struct {
		Capacity uint64          `json:"capacity" validate:"gt=0"`
		Price    decimal.Decimal `json:"price" validate:"gte=0"`
	}
	if err := b.check(struct {
		Title     string     `json:"title" validate:"required,max=256"`
		StartTime *time.Time `json:"start_time" validate:"required"`
		Location  string     `json:"location" validate:"required"`
		Ticketing ticketing  `json:"ticketing"`
	}{
		Title:     strings.TrimSpace(draft.Title),
		StartTime: payload.StartTime,
		Location:  strings.TrimSpace(payload.Location),
		Ticketing: ticketing{Capacity: payload.Ticketing.Capacity, Price: payload.Ticketing.Price},
	}); err != nil {
		return err
	}
	if payload.EndTime != nil && !payload.EndTime.After(*payload.StartTime) {
		return &models.ValidationFailed{Field: "end_time", Rule: "gtfield=start_time"}
	}
	return nil
}

// PrepareSubmission requires a ticketed resource unless a previous attempt
// already created one.
func (b *eventBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.EventPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	out := Submission{Payload: payload}
	if len(payload.Ticketing.ResourceID) > 0 {
		return out, nil
	}

	metadata := map[string]string{
		"variant":  models.VariantEvent.String(),
		"title":    draft.Title,
		"location": payload.Location,
	}
	if payload.StartTime != nil {
		metadata["start_time"] = strconv.FormatInt(payload.StartTime.Unix(), 10)
	}
	out.PreSteps = []PreStep{{
		Name:     PreStepTicketedResource,
		Capacity: payload.Ticketing.Capacity,
		Price:    payload.Ticketing.Price,
		Metadata: metadata,
		Fold: foldInto(func(payload *models.EventPayload, resourceID string) {
			payload.Ticketing.ResourceID = resourceID
		}),
	}}
	return out, nil
}

type pollBundle struct{ bundle }

func (*pollBundle) Variant() models.Variant { return models.VariantPoll }

func (*pollBundle) DefaultPayload() models.Payload {
	return &models.PollPayload{Options: []models.PollOption{{}, {}}}
}

func (b *pollBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.PollPayload](item)
	if err != nil {
		return SummaryView{}, err
	}

	total := lo.SumBy(payload.Options, func(item models.PollOption) int64 {
		return item.Votes
	})
	options := lo.Map(payload.Options, func(item models.PollOption, _ int) PollOptionSummary {
		var percentage float64
		if total > 0 {
			percentage = float64(item.Votes) * 100 / float64(total)
		}
		return PollOptionSummary{
			ID:         item.ID,
			Label:      item.Label,
			Votes:      item.Votes,
			Percentage: percentage,
		}
	})

	return SummaryView{
		Variant:  models.VariantPoll,
		Headline: headline(item),
		Poll: &PollSummary{
			Options:    options,
			TotalVotes: total,
			Closed:     payload.Deadline != nil && !payload.Deadline.After(b.clock()),
		},
	}, nil
}

func (b *pollBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.PollPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	type option struct {
		Label string `json:"label" validate:"required,max=128"`
	}
	return b.check(struct {
		Options  []option   `json:"options" validate:"min=2,max=16,unique=Label,dive"`
		Deadline *time.Time `json:"deadline" validate:"omitempty,future"`
	}{
		Options: lo.Map(payload.Options, func(item models.PollOption, _ int) option {
			return option{Label: strings.TrimSpace(item.Label)}
		}),
		Deadline: payload.Deadline,
	})
}

// PrepareSubmission assigns option ids and resets the tallies, votes are
// only ever counted on stored items.
func (b *pollBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.PollPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	for idx := range payload.Options {
		payload.Options[idx].Label = strings.TrimSpace(payload.Options[idx].Label)
		payload.Options[idx].ID = uuid.NewString()
		payload.Options[idx].Votes = 0
	}
	return Submission{Payload: payload}, nil
}

type bountyBundle struct{ bundle }

func (*bountyBundle) Variant() models.Variant { return models.VariantBounty }

func (*bountyBundle) DefaultPayload() models.Payload {
	return &models.BountyPayload{
		Reward:       decimal.Zero,
		Difficulty:   models.DifficultyMedium,
		Requirements: []string{},
	}
}

func (b *bountyBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.BountyPayload](item)
	if err != nil {
		return SummaryView{}, err
	}

	summary := &BountySummary{
		Reward:       payload.Reward.String(),
		Difficulty:   payload.Difficulty,
		Status:       BountyStatusOpen,
		Requirements: len(payload.Requirements),
		Escrowed:     len(payload.EscrowID) > 0,
	}
	if payload.Deadline != nil {
		now := b.clock()
		if payload.Deadline.After(now) {
			summary.DaysRemaining = daysUntil(now, *payload.Deadline)
		} else {
			summary.Status = BountyStatusExpired
		}
	}

	return SummaryView{
		Variant:  models.VariantBounty,
		Headline: headline(item),
		Bounty:   summary,
	}, nil
}

func (b *bountyBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.BountyPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		Reward       decimal.Decimal `json:"reward" validate:"gt=0"`
		Difficulty   string          `json:"difficulty" validate:"required,oneof=easy medium hard expert"`
		Deadline     *time.Time      `json:"deadline" validate:"omitempty,future"`
		Requirements []string        `json:"requirements" validate:"dive,required"`
	}{
		Reward:       payload.Reward,
		Difficulty:   strings.ToLower(strings.TrimSpace(payload.Difficulty)),
		Deadline:     payload.Deadline,
		Requirements: payload.Requirements,
	})
}

// PrepareSubmission escrows the reward as a single-seat resource priced at
// the reward amount.
func (b *bountyBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.BountyPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.Difficulty = strings.ToLower(strings.TrimSpace(payload.Difficulty))
	out := Submission{Payload: payload}
	if len(payload.EscrowID) > 0 {
		return out, nil
	}

	metadata := map[string]string{
		"variant":    models.VariantBounty.String(),
		"title":      draft.Title,
		"difficulty": payload.Difficulty,
	}
	if payload.Deadline != nil {
		metadata["deadline"] = strconv.FormatInt(payload.Deadline.Unix(), 10)
	}
	out.PreSteps = []PreStep{{
		Name:     PreStepBountyEscrow,
		Capacity: 1,
		Price:    payload.Reward,
		Metadata: metadata,
		Fold: foldInto(func(payload *models.BountyPayload, resourceID string) {
			payload.EscrowID = resourceID
		}),
	}}
	return out, nil
}

const (
	ProjectStatusPlanning  = "planning"
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
)

type projectBundle struct{ bundle }

func (*projectBundle) Variant() models.Variant { return models.VariantProject }

func (*projectBundle) DefaultPayload() models.Payload {
	return &models.ProjectPayload{
		Status:        ProjectStatusPlanning,
		FundingGoal:   decimal.Zero,
		Collaborators: []string{},
	}
}

func (*projectBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.ProjectPayload](item)
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{
		Variant:  models.VariantProject,
		Headline: headline(item),
		Project: &ProjectSummary{
			Status:        payload.Status,
			Collaborators: len(payload.Collaborators),
			FundingGoal:   payload.FundingGoal.String(),
		},
	}, nil
}

func (b *projectBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.ProjectPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		Title         string          `json:"title" validate:"required,max=256"`
		RepositoryURL string          `json:"repository_url" validate:"omitempty,url"`
		Status        string          `json:"status" validate:"required,oneof=planning active completed"`
		FundingGoal   decimal.Decimal `json:"funding_goal" validate:"gte=0"`
	}{
		Title:         strings.TrimSpace(draft.Title),
		RepositoryURL: payload.RepositoryURL,
		Status:        payload.Status,
		FundingGoal:   payload.FundingGoal,
	})
}

func (b *projectBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.ProjectPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.Collaborators = models.NormalizeTags(payload.Collaborators)
	return Submission{Payload: payload}, nil
}

func endOfDay(in time.Time) time.Time {
	year, month, day := in.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, in.Location())
}
