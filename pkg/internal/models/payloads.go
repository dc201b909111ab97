package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the variant-specific part of a content item or draft.
type Payload interface {
	Variant() Variant
}

type TextPayload struct {
	Format string `json:"format"`
}

type ImagePayload struct {
	URLs    []string `json:"urls"`
	AltText string   `json:"alt_text"`
}

type VideoPayload struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

type LinkPayload struct {
	URL          string `json:"url"`
	PreviewTitle string `json:"preview_title"`
	PreviewImage string `json:"preview_image"`
	Description  string `json:"description"`
}

// Ticketing describes the on-ledger ticketed resource backing an event.
// ResourceID stays empty until the creation pre-step folds it in.
type Ticketing struct {
	ResourceID string          `json:"resource_id"`
	Capacity   uint64          `json:"capacity"`
	Price      decimal.Decimal `json:"price"`
	ChainID    int64           `json:"chain_id"`
}

type EventPayload struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Location  string     `json:"location"`
	Ticketing Ticketing  `json:"ticketing"`
}

type PollOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Votes int64  `json:"votes"`
}

type PollPayload struct {
	Options  []PollOption `json:"options"`
	Deadline *time.Time   `json:"deadline"`
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyExpert = "expert"
)

type BountyPayload struct {
	Reward       decimal.Decimal `json:"reward"`
	Difficulty   string          `json:"difficulty"`
	Deadline     *time.Time      `json:"deadline"`
	Requirements []string        `json:"requirements"`
	EscrowID     string          `json:"escrow_id"`
	ChainID      int64           `json:"chain_id"`
}

type ProjectPayload struct {
	RepositoryURL string          `json:"repository_url"`
	Status        string          `json:"status"`
	FundingGoal   decimal.Decimal `json:"funding_goal"`
	Collaborators []string        `json:"collaborators"`
}

type LivestreamPayload struct {
	StreamURL   string     `json:"stream_url"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	IsLive      bool       `json:"is_live"`
	EndedAt     *time.Time `json:"ended_at"`
}

func (*TextPayload) Variant() Variant       { return VariantText }
func (*ImagePayload) Variant() Variant      { return VariantImage }
func (*VideoPayload) Variant() Variant      { return VariantVideo }
func (*LinkPayload) Variant() Variant       { return VariantLink }
func (*EventPayload) Variant() Variant      { return VariantEvent }
func (*PollPayload) Variant() Variant       { return VariantPoll }
func (*BountyPayload) Variant() Variant     { return VariantBounty }
func (*ProjectPayload) Variant() Variant    { return VariantProject }
func (*LivestreamPayload) Variant() Variant { return VariantLivestream }

// NewPayload allocates an empty payload of the given variant.
func NewPayload(v Variant) (Payload, error) {
	switch v {
	case VariantText:
		return &TextPayload{}, nil
	case VariantImage:
		return &ImagePayload{}, nil
	case VariantVideo:
		return &VideoPayload{}, nil
	case VariantLink:
		return &LinkPayload{}, nil
	case VariantEvent:
		return &EventPayload{}, nil
	case VariantPoll:
		return &PollPayload{}, nil
	case VariantBounty:
		return &BountyPayload{}, nil
	case VariantProject:
		return &ProjectPayload{}, nil
	case VariantLivestream:
		return &LivestreamPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q has no payload", ErrUnknownVariant, v)
	}
}

// VariantPayload is the stored union, exactly one field must be set.
type VariantPayload struct {
	Text       *TextPayload       `json:"text,omitempty"`
	Image      *ImagePayload      `json:"image,omitempty"`
	Video      *VideoPayload      `json:"video,omitempty"`
	Link       *LinkPayload       `json:"link,omitempty"`
	Event      *EventPayload      `json:"event,omitempty"`
	Poll       *PollPayload       `json:"poll,omitempty"`
	Bounty     *BountyPayload     `json:"bounty,omitempty"`
	Project    *ProjectPayload    `json:"project,omitempty"`
	Livestream *LivestreamPayload `json:"livestream,omitempty"`
}

// Populated lists every non-empty field of the union in declaration order.
func (p VariantPayload) Populated() []Payload {
	var out []Payload
	if p.Text != nil {
		out = append(out, p.Text)
	}
	if p.Image != nil {
		out = append(out, p.Image)
	}
	if p.Video != nil {
		out = append(out, p.Video)
	}
	if p.Link != nil {
		out = append(out, p.Link)
	}
	if p.Event != nil {
		out = append(out, p.Event)
	}
	if p.Poll != nil {
		out = append(out, p.Poll)
	}
	if p.Bounty != nil {
		out = append(out, p.Bounty)
	}
	if p.Project != nil {
		out = append(out, p.Project)
	}
	if p.Livestream != nil {
		out = append(out, p.Livestream)
	}
	return out
}

// WrapPayload places a payload into the matching field of a fresh union.
func WrapPayload(payload Payload) (VariantPayload, error) {
	var out VariantPayload
	switch val := payload.(type) {
	case *TextPayload:
		out.Text = val
	case *ImagePayload:
		out.Image = val
	case *VideoPayload:
		out.Video = val
	case *LinkPayload:
		out.Link = val
	case *EventPayload:
		out.Event = val
	case *PollPayload:
		out.Poll = val
	case *BountyPayload:
		out.Bounty = val
	case *ProjectPayload:
		out.Project = val
	case *LivestreamPayload:
		out.Livestream = val
	default:
		return out, fmt.Errorf("%w: cannot wrap %T", ErrSchemaMismatch, payload)
	}
	return out, nil
}
