package registry

import (
	"math"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
)

const (
	EventStatusUpcoming = "upcoming"
	EventStatusOngoing  = "ongoing"
	EventStatusPast     = "past"

	BountyStatusOpen    = "open"
	BountyStatusExpired = "expired"
)

// SummaryView is what the presentation layer needs to draw an item without
// knowing its payload shape. Only the section matching the variant is set.
type SummaryView struct {
	Variant  models.Variant `json:"variant"`
	Headline string         `json:"headline"`

	Media   *MediaSummary   `json:"media,omitempty"`
	Event   *EventSummary   `json:"event,omitempty"`
	Poll    *PollSummary    `json:"poll,omitempty"`
	Bounty  *BountySummary  `json:"bounty,omitempty"`
	Project *ProjectSummary `json:"project,omitempty"`
}

type MediaSummary struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Count     int    `json:"count"`
	IsLive    bool   `json:"is_live"`
}

type EventSummary struct {
	Status        string `json:"status"`
	DaysRemaining int    `json:"days_remaining"`
	Location      string `json:"location"`
	Ticketed      bool   `json:"ticketed"`
}

type PollOptionSummary struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type PollSummary struct {
	Options    []PollOptionSummary `json:"options"`
	TotalVotes int64               `json:"total_votes"`
	Closed     bool                `json:"closed"`
}

type BountySummary struct {
	Reward        string `json:"reward"`
	Difficulty    string `json:"difficulty"`
	Status        string `json:"status"`
	DaysRemaining int    `json:"days_remaining"`
	Requirements  int    `json:"requirements"`
	Escrowed      bool   `json:"escrowed"`
}

type ProjectSummary struct {
	Status        string `json:"status"`
	Collaborators int    `json:"collaborators"`
	FundingGoal   string `json:"funding_goal"`
}

const headlineThreshold = 80

func headline(item models.ContentItem) string {
	if len(item.Title) > 0 {
		return item.Title
	}
	runes := []rune(item.Body)
	if len(runes) > headlineThreshold {
		return string(runes[:headlineThreshold]) + "..."
	}
	return item.Body
}

// daysUntil counts started days left until the deadline, zero once passed.
func daysUntil(now, deadline time.Time) int {
	if !deadline.After(now) {
		return 0
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}
