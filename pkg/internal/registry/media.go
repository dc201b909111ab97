package registry

import (
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/samber/lo"
)

type textBundle struct{ bundle }

func (*textBundle) Variant() models.Variant { return models.VariantText }

func (*textBundle) DefaultPayload() models.Payload {
	return &models.TextPayload{Format: "plain"}
}

// RenderSummary does not require a text payload, the text bundle is also the
// fallback for items whose variant has no bundle.
func (*textBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	return SummaryView{Variant: models.VariantText, Headline: headline(item)}, nil
}

func (b *textBundle) ValidateDraft(draft models.Draft) error {
	if _, err := payloadOf[*models.TextPayload](draft, b.DefaultPayload); err != nil {
		return err
	}
	return b.check(struct {
		Body string `json:"body" validate:"required,max=4096"`
	}{Body: strings.TrimSpace(draft.Body)})
}

func (b *textBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.TextPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	if len(payload.Format) == 0 {
		payload.Format = "plain"
	}
	return Submission{Payload: payload}, nil
}

type imageBundle struct{ bundle }

func (*imageBundle) Variant() models.Variant { return models.VariantImage }

func (*imageBundle) DefaultPayload() models.Payload {
	return &models.ImagePayload{URLs: []string{}}
}

func (*imageBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.ImagePayload](item)
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{
		Variant:  models.VariantImage,
		Headline: headline(item),
		Media: &MediaSummary{
			URL:   lo.FirstOr(payload.URLs, ""),
			Count: len(payload.URLs),
		},
	}, nil
}

func (b *imageBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.ImagePayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		URLs    []string `json:"urls" validate:"min=1,max=16,dive,url"`
		AltText string   `json:"alt_text" validate:"max=1024"`
	}{URLs: payload.URLs, AltText: payload.AltText})
}

func (b *imageBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.ImagePayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.URLs = lo.Uniq(lo.Map(payload.URLs, func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
	return Submission{Payload: payload}, nil
}

type videoBundle struct{ bundle }

func (*videoBundle) Variant() models.Variant { return models.VariantVideo }

func (*videoBundle) DefaultPayload() models.Payload {
	return &models.VideoPayload{}
}

func (*videoBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.VideoPayload](item)
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{
		Variant:  models.VariantVideo,
		Headline: headline(item),
		Media: &MediaSummary{
			URL:       payload.URL,
			Thumbnail: payload.Thumbnail,
			Count:     1,
		},
	}, nil
}

func (b *videoBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.VideoPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		URL       string `json:"url" validate:"required,url"`
		Thumbnail string `json:"thumbnail" validate:"omitempty,url"`
		Duration  int    `json:"duration" validate:"gte=0"`
	}{URL: payload.URL, Thumbnail: payload.Thumbnail, Duration: payload.Duration})
}

func (b *videoBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.VideoPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.URL = strings.TrimSpace(payload.URL)
	return Submission{Payload: payload}, nil
}

type linkBundle struct{ bundle }

func (*linkBundle) Variant() models.Variant { return models.VariantLink }

func (*linkBundle) DefaultPayload() models.Payload {
	return &models.LinkPayload{}
}

func (*linkBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.LinkPayload](item)
	if err != nil {
		return SummaryView{}, err
	}
	view := SummaryView{
		Variant:  models.VariantLink,
		Headline: headline(item),
		Media: &MediaSummary{
			URL:       payload.URL,
			Thumbnail: payload.PreviewImage,
			Count:     1,
		},
	}
	if len(item.Title) == 0 && len(payload.PreviewTitle) > 0 {
		view.Headline = payload.PreviewTitle
	}
	return view, nil
}

func (b *linkBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.LinkPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		URL          string `json:"url" validate:"required,url"`
		PreviewImage string `json:"preview_image" validate:"omitempty,url"`
	}{URL: strings.TrimSpace(payload.URL), PreviewImage: payload.PreviewImage})
}

func (b *linkBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.LinkPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.URL = strings.TrimSpace(payload.URL)
	return Submission{Payload: payload}, nil
}

type livestreamBundle struct{ bundle }

func (*livestreamBundle) Variant() models.Variant { return models.VariantLivestream }

func (*livestreamBundle) DefaultPayload() models.Payload {
	return &models.LivestreamPayload{}
}

func (b *livestreamBundle) RenderSummary(item models.ContentItem) (SummaryView, error) {
	payload, err := itemPayload[*models.LivestreamPayload](item)
	if err != nil {
		return SummaryView{}, err
	}
	live := payload.IsLive && (payload.EndedAt == nil || payload.EndedAt.After(b.clock()))
	return SummaryView{
		Variant:  models.VariantLivestream,
		Headline: headline(item),
		Media: &MediaSummary{
			URL:    payload.StreamURL,
			Count:  1,
			IsLive: live,
		},
	}, nil
}

func (b *livestreamBundle) ValidateDraft(draft models.Draft) error {
	payload, err := payloadOf[*models.LivestreamPayload](draft, b.DefaultPayload)
	if err != nil {
		return err
	}
	return b.check(struct {
		Title       string     `json:"title" validate:"required,max=256"`
		StreamURL   string     `json:"stream_url" validate:"required,url"`
		ScheduledAt *time.Time `json:"scheduled_at" validate:"omitempty,future"`
	}{Title: strings.TrimSpace(draft.Title), StreamURL: payload.StreamURL, ScheduledAt: payload.ScheduledAt})
}

func (b *livestreamBundle) PrepareSubmission(draft models.Draft) (Submission, error) {
	payload, err := preparedPayload[*models.LivestreamPayload](draft, b.DefaultPayload)
	if err != nil {
		return Submission{}, err
	}
	payload.StreamURL = strings.TrimSpace(payload.StreamURL)
	payload.EndedAt = nil
	return Submission{Payload: payload}, nil
}
