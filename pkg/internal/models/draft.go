package models

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// Draft is the in-progress content item of an authoring session. Payload may
// be partial, required fields are only enforced on submit.
type Draft struct {
	ID             string   `json:"id"`
	AuthorIdentity string   `json:"author_identity"`
	CommunityID    string   `json:"community_id"`
	Variant        Variant  `json:"variant"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Tags           []string `json:"tags"`
	Payload        Payload  `json:"payload"`

	// LedgerTxRef is the transaction of pre-steps that already ran for this
	// draft while its content item is still unstored.
	LedgerTxRef string `json:"ledger_tx_ref,omitempty"`
}

// DraftPatch is a shallow update. Nil fields are left untouched, Payload keys
// replace the matching top-level payload fields.
type DraftPatch struct {
	CommunityID *string        `json:"community_id"`
	Title       *string        `json:"title"`
	Body        *string        `json:"body"`
	Tags        *[]string      `json:"tags"`
	Payload     map[string]any `json:"payload"`
}

// Clone returns a deep copy, payload included. The copy never shares the
// payload with d, an uncopyable payload is an error.
func (d Draft) Clone() (Draft, error) {
	out := d
	out.Tags = append([]string(nil), d.Tags...)
	if d.Payload != nil {
		cloned, err := ClonePayload(d.Payload)
		if err != nil {
			return d, fmt.Errorf("unable to copy %s payload: %w", d.Variant, err)
		}
		out.Payload = cloned
	}
	return out, nil
}

// Apply merges the patch into a copy of the draft.
func (d Draft) Apply(patch DraftPatch) (Draft, error) {
	out, err := d.Clone()
	if err != nil {
		return d, err
	}
	if patch.CommunityID != nil {
		out.CommunityID = *patch.CommunityID
	}
	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.Body != nil {
		out.Body = *patch.Body
	}
	if patch.Tags != nil {
		out.Tags = NormalizeTags(*patch.Tags)
	}
	if len(patch.Payload) > 0 {
		if out.Payload == nil {
			return d, fmt.Errorf("draft has no %s payload to update", d.Variant)
		}
		merged, err := MergePayload(out.Payload, patch.Payload)
		if err != nil {
			return d, err
		}
		out.Payload = merged
	}
	return out, nil
}

func ClonePayload(in Payload) (Payload, error) {
	raw, err := jsoniter.Marshal(in)
	if err != nil {
		return nil, err
	}
	out, err := NewPayload(in.Variant())
	if err != nil {
		return nil, err
	}
	if err := jsoniter.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// MergePayload overlays the patch keys onto the payload's JSON form and
// decodes the result into a new payload of the same variant.
func MergePayload(in Payload, patch map[string]any) (Payload, error) {
	raw, err := jsoniter.Marshal(in)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := jsoniter.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for key, value := range patch {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("unknown %s field %q", in.Variant(), key)
		}
		fields[key] = value
	}
	raw, err = jsoniter.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out, err := NewPayload(in.Variant())
	if err != nil {
		return nil, err
	}
	if err := jsoniter.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %v", in.Variant(), err)
	}
	return out, nil
}

func NormalizeTags(in []string) []string {
	tags := lo.Map(in, func(item string, _ int) string {
		return strings.ToLower(strings.TrimSpace(item))
	})
	tags = lo.Filter(tags, func(item string, _ int) bool {
		return len(item) > 0
	})
	return lo.Uniq(tags)
}
