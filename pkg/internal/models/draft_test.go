package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftApply(t *testing.T) {
	title := "Hello"
	tags := []string{" Go ", "go", "", "Chain"}
	draft := Draft{Variant: VariantLink, Payload: &LinkPayload{}}

	out, err := draft.Apply(DraftPatch{
		Title:   &title,
		Tags:    &tags,
		Payload: map[string]any{"url": "https://example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Title)
	assert.Equal(t, []string{"go", "chain"}, out.Tags)
	assert.Equal(t, "https://example.com", out.Payload.(*LinkPayload).URL)

	// the source draft is untouched
	assert.Empty(t, draft.Title)
	assert.Empty(t, draft.Payload.(*LinkPayload).URL)
}

func TestDraftApplyRejectsUnknownPayloadField(t *testing.T) {
	draft := Draft{Variant: VariantPoll, Payload: &PollPayload{}}
	_, err := draft.Apply(DraftPatch{Payload: map[string]any{"location": "Hall"}})
	assert.EqualError(t, err, `unknown poll field "location"`)

	_, err = draft.Apply(DraftPatch{Payload: map[string]any{"options": "many"}})
	assert.ErrorContains(t, err, "invalid poll payload")
}

func TestDraftCloneIsDeep(t *testing.T) {
	draft := Draft{
		Variant: VariantImage,
		Tags:    []string{"a"},
		Payload: &ImagePayload{URLs: []string{"https://example.com/a.png"}},
	}
	cloned, err := draft.Clone()
	require.NoError(t, err)
	cloned.Tags[0] = "b"
	cloned.Payload.(*ImagePayload).URLs[0] = "changed"

	assert.Equal(t, "a", draft.Tags[0])
	assert.Equal(t, "https://example.com/a.png", draft.Payload.(*ImagePayload).URLs[0])
}

type foreignPayload struct {
	Source string `json:"source"`
}

func (*foreignPayload) Variant() Variant { return VariantProposal }

func TestDraftCloneRefusesToSharePayload(t *testing.T) {
	draft := Draft{Variant: VariantProposal, Payload: &foreignPayload{Source: "dao"}}

	_, err := draft.Clone()
	assert.ErrorIs(t, err, ErrUnknownVariant)

	title := "changed"
	out, err := draft.Apply(DraftPatch{Title: &title})
	assert.Error(t, err)
	assert.Empty(t, out.Title)
}
