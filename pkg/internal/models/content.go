package models

import (
	"gorm.io/datatypes"
)

type EngagementCounters struct {
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	ShareCount   int64 `json:"share_count"`
	SaveCount    int64 `json:"save_count"`
}

// Counter names accepted by interaction operations, they match the column
// names of the embedded counters.
const (
	CounterLike    = "like_count"
	CounterComment = "comment_count"
	CounterShare   = "share_count"
	CounterSave    = "save_count"
)

var Counters = []string{CounterLike, CounterComment, CounterShare, CounterSave}

// ExternalRef is set when the item or a resource it references was recorded
// on a ledger. Confirmed flips once the transaction is mined.
type ExternalRef struct {
	TxRef     string `json:"tx_ref"`
	Confirmed bool   `json:"confirmed"`
}

type ContentItem struct {
	BaseModel

	AuthorIdentity string                             `json:"author_identity" gorm:"index"`
	CommunityID    string                             `json:"community_id" gorm:"index"`
	Variant        Variant                            `json:"variant" gorm:"index;not null"`
	Title          string                             `json:"title"`
	Body           string                             `json:"body"`
	Tags           datatypes.JSONSlice[string]        `json:"tags"`
	Language       string                             `json:"language"`
	Payload        datatypes.JSONType[VariantPayload] `json:"payload"`
	Engagement     EngagementCounters                 `json:"engagement" gorm:"embedded"`
	ExternalRef    ExternalRef                        `json:"external_ref" gorm:"embedded;embeddedPrefix:external_"`
}

func (v ContentItem) HasExternalRef() bool {
	return len(v.ExternalRef.TxRef) > 0
}

// Is compares the item's variant with a tag in any accepted encoding.
func (v ContentItem) Is(tag any) bool {
	return IsVariant(v.Variant, tag)
}

// PayloadFor returns the single populated payload of the item.
// Zero or several populated fields are a SchemaMismatch.
func PayloadFor(item ContentItem) (Payload, error) {
	populated := item.Payload.Data().Populated()
	if len(populated) != 1 {
		return nil, &SchemaMismatchError{
			ItemID:    item.ID,
			Variant:   item.Variant,
			Populated: payloadVariants(populated),
		}
	}
	return populated[0], nil
}

// CheckSchema enforces the full invariant: one payload, of the item's own
// variant.
func CheckSchema(item ContentItem) (Payload, error) {
	payload, err := PayloadFor(item)
	if err != nil {
		return nil, err
	}
	if payload.Variant() != item.Variant {
		return nil, &SchemaMismatchError{
			ItemID:    item.ID,
			Variant:   item.Variant,
			Populated: []Variant{payload.Variant()},
		}
	}
	return payload, nil
}

// SetPayload stores the payload and sets the matching variant.
func (v *ContentItem) SetPayload(payload Payload) error {
	wrapped, err := WrapPayload(payload)
	if err != nil {
		return err
	}
	v.Variant = payload.Variant()
	v.Payload = datatypes.NewJSONType(wrapped)
	return nil
}

func payloadVariants(in []Payload) []Variant {
	out := make([]Variant, len(in))
	for idx, item := range in {
		out[idx] = item.Variant()
	}
	return out
}
