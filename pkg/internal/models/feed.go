package models

import "time"

// BaseFeedItem is the common shape of read-only items coming from foreign
// sources such as governance proposals or NFT listings.
type BaseFeedItem struct {
	ID         string             `json:"id"`
	Variant    Variant            `json:"variant"`
	ChainID    int64              `json:"chain_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Creator    string             `json:"creator"`
	Title      string             `json:"title,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	URL        string             `json:"url,omitempty"`
	Source     string             `json:"source,omitempty"`
	Engagement EngagementCounters `json:"engagement"`
	Extra      map[string]any     `json:"extra,omitempty"`
}
