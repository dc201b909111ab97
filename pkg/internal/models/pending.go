package models

import "time"

// PendingSubmission tracks a ledger write whose confirmation has not arrived
// yet. It is never persisted.
type PendingSubmission struct {
	ExternalTxRef        string    `json:"external_tx_ref"`
	Confirmed            bool      `json:"confirmed"`
	RelatedContentItemID *uint     `json:"related_content_item_id"`
	AuthorIdentity       string    `json:"author_identity"`
	CreatedAt            time.Time `json:"created_at"`
}
