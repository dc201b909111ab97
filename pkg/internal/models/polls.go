package models

// PollAnswer is the choice of one identity on a poll item. Each identity
// holds at most one answer per poll, answering again moves it.
type PollAnswer struct {
	BaseModel

	ContentItemID  uint   `json:"content_item_id" gorm:"uniqueIndex:idx_poll_answer_identity"`
	AuthorIdentity string `json:"author_identity" gorm:"uniqueIndex:idx_poll_answer_identity"`
	OptionID       string `json:"option_id"`
}
