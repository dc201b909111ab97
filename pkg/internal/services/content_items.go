package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MaxListTake = 100

func FilterItemWithCommunity(tx *gorm.DB, community string) *gorm.DB {
	return tx.Where("community_id = ?", community)
}

func FilterItemWithAuthor(tx *gorm.DB, author string) *gorm.DB {
	return tx.Where("author_identity = ?", author)
}

func FilterItemWithVariant(tx *gorm.DB, variant models.Variant) *gorm.DB {
	return tx.Where("variant = ?", variant)
}

func FilterItemWithCreatedAt(tx *gorm.DB, since time.Time) *gorm.DB {
	return tx.Where("created_at >= ?", since)
}

// ContentStore keeps content items in the relational database. It is the
// persistence collaborator of the submission pipeline.
type ContentStore struct {
	db *gorm.DB
}

func NewContentStore(db *gorm.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) DB() *gorm.DB {
	return s.db
}

func (s *ContentStore) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	if _, err := models.CheckSchema(*item); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return persistenceError(err)
	}
	return nil
}

func (s *ContentStore) GetContentItem(ctx context.Context, id uint) (models.ContentItem, error) {
	var item models.ContentItem
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		return item, persistenceError(err)
	}

	return item, nil
}

// ListContentItems runs the query built by filter, newest first.
func (s *ContentStore) ListContentItems(ctx context.Context, filter func(tx *gorm.DB) *gorm.DB, take, offset int) ([]models.ContentItem, error) {
	if take > MaxListTake || take <= 0 {
		take = MaxListTake
	}

	tx := s.db.WithContext(ctx)
	if filter != nil {
		tx = filter(tx)
	}

	var items []models.ContentItem
	if err := tx.
		Limit(take).Offset(offset).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error; err != nil {
		return nil, persistenceError(err)
	}

	return items, nil
}

func (s *ContentStore) CountContentItems(ctx context.Context, filter func(tx *gorm.DB) *gorm.DB) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.ContentItem{})
	if filter != nil {
		tx = filter(tx)
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return count, persistenceError(err)
	}

	return count, nil
}

func (s *ContentStore) MarkConfirmed(ctx context.Context, id uint, txRef string) error {
	tx := s.db.WithContext(ctx).
		Model(&models.ContentItem{}).
		Where("id = ? AND external_tx_ref = ?", id, txRef).
		Update("external_confirmed", true)
	if tx.Error != nil {
		return persistenceError(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: #%d with transaction %s", models.ErrNotFound, id, txRef)
	}
	return nil
}

// GetContentItemByResource finds the item backed by an on-ledger resource,
// either an event's ticketed resource or a bounty's escrow.
func (s *ContentStore) GetContentItemByResource(ctx context.Context, resourceID string) (models.ContentItem, error) {
	var item models.ContentItem
	if err := s.db.WithContext(ctx).
		Where(
			s.db.Where(datatypes.JSONQuery("payload").Equals(resourceID, "event", "ticketing", "resource_id")).
				Or(datatypes.JSONQuery("payload").Equals(resourceID, "bounty", "escrow_id")),
		).
		Order("id").
		First(&item).Error; err != nil {
		return item, persistenceError(err)
	}

	return item, nil
}

// AnswerPoll records the answer of an identity and moves the option tallies
// of the poll payload with it. Answering again with another option moves the
// vote, the same option is a no-op.
func (s *ContentStore) AnswerPoll(ctx context.Context, id uint, identity, optionID string, now time.Time) (models.ContentItem, models.PollAnswer, error) {
	answer := models.PollAnswer{
		ContentItemID:  id,
		AuthorIdentity: identity,
		OptionID:       optionID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ContentItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&item).Error; err != nil {
			return err
		}
		payload, err := models.CheckSchema(item)
		if err != nil {
			return err
		}
		poll, ok := payload.(*models.PollPayload)
		if !ok {
			return fmt.Errorf("%w: #%d is a %s", models.ErrNotAPoll, id, item.Variant)
		}
		if poll.Deadline != nil && !now.Before(*poll.Deadline) {
			return models.ErrPollClosed
		}
		if !lo.ContainsBy(poll.Options, func(item models.PollOption) bool { return item.ID == optionID }) {
			return fmt.Errorf("%w: %q", models.ErrUnknownPollOption, optionID)
		}

		var current models.PollAnswer
		if err := tx.Where("content_item_id = ? AND author_identity = ?", id, identity).
			First(&current).Error; err == nil {
			if current.OptionID == optionID {
				answer = current
				return nil
			}
			moveVote(poll, current.OptionID, -1)
			current.OptionID = optionID
			if err := tx.Model(&current).Update("option_id", optionID).Error; err != nil {
				return err
			}
			answer = current
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		} else if err := tx.Create(&answer).Error; err != nil {
			return err
		}

		moveVote(poll, optionID, 1)
		if err := item.SetPayload(poll); err != nil {
			return err
		}
		return tx.Model(&models.ContentItem{}).
			Where("id = ?", id).
			Update("payload", item.Payload).Error
	})
	if err != nil {
		return models.ContentItem{}, answer, persistenceError(err)
	}

	item, err := s.GetContentItem(ctx, id)
	return item, answer, err
}

func moveVote(poll *models.PollPayload, optionID string, delta int64) {
	for idx := range poll.Options {
		if poll.Options[idx].ID == optionID {
			poll.Options[idx].Votes = max(poll.Options[idx].Votes+delta, 0)
		}
	}
}

// Retract soft deletes the item, it stays around until the cleanup purges it.
func (s *ContentStore) Retract(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.ContentItem{}, id).Error; err != nil {
		return persistenceError(err)
	}
	return nil
}

// Interact moves one engagement counter by delta. Counters never go below
// zero, a decrement past zero is a no-op.
func (s *ContentStore) Interact(ctx context.Context, id uint, counter string, delta int64) (models.ContentItem, error) {
	if !lo.Contains(models.Counters, counter) {
		return models.ContentItem{}, fmt.Errorf("unknown engagement counter %q", counter)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ContentItem
		if err := tx.Select("id").Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}
		return tx.Model(&models.ContentItem{}).
			Where("id = ?", id).
			Where(fmt.Sprintf("%s + ? >= 0", counter), delta).
			UpdateColumn(counter, gorm.Expr(fmt.Sprintf("%s + ?", counter), delta)).Error
	})
	if err != nil {
		return models.ContentItem{}, persistenceError(err)
	}

	return s.GetContentItem(ctx, id)
}

// PurgeRetracted removes retracted items older than the given time for good.
func (s *ContentStore) PurgeRetracted(ctx context.Context, before time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", before).
		Delete(&models.ContentItem{})
	if tx.Error != nil {
		return 0, persistenceError(tx.Error)
	}
	return tx.RowsAffected, nil
}

func persistenceError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	for _, kind := range []error{
		models.ErrSchemaMismatch,
		models.ErrNotFound,
		models.ErrNotAPoll,
		models.ErrUnknownPollOption,
		models.ErrPollClosed,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", models.ErrPersistenceUnavailable, err)
}

const TruncateBodyThreshold = 160

// TruncateContentItem shortens the body for list responses.
func TruncateContentItem(item models.ContentItem) models.ContentItem {
	if length := TruncateBodyThreshold; len([]rune(item.Body)) > length {
		item.Body = string([]rune(item.Body)[:length]) + "..."
	}
	return item
}
