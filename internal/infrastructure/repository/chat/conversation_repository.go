package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/database/entities"
	"fitloop-server/services/chat-api/internal/utils/platformerrors"
)

// ConversationRepository persists conversation summaries and unread counters.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository builds a conversation repository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts the conversation and its participant rows in one
// transaction. A duplicate participant pair surfaces as a CONFLICT error so
// the caller can re-resolve the winning record.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeConflict,
				"conversation already exists for participant pair",
				err,
				"3f6a1b2c-8d4e-49f0-a1b2-c3d4e5f6a7b8",
			)
		}
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create conversation",
			err,
			"4a7b2c3d-9e5f-40a1-b2c3-d4e5f6a7b8c9",
		)
	}

	conv.ID = entity.ID
	conv.CreatedAt = entity.CreatedAt
	conv.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches a conversation by its public ID.
func (r *ConversationRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("public_id = ?", publicID).
		First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				fmt.Sprintf("conversation not found: %s", publicID),
				nil,
				"5b8c3d4e-0f6a-41b2-c3d4-e5f6a7b8c9d0",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch conversation",
			err,
			"6c9d4e5f-1a7b-42c3-d4e5-f6a7b8c9d0e1",
		)
	}
	return entity.EtoD(), nil
}

// FindByParticipants resolves the canonical unordered pair. Returns
// (nil, nil) when no conversation exists for the pair.
func (r *ConversationRepository) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}

	var entity entities.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("participant_lo = ? AND participant_hi = ?", lo, hi).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to resolve conversation by participants",
			err,
			"7d0e5f6a-2b8c-43d4-e5f6-a7b8c9d0e1f2",
		)
	}
	return entity.EtoD(), nil
}

// ListByUser returns the user's conversations ordered by most recent
// activity first.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var records []entities.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Preload("Participants").
		Order("conversations.last_activity_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list conversations",
			err,
			"8e1f6a7b-3c9d-44e5-f6a7-b8c9d0e1f203",
		)
	}

	result := make([]*domain.Conversation, len(records))
	for i := range records {
		result[i] = records[i].EtoD()
	}
	return result, nil
}

// RecordActivity updates the summary fields and increments the recipient's
// unread counter in place. The increment is SQL arithmetic so concurrent
// sends into the same conversation never lose updates.
func (r *ConversationRepository) RecordActivity(ctx context.Context, conversationID uint, preview string, at time.Time, recipientID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"last_message_preview": preview,
				"last_activity_at":     gorm.Expr("GREATEST(last_activity_at, ?)", at),
			}).Error; err != nil {
			return err
		}

		res := tx.Model(&entities.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, recipientID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("no participant row for user %s in conversation %d", recipientID, conversationID)
		}
		return nil
	})
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to record conversation activity",
			err,
			"9f207b8c-4d0e-45f6-a7b8-c9d0e1f20314",
		)
	}
	return nil
}

// ResetUnread zeroes the participant's unread counter. A full reset, not a
// decrement: the client signals it has seen everything up to now.
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID uint, userID string) error {
	res := r.db.WithContext(ctx).Model(&entities.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("unread_count", 0)
	if res.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to reset unread counter",
			res.Error,
			"0a318c9d-5e1f-4607-b8c9-d0e1f2031425",
		)
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("no participant row for user %s in conversation %d", userID, conversationID),
			nil,
			"1b429dae-6f20-4718-c9d0-e1f203142536",
		)
	}
	return nil
}
