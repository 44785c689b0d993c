package chat

import (
	"context"

	"gorm.io/gorm"

	domain "fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/database/entities"
	"fitloop-server/services/chat-api/internal/utils/platformerrors"
)

// MessageRepository is the append-only message log backed by Postgres.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository builds a message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends the message to the log.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	entity, err := entities.NewSchemaMessage(msg)
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeInternal,
			"failed to encode message attachments",
			err,
			"2c53aebf-7031-4829-d0e1-f20314253647",
		)
	}

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to append message",
			err,
			"3d64bfc0-8142-493a-e1f2-031425364758",
		)
	}

	msg.ID = entity.ID
	return nil
}

// ListByConversationID returns messages in created-at ascending order.
// limit <= 0 means no limit.
func (r *MessageRepository) ListByConversationID(ctx context.Context, conversationID uint, limit int) ([]*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Preload("Conversation").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []entities.Message
	if err := query.Find(&records).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list messages",
			err,
			"4e75c0d1-9253-4a4b-f203-142536475869",
		)
	}

	result := make([]*domain.Message, len(records))
	for i := range records {
		msg, err := records[i].EtoD()
		if err != nil {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeInternal,
				"failed to decode message attachments",
				err,
				"5f86d1e2-0364-4b5c-0314-253647586970",
			)
		}
		result[i] = msg
	}
	return result, nil
}
