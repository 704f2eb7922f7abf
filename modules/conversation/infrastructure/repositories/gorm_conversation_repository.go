// Package repositories provides the GORM-backed Conversation Store,
// following the teacher's repository-per-aggregate pattern
// (modules/meeting/infrastructure/repositories/gorm_meeting_repository.go).
package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/seedwork/infrastructure/database"
)

// GormConversationRepository implements repositories.ConversationRepository
// using GORM against Postgres, with version lists stored as jsonb columns
// — simpler and more idiomatic here than child tables, since versions are
// immutable and always read back as a whole list.
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository constructs a repository against the
// process-wide database handle.
func NewGormConversationRepository() *GormConversationRepository {
	return &GormConversationRepository{db: database.GetDB()}
}

func (r *GormConversationRepository) Insert(ctx context.Context, c *entities.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*entities.Conversation, error) {
	var c entities.Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormConversationRepository) FindByUser(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	var cs []*entities.Conversation
	err := r.db.WithContext(ctx).Where("user_id = ? AND deleted = ?", userID, false).
		Order("created_at DESC").Find(&cs).Error
	return cs, err
}

func (r *GormConversationRepository) FindByAudioUUID(ctx context.Context, audioUUID string) ([]*entities.Conversation, error) {
	var cs []*entities.Conversation
	err := r.db.WithContext(ctx).Where("audio_uuid = ?", audioUUID).
		Order("created_at ASC").Find(&cs).Error
	return cs, err
}

func (r *GormConversationRepository) Save(ctx context.Context, c *entities.Conversation) error {
	result := r.db.WithContext(ctx).Save(c)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation not found: %s", c.GetID())
	}
	return nil
}
