// Package infrastructure provides the Job Scheduler's ledger store and
// the asynq-backed Scheduler that drives dependency-ordered enqueueing.
package infrastructure

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chronicle/server/jobs/domain"
	"chronicle/server/seedwork/infrastructure/database"
)

// GormRepository implements domain.Repository against Postgres,
// following the teacher's ProcessingJob/GORM conventions.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository() *GormRepository {
	return &GormRepository{db: database.GetDB()}
}

func (r *GormRepository) Insert(ctx context.Context, j *domain.Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *GormRepository) Save(ctx context.Context, j *domain.Job) error {
	result := r.db.WithContext(ctx).Save(j)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %s", j.GetID())
	}
	return nil
}

// Dependents finds every job whose dependency_ids jsonb array contains
// id, using Postgres's jsonb containment operator.
func (r *GormRepository) Dependents(ctx context.Context, id string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	needle := fmt.Sprintf("[%q]", id)
	err := r.db.WithContext(ctx).
		Where("dependency_ids @> ?::jsonb", needle).
		Find(&jobs).Error
	return jobs, err
}

var _ domain.Repository = (*GormRepository)(nil)
