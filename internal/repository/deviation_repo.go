package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// DeviationRepository reads per-student rule deviations.
type DeviationRepository interface {
	DeadlineDeviations(ctx context.Context, exerciseID uint, studentIDs []uint) ([]models.DeadlineRuleDeviation, error)
	SubmissionDeviations(ctx context.Context, exerciseID uint, studentIDs []uint) ([]models.MaxSubmissionsRuleDeviation, error)
}

type deviationRepository struct {
	db *gorm.DB
}

// NewDeviationRepository constructs a deviation repository.
func NewDeviationRepository(db *gorm.DB) DeviationRepository {
	return &deviationRepository{db: db}
}

func (r *deviationRepository) DeadlineDeviations(ctx context.Context, exerciseID uint, studentIDs []uint) ([]models.DeadlineRuleDeviation, error) {
	if len(studentIDs) == 0 {
		return []models.DeadlineRuleDeviation{}, nil
	}

	var deviations []models.DeadlineRuleDeviation
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ? AND submitter_id IN ?", exerciseID, studentIDs).
		Order("id ASC").
		Find(&deviations).Error; err != nil {
		return nil, err
	}

	return deviations, nil
}

func (r *deviationRepository) SubmissionDeviations(ctx context.Context, exerciseID uint, studentIDs []uint) ([]models.MaxSubmissionsRuleDeviation, error) {
	if len(studentIDs) == 0 {
		return []models.MaxSubmissionsRuleDeviation{}, nil
	}

	var deviations []models.MaxSubmissionsRuleDeviation
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ? AND submitter_id IN ?", exerciseID, studentIDs).
		Order("id ASC").
		Find(&deviations).Error; err != nil {
		return nil, err
	}

	return deviations, nil
}
