package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// SubmissionFilter narrows the submissions of one student to one exercise.
type SubmissionFilter struct {
	ExerciseID uint
	StudentID  uint
	// ExcludeErrors drops errored and rejected submissions.
	ExcludeErrors bool
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	ListForStudent(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	CountForStudent(ctx context.Context, filter SubmissionFilter) (int64, error)
	SubmittedAmong(ctx context.Context, exerciseID uint, studentIDs []uint) ([]uint, error)
	OrdinalNumber(ctx context.Context, submission models.Submission) (int, error)
	TotalSubmitterCount(ctx context.Context, exerciseID uint) (int64, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) studentQuery(ctx context.Context, filter SubmissionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Joins("JOIN submission_submitters ON submission_submitters.submission_id = submissions.id").
		Where("submissions.exercise_id = ?", filter.ExerciseID).
		Where("submission_submitters.student_id = ?", filter.StudentID)

	if filter.ExcludeErrors {
		query = query.Where("submissions.status NOT IN ?", models.ErrorStatuses)
	}

	return query
}

func (r *submissionRepository) ListForStudent(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.studentQuery(ctx, filter).
		Preload("Submitters").
		Order("submissions.submission_time DESC").
		Order("submissions.id DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) CountForStudent(ctx context.Context, filter SubmissionFilter) (int64, error) {
	var count int64
	if err := r.studentQuery(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// SubmittedAmong returns the students of the list that have any submission to the exercise.
func (r *submissionRepository) SubmittedAmong(ctx context.Context, exerciseID uint, studentIDs []uint) ([]uint, error) {
	if len(studentIDs) == 0 {
		return []uint{}, nil
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Table("submission_submitters").
		Joins("JOIN submissions ON submissions.id = submission_submitters.submission_id").
		Where("submissions.exercise_id = ?", exerciseID).
		Where("submission_submitters.student_id IN ?", studentIDs).
		Distinct("submission_submitters.student_id").
		Pluck("submission_submitters.student_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

// OrdinalNumber is the 1-based position of the submission among the submissions
// of its submitters to the same exercise.
func (r *submissionRepository) OrdinalNumber(ctx context.Context, submission models.Submission) (int, error) {
	ids := submission.SubmitterIDs()
	if len(ids) == 0 {
		return 1, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Joins("JOIN submission_submitters ON submission_submitters.submission_id = submissions.id").
		Where("submissions.exercise_id = ?", submission.ExerciseID).
		Where("submission_submitters.student_id IN ?", ids).
		Where("submissions.id <= ?", submission.ID).
		Distinct("submissions.id").
		Count(&count).Error; err != nil {
		return 0, err
	}

	return int(count), nil
}

func (r *submissionRepository) TotalSubmitterCount(ctx context.Context, exerciseID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Table("submission_submitters").
		Joins("JOIN submissions ON submissions.id = submission_submitters.submission_id").
		Where("submissions.exercise_id = ?", exerciseID).
		Distinct("submission_submitters.student_id").
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Submitters").
		Preload("Exercise").
		Preload("Exercise.CourseModule.CourseInstance.Course").
		Preload("Exercise.LTIService").
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if len(submission.Submitters) == 0 {
		return errors.New("submission requires at least one submitter")
	}
	return r.db.WithContext(ctx).Omit("Submitters.*", "Exercise").Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Submitters", "Exercise").Save(submission).Error
}
