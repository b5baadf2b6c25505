package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// ExerciseRepository defines persistence operations for exercises.
type ExerciseRepository interface {
	GetByID(ctx context.Context, id uint) (models.Exercise, error)
	FindEnrollmentExercise(ctx context.Context, courseInstanceID uint) (models.Exercise, error)
	GetModule(ctx context.Context, id uint) (models.CourseModule, error)
	GetCategory(ctx context.Context, id uint) (models.LearningObjectCategory, error)
	GetLTIService(ctx context.Context, id uint) (models.LTIService, error)
	Create(ctx context.Context, exercise *models.Exercise) error
	Delete(ctx context.Context, id uint) error
	SaveContent(ctx context.Context, exerciseID uint, head, content string, at time.Time) error
	SaveAttachment(ctx context.Context, exerciseID uint, attachmentURL, publicID, name string) error
	RecordDisplay(ctx context.Context, exerciseID, profileID uint) error
}

type exerciseRepository struct {
	db *gorm.DB
}

// NewExerciseRepository instantiates a GORM-backed repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

func (r *exerciseRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Exercise{}).
		Preload("CourseModule.CourseInstance.Course").
		Preload("Category").
		Preload("LTIService")
}

func (r *exerciseRepository) GetByID(ctx context.Context, id uint) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.baseQuery(ctx).First(&exercise, id).Error; err != nil {
		return models.Exercise{}, err
	}

	return exercise, nil
}

// FindEnrollmentExercise returns the first enrollment questionnaire of the instance.
func (r *exerciseRepository) FindEnrollmentExercise(ctx context.Context, courseInstanceID uint) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.baseQuery(ctx).
		Joins("JOIN course_modules ON course_modules.id = exercises.course_module_id").
		Where("course_modules.course_instance_id = ?", courseInstanceID).
		Where("exercises.status = ?", models.ExerciseStatusEnrollment).
		Order("course_modules.\"order\" ASC").
		Order("exercises.\"order\" ASC").
		Order("exercises.id ASC").
		First(&exercise).Error; err != nil {
		return models.Exercise{}, err
	}

	return exercise, nil
}

func (r *exerciseRepository) GetModule(ctx context.Context, id uint) (models.CourseModule, error) {
	var module models.CourseModule
	if err := r.db.WithContext(ctx).Preload("CourseInstance").First(&module, id).Error; err != nil {
		return models.CourseModule{}, err
	}

	return module, nil
}

func (r *exerciseRepository) GetCategory(ctx context.Context, id uint) (models.LearningObjectCategory, error) {
	var category models.LearningObjectCategory
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return models.LearningObjectCategory{}, err
	}

	return category, nil
}

func (r *exerciseRepository) GetLTIService(ctx context.Context, id uint) (models.LTIService, error) {
	var service models.LTIService
	if err := r.db.WithContext(ctx).First(&service, id).Error; err != nil {
		return models.LTIService{}, err
	}

	return service, nil
}

func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Omit("CourseModule", "Category", "Parent", "LTIService").Create(exercise).Error
}

func (r *exerciseRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Exercise{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveContent stores the fetched page as the exercise's cached copy. Concurrent
// writers may race; the last write wins.
func (r *exerciseRepository) SaveContent(ctx context.Context, exerciseID uint, head, content string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Exercise{}).
		Where("id = ?", exerciseID).
		Updates(map[string]interface{}{
			"content_head": head,
			"content":      content,
			"content_time": at,
		}).Error
}

func (r *exerciseRepository) SaveAttachment(ctx context.Context, exerciseID uint, attachmentURL, publicID, name string) error {
	return r.db.WithContext(ctx).Model(&models.Exercise{}).
		Where("id = ?", exerciseID).
		Updates(map[string]interface{}{
			"attachment_url":       attachmentURL,
			"attachment_public_id": publicID,
			"attachment_name":      name,
		}).Error
}

func (r *exerciseRepository) RecordDisplay(ctx context.Context, exerciseID, profileID uint) error {
	return r.db.WithContext(ctx).Create(&models.LearningObjectDisplay{
		LearningObjectID: exerciseID,
		ProfileID:        profileID,
	}).Error
}
