package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// CourseRepository answers enrollment and staff questions about course instances.
type CourseRepository interface {
	EnrollmentFor(ctx context.Context, courseInstanceID, studentID uint) (*models.Enrollment, error)
	StaffAmong(ctx context.Context, courseInstanceID uint, studentIDs []uint) (map[uint]bool, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

// EnrollmentFor returns nil without error when the student is not enrolled.
func (r *courseRepository) EnrollmentFor(ctx context.Context, courseInstanceID, studentID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Preload("SelectedGroup.Members").
		Where("course_instance_id = ? AND student_id = ?", courseInstanceID, studentID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &enrollment, nil
}

func (r *courseRepository) StaffAmong(ctx context.Context, courseInstanceID uint, studentIDs []uint) (map[uint]bool, error) {
	staff := make(map[uint]bool, len(studentIDs))
	if len(studentIDs) == 0 {
		return staff, nil
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.CourseStaff{}).
		Where("course_instance_id = ?", courseInstanceID).
		Where("student_id IN ?", studentIDs).
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}

	for _, id := range ids {
		staff[id] = true
	}
	return staff, nil
}
