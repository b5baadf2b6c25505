package models

import (
	"math"
	"time"
)

// Course groups the recurring instances of a taught course.
type Course struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	Name      string           `gorm:"size:255;not null" json:"name"`
	Code      string           `gorm:"size:64;not null" json:"code"`
	URL       string           `gorm:"size:255;uniqueIndex;not null" json:"url"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Instances []CourseInstance `json:"-"`
}

// CourseInstance is a single run of a course with its own enrollment and schedule.
type CourseInstance struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	CourseID               uint       `gorm:"not null;index" json:"course_id"`
	InstanceName           string     `gorm:"size:255;not null" json:"instance_name"`
	URL                    string     `gorm:"size:255;not null" json:"url"`
	Visible                bool       `gorm:"not null" json:"visible"`
	StartingTime           time.Time  `gorm:"not null" json:"starting_time"`
	EndingTime             time.Time  `gorm:"not null" json:"ending_time"`
	EnrollmentStartingTime *time.Time `json:"enrollment_starting_time"`
	EnrollmentEndingTime   *time.Time `json:"enrollment_ending_time"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	Course                 Course     `json:"course"`
}

// Archived reports whether the instance has ended; archived exercises are offline.
func (c CourseInstance) Archived(reference time.Time) bool {
	return c.EndingTime.Before(reference)
}

// IsEnrollable reports whether new students may enroll at the reference time.
func (c CourseInstance) IsEnrollable(reference time.Time) bool {
	if !c.Visible {
		return false
	}

	start := c.StartingTime
	if c.EnrollmentStartingTime != nil {
		start = *c.EnrollmentStartingTime
	}
	end := c.EndingTime
	if c.EnrollmentEndingTime != nil {
		end = *c.EnrollmentEndingTime
	}

	return !reference.Before(start) && reference.Before(end)
}

const (
	// CourseStaffRoleTeacher marks a responsible teacher of the instance.
	CourseStaffRoleTeacher = "teacher"
	// CourseStaffRoleAssistant marks a teaching assistant of the instance.
	CourseStaffRoleAssistant = "assistant"
)

// CourseStaff links a profile to an instance it teaches or assists.
type CourseStaff struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CourseInstanceID uint      `gorm:"not null;uniqueIndex:idx_course_staff_member" json:"course_instance_id"`
	StudentID        uint      `gorm:"not null;uniqueIndex:idx_course_staff_member" json:"student_id"`
	Role             string    `gorm:"size:32;not null" json:"role"`
	CreatedAt        time.Time `json:"created_at"`
}

// CourseModule is a chapter-sized unit of an instance with its own submission window.
type CourseModule struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	CourseInstanceID       uint           `gorm:"not null;index" json:"course_instance_id"`
	Order                  int            `gorm:"not null;default:1" json:"order"`
	Name                   string         `gorm:"size:255;not null" json:"name"`
	URL                    string         `gorm:"size:255;not null" json:"url"`
	OpeningTime            time.Time      `gorm:"not null" json:"opening_time"`
	ClosingTime            time.Time      `gorm:"not null" json:"closing_time"`
	LateSubmissionsAllowed bool           `gorm:"not null;default:false" json:"late_submissions_allowed"`
	LateSubmissionDeadline *time.Time     `json:"late_submission_deadline"`
	LateSubmissionPenalty  float64        `gorm:"not null" json:"late_submission_penalty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	CourseInstance         CourseInstance `json:"course_instance"`
}

// LateSubmissionPointWorth returns the percentage of points a late submission is worth.
func (m CourseModule) LateSubmissionPointWorth() int {
	return int(math.Round((1 - m.LateSubmissionPenalty) * 100))
}

// LearningObjectCategory classifies learning objects within an instance.
type LearningObjectCategory struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CourseInstanceID uint      `gorm:"not null;index" json:"course_instance_id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	PointsToPass     int       `gorm:"not null;default:0" json:"points_to_pass"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
