package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus tracks the grading lifecycle of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusInitialized indicates the submission is stored but not yet sent to the grader.
	SubmissionStatusInitialized SubmissionStatus = "initialized"
	// SubmissionStatusWaiting indicates the grader accepted the submission for asynchronous grading.
	SubmissionStatusWaiting SubmissionStatus = "waiting"
	// SubmissionStatusReady indicates the submission has been graded.
	SubmissionStatusReady SubmissionStatus = "ready"
	// SubmissionStatusError indicates grading failed.
	SubmissionStatusError SubmissionStatus = "error"
	// SubmissionStatusRejected indicates the grader refused the submission.
	SubmissionStatusRejected SubmissionStatus = "rejected"
	// SubmissionStatusUnofficial indicates a submission outside the official rules.
	SubmissionStatusUnofficial SubmissionStatus = "unofficial"
)

// ErrorStatuses are excluded from quota usage when errors are not counted.
var ErrorStatuses = []SubmissionStatus{SubmissionStatusError, SubmissionStatusRejected}

// Submission is an append-only record of students submitting to an exercise.
type Submission struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ExerciseID       uint             `gorm:"not null;index" json:"exercise_id"`
	Hash             string           `gorm:"size:64;not null" json:"-"`
	Status           SubmissionStatus `gorm:"size:32;not null" json:"status"`
	Grade            int              `gorm:"not null;default:0" json:"grade"`
	ServicePoints    int              `gorm:"not null;default:0" json:"service_points"`
	ServiceMaxPoints int              `gorm:"not null;default:0" json:"service_max_points"`
	Feedback         string           `gorm:"type:text" json:"feedback"`
	SubmissionData   datatypes.JSON   `gorm:"type:json" json:"submission_data"`
	SubmissionTime   time.Time        `gorm:"not null;index" json:"submission_time"`
	GradingTime      *time.Time       `json:"grading_time"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Submitters       []Student        `gorm:"many2many:submission_submitters;" json:"submitters"`
	Exercise         Exercise         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SubmitterIDs lists the profile ids of the submitters.
func (s Submission) SubmitterIDs() []uint {
	ids := make([]uint, 0, len(s.Submitters))
	for _, submitter := range s.Submitters {
		ids = append(ids, submitter.ID)
	}
	return ids
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusReady
}
