package dto

import (
	"time"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID               uint                    `json:"id"`
	ExerciseID       uint                    `json:"exercise_id"`
	Status           models.SubmissionStatus `json:"status"`
	Grade            int                     `json:"grade"`
	ServicePoints    int                     `json:"service_points"`
	ServiceMaxPoints int                     `json:"service_max_points"`
	Feedback         string                  `json:"feedback"`
	Submitters       []uint                  `json:"submitters"`
	OrdinalNumber    int                     `json:"ordinal_number"`
	SubmissionTime   time.Time               `json:"submission_time"`
	GradingTime      *time.Time              `json:"grading_time"`
}

// NewSubmissionResponse maps a submission model into an API response.
func NewSubmissionResponse(submission models.Submission, ordinal int) SubmissionResponse {
	return SubmissionResponse{
		ID:               submission.ID,
		ExerciseID:       submission.ExerciseID,
		Status:           submission.Status,
		Grade:            submission.Grade,
		ServicePoints:    submission.ServicePoints,
		ServiceMaxPoints: submission.ServiceMaxPoints,
		Feedback:         submission.Feedback,
		Submitters:       submission.SubmitterIDs(),
		OrdinalNumber:    ordinal,
		SubmissionTime:   submission.SubmissionTime,
		GradingTime:      submission.GradingTime,
	}
}

// SubmitResponse is the result of a submission attempt. Submission is nil when
// the eligibility check denied it.
type SubmitResponse struct {
	Eligibility EligibilityResponse `json:"eligibility"`
	Submission  *SubmissionResponse `json:"submission,omitempty"`
}

// AsyncGradeRequest is the payload a grading service posts to the async callbacks.
type AsyncGradeRequest struct {
	Points         int    `json:"points" form:"points" validate:"gte=0"`
	MaxPoints      int    `json:"max_points" form:"max_points" validate:"gte=0"`
	Feedback       string `json:"feedback" form:"feedback"`
	Error          bool   `json:"error" form:"error"`
	GradingPayload string `json:"grading_payload" form:"grading_payload"`
}

// AsyncResponse is returned to grading services.
type AsyncResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}
