package dto

import (
	"time"

	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

// EligibilityResponse is the outcome of checking whether the viewer may submit.
type EligibilityResponse struct {
	ExerciseID uint     `json:"exercise_id"`
	Allowed    bool     `json:"allowed"`
	Warnings   []string `json:"warnings"`
	Submitters []uint   `json:"submitters"`
}

// ExerciseSummary is the public view of an exercise.
type ExerciseSummary struct {
	ID             uint                  `json:"id"`
	Kind           models.ExerciseKind   `json:"kind"`
	Status         models.ExerciseStatus `json:"status"`
	URL            string                `json:"url"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	MaxPoints      int                   `json:"max_points"`
	PointsToPass   int                   `json:"points_to_pass"`
	MaxSubmissions int                   `json:"max_submissions"`
	MinGroupSize   int                   `json:"min_group_size"`
	MaxGroupSize   int                   `json:"max_group_size"`
	OpeningTime    time.Time             `json:"opening_time"`
	ClosingTime    time.Time             `json:"closing_time"`
	Archived       bool                  `json:"archived"`
}

// NewExerciseSummary maps an exercise into its public view.
func NewExerciseSummary(exercise models.Exercise, now time.Time) ExerciseSummary {
	return ExerciseSummary{
		ID:             exercise.ID,
		Kind:           exercise.Kind,
		Status:         exercise.Status,
		URL:            exercise.URL,
		Name:           exercise.Name,
		Description:    exercise.Description,
		MaxPoints:      exercise.MaxPoints,
		PointsToPass:   exercise.PointsToPass,
		MaxSubmissions: exercise.MaxSubmissions,
		MinGroupSize:   exercise.MinGroupSize,
		MaxGroupSize:   exercise.MaxGroupSize,
		OpeningTime:    exercise.CourseModule.OpeningTime,
		ClosingTime:    exercise.CourseModule.ClosingTime,
		Archived:       exercise.CourseInstance().Archived(now),
	}
}

// ExercisePageResponse carries the loaded exercise page. Eligibility is present
// for authenticated viewers only.
type ExercisePageResponse struct {
	Exercise    ExerciseSummary      `json:"exercise"`
	Page        exercisepage.Page    `json:"page"`
	Eligibility *EligibilityResponse `json:"eligibility,omitempty"`
}

// ExerciseStatsResponse reports how many distinct students have submitted.
type ExerciseStatsResponse struct {
	ExerciseID      uint  `json:"exercise_id"`
	TotalSubmitters int64 `json:"total_submitters"`
	Cached          bool  `json:"cached"`
}

// ExerciseCreateRequest describes a new exercise and its grading protocol.
type ExerciseCreateRequest struct {
	Kind                  string                 `json:"kind" form:"kind" validate:"omitempty,oneof=default lti static attachment"`
	Status                string                 `json:"status" form:"status" validate:"omitempty,oneof=ready unlisted enrollment hidden maintenance"`
	CourseModuleID        uint                   `json:"course_module_id" form:"course_module_id" validate:"required,gt=0"`
	CategoryID            uint                   `json:"category_id" form:"category_id" validate:"required,gt=0"`
	ParentID              *uint                  `json:"parent_id" form:"parent_id" validate:"omitempty,gt=0"`
	Order                 int                    `json:"order" form:"order" validate:"gte=0"`
	URL                   string                 `json:"url" form:"url" validate:"required,max=255,exercise_url"`
	Name                  string                 `json:"name" form:"name" validate:"required,max=255"`
	Description           string                 `json:"description" form:"description"`
	ServiceURL            string                 `json:"service_url" form:"service_url" validate:"omitempty,url,max=512"`
	ExerciseInfo          map[string]interface{} `json:"exercise_info" form:"-"`
	ModelAnswers          string                 `json:"model_answers" form:"model_answers"`
	MinGroupSize          int                    `json:"min_group_size" form:"min_group_size" validate:"gte=0,ltefield=MaxGroupSize"`
	MaxGroupSize          int                    `json:"max_group_size" form:"max_group_size" validate:"gte=1"`
	MaxSubmissions        int                    `json:"max_submissions" form:"max_submissions" validate:"gte=0"`
	MaxPoints             int                    `json:"max_points" form:"max_points" validate:"gte=0"`
	PointsToPass          int                    `json:"points_to_pass" form:"points_to_pass" validate:"gte=0,ltefield=MaxPoints"`
	AllowAssistantViewing bool                   `json:"allow_assistant_viewing" form:"allow_assistant_viewing"`
	AllowAssistantGrading bool                   `json:"allow_assistant_grading" form:"allow_assistant_grading"`
	LTIServiceID          *uint                  `json:"lti_service_id" form:"lti_service_id" validate:"required_if=Kind lti"`
	LTIContextID          string                 `json:"lti_context_id" form:"lti_context_id" validate:"max=128"`
	LTIResourceLinkID     string                 `json:"lti_resource_link_id" form:"lti_resource_link_id" validate:"max=128"`
	LTIResourceLinkTitle  string                 `json:"lti_resource_link_title" form:"lti_resource_link_title" validate:"max=128"`
	APlusGetAndPost       bool                   `json:"aplus_get_and_post" form:"aplus_get_and_post"`
	ExercisePageContent   string                 `json:"exercise_page_content" form:"exercise_page_content" validate:"required_if=Kind static"`
	SubmissionPageContent string                 `json:"submission_page_content" form:"submission_page_content"`
	FilesToSubmit         string                 `json:"files_to_submit" form:"files_to_submit" validate:"max=200"`
}

// ExerciseResponse is returned after creating an exercise.
type ExerciseResponse struct {
	ExerciseSummary
	CourseModuleID uint   `json:"course_module_id"`
	CategoryID     uint   `json:"category_id"`
	ServiceURL     string `json:"service_url"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	FilesToSubmit  string `json:"files_to_submit,omitempty"`
}

// NewExerciseResponse maps a stored exercise.
func NewExerciseResponse(exercise models.Exercise, now time.Time) ExerciseResponse {
	return ExerciseResponse{
		ExerciseSummary: NewExerciseSummary(exercise, now),
		CourseModuleID:  exercise.CourseModuleID,
		CategoryID:      exercise.CategoryID,
		ServiceURL:      exercise.ServiceURL,
		AttachmentURL:   exercise.AttachmentURL,
		AttachmentName:  exercise.AttachmentName,
		FilesToSubmit:   exercise.FilesToSubmit,
	}
}
