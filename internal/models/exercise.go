package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ExerciseStatus controls visibility and submission rules of a learning object.
type ExerciseStatus string

const (
	ExerciseStatusReady       ExerciseStatus = "ready"
	ExerciseStatusUnlisted    ExerciseStatus = "unlisted"
	ExerciseStatusEnrollment  ExerciseStatus = "enrollment"
	ExerciseStatusHidden      ExerciseStatus = "hidden"
	ExerciseStatusMaintenance ExerciseStatus = "maintenance"
)

// ExerciseKind tags the grading protocol variant of an exercise.
type ExerciseKind string

const (
	// ExerciseKindDefault loads and grades through the service URL with async callbacks.
	ExerciseKindDefault ExerciseKind = "default"
	// ExerciseKindLTI launches or signs requests for an LTI tool provider.
	ExerciseKindLTI ExerciseKind = "lti"
	// ExerciseKindStatic serves locally stored exercise and submission pages.
	ExerciseKindStatic ExerciseKind = "static"
	// ExerciseKindAttachment sends a stored attachment to the grader with each submission.
	ExerciseKindAttachment ExerciseKind = "attachment"
)

// ReservedExerciseURLs cannot be used as learning object url identifiers.
var ReservedExerciseURLs = []string{"submissions", "plain", "info"}

// Exercise is a submittable learning object and the tagged variant data of its grading protocol.
type Exercise struct {
	ID                    uint                   `gorm:"primaryKey" json:"id"`
	Kind                  ExerciseKind           `gorm:"size:32;not null;default:default" json:"kind"`
	Status                ExerciseStatus         `gorm:"size:32;not null;default:ready" json:"status"`
	CourseModuleID        uint                   `gorm:"not null;index" json:"course_module_id"`
	CategoryID            uint                   `gorm:"not null;index" json:"category_id"`
	ParentID              *uint                  `gorm:"index" json:"parent_id"`
	Order                 int                    `gorm:"not null;default:1" json:"order"`
	URL                   string                 `gorm:"size:255;not null" json:"url"`
	Name                  string                 `gorm:"size:255;not null" json:"name"`
	Description           string                 `gorm:"type:text" json:"description"`
	ServiceURL            string                 `gorm:"size:512" json:"service_url"`
	ExerciseInfo          datatypes.JSONMap      `gorm:"type:json" json:"exercise_info"`
	ModelAnswers          string                 `gorm:"type:text" json:"model_answers"`
	Content               string                 `gorm:"type:text" json:"-"`
	ContentHead           string                 `gorm:"type:text" json:"-"`
	ContentTime           *time.Time             `json:"content_time"`
	AllowAssistantViewing bool                   `gorm:"not null" json:"allow_assistant_viewing"`
	AllowAssistantGrading bool                   `gorm:"not null" json:"allow_assistant_grading"`
	MinGroupSize          int                    `gorm:"not null" json:"min_group_size"`
	MaxGroupSize          int                    `gorm:"not null" json:"max_group_size"`
	MaxSubmissions        int                    `gorm:"not null" json:"max_submissions"`
	MaxPoints             int                    `gorm:"not null" json:"max_points"`
	PointsToPass          int                    `gorm:"not null" json:"points_to_pass"`
	LTIServiceID          *uint                  `json:"lti_service_id"`
	LTIContextID          string                 `gorm:"size:128" json:"lti_context_id"`
	LTIResourceLinkID     string                 `gorm:"size:128" json:"lti_resource_link_id"`
	LTIResourceLinkTitle  string                 `gorm:"size:128" json:"lti_resource_link_title"`
	APlusGetAndPost       bool                   `gorm:"not null" json:"aplus_get_and_post"`
	ExercisePageContent   string                 `gorm:"type:text" json:"-"`
	SubmissionPageContent string                 `gorm:"type:text" json:"-"`
	FilesToSubmit         string                 `gorm:"size:200" json:"files_to_submit"`
	AttachmentURL         string                 `gorm:"size:512" json:"attachment_url"`
	AttachmentPublicID    string                 `gorm:"size:255" json:"-"`
	AttachmentName        string                 `gorm:"size:255" json:"attachment_name"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	CourseModule          CourseModule           `json:"course_module"`
	Category              LearningObjectCategory `gorm:"foreignKey:CategoryID" json:"category"`
	Parent                *Exercise              `gorm:"foreignKey:ParentID" json:"-"`
	LTIService            *LTIService            `gorm:"foreignKey:LTIServiceID" json:"lti_service,omitempty"`
}

// CourseInstance returns the instance owning the exercise's module.
func (e Exercise) CourseInstance() CourseInstance {
	return e.CourseModule.CourseInstance
}

// IsEmpty reports whether the exercise has nothing to present.
func (e Exercise) IsEmpty() bool {
	if e.ServiceURL != "" {
		return false
	}
	if e.Kind == ExerciseKindStatic {
		return e.ExercisePageContent == ""
	}
	return true
}

// ContentStale reports whether the cached service page should be refreshed.
func (e Exercise) ContentStale(reference time.Time, maxAge time.Duration) bool {
	if e.ContentTime == nil {
		return true
	}
	return e.ContentTime.Add(maxAge).Before(reference)
}

// FileNames returns the names of the files a student should submit.
func (e Exercise) FileNames() []string {
	if strings.TrimSpace(e.FilesToSubmit) == "" {
		return []string{}
	}

	parts := strings.Split(e.FilesToSubmit, "|")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		names = append(names, strings.TrimSpace(part))
	}
	return names
}

// LTIService describes a registered LTI tool provider.
type LTIService struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	URL            string    `gorm:"size:512;not null" json:"url"`
	MenuLabel      string    `gorm:"size:255" json:"menu_label"`
	ConsumerKey    string    `gorm:"size:128;not null" json:"consumer_key"`
	ConsumerSecret string    `gorm:"size:128;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LearningObjectDisplay records a profile viewing a learning object.
type LearningObjectDisplay struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	LearningObjectID uint      `gorm:"not null;index" json:"learning_object_id"`
	ProfileID        uint      `gorm:"not null;index" json:"profile_id"`
	Timestamp        time.Time `gorm:"autoCreateTime" json:"timestamp"`
}
