package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
	"github.com/noah-isme/gema-exercise-api/pkg/cloudinary"
)

// AttachmentStore keeps the files attached to exercises.
type AttachmentStore interface {
	Upload(ctx context.Context, dir, name string, reader io.Reader) (cloudinary.StoredFile, error)
	Delete(ctx context.Context, publicID string) error
}

// ExerciseAdminService lets course staff configure exercises.
type ExerciseAdminService interface {
	Create(ctx context.Context, payload dto.ExerciseCreateRequest, attachment *multipart.FileHeader) (dto.ExerciseResponse, error)
	Delete(ctx context.Context, id uint) error
}

type exerciseAdminService struct {
	exercises   repository.ExerciseRepository
	validator   *validator.Validate
	attachments AttachmentStore
	logger      zerolog.Logger
	now         func() time.Time
}

// NewExerciseAdminService constructs the exercise configuration service.
func NewExerciseAdminService(exercises repository.ExerciseRepository, validate *validator.Validate, attachments AttachmentStore, logger zerolog.Logger) ExerciseAdminService {
	return &exerciseAdminService{
		exercises:   exercises,
		validator:   validate,
		attachments: attachments,
		logger:      logger.With().Str("component", "exercise_admin_service").Logger(),
		now:         time.Now,
	}
}

func (s *exerciseAdminService) Create(ctx context.Context, payload dto.ExerciseCreateRequest, attachment *multipart.FileHeader) (dto.ExerciseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExerciseResponse{}, configurationErrorFrom(err)
	}

	exercise := exerciseFromRequest(payload)
	if exercise.Kind == models.ExerciseKindAttachment && attachment == nil {
		return dto.ExerciseResponse{}, ErrAttachmentRequired
	}

	if err := s.resolveRelations(ctx, &exercise); err != nil {
		return dto.ExerciseResponse{}, err
	}
	if err := ValidateExercise(exercise); err != nil {
		return dto.ExerciseResponse{}, err
	}

	if err := s.exercises.Create(ctx, &exercise); err != nil {
		return dto.ExerciseResponse{}, fmt.Errorf("failed to create exercise: %w", err)
	}

	if attachment != nil && exercise.Kind == models.ExerciseKindAttachment {
		if err := s.storeAttachment(ctx, &exercise, attachment); err != nil {
			if delErr := s.exercises.Delete(ctx, exercise.ID); delErr != nil {
				s.logger.Error().Err(delErr).Uint("exercise_id", exercise.ID).Msg("failed to roll back exercise")
			}
			return dto.ExerciseResponse{}, err
		}
	}

	s.logger.Info().Uint("exercise_id", exercise.ID).Str("kind", string(exercise.Kind)).Msg("exercise created")
	return dto.NewExerciseResponse(exercise, s.now()), nil
}

func (s *exerciseAdminService) Delete(ctx context.Context, id uint) error {
	exercise, err := s.exercises.GetByID(ctx, id)
	if err != nil {
		return translateNotFound(err, ErrExerciseNotFound)
	}

	if err := s.exercises.Delete(ctx, id); err != nil {
		return translateNotFound(err, ErrExerciseNotFound)
	}

	if exercise.AttachmentPublicID != "" && s.attachments != nil {
		if err := s.attachments.Delete(ctx, exercise.AttachmentPublicID); err != nil {
			s.logger.Warn().Err(err).Uint("exercise_id", id).Msg("failed to remove exercise attachment")
		}
	}

	s.logger.Info().Uint("exercise_id", id).Msg("exercise deleted")
	return nil
}

func (s *exerciseAdminService) resolveRelations(ctx context.Context, exercise *models.Exercise) error {
	module, err := s.exercises.GetModule(ctx, exercise.CourseModuleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ConfigurationError{Field: "course_module_id", Message: "course module does not exist"}
		}
		return err
	}
	exercise.CourseModule = module

	category, err := s.exercises.GetCategory(ctx, exercise.CategoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ConfigurationError{Field: "category_id", Message: "category does not exist"}
		}
		return err
	}
	exercise.Category = category

	if exercise.ParentID != nil {
		parent, err := s.exercises.GetByID(ctx, *exercise.ParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ConfigurationError{Field: "parent_id", Message: "parent does not exist"}
			}
			return err
		}
		exercise.Parent = &parent
	}

	if exercise.LTIServiceID != nil {
		ltiService, err := s.exercises.GetLTIService(ctx, *exercise.LTIServiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ConfigurationError{Field: "lti_service_id", Message: "lti service does not exist"}
			}
			return err
		}
		exercise.LTIService = &ltiService
	}

	return nil
}

func (s *exerciseAdminService) storeAttachment(ctx context.Context, exercise *models.Exercise, header *multipart.FileHeader) error {
	if s.attachments == nil {
		return errors.New("attachment storage is not configured")
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	dir := AttachmentDir(exercise.CourseModule.CourseInstanceID, exercise.ID)
	stored, err := s.attachments.Upload(ctx, dir, header.Filename, file)
	if err != nil {
		return err
	}

	name := cloudinary.SafeName(header.Filename)
	if err := s.exercises.SaveAttachment(ctx, exercise.ID, stored.URL, stored.PublicID, name); err != nil {
		if delErr := s.attachments.Delete(ctx, stored.PublicID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("public_id", stored.PublicID).Msg("failed to remove orphaned attachment")
		}
		return fmt.Errorf("failed to save attachment: %w", err)
	}

	exercise.AttachmentURL = stored.URL
	exercise.AttachmentPublicID = stored.PublicID
	exercise.AttachmentName = name
	return nil
}

// AttachmentDir is the storage folder of an exercise attachment.
func AttachmentDir(courseInstanceID, exerciseID uint) string {
	return fmt.Sprintf("course_instance_%d/exercise_attachment_%d", courseInstanceID, exerciseID)
}

// ValidateExercise checks an exercise whose module, category, parent and LTI
// service are loaded.
func ValidateExercise(exercise models.Exercise) error {
	instanceID := exercise.CourseModule.CourseInstanceID
	if exercise.Category.ID != 0 && exercise.Category.CourseInstanceID != instanceID {
		return &DomainMismatchError{Field: "category", Message: "category belongs to another course instance"}
	}
	if exercise.Parent != nil {
		if exercise.ID != 0 && exercise.Parent.ID == exercise.ID {
			return &DomainMismatchError{Field: "parent", Message: "cannot be its own parent"}
		}
		if exercise.Parent.CourseModuleID != exercise.CourseModuleID {
			return &DomainMismatchError{Field: "parent", Message: "parent belongs to another course module"}
		}
	}

	if !dto.ValidExerciseURL(exercise.URL) {
		return &ConfigurationError{Field: "url", Message: "may contain only letters, digits, underscores, hyphens and dots"}
	}
	for _, reserved := range models.ReservedExerciseURLs {
		if exercise.URL == reserved {
			return &ConfigurationError{Field: "url", Message: fmt.Sprintf("%q is a reserved url identifier", reserved)}
		}
	}

	if exercise.PointsToPass > exercise.MaxPoints {
		return &ConfigurationError{Field: "points_to_pass", Message: "must not exceed max points"}
	}
	if exercise.MinGroupSize > exercise.MaxGroupSize {
		return &ConfigurationError{Field: "min_group_size", Message: "must not exceed max group size"}
	}

	if exercise.LTIService != nil && exercise.ServiceURL != "" {
		if hostOf(exercise.LTIService.URL) != hostOf(exercise.ServiceURL) {
			return &ConfigurationError{Field: "service_url", Message: "must be on the domain of the lti service"}
		}
	}

	return nil
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func exerciseFromRequest(payload dto.ExerciseCreateRequest) models.Exercise {
	kind := models.ExerciseKind(payload.Kind)
	if kind == "" {
		kind = models.ExerciseKindDefault
	}
	status := models.ExerciseStatus(payload.Status)
	if status == "" {
		status = models.ExerciseStatusReady
	}
	order := payload.Order
	if order == 0 {
		order = 1
	}

	exercise := models.Exercise{
		Kind:                  kind,
		Status:                status,
		CourseModuleID:        payload.CourseModuleID,
		CategoryID:            payload.CategoryID,
		ParentID:              payload.ParentID,
		Order:                 order,
		URL:                   strings.TrimSpace(payload.URL),
		Name:                  strings.TrimSpace(payload.Name),
		Description:           payload.Description,
		ServiceURL:            strings.TrimSpace(payload.ServiceURL),
		ModelAnswers:          payload.ModelAnswers,
		AllowAssistantViewing: payload.AllowAssistantViewing,
		AllowAssistantGrading: payload.AllowAssistantGrading,
		MinGroupSize:          payload.MinGroupSize,
		MaxGroupSize:          payload.MaxGroupSize,
		MaxSubmissions:        payload.MaxSubmissions,
		MaxPoints:             payload.MaxPoints,
		PointsToPass:          payload.PointsToPass,
		FilesToSubmit:         strings.TrimSpace(payload.FilesToSubmit),
	}
	if payload.ExerciseInfo != nil {
		exercise.ExerciseInfo = datatypes.JSONMap(payload.ExerciseInfo)
	}

	switch kind {
	case models.ExerciseKindLTI:
		exercise.LTIServiceID = payload.LTIServiceID
		exercise.LTIContextID = payload.LTIContextID
		exercise.LTIResourceLinkID = payload.LTIResourceLinkID
		exercise.LTIResourceLinkTitle = payload.LTIResourceLinkTitle
		exercise.APlusGetAndPost = payload.APlusGetAndPost
	case models.ExerciseKindStatic:
		exercise.ExercisePageContent = payload.ExercisePageContent
		exercise.SubmissionPageContent = payload.SubmissionPageContent
	}

	return exercise
}

// configurationErrorFrom turns the first failed validation rule into a ConfigurationError.
func configurationErrorFrom(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err
	}

	first := validationErrors[0]
	message := fmt.Sprintf("failed %q rule", first.Tag())
	switch first.Tag() {
	case "ltefield":
		message = fmt.Sprintf("must not exceed %s", first.Param())
	case "exercise_url":
		message = "may contain only letters, digits, underscores, hyphens and dots"
	case "required", "required_if":
		message = "is required"
	}
	return &ConfigurationError{Field: first.Field(), Message: message}
}
