package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/observability"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
)

// AsyncGradingService handles the callbacks grading services make with the
// tokens embedded in fetch and grade URLs.
type AsyncGradingService interface {
	New(ctx context.Context, exerciseID uint, studentString, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, submissionID uint, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error)
}

// AsyncGradingServiceDeps groups the collaborators of the async grading service.
type AsyncGradingServiceDeps struct {
	Exercises     repository.ExerciseRepository
	Courses       repository.CourseRepository
	Submissions   repository.SubmissionRepository
	Deviations    repository.DeviationRepository
	Students      repository.StudentRepository
	Signer        *grading.Signer
	Validator     *validator.Validate
	Publisher     EventPublisher
	EventsSubject string
}

type asyncGradingService struct {
	exercises   repository.ExerciseRepository
	submissions repository.SubmissionRepository
	students    repository.StudentRepository
	signer      *grading.Signer
	validator   *validator.Validate
	reader      *eligibilityReader
	events      *eventEmitter
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAsyncGradingService constructs the async callback service.
func NewAsyncGradingService(deps AsyncGradingServiceDeps, logger zerolog.Logger) AsyncGradingService {
	componentLogger := logger.With().Str("component", "async_grading_service").Logger()
	return &asyncGradingService{
		exercises:   deps.Exercises,
		submissions: deps.Submissions,
		students:    deps.Students,
		signer:      deps.Signer,
		validator:   deps.Validator,
		reader:      newEligibilityReader(deps.Courses, deps.Submissions, deps.Deviations, componentLogger),
		events:      newEventEmitter(deps.Publisher, deps.EventsSubject, componentLogger),
		logger:      componentLogger,
		now:         time.Now,
	}
}

func (s *asyncGradingService) New(ctx context.Context, exerciseID uint, studentString, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error) {
	if err := s.validate(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	ids, err := grading.ParseStudentString(studentString)
	if err != nil || len(ids) == 0 {
		return dto.SubmissionResponse{}, ErrInvalidAsyncToken
	}
	if !s.signer.Verify(grading.ExerciseCanonical(ids, exerciseID), token) {
		s.logger.Warn().Uint("exercise_id", exerciseID).Str("students", studentString).Msg("rejected async submission token")
		return dto.SubmissionResponse{}, ErrInvalidAsyncToken
	}

	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		return dto.SubmissionResponse{}, translateNotFound(err, ErrExerciseNotFound)
	}

	viewer, err := s.viewerFor(ctx, ids[0])
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	result, err := s.reader.evaluate(ctx, exercise, viewer, now)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !result.Allowed {
		return dto.SubmissionResponse{}, &DeniedError{Warnings: result.Warnings}
	}

	submission := models.Submission{
		ExerciseID:     exercise.ID,
		Hash:           uuid.NewString(),
		Status:         models.SubmissionStatusInitialized,
		SubmissionData: datatypes.JSON("{}"),
		SubmissionTime: now,
		Submitters:     studentsFromIDs(result.Submitters),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to store async submission: %w", err)
	}

	return s.record(ctx, exercise, submission, payload)
}

// viewerFor rebuilds the identity the token was issued to. Callbacks carry no
// bearer token, so the platform role comes from the stored profile.
func (s *asyncGradingService) viewerFor(ctx context.Context, profileID uint) (Viewer, error) {
	viewer := Viewer{ProfileID: profileID}
	if s.students == nil {
		return viewer, nil
	}

	student, err := s.students.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return viewer, nil
		}
		return Viewer{}, fmt.Errorf("failed to load submitter profile: %w", err)
	}
	viewer.Role = student.Role
	return viewer, nil
}

func (s *asyncGradingService) Grade(ctx context.Context, submissionID uint, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error) {
	if err := s.validate(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, translateNotFound(err, ErrSubmissionNotFound)
	}
	if !s.signer.Verify(grading.SubmissionCanonical(submission.ID, submission.Hash), token) {
		s.logger.Warn().Uint("submission_id", submissionID).Msg("rejected async grading token")
		return dto.SubmissionResponse{}, ErrInvalidAsyncToken
	}

	return s.record(ctx, submission.Exercise, submission, payload)
}

func (s *asyncGradingService) record(ctx context.Context, exercise models.Exercise, submission models.Submission, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error) {
	now := s.now()
	submission.Feedback = payload.Feedback
	submission.GradingTime = &now
	if payload.GradingPayload != "" {
		submission.SubmissionData = mergeGradingPayload(submission.SubmissionData, payload.GradingPayload)
	}

	outcome := "graded"
	if payload.Error {
		submission.Status = models.SubmissionStatusError
		outcome = "error"
	} else {
		submission.ServicePoints = payload.Points
		submission.ServiceMaxPoints = payload.MaxPoints
		submission.Grade = grading.ScalePoints(payload.Points, payload.MaxPoints, exercise.MaxPoints)
		submission.Status = models.SubmissionStatusReady
	}
	observability.GradingDispatches().WithLabelValues("async", outcome).Inc()

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to store async grade: %w", err)
	}
	if submission.Status == models.SubmissionStatusReady {
		s.events.publish("submission.graded", submission, now)
	}

	ordinal, err := s.submissions.OrdinalNumber(ctx, submission)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("exercise_id", exercise.ID).
		Int("grade", submission.Grade).
		Msg("async grade recorded")

	return dto.NewSubmissionResponse(submission, ordinal), nil
}

func (s *asyncGradingService) validate(payload dto.AsyncGradeRequest) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Struct(payload)
}

// mergeGradingPayload stores the grader's opaque payload next to the submitted form.
func mergeGradingPayload(existing datatypes.JSON, gradingPayload string) datatypes.JSON {
	doc := map[string]interface{}{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &doc)
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(gradingPayload), &decoded); err == nil {
		doc["grading_payload"] = decoded
	} else {
		doc["grading_payload"] = gradingPayload
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return existing
	}
	return datatypes.JSON(encoded)
}
