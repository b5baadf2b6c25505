package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/observability"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

// EventPublisher delivers submission events. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// SubmissionEvent is the payload published when a submission is created or graded.
type SubmissionEvent struct {
	SubmissionID uint                    `json:"submission_id"`
	ExerciseID   uint                    `json:"exercise_id"`
	Submitters   []uint                  `json:"submitters"`
	Status       models.SubmissionStatus `json:"status"`
	Grade        int                     `json:"grade"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// SubmissionService accepts student submissions and forwards them for grading.
type SubmissionService interface {
	Submit(ctx context.Context, exerciseID uint, viewer Viewer, data url.Values, files []exercisepage.Attachment) (dto.SubmitResponse, error)
}

// SubmissionServiceDeps groups the collaborators of the submission service.
type SubmissionServiceDeps struct {
	Exercises     repository.ExerciseRepository
	Courses       repository.CourseRepository
	Submissions   repository.SubmissionRepository
	Deviations    repository.DeviationRepository
	Students      repository.StudentRepository
	Dispatcher    GradingDispatcher
	Publisher     EventPublisher
	EventsSubject string
}

type submissionService struct {
	exercises   repository.ExerciseRepository
	submissions repository.SubmissionRepository
	students    repository.StudentRepository
	dispatcher  GradingDispatcher
	reader      *eligibilityReader
	events      *eventEmitter
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionServiceDeps, logger zerolog.Logger) SubmissionService {
	componentLogger := logger.With().Str("component", "submission_service").Logger()
	return &submissionService{
		exercises:   deps.Exercises,
		submissions: deps.Submissions,
		students:    deps.Students,
		dispatcher:  deps.Dispatcher,
		reader:      newEligibilityReader(deps.Courses, deps.Submissions, deps.Deviations, componentLogger),
		events:      newEventEmitter(deps.Publisher, deps.EventsSubject, componentLogger),
		tracer:      otel.Tracer("github.com/noah-isme/gema-exercise-api/internal/service/submission"),
		logger:      componentLogger,
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, exerciseID uint, viewer Viewer, data url.Values, files []exercisepage.Attachment) (dto.SubmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.Int64("exercise.id", int64(exerciseID)),
		attribute.Int64("viewer.profile_id", int64(viewer.ProfileID)),
	))
	defer span.End()

	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmitResponse{}, translateNotFound(err, ErrExerciseNotFound)
	}

	now := s.now()
	result, err := s.reader.evaluate(ctx, exercise, viewer, now)
	if err != nil {
		span.RecordError(err)
		return dto.SubmitResponse{}, err
	}

	response := dto.SubmitResponse{Eligibility: newEligibilityResponse(exercise.ID, result.Decision)}
	if !result.Allowed {
		span.SetAttributes(attribute.Bool("submission.denied", true))
		return response, nil
	}

	submission := models.Submission{
		ExerciseID:     exercise.ID,
		Hash:           uuid.NewString(),
		Status:         models.SubmissionStatusInitialized,
		SubmissionData: encodeSubmissionData(data),
		SubmissionTime: now,
		Submitters:     studentsFromIDs(result.Submitters),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_create_failed")
		return dto.SubmitResponse{}, err
	}
	s.events.publish("submission.created", submission, now)

	ordinal, err := s.submissions.OrdinalNumber(ctx, submission)
	if err != nil {
		span.RecordError(err)
		return dto.SubmitResponse{}, err
	}

	page, gradeErr := s.dispatcher.Grade(ctx, grading.GradeRequest{
		Exercise:   exercise,
		Submission: submission,
		Ordinal:    ordinal,
		Submitter:  loadProfile(ctx, s.students, s.logger, viewer.ProfileID, result.RequesterStaff),
		Data:       data,
		Files:      files,
	})

	outcome := applyGradingPage(&submission, exercise, page, gradeErr, s.now())
	observability.GradingDispatches().WithLabelValues(kindLabel(exercise.Kind), outcome).Inc()
	if gradeErr != nil {
		span.RecordError(gradeErr)
		s.logger.Warn().Err(gradeErr).Uint("submission_id", submission.ID).Msg("grading dispatch failed")
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmitResponse{}, err
	}
	if submission.Status == models.SubmissionStatusReady {
		s.events.publish("submission.graded", submission, s.now())
	}

	submissionResponse := dto.NewSubmissionResponse(submission, ordinal)
	response.Submission = &submissionResponse
	return response, nil
}

// applyGradingPage copies the grader's verdict onto the submission and returns the
// dispatch outcome label.
func applyGradingPage(submission *models.Submission, exercise models.Exercise, page exercisepage.Page, gradeErr error, now time.Time) string {
	if gradeErr != nil {
		submission.Status = models.SubmissionStatusError
		submission.Feedback = gradeErr.Error()
		return "error"
	}

	submission.Feedback = page.Content
	switch {
	case page.IsAccepted && page.IsWaiting:
		submission.Status = models.SubmissionStatusWaiting
		return "waiting"
	case page.IsAccepted:
		submission.ServicePoints = page.Points
		submission.ServiceMaxPoints = page.MaxPoints
		submission.Grade = grading.ScalePoints(page.Points, page.MaxPoints, exercise.MaxPoints)
		submission.Status = models.SubmissionStatusReady
		submission.GradingTime = &now
		return "graded"
	case page.IsRejected:
		submission.Status = models.SubmissionStatusRejected
		return "rejected"
	default:
		submission.Status = models.SubmissionStatusError
		return "error"
	}
}

func encodeSubmissionData(data url.Values) datatypes.JSON {
	if len(data) == 0 {
		return datatypes.JSON("{}")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(encoded)
}

func studentsFromIDs(ids []uint) []models.Student {
	students := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		students = append(students, models.Student{ID: id})
	}
	return students
}

func translateNotFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// eventEmitter publishes submission events; a nil publisher disables it.
type eventEmitter struct {
	publisher EventPublisher
	subject   string
	logger    zerolog.Logger
}

func newEventEmitter(publisher EventPublisher, subject string, logger zerolog.Logger) *eventEmitter {
	if subject == "" {
		subject = "exercises"
	}
	return &eventEmitter{publisher: publisher, subject: subject, logger: logger}
}

func (e *eventEmitter) publish(name string, submission models.Submission, at time.Time) {
	if e == nil || e.publisher == nil {
		return
	}

	payload, err := json.Marshal(SubmissionEvent{
		SubmissionID: submission.ID,
		ExerciseID:   submission.ExerciseID,
		Submitters:   submission.SubmitterIDs(),
		Status:       submission.Status,
		Grade:        submission.Grade,
		OccurredAt:   at.UTC(),
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to encode submission event")
		return
	}

	subject := e.subject + "." + name
	if err := e.publisher.Publish(subject, payload); err != nil {
		e.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish submission event")
	}
}
