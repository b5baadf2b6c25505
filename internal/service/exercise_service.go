package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/observability"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

// GradingDispatcher loads and grades exercises according to their kind.
type GradingDispatcher interface {
	Load(ctx context.Context, req grading.LoadRequest) (exercisepage.Page, error)
	Grade(ctx context.Context, req grading.GradeRequest) (exercisepage.Page, error)
}

// ExerciseService answers questions about a single exercise for a viewer.
type ExerciseService interface {
	Eligibility(ctx context.Context, exerciseID uint, viewer Viewer) (dto.EligibilityResponse, error)
	Load(ctx context.Context, exerciseID uint, viewer Viewer) (dto.ExercisePageResponse, error)
	SubmitterCount(ctx context.Context, exerciseID uint) (dto.ExerciseStatsResponse, error)
	EnrollmentExercise(ctx context.Context, courseInstanceID uint) (dto.ExerciseSummary, error)
}

// ExerciseServiceDeps groups the collaborators of the exercise service.
type ExerciseServiceDeps struct {
	Exercises   repository.ExerciseRepository
	Courses     repository.CourseRepository
	Submissions repository.SubmissionRepository
	Deviations  repository.DeviationRepository
	Students    repository.StudentRepository
	Dispatcher  GradingDispatcher
	Cache       *redis.Client
	StatsTTL    time.Duration
}

type exerciseService struct {
	exercises   repository.ExerciseRepository
	submissions repository.SubmissionRepository
	students    repository.StudentRepository
	dispatcher  GradingDispatcher
	reader      *eligibilityReader
	cache       *redis.Client
	statsTTL    time.Duration
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewExerciseService builds the exercise service.
func NewExerciseService(deps ExerciseServiceDeps, logger zerolog.Logger) ExerciseService {
	ttl := deps.StatsTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	componentLogger := logger.With().Str("component", "exercise_service").Logger()
	return &exerciseService{
		exercises:   deps.Exercises,
		submissions: deps.Submissions,
		students:    deps.Students,
		dispatcher:  deps.Dispatcher,
		reader:      newEligibilityReader(deps.Courses, deps.Submissions, deps.Deviations, componentLogger),
		cache:       deps.Cache,
		statsTTL:    ttl,
		tracer:      otel.Tracer("github.com/noah-isme/gema-exercise-api/internal/service/exercise"),
		logger:      componentLogger,
		now:         time.Now,
	}
}

func (s *exerciseService) getExercise(ctx context.Context, id uint) (models.Exercise, error) {
	exercise, err := s.exercises.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exercise{}, ErrExerciseNotFound
		}
		return models.Exercise{}, err
	}
	return exercise, nil
}

func (s *exerciseService) Eligibility(ctx context.Context, exerciseID uint, viewer Viewer) (dto.EligibilityResponse, error) {
	exercise, err := s.getExercise(ctx, exerciseID)
	if err != nil {
		return dto.EligibilityResponse{}, err
	}

	result, err := s.reader.evaluate(ctx, exercise, viewer, s.now())
	if err != nil {
		return dto.EligibilityResponse{}, err
	}

	return newEligibilityResponse(exercise.ID, result.Decision), nil
}

func (s *exerciseService) Load(ctx context.Context, exerciseID uint, viewer Viewer) (dto.ExercisePageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exercise.load", trace.WithAttributes(
		attribute.Int64("exercise.id", int64(exerciseID)),
	))
	defer span.End()

	exercise, err := s.getExercise(ctx, exerciseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exercise_lookup_failed")
		return dto.ExercisePageResponse{}, err
	}
	span.SetAttributes(attribute.String("exercise.kind", string(exercise.Kind)))

	now := s.now()
	response := dto.ExercisePageResponse{Exercise: dto.NewExerciseSummary(exercise, now)}
	request := grading.LoadRequest{Exercise: exercise}

	if viewer.Authenticated() {
		if err := s.exercises.RecordDisplay(ctx, exercise.ID, viewer.ProfileID); err != nil {
			s.logger.Warn().Err(err).Uint("exercise_id", exercise.ID).Msg("failed to record exercise display")
		}

		result, err := s.reader.evaluate(ctx, exercise, viewer, now)
		if err != nil {
			span.RecordError(err)
			return dto.ExercisePageResponse{}, err
		}
		eligibilityResponse := newEligibilityResponse(exercise.ID, result.Decision)
		response.Eligibility = &eligibilityResponse

		prior, err := s.submissions.CountForStudent(ctx, repository.SubmissionFilter{
			ExerciseID: exercise.ID,
			StudentID:  viewer.ProfileID,
		})
		if err != nil {
			span.RecordError(err)
			return dto.ExercisePageResponse{}, err
		}

		request.Requester = s.profile(ctx, viewer.ProfileID, result.RequesterStaff)
		request.Fetch = grading.FetchRequest{
			RequesterID:      viewer.ProfileID,
			Submitters:       result.Submitters,
			PriorSubmissions: int(prior),
		}
	}

	start := time.Now()
	page, err := s.dispatcher.Load(ctx, request)
	observability.ExerciseFetchDuration().WithLabelValues(kindLabel(exercise.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exercise_load_failed")
		s.logger.Error().Err(err).Uint("exercise_id", exercise.ID).Msg("failed to load exercise page")
		return response, err
	}

	response.Page = page
	return response, nil
}

func (s *exerciseService) SubmitterCount(ctx context.Context, exerciseID uint) (dto.ExerciseStatsResponse, error) {
	cacheKey := fmt.Sprintf("exercise:%d:submitters", exerciseID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			if total, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				s.logger.Debug().Uint("exercise_id", exerciseID).Msg("submitter count cache hit")
				return dto.ExerciseStatsResponse{ExerciseID: exerciseID, TotalSubmitters: total, Cached: true}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read submitter count cache")
		}
	}

	exercise, err := s.getExercise(ctx, exerciseID)
	if err != nil {
		return dto.ExerciseStatsResponse{}, err
	}

	total, err := s.submissions.TotalSubmitterCount(ctx, exercise.ID)
	if err != nil {
		return dto.ExerciseStatsResponse{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, strconv.FormatInt(total, 10), s.statsTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store submitter count cache")
		}
	}

	return dto.ExerciseStatsResponse{ExerciseID: exercise.ID, TotalSubmitters: total}, nil
}

func (s *exerciseService) EnrollmentExercise(ctx context.Context, courseInstanceID uint) (dto.ExerciseSummary, error) {
	exercise, err := s.exercises.FindEnrollmentExercise(ctx, courseInstanceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExerciseSummary{}, ErrExerciseNotFound
		}
		return dto.ExerciseSummary{}, err
	}
	return dto.NewExerciseSummary(exercise, s.now()), nil
}

func (s *exerciseService) profile(ctx context.Context, id uint, staff bool) grading.Profile {
	return loadProfile(ctx, s.students, s.logger, id, staff)
}

func loadProfile(ctx context.Context, students repository.StudentRepository, logger zerolog.Logger, id uint, staff bool) grading.Profile {
	profile := grading.Profile{ID: id, Staff: staff}
	student, err := students.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Err(err).Uint("profile_id", id).Msg("failed to load profile")
		}
		return profile
	}

	profile.Name = student.Name
	profile.Email = student.Email
	profile.Language = student.Language
	return profile
}

func kindLabel(kind models.ExerciseKind) string {
	if kind == "" {
		return string(models.ExerciseKindDefault)
	}
	return string(kind)
}
