package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/service"
	"github.com/noah-isme/gema-exercise-api/internal/utils"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

// ExerciseGuards are the middlewares individual exercise routes sit behind.
type ExerciseGuards struct {
	Authenticated fiber.Handler
	Staff         fiber.Handler
	SubmitLimit   fiber.Handler
}

// ExerciseHandler serves exercise pages, eligibility checks and submissions.
type ExerciseHandler struct {
	exercises   service.ExerciseService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewExerciseHandler constructs an exercise handler.
func NewExerciseHandler(exercises service.ExerciseService, submissions service.SubmissionService, logger zerolog.Logger) *ExerciseHandler {
	return &ExerciseHandler{
		exercises:   exercises,
		submissions: submissions,
		logger:      logger.With().Str("component", "exercise_handler").Logger(),
	}
}

// Register mounts the exercise routes. The router is expected to resolve an
// optional identity already.
func (h *ExerciseHandler) Register(router fiber.Router, guards ExerciseGuards) {
	authenticated := orNext(guards.Authenticated)
	staff := orNext(guards.Staff)
	submitLimit := orNext(guards.SubmitLimit)

	router.Get("/:id", h.load)
	router.Get("/:id/eligibility", authenticated, h.eligibility)
	router.Post("/:id/submissions", authenticated, submitLimit, h.submit)
	router.Get("/:id/stats", staff, h.stats)
}

// RegisterCourseInstances mounts the per-instance lookups.
func (h *ExerciseHandler) RegisterCourseInstances(router fiber.Router) {
	router.Get("/:id/enrollment-exercise", h.enrollmentExercise)
}

func (h *ExerciseHandler) load(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.exercises.Load(requestContext(c), id, viewerFromCtx(c))
	if err != nil {
		var fetchErr *exercisepage.FetchError
		if errors.As(err, &fetchErr) {
			requestLogger(h.logger, c).Warn().Err(err).Uint("exercise_id", id).Msg("exercise page could not be loaded")
			return utils.Fail(c, fiber.StatusBadGateway, "exercise service unavailable", response)
		}
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "exercise loaded", response)
}

func (h *ExerciseHandler) eligibility(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	decision, err := h.exercises.Eligibility(requestContext(c), id, viewerFromCtx(c))
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "eligibility evaluated", decision)
}

func (h *ExerciseHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	data, files, err := submittedForm(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.submissions.Submit(requestContext(c), id, viewerFromCtx(c), data, files)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	if result.Submission == nil {
		return utils.SendSuccess(c, "submission not allowed", result)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", result)
}

func (h *ExerciseHandler) stats(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.exercises.SubmitterCount(requestContext(c), id)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.OK(c, stats, "exercise statistics retrieved", fiber.Map{"cached": stats.Cached})
}

func (h *ExerciseHandler) enrollmentExercise(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exercise, err := h.exercises.EnrollmentExercise(requestContext(c), id)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "enrollment exercise retrieved", exercise)
}

func orNext(handler fiber.Handler) fiber.Handler {
	if handler != nil {
		return handler
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}
