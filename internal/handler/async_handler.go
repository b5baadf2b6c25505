package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/service"
)

// AsyncHandler receives grading results posted back by exercise services. The
// callers are machines, so responses use the flat AsyncResponse shape.
type AsyncHandler struct {
	service service.AsyncGradingService
	logger  zerolog.Logger
}

// NewAsyncHandler constructs the grader callback handler.
func NewAsyncHandler(service service.AsyncGradingService, logger zerolog.Logger) *AsyncHandler {
	return &AsyncHandler{
		service: service,
		logger:  logger.With().Str("component", "async_handler").Logger(),
	}
}

// Register mounts the callbacks. They authenticate through the token in the path.
func (h *AsyncHandler) Register(router fiber.Router) {
	router.Post("/new/:exercise_id/:student_ids/:hash", h.newSubmission)
	router.Post("/grade/:submission_id/:hash", h.grade)
}

func (h *AsyncHandler) newSubmission(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "exercise_id")
	if err != nil {
		return asyncFailure(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AsyncGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return asyncFailure(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.New(requestContext(c), exerciseID, c.Params("student_ids"), c.Params("hash"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exercise_id", exerciseID).
		Uint("submission_id", submission.ID).
		Str("status", string(submission.Status)).
		Msg("async submission recorded")
	return c.JSON(dto.AsyncResponse{Success: true, Errors: []string{}})
}

func (h *AsyncHandler) grade(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "submission_id")
	if err != nil {
		return asyncFailure(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AsyncGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return asyncFailure(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.Grade(requestContext(c), submissionID, c.Params("hash"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("submission_id", submission.ID).
		Str("status", string(submission.Status)).
		Msg("async grade recorded")
	return c.JSON(dto.AsyncResponse{Success: true, Errors: []string{}})
}

func (h *AsyncHandler) handleError(c *fiber.Ctx, err error) error {
	var (
		validationErrors validator.ValidationErrors
		deniedErr        *service.DeniedError
	)

	switch {
	case errors.Is(err, service.ErrInvalidAsyncToken):
		return asyncFailure(c, fiber.StatusForbidden, "invalid hash")
	case errors.Is(err, service.ErrExerciseNotFound):
		return asyncFailure(c, fiber.StatusNotFound, "exercise not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return asyncFailure(c, fiber.StatusNotFound, "submission not found")
	case errors.As(err, &deniedErr):
		return asyncFailure(c, fiber.StatusBadRequest, deniedErr.Warnings...)
	case errors.As(err, &validationErrors):
		messages := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			messages = append(messages, fieldErr.Field()+": "+fieldErr.Tag())
		}
		return asyncFailure(c, fiber.StatusBadRequest, messages...)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("async grading failed")
		return asyncFailure(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func asyncFailure(c *fiber.Ctx, status int, messages ...string) error {
	if messages == nil {
		messages = []string{}
	}
	return c.Status(status).JSON(dto.AsyncResponse{Success: false, Errors: messages})
}
