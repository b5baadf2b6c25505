package handler

import (
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/service"
	"github.com/noah-isme/gema-exercise-api/internal/utils"
)

// ExerciseAdminHandler lets course staff create and delete exercises.
type ExerciseAdminHandler struct {
	service service.ExerciseAdminService
	logger  zerolog.Logger
}

// NewExerciseAdminHandler constructs the handler.
func NewExerciseAdminHandler(service service.ExerciseAdminService, logger zerolog.Logger) *ExerciseAdminHandler {
	return &ExerciseAdminHandler{
		service: service,
		logger:  logger.With().Str("component", "exercise_admin_handler").Logger(),
	}
}

// Register mounts the routes behind the staff guard.
func (h *ExerciseAdminHandler) Register(router fiber.Router, staff fiber.Handler) {
	staff = orNext(staff)
	router.Post("", staff, h.create)
	router.Delete("/:id", staff, h.delete)
}

func (h *ExerciseAdminHandler) create(c *fiber.Ctx) error {
	var payload dto.ExerciseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	var attachment *multipart.FileHeader
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if raw := c.FormValue("exercise_info"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &payload.ExerciseInfo); err != nil {
				return utils.Fail(c, fiber.StatusBadRequest, "invalid request", fiber.Map{"field": "exercise_info"})
			}
		}

		form, err := c.MultipartForm()
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid multipart form")
		}
		if files := form.File["attachment"]; len(files) > 0 {
			attachment = files[0]
		}
	}

	exercise, err := h.service.Create(requestContext(c), payload, attachment)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Uint("exercise_id", exercise.ID).Str("kind", string(exercise.Kind)).Msg("exercise created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exercise created", exercise)
}

func (h *ExerciseAdminHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "exercise deleted", fiber.Map{"id": id})
}
