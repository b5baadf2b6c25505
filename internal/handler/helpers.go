package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/middleware"
	"github.com/noah-isme/gema-exercise-api/internal/service"
	"github.com/noah-isme/gema-exercise-api/internal/utils"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

// maxSubmittedFileBytes bounds one uploaded file of a submission.
const maxSubmittedFileBytes = 16 << 20

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(parsed), nil
}

func viewerFromCtx(c *fiber.Ctx) service.Viewer {
	identity := middleware.IdentityFromCtx(c)
	return service.Viewer{ProfileID: identity.ProfileID, Role: identity.Role}
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		logger = base.With().Str("correlation_id", correlation).Logger()
	}
	return &logger
}

// submittedForm collects the posted fields and files of a submission, whether sent
// url-encoded or as multipart.
func submittedForm(c *fiber.Ctx) (url.Values, []exercisepage.Attachment, error) {
	data := url.Values{}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		for key, values := range form.Value {
			for _, value := range values {
				data.Add(key, value)
			}
		}

		files := make([]exercisepage.Attachment, 0, len(form.File))
		for field, headers := range form.File {
			for _, header := range headers {
				attachment, err := readAttachment(field, header)
				if err != nil {
					return nil, nil, err
				}
				files = append(files, attachment)
			}
		}
		return data, files, nil
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		data.Add(string(key), string(value))
	})
	return data, nil, nil
}

func readAttachment(field string, header *multipart.FileHeader) (exercisepage.Attachment, error) {
	if header.Size > maxSubmittedFileBytes {
		return exercisepage.Attachment{}, fmt.Errorf("file %s is too large", header.Filename)
	}

	file, err := header.Open()
	if err != nil {
		return exercisepage.Attachment{}, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxSubmittedFileBytes))
	if err != nil {
		return exercisepage.Attachment{}, fmt.Errorf("failed to read %s: %w", header.Filename, err)
	}

	return exercisepage.Attachment{
		Field:       field,
		Filename:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Data:        content,
	}, nil
}

// writeServiceError maps service errors to status codes.
func writeServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var (
		validationErrors validator.ValidationErrors
		configErr        *service.ConfigurationError
		mismatchErr      *service.DomainMismatchError
		deniedErr        *service.DeniedError
		fetchErr         *exercisepage.FetchError
	)

	switch {
	case errors.Is(err, service.ErrExerciseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrInvalidAsyncToken):
		return utils.SendError(c, fiber.StatusForbidden, "invalid token")
	case errors.As(err, &deniedErr):
		return utils.Fail(c, fiber.StatusForbidden, "submission not allowed", deniedErr.Warnings)
	case errors.Is(err, service.ErrAttachmentRequired):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"field": "attachment"})
	case errors.As(err, &configErr):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid exercise configuration", fiber.Map{"field": configErr.Field, "message": configErr.Message})
	case errors.As(err, &mismatchErr):
		return utils.Fail(c, fiber.StatusBadRequest, "exercise links objects of another course", fiber.Map{"field": mismatchErr.Field, "message": mismatchErr.Message})
	case errors.As(err, &fetchErr):
		requestLogger(logger, c).Warn().Err(err).Str("url", fetchErr.URL).Msg("exercise service unavailable")
		return utils.SendError(c, fiber.StatusBadGateway, "exercise service unavailable")
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request", validationErrors.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
