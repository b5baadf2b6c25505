package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the JSON envelope every API endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Message string      `json:"message"`
}

// ErrorPage is the body of 403, 404 and 500 responses. The language toggle stays
// visible on error pages so a visitor can switch language without a working page.
type ErrorPage struct {
	Status             int    `json:"status"`
	Title              string `json:"title"`
	ShowLanguageToggle bool   `json:"show_language_toggle"`
}

// SendSuccess sends a 200 response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// OK sends a 200 response carrying optional metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	if message == "" {
		message = "success"
	}

	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail sends an error response with optional structured details. Not found,
// forbidden and internal errors carry an ErrorPage as their data.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}

	response := APIResponse{
		Success: false,
		Details: details,
		Message: message,
	}
	switch status {
	case fiber.StatusForbidden, fiber.StatusNotFound, fiber.StatusInternalServerError:
		response.Data = ErrorPage{
			Status:             status,
			Title:              errorPageTitle(status),
			ShowLanguageToggle: true,
		}
	}

	return c.Status(status).JSON(response)
}

func errorPageTitle(status int) string {
	switch status {
	case fiber.StatusForbidden:
		return "Forbidden"
	case fiber.StatusNotFound:
		return "Page not found"
	default:
		return "Server error"
	}
}
