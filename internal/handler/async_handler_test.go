package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exercise-api/internal/config"
	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/handler"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/router"
	"github.com/noah-isme/gema-exercise-api/internal/service"
)

type asyncServiceStub struct {
	exerciseID    uint
	submissionID  uint
	studentString string
	token         string
	payload       dto.AsyncGradeRequest
	err           error
}

func (s *asyncServiceStub) New(_ context.Context, exerciseID uint, studentString, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error) {
	s.exerciseID = exerciseID
	s.studentString = studentString
	s.token = token
	s.payload = payload
	return dto.SubmissionResponse{ID: 30, ExerciseID: exerciseID, Status: models.SubmissionStatusReady}, s.err
}

func (s *asyncServiceStub) Grade(_ context.Context, submissionID uint, token string, payload dto.AsyncGradeRequest) (dto.SubmissionResponse, error) {
	s.submissionID = submissionID
	s.token = token
	s.payload = payload
	return dto.SubmissionResponse{ID: submissionID, Status: models.SubmissionStatusReady}, s.err
}

func newAsyncApp(stub service.AsyncGradingService) *fiber.App {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: testJWTSecret}, router.Dependencies{
		AsyncHandler: handler.NewAsyncHandler(stub, zerolog.New(io.Discard)),
	})
	return app
}

func postForm(t *testing.T, app *fiber.App, target, form string) (*http.Response, dto.AsyncResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body dto.AsyncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestAsyncHandlerNewSubmissionWithoutJWT(t *testing.T) {
	stub := &asyncServiceStub{}
	app := newAsyncApp(stub)

	resp, body := postForm(t, app, "/api/v2/async/new/5/3-4/abc123", "points=3&max_points=4&feedback=ok")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	require.Empty(t, body.Errors)

	require.Equal(t, uint(5), stub.exerciseID)
	require.Equal(t, "3-4", stub.studentString)
	require.Equal(t, "abc123", stub.token)
	require.Equal(t, 3, stub.payload.Points)
	require.Equal(t, 4, stub.payload.MaxPoints)
	require.Equal(t, "ok", stub.payload.Feedback)
}

func TestAsyncHandlerGradeAcceptsJSON(t *testing.T) {
	stub := &asyncServiceStub{}
	app := newAsyncApp(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/async/grade/12/tok", strings.NewReader(`{"points":1,"max_points":2,"error":false}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(12), stub.submissionID)
	require.Equal(t, "tok", stub.token)
	require.Equal(t, 2, stub.payload.MaxPoints)
}

func TestAsyncHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "bad token", err: service.ErrInvalidAsyncToken, status: fiber.StatusForbidden},
		{name: "missing submission", err: service.ErrSubmissionNotFound, status: fiber.StatusNotFound},
		{name: "denied", err: &service.DeniedError{Warnings: []string{"deadline passed"}}, status: fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAsyncApp(&asyncServiceStub{err: tc.err})
			resp, body := postForm(t, app, "/api/v2/async/grade/12/tok", "points=1&max_points=2")
			require.Equal(t, tc.status, resp.StatusCode)
			require.False(t, body.Success)
			require.NotEmpty(t, body.Errors)
		})
	}
}

func TestAsyncHandlerRejectsInvalidIDs(t *testing.T) {
	app := newAsyncApp(&asyncServiceStub{})
	resp, body := postForm(t, app, "/api/v2/async/new/zero/-/tok", "points=1")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.False(t, body.Success)
}
