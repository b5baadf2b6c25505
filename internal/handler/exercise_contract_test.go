package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
)

func TestEligibilityContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "eligibility.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	stub := &exerciseServiceStub{eligibility: dto.EligibilityResponse{
		Allowed:    false,
		Warnings:   []string{"You have used the allowed amount of submissions for this exercise."},
		Submitters: []uint{7},
	}}
	app := newExerciseApp(stub, &submissionServiceStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/exercises/4/eligibility", nil)
	req.Header.Set("Authorization", bearer(t, 7, "student"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
