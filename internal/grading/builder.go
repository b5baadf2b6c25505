package grading

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-exercise-api/internal/models"
)

// Builder produces the service URLs handed to exercise services, embedding the
// callback locations a grader uses to report back.
type Builder struct {
	signer  *Signer
	baseURL string
}

// NewBuilder creates a builder for callbacks rooted at baseURL.
func NewBuilder(signer *Signer, baseURL string) *Builder {
	return &Builder{
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchRequest describes who loads an exercise page.
type FetchRequest struct {
	// RequesterID is zero for anonymous visitors.
	RequesterID      uint
	Submitters       []uint
	PriorSubmissions int
}

// FetchURL builds the URL that loads the exercise for the requester. The
// submission callback carries a token for the requester alone; group selection
// is resolved again when the callback arrives.
func (b *Builder) FetchURL(exercise models.Exercise, request FetchRequest) (string, error) {
	if exercise.ID == 0 {
		return exercise.ServiceURL, nil
	}

	var requester []uint
	if request.RequesterID != 0 {
		requester = []uint{request.RequesterID}
	}
	profileStr, token := b.signer.ExerciseToken(requester, exercise.ID)
	callback := fmt.Sprintf("%s/api/v2/async/new/%d/%s/%s", b.baseURL, exercise.ID, profileStr, token)

	return b.serviceURL(exercise, uidParam(request.Submitters), request.PriorSubmissions+1, callback)
}

// GradeURL builds the URL a stored submission is posted to for grading.
func (b *Builder) GradeURL(exercise models.Exercise, submission models.Submission, ordinal int) (string, error) {
	token := b.signer.SubmissionToken(submission.ID, submission.Hash)
	callback := fmt.Sprintf("%s/api/v2/async/grade/%d/%s", b.baseURL, submission.ID, token)

	return b.serviceURL(exercise, uidParam(submission.SubmitterIDs()), ordinal, callback)
}

// PostURL is the address of the exercise within this API.
func (b *Builder) PostURL(exerciseID uint) string {
	return fmt.Sprintf("%s/api/v2/exercises/%d", b.baseURL, exerciseID)
}

// Host returns the host part of the configured base URL.
func (b *Builder) Host() string {
	parsed, err := url.Parse(b.baseURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

func (b *Builder) serviceURL(exercise models.Exercise, uid string, ordinal int, submissionURL string) (string, error) {
	parsed, err := url.Parse(exercise.ServiceURL)
	if err != nil {
		return "", fmt.Errorf("invalid service url for exercise %d: %w", exercise.ID, err)
	}

	query := parsed.Query()
	query.Set("max_points", strconv.Itoa(exercise.MaxPoints))
	query.Set("submission_url", submissionURL)
	query.Set("post_url", b.PostURL(exercise.ID))
	query.Set("uid", uid)
	query.Set("ordinal_number", strconv.Itoa(ordinal))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func uidParam(submitters []uint) string {
	if len(submitters) == 0 {
		return "0"
	}
	return StudentString(submitters)
}
