package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/eligibility"
	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/models"
)

func newAsyncServiceForTest(t *testing.T, db *gorm.DB, publisher EventPublisher) (AsyncGradingService, *grading.Signer) {
	t.Helper()
	signer, err := grading.NewSigner("async-test-secret")
	require.NoError(t, err)

	repos := newTestRepos(db)
	svc := NewAsyncGradingService(AsyncGradingServiceDeps{
		Exercises:     repos.exercises,
		Courses:       repos.courses,
		Submissions:   repos.submissions,
		Deviations:    repos.deviations,
		Students:      repos.students,
		Signer:        signer,
		Validator:     validator.New(),
		Publisher:     publisher,
		EventsSubject: "exercises",
	}, testLogger())
	return svc, signer
}

func TestAsyncNewCreatesGradedSubmission(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	publisher := &publisherStub{}
	svc, signer := newAsyncServiceForTest(t, db, publisher)

	students, token := signer.ExerciseToken([]uint{fx.alice.ID}, fx.exercise.ID)
	resp, err := svc.New(context.Background(), fx.exercise.ID, students, token, dto.AsyncGradeRequest{
		Points:    3,
		MaxPoints: 4,
		Feedback:  "Good job",
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusReady, resp.Status)
	require.Equal(t, 15, resp.Grade)
	require.Equal(t, []uint{fx.alice.ID}, resp.Submitters)
	require.Equal(t, 1, resp.OrdinalNumber)

	var stored models.Submission
	require.NoError(t, db.Preload("Submitters").First(&stored, resp.ID).Error)
	require.Equal(t, "Good job", stored.Feedback)
	require.Equal(t, 3, stored.ServicePoints)
	require.Len(t, stored.Submitters, 1)
	require.Equal(t, []string{"exercises.submission.graded"}, publisher.subjects())
}

func TestAsyncNewRejectsForgedToken(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	svc, signer := newAsyncServiceForTest(t, db, nil)

	students, _ := signer.ExerciseToken([]uint{fx.alice.ID}, fx.exercise.ID)
	_, otherToken := signer.ExerciseToken([]uint{fx.bob.ID}, fx.exercise.ID)

	_, err := svc.New(context.Background(), fx.exercise.ID, students, otherToken, dto.AsyncGradeRequest{Points: 1, MaxPoints: 1})
	require.ErrorIs(t, err, ErrInvalidAsyncToken)

	_, err = svc.New(context.Background(), fx.exercise.ID, "-", otherToken, dto.AsyncGradeRequest{})
	require.ErrorIs(t, err, ErrInvalidAsyncToken)

	_, err = svc.New(context.Background(), fx.exercise.ID, "abc", otherToken, dto.AsyncGradeRequest{})
	require.ErrorIs(t, err, ErrInvalidAsyncToken)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAsyncNewDeniedWhenQuotaUsed(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.bob)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.bob)
	svc, signer := newAsyncServiceForTest(t, db, nil)

	students, token := signer.ExerciseToken([]uint{fx.bob.ID}, fx.exercise.ID)
	_, err := svc.New(context.Background(), fx.exercise.ID, students, token, dto.AsyncGradeRequest{Points: 1, MaxPoints: 1})
	require.ErrorIs(t, err, ErrSubmissionDenied)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	require.NotEmpty(t, denied.Warnings)
}

func TestAsyncNewAllowsPlatformAdminWithoutEnrollment(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	admin := models.Student{Name: "Ada", Email: "ada@example.com", Language: "en", Role: PlatformAdminRole}
	require.NoError(t, db.Create(&admin).Error)
	svc, signer := newAsyncServiceForTest(t, db, nil)

	students, token := signer.ExerciseToken([]uint{admin.ID}, fx.exercise.ID)
	resp, err := svc.New(context.Background(), fx.exercise.ID, students, token, dto.AsyncGradeRequest{Points: 2, MaxPoints: 4})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusReady, resp.Status)
	require.Equal(t, []uint{admin.ID}, resp.Submitters)

	outsider := models.Student{Name: "Otto", Email: "otto@example.com", Language: "en"}
	require.NoError(t, db.Create(&outsider).Error)
	students, token = signer.ExerciseToken([]uint{outsider.ID}, fx.exercise.ID)
	_, err = svc.New(context.Background(), fx.exercise.ID, students, token, dto.AsyncGradeRequest{Points: 2, MaxPoints: 4})
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	require.Contains(t, denied.Warnings, eligibility.WarnMustEnroll)
}

func TestAsyncGradeUpdatesWaitingSubmission(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	submission := storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusWaiting, fx.alice)
	publisher := &publisherStub{}
	svc, signer := newAsyncServiceForTest(t, db, publisher)

	token := signer.SubmissionToken(submission.ID, submission.Hash)
	resp, err := svc.Grade(context.Background(), submission.ID, token, dto.AsyncGradeRequest{
		Points:         7,
		MaxPoints:      7,
		Feedback:       "All tests passed",
		GradingPayload: `{"tests": 7}`,
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusReady, resp.Status)
	require.Equal(t, 20, resp.Grade)

	var stored models.Submission
	require.NoError(t, db.Preload("Submitters").First(&stored, submission.ID).Error)
	require.Equal(t, "All tests passed", stored.Feedback)
	require.NotNil(t, stored.GradingTime)
	require.Len(t, stored.Submitters, 1)
	require.Contains(t, string(stored.SubmissionData), "grading_payload")
	require.Equal(t, []string{"exercises.submission.graded"}, publisher.subjects())
}

func TestAsyncGradeWithErrorFlag(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	submission := storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusWaiting, fx.alice)
	publisher := &publisherStub{}
	svc, signer := newAsyncServiceForTest(t, db, publisher)

	resp, err := svc.Grade(context.Background(), submission.ID, signer.SubmissionToken(submission.ID, submission.Hash), dto.AsyncGradeRequest{
		Error:    true,
		Feedback: "Grader crashed",
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusError, resp.Status)
	require.Empty(t, publisher.subjects())
}

func TestAsyncGradeRejectsWrongToken(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	submission := storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusWaiting, fx.alice)
	svc, signer := newAsyncServiceForTest(t, db, nil)

	_, err := svc.Grade(context.Background(), submission.ID, signer.SubmissionToken(submission.ID, "other-hash"), dto.AsyncGradeRequest{Points: 1, MaxPoints: 1})
	require.ErrorIs(t, err, ErrInvalidAsyncToken)

	_, err = svc.Grade(context.Background(), submission.ID+100, "deadbeef", dto.AsyncGradeRequest{})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestAsyncGradeValidatesPayload(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	submission := storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusWaiting, fx.alice)
	svc, signer := newAsyncServiceForTest(t, db, nil)

	_, err := svc.Grade(context.Background(), submission.ID, signer.SubmissionToken(submission.ID, submission.Hash), dto.AsyncGradeRequest{Points: -1})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}
