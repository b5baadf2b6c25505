package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/eligibility"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

func newExerciseServiceForTest(t *testing.T, db *gorm.DB, dispatcher GradingDispatcher, cache *redis.Client) ExerciseService {
	t.Helper()
	repos := newTestRepos(db)
	return NewExerciseService(ExerciseServiceDeps{
		Exercises:   repos.exercises,
		Courses:     repos.courses,
		Submissions: repos.submissions,
		Deviations:  repos.deviations,
		Students:    repos.students,
		Dispatcher:  dispatcher,
		Cache:       cache,
		StatsTTL:    time.Minute,
	}, testLogger())
}

func storeSubmission(t *testing.T, db *gorm.DB, exerciseID uint, status models.SubmissionStatus, submitters ...models.Student) models.Submission {
	t.Helper()
	submission := models.Submission{
		ExerciseID:     exerciseID,
		Hash:           fmt.Sprintf("hash-%d-%d", exerciseID, time.Now().UnixNano()),
		Status:         status,
		SubmissionTime: time.Now(),
		Submitters:     submitters,
	}
	require.NoError(t, newTestRepos(db).submissions.Create(context.Background(), &submission))
	return submission
}

func TestEligibilityForEnrolledStudent(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	resp, err := svc.Eligibility(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.NoError(t, err)
	require.True(t, resp.Allowed)
	require.Empty(t, resp.Warnings)
	require.Equal(t, []uint{fx.alice.ID}, resp.Submitters)
}

func TestEligibilityDeniesStudentWithoutEnrollment(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	outsider := models.Student{Name: "Olli", Email: "olli@example.com"}
	require.NoError(t, db.Create(&outsider).Error)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	resp, err := svc.Eligibility(context.Background(), fx.exercise.ID, Viewer{ProfileID: outsider.ID})
	require.NoError(t, err)
	require.False(t, resp.Allowed)
	require.Equal(t, []string{eligibility.WarnMustEnroll}, resp.Warnings)
}

func TestEligibilityCountsQuotaAndDeviation(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	resp, err := svc.Eligibility(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.NoError(t, err)
	require.False(t, resp.Allowed)
	require.Equal(t, []string{eligibility.WarnQuotaUsed}, resp.Warnings)

	require.NoError(t, db.Create(&models.MaxSubmissionsRuleDeviation{
		ExerciseID:       fx.exercise.ID,
		SubmitterID:      fx.alice.ID,
		ExtraSubmissions: 1,
	}).Error)

	resp, err = svc.Eligibility(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.NoError(t, err)
	require.True(t, resp.Allowed)
}

func TestEligibilityIgnoresErroredSubmissionsInQuota(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusError, fx.alice)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusRejected, fx.alice)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	resp, err := svc.Eligibility(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.NoError(t, err)
	require.True(t, resp.Allowed)
}

func TestEligibilityUnknownExercise(t *testing.T) {
	db := setupServiceDB(t)
	seedCourse(t, db)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	_, err := svc.Eligibility(context.Background(), 9999, Viewer{ProfileID: 1})
	require.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestLoadPassesRequesterContextToDispatcher(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusError, fx.alice)
	stub := &dispatcherStub{page: exercisepage.Page{IsLoaded: true, Content: "<form></form>"}}
	svc := newExerciseServiceForTest(t, db, stub, nil)

	resp, err := svc.Load(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.NoError(t, err)
	require.True(t, resp.Page.IsLoaded)
	require.Equal(t, "Hello", resp.Exercise.Name)
	require.NotNil(t, resp.Eligibility)
	require.True(t, resp.Eligibility.Allowed)

	require.Len(t, stub.loads, 1)
	request := stub.loads[0]
	require.Equal(t, fx.alice.ID, request.Fetch.RequesterID)
	require.Equal(t, []uint{fx.alice.ID}, request.Fetch.Submitters)
	require.Equal(t, 1, request.Fetch.PriorSubmissions)
	require.Equal(t, "Alice", request.Requester.Name)
	require.False(t, request.Requester.Staff)

	var displays int64
	require.NoError(t, db.Model(&models.LearningObjectDisplay{}).
		Where("learning_object_id = ? AND profile_id = ?", fx.exercise.ID, fx.alice.ID).
		Count(&displays).Error)
	require.Equal(t, int64(1), displays)
}

func TestLoadForStaffMarksRequester(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	stub := &dispatcherStub{page: exercisepage.Page{IsLoaded: true}}
	svc := newExerciseServiceForTest(t, db, stub, nil)

	_, err := svc.Load(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.teacher.ID})
	require.NoError(t, err)
	require.Len(t, stub.loads, 1)
	require.True(t, stub.loads[0].Requester.Staff)
}

func TestLoadForAnonymousVisitor(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	stub := &dispatcherStub{page: exercisepage.Page{IsLoaded: true}}
	svc := newExerciseServiceForTest(t, db, stub, nil)

	resp, err := svc.Load(context.Background(), fx.exercise.ID, Viewer{})
	require.NoError(t, err)
	require.Nil(t, resp.Eligibility)
	require.Len(t, stub.loads, 1)
	require.Zero(t, stub.loads[0].Fetch.RequesterID)

	var displays int64
	require.NoError(t, db.Model(&models.LearningObjectDisplay{}).Count(&displays).Error)
	require.Zero(t, displays)
}

func TestLoadPropagatesFetchError(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	stub := &dispatcherStub{err: &exercisepage.FetchError{URL: "https://grader.example.com/hello", StatusCode: 500}}
	svc := newExerciseServiceForTest(t, db, stub, nil)

	resp, err := svc.Load(context.Background(), fx.exercise.ID, Viewer{ProfileID: fx.alice.ID})
	require.Error(t, err)

	var fetchErr *exercisepage.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, 500, fetchErr.StatusCode)
	require.Equal(t, fx.exercise.ID, resp.Exercise.ID)
	require.False(t, resp.Page.IsLoaded)
}

func TestSubmitterCountUsesRedisCache(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusWaiting, fx.bob)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, client)

	first, err := svc.SubmitterCount(context.Background(), fx.exercise.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), first.TotalSubmitters)
	require.False(t, first.Cached)

	cached, err := mr.Get(fmt.Sprintf("exercise:%d:submitters", fx.exercise.ID))
	require.NoError(t, err)
	require.Equal(t, "2", cached)

	second, err := svc.SubmitterCount(context.Background(), fx.exercise.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), second.TotalSubmitters)
	require.True(t, second.Cached)

	mr.FastForward(2 * time.Minute)
	third, err := svc.SubmitterCount(context.Background(), fx.exercise.ID)
	require.NoError(t, err)
	require.False(t, third.Cached)
}

func TestSubmitterCountWithoutCache(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	storeSubmission(t, db, fx.exercise.ID, models.SubmissionStatusReady, fx.alice)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	resp, err := svc.SubmitterCount(context.Background(), fx.exercise.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.TotalSubmitters)

	_, err = svc.SubmitterCount(context.Background(), 4242)
	require.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestEnrollmentExerciseLookup(t *testing.T) {
	db := setupServiceDB(t)
	fx := seedCourse(t, db)
	svc := newExerciseServiceForTest(t, db, &dispatcherStub{}, nil)

	_, err := svc.EnrollmentExercise(context.Background(), fx.instance.ID)
	require.ErrorIs(t, err, ErrExerciseNotFound)

	questionnaire := models.Exercise{
		Kind:           models.ExerciseKindDefault,
		Status:         models.ExerciseStatusEnrollment,
		CourseModuleID: fx.module.ID,
		CategoryID:     fx.category.ID,
		URL:            "enroll",
		Name:           "Enrollment questions",
		MaxGroupSize:   1,
	}
	require.NoError(t, db.Omit("CourseModule", "Category", "Parent", "LTIService").Create(&questionnaire).Error)

	summary, err := svc.EnrollmentExercise(context.Background(), fx.instance.ID)
	require.NoError(t, err)
	require.Equal(t, questionnaire.ID, summary.ID)
	require.Equal(t, models.ExerciseStatusEnrollment, summary.Status)
}
