package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
	"github.com/noah-isme/gema-exercise-api/pkg/cloudinary"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type courseFixture struct {
	now      time.Time
	instance models.CourseInstance
	module   models.CourseModule
	category models.LearningObjectCategory
	exercise models.Exercise
	alice    models.Student
	bob      models.Student
	teacher  models.Student
}

// seedCourse creates an open module with one exercise, two enrolled students and a teacher.
func seedCourse(t *testing.T, db *gorm.DB) courseFixture {
	t.Helper()
	now := time.Now()

	course := models.Course{Name: "Web Software", Code: "CS-C3170", URL: "wsd"}
	require.NoError(t, db.Create(&course).Error)

	instance := models.CourseInstance{
		CourseID:     course.ID,
		InstanceName: "Spring",
		URL:          "2026",
		Visible:      true,
		StartingTime: now.Add(-48 * time.Hour),
		EndingTime:   now.Add(60 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&instance).Error)

	module := models.CourseModule{
		CourseInstanceID: instance.ID,
		Name:             "Week 1",
		URL:              "w1",
		OpeningTime:      now.Add(-2 * time.Hour),
		ClosingTime:      now.Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&module).Error)

	category := models.LearningObjectCategory{CourseInstanceID: instance.ID, Name: "Exercises"}
	require.NoError(t, db.Create(&category).Error)

	exercise := models.Exercise{
		Kind:           models.ExerciseKindDefault,
		Status:         models.ExerciseStatusReady,
		CourseModuleID: module.ID,
		CategoryID:     category.ID,
		URL:            "hello",
		Name:           "Hello",
		ServiceURL:     "https://grader.example.com/hello",
		MinGroupSize:   1,
		MaxGroupSize:   1,
		MaxSubmissions: 2,
		MaxPoints:      20,
	}
	require.NoError(t, db.Omit("CourseModule", "Category", "Parent", "LTIService").Create(&exercise).Error)

	alice := models.Student{Name: "Alice", Email: "alice@example.com", Language: "en"}
	bob := models.Student{Name: "Bob", Email: "bob@example.com", Language: "fi"}
	teacher := models.Student{Name: "Tina", Email: "tina@example.com", Language: "en"}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)
	require.NoError(t, db.Create(&teacher).Error)

	for _, student := range []models.Student{alice, bob} {
		require.NoError(t, db.Create(&models.Enrollment{CourseInstanceID: instance.ID, StudentID: student.ID}).Error)
	}
	require.NoError(t, db.Create(&models.CourseStaff{
		CourseInstanceID: instance.ID,
		StudentID:        teacher.ID,
		Role:             models.CourseStaffRoleTeacher,
	}).Error)

	return courseFixture{
		now:      now,
		instance: instance,
		module:   module,
		category: category,
		exercise: exercise,
		alice:    alice,
		bob:      bob,
		teacher:  teacher,
	}
}

type testRepos struct {
	exercises   repository.ExerciseRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	deviations  repository.DeviationRepository
	students    repository.StudentRepository
}

func newTestRepos(db *gorm.DB) testRepos {
	return testRepos{
		exercises:   repository.NewExerciseRepository(db),
		courses:     repository.NewCourseRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		deviations:  repository.NewDeviationRepository(db),
		students:    repository.NewStudentRepository(db),
	}
}

// dispatcherStub records calls and answers with canned pages.
type dispatcherStub struct {
	mu        sync.Mutex
	loads     []grading.LoadRequest
	grades    []grading.GradeRequest
	page      exercisepage.Page
	gradePage exercisepage.Page
	err       error
}

func (d *dispatcherStub) Load(ctx context.Context, req grading.LoadRequest) (exercisepage.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads = append(d.loads, req)
	return d.page, d.err
}

func (d *dispatcherStub) Grade(ctx context.Context, req grading.GradeRequest) (exercisepage.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grades = append(d.grades, req)
	return d.gradePage, d.err
}

type publishedEvent struct {
	subject string
	data    []byte
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *publisherStub) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject: subject, data: data})
	return nil
}

func (p *publisherStub) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	subjects := make([]string, 0, len(p.events))
	for _, event := range p.events {
		subjects = append(subjects, event.subject)
	}
	return subjects
}

type attachmentStoreStub struct {
	uploads map[string][]byte
	deleted []string
}

func newAttachmentStoreStub() *attachmentStoreStub {
	return &attachmentStoreStub{uploads: map[string][]byte{}}
}

func (a *attachmentStoreStub) Upload(ctx context.Context, dir, name string, reader io.Reader) (cloudinary.StoredFile, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return cloudinary.StoredFile{}, err
	}
	publicID := dir + "/" + cloudinary.SafeName(name)
	a.uploads[publicID] = data
	return cloudinary.StoredFile{URL: "https://files.example.com/" + publicID, PublicID: publicID}, nil
}

func (a *attachmentStoreStub) Delete(ctx context.Context, publicID string) error {
	a.deleted = append(a.deleted, publicID)
	return nil
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("attachment", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["attachment"]
	require.Len(t, files, 1)
	return files[0]
}
