package grading

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
	"github.com/noah-isme/gema-exercise-api/pkg/lti"
)

const attachmentField = "content_0"

// serviceVariant loads and grades through the exercise service URL with token callbacks.
type serviceVariant struct {
	builder *Builder
	client  PageClient
	store   ContentStore
	refresh time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func (s *serviceVariant) Load(ctx context.Context, req LoadRequest) (exercisepage.Page, error) {
	return s.load(ctx, req, s.builder.FetchURL)
}

func (s *serviceVariant) Grade(ctx context.Context, req GradeRequest) (exercisepage.Page, error) {
	return s.post(ctx, req, s.ModifyPostParameters)
}

func (s *serviceVariant) ModifyPostParameters(context.Context, models.Exercise, *Outbound) error {
	return nil
}

func (s *serviceVariant) load(ctx context.Context, req LoadRequest, fetchURL func(models.Exercise, FetchRequest) (string, error)) (exercisepage.Page, error) {
	exercise := req.Exercise
	if exercise.ServiceURL == "" {
		return exercisepage.Page{}, nil
	}

	now := s.now()
	if exercise.ID != 0 && exercise.CourseInstance().Archived(now) && exercise.Content != "" {
		return exercisepage.Page{
			IsLoaded: true,
			Head:     exercise.ContentHead,
			Content:  exercise.Content,
		}, nil
	}

	target, err := fetchURL(exercise, req.Fetch)
	if err != nil {
		return exercisepage.Page{}, err
	}

	page, err := s.client.Fetch(ctx, target)
	if err != nil {
		return exercisepage.Page{}, err
	}

	if exercise.ID != 0 && s.store != nil && exercise.ContentStale(now, s.refresh) {
		if err := s.store.SaveContent(ctx, exercise.ID, page.Head, page.Content, now); err != nil {
			s.logger.Error().Err(err).Uint("exercise_id", exercise.ID).Msg("failed to cache exercise content")
		} else {
			s.logger.Info().Uint("exercise_id", exercise.ID).Msg("exercise content cache refreshed")
		}
	}

	return page, nil
}

func (s *serviceVariant) post(ctx context.Context, req GradeRequest, modify func(context.Context, models.Exercise, *Outbound) error) (exercisepage.Page, error) {
	target, err := s.builder.GradeURL(req.Exercise, req.Submission, req.Ordinal)
	if err != nil {
		return exercisepage.Page{}, err
	}

	out := &Outbound{
		URL:       target,
		Data:      cloneForm(req.Data),
		Files:     append([]exercisepage.Attachment(nil), req.Files...),
		Submitter: req.Submitter,
	}
	if err := modify(ctx, req.Exercise, out); err != nil {
		return exercisepage.Page{}, err
	}

	return s.client.Post(ctx, out.URL, out.Data, out.Files)
}

// ltiVariant launches an LTI tool, or signs the service protocol with LTI
// parameters when the exercise performs GET and POST itself.
type ltiVariant struct {
	*serviceVariant
	instanceGUID string
	instanceName string
}

func (l *ltiVariant) Load(ctx context.Context, req LoadRequest) (exercisepage.Page, error) {
	exercise := req.Exercise
	if exercise.LTIService == nil {
		return exercisepage.Page{}, ErrLTIServiceMissing
	}
	if exercise.APlusGetAndPost {
		return l.load(ctx, req, func(ex models.Exercise, fetch FetchRequest) (string, error) {
			return l.signedFetchURL(ex, fetch, req.Requester)
		})
	}

	target := exercise.ServiceURL
	if target == "" {
		target = exercise.LTIService.URL
	}
	params, err := l.request(exercise, req.Requester, nil).SignPostParameters(target)
	if err != nil {
		return exercisepage.Page{}, err
	}

	title := exercise.LTIResourceLinkTitle
	if title == "" {
		title = exercise.Name
	}

	return exercisepage.Page{
		IsLoaded: true,
		Content:  exercise.Content,
		Launch: &exercisepage.Launch{
			URL:        target,
			Title:      title,
			Parameters: flattenForm(params),
		},
	}, nil
}

func (l *ltiVariant) Grade(ctx context.Context, req GradeRequest) (exercisepage.Page, error) {
	if req.Exercise.LTIService == nil {
		return exercisepage.Page{}, ErrLTIServiceMissing
	}
	return l.post(ctx, req, l.ModifyPostParameters)
}

func (l *ltiVariant) ModifyPostParameters(_ context.Context, exercise models.Exercise, out *Outbound) error {
	if exercise.LTIService == nil {
		return ErrLTIServiceMissing
	}

	signed, err := l.request(exercise, out.Submitter, flattenForm(out.Data)).SignPostParameters(out.URL)
	if err != nil {
		return err
	}
	for key, values := range signed {
		out.Data[key] = values
	}
	return nil
}

func (l *ltiVariant) signedFetchURL(exercise models.Exercise, fetch FetchRequest, requester Profile) (string, error) {
	target, err := l.builder.FetchURL(exercise, fetch)
	if err != nil {
		return "", err
	}
	if len(fetch.Submitters) == 0 {
		return target, nil
	}
	return l.request(exercise, requester, nil).SignGetQuery(target)
}

func (l *ltiVariant) request(exercise models.Exercise, profile Profile, extra map[string]string) *lti.Request {
	instance := exercise.CourseInstance()

	contextID := exercise.LTIContextID
	if contextID == "" {
		contextID = fmt.Sprintf("%s/%s/%s/", l.builder.Host(), instance.Course.URL, instance.URL)
	}
	resourceLinkID := exercise.LTIResourceLinkID
	if resourceLinkID == "" {
		resourceLinkID = fmt.Sprintf("exercise%d", exercise.ID)
	}
	resourceLinkTitle := exercise.LTIResourceLinkTitle
	if resourceLinkTitle == "" {
		resourceLinkTitle = exercise.Name
	}

	return lti.NewRequest(lti.Consumer{
		Key:    exercise.LTIService.ConsumerKey,
		Secret: exercise.LTIService.ConsumerSecret,
	}, lti.Launch{
		UserID:            fmt.Sprintf("uid%d", profile.ID),
		FullName:          profile.Name,
		Email:             profile.Email,
		Staff:             profile.Staff,
		Locale:            profile.Language,
		ContextID:         contextID,
		ContextTitle:      instance.Course.Name + " " + instance.InstanceName,
		ContextLabel:      instance.Course.Code,
		ResourceLinkID:    resourceLinkID,
		ResourceLinkTitle: resourceLinkTitle,
		InstanceGUID:      l.instanceGUID,
		InstanceName:      l.instanceName,
		Extra:             extra,
	})
}

// staticVariant serves stored pages and accepts every submission without a grader.
type staticVariant struct{}

func (staticVariant) Load(_ context.Context, req LoadRequest) (exercisepage.Page, error) {
	return exercisepage.Page{
		IsLoaded: true,
		Content:  req.Exercise.ExercisePageContent,
	}, nil
}

func (staticVariant) Grade(_ context.Context, req GradeRequest) (exercisepage.Page, error) {
	return exercisepage.Page{
		IsLoaded:   true,
		Content:    req.Exercise.SubmissionPageContent,
		IsAccepted: true,
	}, nil
}

func (staticVariant) ModifyPostParameters(context.Context, models.Exercise, *Outbound) error {
	return nil
}

// attachmentVariant keeps instructions locally and sends the stored attachment
// to the grader with every submission.
type attachmentVariant struct {
	*serviceVariant
}

func (a *attachmentVariant) Load(_ context.Context, req LoadRequest) (exercisepage.Page, error) {
	return exercisepage.Page{
		IsLoaded:      true,
		Content:       req.Exercise.Content,
		FilesToSubmit: req.Exercise.FileNames(),
	}, nil
}

func (a *attachmentVariant) Grade(ctx context.Context, req GradeRequest) (exercisepage.Page, error) {
	return a.post(ctx, req, a.ModifyPostParameters)
}

func (a *attachmentVariant) ModifyPostParameters(ctx context.Context, exercise models.Exercise, out *Outbound) error {
	if exercise.AttachmentURL == "" {
		return ErrAttachmentMissing
	}

	data, err := a.client.Download(ctx, exercise.AttachmentURL)
	if err != nil {
		return err
	}

	name := exercise.AttachmentName
	if name == "" {
		name = path.Base(exercise.AttachmentURL)
	}

	files := out.Files[:0]
	for _, file := range out.Files {
		if file.Field != attachmentField {
			files = append(files, file)
		}
	}
	out.Files = append(files, exercisepage.Attachment{
		Field:       attachmentField,
		Filename:    name,
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	})
	return nil
}

func cloneForm(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, items := range values {
		out[key] = append([]string(nil), items...)
	}
	return out
}

func flattenForm(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, items := range values {
		if len(items) > 0 {
			out[key] = items[0]
		}
	}
	return out
}
