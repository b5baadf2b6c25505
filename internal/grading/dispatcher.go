package grading

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

var (
	// ErrUnknownKind is returned for exercises tagged with an unsupported kind.
	ErrUnknownKind = errors.New("unknown exercise kind")
	// ErrLTIServiceMissing is returned when an LTI exercise has no tool provider.
	ErrLTIServiceMissing = errors.New("lti exercise has no lti service")
	// ErrAttachmentMissing is returned when an attachment exercise has no stored file.
	ErrAttachmentMissing = errors.New("attachment exercise has no attachment")
)

// Profile identifies the person a page is loaded or graded for.
type Profile struct {
	ID       uint
	Name     string
	Email    string
	Language string
	Staff    bool
}

// LoadRequest asks a variant for the exercise page.
type LoadRequest struct {
	Exercise  models.Exercise
	Requester Profile
	Fetch     FetchRequest
}

// GradeRequest asks a variant to grade a stored submission.
type GradeRequest struct {
	Exercise   models.Exercise
	Submission models.Submission
	Ordinal    int
	Submitter  Profile
	Data       url.Values
	Files      []exercisepage.Attachment
}

// Outbound is the grading POST a variant may rewrite before it is sent.
type Outbound struct {
	URL       string
	Data      url.Values
	Files     []exercisepage.Attachment
	Submitter Profile
}

// Variant is the grading protocol of one exercise kind.
type Variant interface {
	Load(ctx context.Context, req LoadRequest) (exercisepage.Page, error)
	Grade(ctx context.Context, req GradeRequest) (exercisepage.Page, error)
	ModifyPostParameters(ctx context.Context, exercise models.Exercise, out *Outbound) error
}

// PageClient is the HTTP collaborator used to reach exercise services.
type PageClient interface {
	Fetch(ctx context.Context, pageURL string) (exercisepage.Page, error)
	Post(ctx context.Context, pageURL string, data url.Values, files []exercisepage.Attachment) (exercisepage.Page, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// ContentStore caches fetched exercise pages on the exercise record.
type ContentStore interface {
	SaveContent(ctx context.Context, exerciseID uint, head, content string, at time.Time) error
}

// Options tunes the dispatcher.
type Options struct {
	ContentRefresh time.Duration
	InstanceGUID   string
	InstanceName   string
}

// Dispatcher routes load and grade calls to the variant of the exercise kind.
type Dispatcher struct {
	variants map[models.ExerciseKind]Variant
}

// NewDispatcher wires every known exercise kind.
func NewDispatcher(builder *Builder, client PageClient, store ContentStore, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.ContentRefresh <= 0 {
		opts.ContentRefresh = 72 * time.Hour
	}

	base := &serviceVariant{
		builder: builder,
		client:  client,
		store:   store,
		refresh: opts.ContentRefresh,
		now:     time.Now,
		logger:  logger.With().Str("component", "grading_dispatcher").Logger(),
	}

	return &Dispatcher{
		variants: map[models.ExerciseKind]Variant{
			models.ExerciseKindDefault:    base,
			models.ExerciseKindLTI:        &ltiVariant{serviceVariant: base, instanceGUID: opts.InstanceGUID, instanceName: opts.InstanceName},
			models.ExerciseKindStatic:     staticVariant{},
			models.ExerciseKindAttachment: &attachmentVariant{serviceVariant: base},
		},
	}
}

// For returns the variant handling the kind. An empty kind is the default variant.
func (d *Dispatcher) For(kind models.ExerciseKind) (Variant, error) {
	if kind == "" {
		kind = models.ExerciseKindDefault
	}
	variant, ok := d.variants[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return variant, nil
}

// Load returns the exercise page as the variant presents it.
func (d *Dispatcher) Load(ctx context.Context, req LoadRequest) (exercisepage.Page, error) {
	variant, err := d.For(req.Exercise.Kind)
	if err != nil {
		return exercisepage.Page{}, err
	}
	return variant.Load(ctx, req)
}

// Grade sends the submission to the grader of the exercise kind.
func (d *Dispatcher) Grade(ctx context.Context, req GradeRequest) (exercisepage.Page, error) {
	variant, err := d.For(req.Exercise.Kind)
	if err != nil {
		return exercisepage.Page{}, err
	}
	return variant.Grade(ctx, req)
}
