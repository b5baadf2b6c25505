package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/eligibility"
	"github.com/noah-isme/gema-exercise-api/internal/models"
	"github.com/noah-isme/gema-exercise-api/internal/observability"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
)

// PlatformAdminRole is the token role that counts as staff on every course.
const PlatformAdminRole = "admin"

// Viewer is the authenticated caller as seen by the services. A zero ProfileID
// is an anonymous visitor.
type Viewer struct {
	ProfileID uint
	Role      string
}

// Authenticated reports whether the viewer has a profile.
func (v Viewer) Authenticated() bool {
	return v.ProfileID != 0
}

// eligibilityReader loads the snapshot an eligibility evaluation works on.
type eligibilityReader struct {
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	deviations  repository.DeviationRepository
	tracer      trace.Tracer
	logger      zerolog.Logger
}

func newEligibilityReader(courses repository.CourseRepository, submissions repository.SubmissionRepository, deviations repository.DeviationRepository, logger zerolog.Logger) *eligibilityReader {
	return &eligibilityReader{
		courses:     courses,
		submissions: submissions,
		deviations:  deviations,
		tracer:      otel.Tracer("github.com/noah-isme/gema-exercise-api/internal/service/eligibility"),
		logger:      logger,
	}
}

// evaluation is a decision together with the facts callers reuse afterwards.
type evaluation struct {
	eligibility.Decision
	RequesterStaff bool
}

func (r *eligibilityReader) evaluate(ctx context.Context, exercise models.Exercise, viewer Viewer, now time.Time) (evaluation, error) {
	ctx, span := r.tracer.Start(ctx, "eligibility.evaluate", trace.WithAttributes(
		attribute.Int64("exercise.id", int64(exercise.ID)),
		attribute.Int64("viewer.profile_id", int64(viewer.ProfileID)),
	))
	defer span.End()

	input, err := r.snapshot(ctx, exercise, viewer, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot_failed")
		return evaluation{}, err
	}

	decision := eligibility.Evaluate(input)

	outcome := "allowed"
	switch {
	case !decision.Allowed:
		outcome = "denied"
		r.logger.Debug().
			Uint("exercise_id", exercise.ID).
			Uint("profile_id", viewer.ProfileID).
			Strs("warnings", decision.Warnings).
			Msg("submission denied")
	case len(decision.Warnings) > 0:
		outcome = "allowed_with_warnings"
	}
	observability.EligibilityDecisions().WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("eligibility.outcome", outcome))

	return evaluation{Decision: decision, RequesterStaff: input.Requester.Staff}, nil
}

func (r *eligibilityReader) snapshot(ctx context.Context, exercise models.Exercise, viewer Viewer, now time.Time) (eligibility.Input, error) {
	instance := exercise.CourseInstance()
	module := exercise.CourseModule

	input := eligibility.Input{
		Now:            now,
		CourseEnding:   instance.EndingTime,
		EnrollmentGate: exercise.Status == models.ExerciseStatusEnrollment,
		CanEnroll:      instance.IsEnrollable(now),
		Requester:      eligibility.Student{ID: viewer.ProfileID},
		Window: eligibility.Window{
			Opening:        module.OpeningTime,
			Closing:        module.ClosingTime,
			LateAllowed:    module.LateSubmissionsAllowed && module.LateSubmissionDeadline != nil,
			LatePointWorth: module.LateSubmissionPointWorth(),
		},
		MinGroupSize:   exercise.MinGroupSize,
		MaxGroupSize:   exercise.MaxGroupSize,
		MaxSubmissions: exercise.MaxSubmissions,
		Records:        map[uint]eligibility.Record{},
	}
	if module.LateSubmissionDeadline != nil {
		input.Window.LateDeadline = *module.LateSubmissionDeadline
	}

	enrollment, err := r.courses.EnrollmentFor(ctx, instance.ID, viewer.ProfileID)
	if err != nil {
		return eligibility.Input{}, err
	}
	input.Enrolled = enrollment != nil

	var groupIDs []uint
	if enrollment != nil && enrollment.SelectedGroup != nil {
		groupIDs = enrollment.SelectedGroup.MemberIDs()
	}
	candidates := eligibility.ResolveSubmitters(viewer.ProfileID, groupIDs)

	staff, err := r.courses.StaffAmong(ctx, instance.ID, candidates)
	if err != nil {
		return eligibility.Input{}, err
	}
	input.Requester.Staff = staff[viewer.ProfileID] || viewer.Role == PlatformAdminRole
	for _, id := range groupIDs {
		input.Group = append(input.Group, eligibility.Student{
			ID:    id,
			Staff: staff[id] || (id == viewer.ProfileID && input.Requester.Staff),
		})
	}

	history, err := r.submissions.ListForStudent(ctx, repository.SubmissionFilter{
		ExerciseID: exercise.ID,
		StudentID:  viewer.ProfileID,
	})
	if err != nil {
		return eligibility.Input{}, err
	}
	if len(history) > 0 {
		input.LatestSubmitters = history[0].SubmitterIDs()
	}

	others := make([]uint, 0, len(groupIDs))
	for _, id := range groupIDs {
		if id != viewer.ProfileID {
			others = append(others, id)
		}
	}
	input.MembersWithSubmissions, err = r.submissions.SubmittedAmong(ctx, exercise.ID, others)
	if err != nil {
		return eligibility.Input{}, err
	}

	if err := r.loadRecords(ctx, exercise, candidates, input.Records); err != nil {
		return eligibility.Input{}, err
	}

	return input, nil
}

func (r *eligibilityReader) loadRecords(ctx context.Context, exercise models.Exercise, candidates []uint, records map[uint]eligibility.Record) error {
	deadlines, err := r.deviations.DeadlineDeviations(ctx, exercise.ID, candidates)
	if err != nil {
		return err
	}
	quotas, err := r.deviations.SubmissionDeviations(ctx, exercise.ID, candidates)
	if err != nil {
		return err
	}

	for _, id := range candidates {
		used, err := r.submissions.CountForStudent(ctx, repository.SubmissionFilter{
			ExerciseID:    exercise.ID,
			StudentID:     id,
			ExcludeErrors: true,
		})
		if err != nil {
			return err
		}
		records[id] = eligibility.Record{UsedSubmissions: int(used)}
	}

	for _, deviation := range deadlines {
		record := records[deviation.SubmitterID]
		record.Deadlines = append(record.Deadlines, deviation.NewDeadline(exercise.CourseModule.ClosingTime))
		records[deviation.SubmitterID] = record
	}

	seen := make(map[uint]bool, len(quotas))
	for _, deviation := range quotas {
		if seen[deviation.SubmitterID] {
			continue
		}
		seen[deviation.SubmitterID] = true
		record := records[deviation.SubmitterID]
		record.ExtraSubmissions = deviation.ExtraSubmissions
		records[deviation.SubmitterID] = record
	}

	return nil
}

func newEligibilityResponse(exerciseID uint, decision eligibility.Decision) dto.EligibilityResponse {
	warnings := decision.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	submitters := decision.Submitters
	if submitters == nil {
		submitters = []uint{}
	}
	return dto.EligibilityResponse{
		ExerciseID: exerciseID,
		Allowed:    decision.Allowed,
		Warnings:   warnings,
		Submitters: submitters,
	}
}
