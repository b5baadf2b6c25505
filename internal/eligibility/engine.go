// Package eligibility decides whether a student may submit to an exercise.
//
// Evaluation is a pure function of a read-only snapshot: the caller loads the
// exercise, enrollment, prior submissions and deviations, and Evaluate turns them
// into an ordered, user-facing list of warnings plus the allow/deny decision.
package eligibility

import (
	"fmt"
	"time"
)

// User-facing warning texts. Their order in a Decision is stable.
const (
	WarnCourseArchived     = "The course is archived. Exercises are offline."
	WarnCannotEnroll       = "You cannot enroll in the course."
	WarnMustEnroll         = "You must enroll at course home to submit exercises."
	WarnGroupChanged       = "You have previously submitted to this exercise with a different group. Group can only change between different exercises."
	WarnGroupSplit         = "Some members of the group have already submitted to this exercise in a different group."
	WarnNotOpen            = "This exercise is not open for submissions."
	WarnQuotaUsed          = "You have used the allowed amount of submissions for this exercise."
	lateWindowWarning      = "Deadline for the exercise has passed. Late submissions are allowed until %s but points are only worth %d%%."
	groupSizeWarning       = "This exercise can be submitted in groups of %s students. The size of your current group is %d."
	lateDeadlineTimeLayout = "2006-01-02 15:04 MST"
)

// Student is a profile as seen by the engine.
type Student struct {
	ID    uint
	Staff bool
}

// Record holds the per-student facts needed for access and quota checks.
type Record struct {
	// Deadlines are the extended deadlines granted by deadline deviations.
	Deadlines []time.Time
	// UsedSubmissions is the prior submission count, already filtered by the caller's
	// exclude-errors choice.
	UsedSubmissions int
	// ExtraSubmissions comes from the student's single quota deviation, if any.
	ExtraSubmissions int
}

// Input is the read-only snapshot an evaluation works on.
type Input struct {
	Now          time.Time
	CourseEnding time.Time

	// EnrollmentGate marks exercises that collect enrollment questions.
	EnrollmentGate bool
	CanEnroll      bool
	Enrolled       bool

	Requester Student
	// Group holds the members of the requester's selected group; empty when solo.
	Group []Student

	// LatestSubmitters are the submitters of the requester's most recent submission,
	// empty when the requester has never submitted.
	LatestSubmitters []uint
	// MembersWithSubmissions lists group members that have submitted to the exercise.
	MembersWithSubmissions []uint

	Window         Window
	MinGroupSize   int
	MaxGroupSize   int
	MaxSubmissions int

	Records map[uint]Record
}

// Decision is the structured outcome of an evaluation. A denial is not an error.
type Decision struct {
	Allowed    bool
	Warnings   []string
	Submitters []uint
}

type collector struct {
	warnings []string
	blocking int
}

func (c *collector) block(message string) {
	c.warnings = append(c.warnings, message)
	c.blocking++
}

func (c *collector) advise(message string) {
	c.warnings = append(c.warnings, message)
}

// Evaluate runs the submission rules in their fixed order. Archival and enrollment
// failures deny immediately, as do group consistency failures unless every submitter
// is staff. The remaining checks accumulate warnings and staff may submit regardless.
func Evaluate(in Input) Decision {
	requesterOnly := []uint{in.Requester.ID}

	if in.CourseEnding.Before(in.Now) {
		return Decision{Allowed: false, Warnings: []string{WarnCourseArchived}, Submitters: requesterOnly}
	}

	if in.EnrollmentGate {
		if !in.CanEnroll {
			return Decision{Allowed: false, Warnings: []string{WarnCannotEnroll}, Submitters: requesterOnly}
		}
	} else if !in.Enrolled && !in.Requester.Staff {
		return Decision{Allowed: false, Warnings: []string{WarnMustEnroll}, Submitters: requesterOnly}
	}

	groupIDs := studentIDs(in.Group)
	submitters := ResolveSubmitters(in.Requester.ID, groupIDs)
	c := &collector{}

	if len(in.LatestSubmitters) > 0 {
		if DetectGroupChange(in.Requester.ID, groupIDs, in.LatestSubmitters) {
			c.block(WarnGroupChanged)
		}
	} else if DetectCrossGroupSubmission(in.Requester.ID, groupIDs, in.MembersWithSubmissions) {
		c.block(WarnGroupSplit)
	}
	// Staff keep going with the group warning; everyone else stops here.
	if c.blocking > 0 && !allStaff(in, submitters) {
		return Decision{Allowed: false, Warnings: c.warnings, Submitters: requesterOnly}
	}

	var deadlines []time.Time
	for _, id := range submitters {
		deadlines = append(deadlines, in.Records[id].Deadlines...)
	}
	if !IsOpenFor(in.Window, deadlines, in.Now) {
		c.block(WarnNotOpen)
	}
	if in.Window.IsLateOpen(in.Now) {
		c.advise(fmt.Sprintf(lateWindowWarning,
			in.Window.LateDeadline.UTC().Format(lateDeadlineTimeLayout), in.Window.LatePointWorth))
	}

	if !hasQuota(in, submitters) {
		c.block(WarnQuotaUsed)
	}

	if size := len(submitters); size < in.MinGroupSize || size > in.MaxGroupSize {
		c.block(GroupSizeWarning(in.MinGroupSize, in.MaxGroupSize, size))
	}

	allowed := c.blocking == 0 || allStaff(in, submitters)

	return Decision{Allowed: allowed, Warnings: c.warnings, Submitters: submitters}
}

// GroupSizeWarning names the required group size: an exact number when min equals max.
func GroupSizeWarning(min, max, current int) string {
	size := fmt.Sprintf("%d", min)
	if min != max {
		size = fmt.Sprintf("%d-%d", min, max)
	}
	return fmt.Sprintf(groupSizeWarning, size, current)
}

func hasQuota(in Input, submitters []uint) bool {
	if in.MaxSubmissions == 0 {
		return true
	}
	for _, id := range submitters {
		record := in.Records[id]
		if RemainingAllowed(in.MaxSubmissions, record.UsedSubmissions, record.ExtraSubmissions) {
			return true
		}
	}
	return false
}

func allStaff(in Input, submitters []uint) bool {
	staff := map[uint]bool{in.Requester.ID: in.Requester.Staff}
	for _, member := range in.Group {
		staff[member.ID] = member.Staff
	}
	for _, id := range submitters {
		if !staff[id] {
			return false
		}
	}
	return len(submitters) > 0
}

func studentIDs(students []Student) []uint {
	ids := make([]uint, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return ids
}
