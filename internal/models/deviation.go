package models

import "time"

// DeadlineRuleDeviation grants a student extra time on one exercise.
type DeadlineRuleDeviation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ExerciseID   uint      `gorm:"not null;index" json:"exercise_id"`
	SubmitterID  uint      `gorm:"not null;index" json:"submitter_id"`
	ExtraMinutes int       `gorm:"not null" json:"extra_minutes"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewDeadline returns the extended deadline relative to the module closing time.
func (d DeadlineRuleDeviation) NewDeadline(closing time.Time) time.Time {
	return closing.Add(time.Duration(d.ExtraMinutes) * time.Minute)
}

// MaxSubmissionsRuleDeviation grants a student extra submissions on one exercise.
type MaxSubmissionsRuleDeviation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExerciseID       uint      `gorm:"not null;index" json:"exercise_id"`
	SubmitterID      uint      `gorm:"not null;index" json:"submitter_id"`
	ExtraSubmissions int       `gorm:"not null" json:"extra_submissions"`
	CreatedAt        time.Time `json:"created_at"`
}
