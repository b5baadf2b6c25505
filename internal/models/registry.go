package models

// All lists every persisted entity in migration order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&CourseInstance{},
		&CourseStaff{},
		&CourseModule{},
		&LearningObjectCategory{},
		&LTIService{},
		&Student{},
		&StudentGroup{},
		&Enrollment{},
		&Exercise{},
		&LearningObjectDisplay{},
		&Submission{},
		&DeadlineRuleDeviation{},
		&MaxSubmissionsRuleDeviation{},
	}
}
