package models

import "time"

// Student represents a user profile that can submit exercises or staff a course.
type Student struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Email         string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	StudentNumber string    `gorm:"size:32" json:"student_number"`
	Language      string    `gorm:"size:8;default:en" json:"language"`
	// Role is the platform role carried in issued tokens, e.g. "admin".
	Role          string    `gorm:"size:32" json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StudentGroup is a set of students that submit together within one course instance.
type StudentGroup struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CourseInstanceID uint      `gorm:"not null;index" json:"course_instance_id"`
	Members          []Student `gorm:"many2many:student_group_members;" json:"members"`
	CreatedAt        time.Time `json:"created_at"`
}

// MemberIDs lists the profile ids of the group members.
func (g StudentGroup) MemberIDs() []uint {
	ids := make([]uint, 0, len(g.Members))
	for _, member := range g.Members {
		ids = append(ids, member.ID)
	}
	return ids
}

// Enrollment binds a student to a course instance together with the selected group.
type Enrollment struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	CourseInstanceID uint          `gorm:"not null;uniqueIndex:idx_enrollment_student" json:"course_instance_id"`
	StudentID        uint          `gorm:"not null;uniqueIndex:idx_enrollment_student" json:"student_id"`
	SelectedGroupID  *uint         `json:"selected_group_id"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	SelectedGroup    *StudentGroup `gorm:"foreignKey:SelectedGroupID" json:"selected_group,omitempty"`
}
