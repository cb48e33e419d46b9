package models

import "time"

// Activity is the host platform record whose dates an approval extends.
type Activity struct {
	ID        string     `db:"id" json:"id"`
	Type      TargetType `db:"-" json:"type"`
	CourseID  string     `db:"course_id" json:"course_id"`
	Name      string     `db:"name" json:"name"`
	DueDate   *time.Time `db:"due_date" json:"due_date,omitempty"`
	CloseDate *time.Time `db:"close_date" json:"close_date,omitempty"`
}
