package models

import "github.com/shopspring/decimal"

// Record is a normalised row ready to be written to its destination table.
type Record interface {
	// BusinessKey identifies the logical entity. Transactional records return their reference code.
	BusinessKey() string
}

// Dated is implemented by transactional records that are filtered by calendar day.
type Dated interface {
	Record
	RecordDate() Date
}

// Course is master data keyed by course_code.
type Course struct {
	CourseCode   string `db:"course_code" json:"course_code" validate:"required"`
	CourseName   string `db:"course_name" json:"course_name"`
	ModuleNumber int    `db:"module_number" json:"module_number"`
	StartDate    Date   `db:"start_date" json:"start_date"`
	TeacherCode  string `db:"teacher_code" json:"teacher_code"`
	Schedule     string `db:"schedule" json:"schedule"`
}

// BusinessKey implements Record.
func (c Course) BusinessKey() string { return c.CourseCode }

// Student is master data keyed by student_code.
type Student struct {
	StudentCode    string `db:"student_code" json:"student_code" validate:"required"`
	FirstNames     string `db:"first_names" json:"first_names"`
	LastNames      string `db:"last_names" json:"last_names"`
	Email          string `db:"email" json:"email"`
	Phone          string `db:"phone" json:"phone"`
	Country        string `db:"country" json:"country"`
	Gender         string `db:"gender" json:"gender"`
	ContactChannel string `db:"contact_channel" json:"contact_channel"`
	EducationLevel string `db:"education_level" json:"education_level"`
}

// BusinessKey implements Record.
func (s Student) BusinessKey() string { return s.StudentCode }

// Enrollment is an append-only fact dated by enrollment_date.
type Enrollment struct {
	EnrollmentCode   string          `db:"enrollment_code" json:"enrollment_code" validate:"required"`
	CourseCode       string          `db:"course_code" json:"course_code"`
	CourseCount      int             `db:"course_count" json:"course_count"`
	EnrollmentDate   Date            `db:"enrollment_date" json:"enrollment_date" validate:"required"`
	StudentCondition string          `db:"student_condition" json:"student_condition"`
	StudentCode      string          `db:"student_code" json:"student_code"`
	EnrollmentAmount decimal.Decimal `db:"enrollment_amount" json:"enrollment_amount"`
}

// BusinessKey implements Record.
func (e Enrollment) BusinessKey() string { return e.EnrollmentCode }

// RecordDate implements Dated.
func (e Enrollment) RecordDate() Date { return e.EnrollmentDate }

// Payment is an append-only fact dated by payment_date.
type Payment struct {
	EnrollmentCode string          `db:"enrollment_code" json:"enrollment_code" validate:"required"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	Currency       string          `db:"currency" json:"currency"`
	RegisteredBy   string          `db:"registered_by" json:"registered_by"`
	PaymentDate    Date            `db:"payment_date" json:"payment_date" validate:"required"`
}

// BusinessKey implements Record.
func (p Payment) BusinessKey() string { return p.EnrollmentCode }

// RecordDate implements Dated.
func (p Payment) RecordDate() Date { return p.PaymentDate }
