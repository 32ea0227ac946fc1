package models

// TableName names a destination table.
type TableName string

// Destination tables in processing order.
const (
	TableCourses     TableName = "courses"
	TableStudents    TableName = "students"
	TableEnrollments TableName = "enrollments"
	TablePayments    TableName = "payments"
)

// LoadStrategy selects how a table is written.
type LoadStrategy string

// Supported strategies.
const (
	StrategyUpsert         LoadStrategy = "upsert"
	StrategyFilteredInsert LoadStrategy = "filtered_insert"
)

// TableSpec describes a destination table. Columns follow the db tags of the table's record type.
type TableSpec struct {
	Name     TableName
	Strategy LoadStrategy
	Key      string
	// DateColumn holds the day used by the date window; empty for master data.
	DateColumn string
	Columns    []string
}

// Transactional reports whether rows are date filtered and appended.
func (s TableSpec) Transactional() bool {
	return s.Strategy == StrategyFilteredInsert
}

var (
	CoursesTable = TableSpec{
		Name:     TableCourses,
		Strategy: StrategyUpsert,
		Key:      "course_code",
		Columns:  []string{"course_code", "course_name", "module_number", "start_date", "teacher_code", "schedule"},
	}
	StudentsTable = TableSpec{
		Name:     TableStudents,
		Strategy: StrategyUpsert,
		Key:      "student_code",
		Columns:  []string{"student_code", "first_names", "last_names", "email", "phone", "country", "gender", "contact_channel", "education_level"},
	}
	EnrollmentsTable = TableSpec{
		Name:       TableEnrollments,
		Strategy:   StrategyFilteredInsert,
		Key:        "enrollment_code",
		DateColumn: "enrollment_date",
		Columns:    []string{"enrollment_code", "course_code", "course_count", "enrollment_date", "student_condition", "student_code", "enrollment_amount"},
	}
	PaymentsTable = TableSpec{
		Name:       TablePayments,
		Strategy:   StrategyFilteredInsert,
		Key:        "enrollment_code",
		DateColumn: "payment_date",
		Columns:    []string{"enrollment_code", "amount", "payment_method", "currency", "registered_by", "payment_date"},
	}
)

// Tables lists every destination in processing order, master data first.
func Tables() []TableSpec {
	return []TableSpec{CoursesTable, StudentsTable, EnrollmentsTable, PaymentsTable}
}

// LookupTable returns the table definition for name.
func LookupTable(name TableName) (TableSpec, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}
