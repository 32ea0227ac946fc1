package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, DriverPostgREST, cfg.Datastore.Driver)
	assert.Equal(t, "Cursos", cfg.Worksheets.Courses.Name)
	assert.Equal(t, 2, cfg.Worksheets.Courses.HeaderRow)
	assert.Equal(t, 3, cfg.Worksheets.Enrollments.HeaderRow)
	assert.Equal(t, 6, cfg.Worksheets.Payments.HeaderRow)
	assert.Equal(t, 500, cfg.Datastore.BatchSize)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.Equal(t, "P", cfg.Pipeline.EnrollmentCoursePrefix)
	assert.True(t, cfg.Pipeline.IncludeFirstInstallments)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
}

func TestLoadLegacyEnvironmentNames(t *testing.T) {
	t.Setenv("Matricula_PI_ID", "sheet-123")
	t.Setenv("WORKSHEET_CURSOS", "Cursos PI")
	t.Setenv("WORKSHEET_MATRICULAS", "Matriculas PI")
	t.Setenv("WORKSHEET_PAGOS", "Regular Pagos")
	t.Setenv("WORKSHEET_ESTUDIANTES", "Alumnos")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "Cursos PI", cfg.Worksheets.Courses.Name)
	assert.Equal(t, "Matriculas PI", cfg.Worksheets.Enrollments.Name)
	assert.Equal(t, "Regular Pagos", cfg.Worksheets.Payments.Name)
	assert.Equal(t, "Alumnos", cfg.Worksheets.Students.Name)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPREADSHEET_ID", "sheet-abc")
	t.Setenv("SUPABASE_URL", "https://demo.supabase.co/")
	t.Setenv("DATASTORE_TIMEOUT", "5s")
	t.Setenv("RUN_TIMEOUT", "not-a-duration")
	t.Setenv("WORKSHEET_PAYMENTS_HEADER_ROW", "0")
	t.Setenv("TRIGGER_CORS_ORIGINS", "https://ops.example.com, ,https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sheet-abc", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "https://demo.supabase.co", cfg.Datastore.URL)
	assert.Equal(t, 5*time.Second, cfg.Datastore.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 0, cfg.Worksheets.Payments.HeaderRow)
	assert.Equal(t, []string{"https://ops.example.com", "https://admin.example.com"}, cfg.Trigger.CORSOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Sheets: SheetsConfig{SpreadsheetID: "id", CredentialsJSON: "{}"},
			Worksheets: WorksheetsConfig{
				Courses:     Worksheet{Name: "Cursos"},
				Enrollments: Worksheet{Name: "Matriculas"},
				Payments:    Worksheet{Name: "Pagos"},
				Students:    Worksheet{Name: "Estudiantes"},
			},
			Datastore: DatastoreConfig{Driver: DriverPostgREST, URL: "https://x.supabase.co", ServiceRoleKey: "key"},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Datastore.ServiceRoleKey = ""
	cfg.Datastore.AnonKey = "anon"
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Sheets.SpreadsheetID = ""
	cfg.Datastore.URL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPREADSHEET_ID")
	assert.Contains(t, err.Error(), "SUPABASE_URL")

	cfg = valid()
	cfg.Datastore.Driver = DriverPostgres
	require.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg = valid()
	cfg.Datastore.Driver = DriverMemory
	cfg.Datastore.URL = ""
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Datastore.Driver = "mysql"
	require.ErrorContains(t, cfg.Validate(), "unsupported")
}
