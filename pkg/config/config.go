package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Supported datastore drivers.
const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"
)

type Config struct {
	Env  string
	Port int

	Log        LogConfig
	Sheets     SheetsConfig
	Worksheets WorksheetsConfig
	Datastore  DatastoreConfig
	Pipeline   PipelineConfig
	Rejects    RejectsConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	Trigger    TriggerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// SheetsConfig identifies the spreadsheet and the service account used to read it.
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

// Worksheet names a tab and the row holding its header (0 = first non-empty row).
type Worksheet struct {
	Name      string
	HeaderRow int
}

type WorksheetsConfig struct {
	Courses     Worksheet
	Enrollments Worksheet
	Payments    Worksheet
	Students    Worksheet
}

// DatastoreConfig selects the write backend and its credentials.
type DatastoreConfig struct {
	Driver         string
	URL            string
	ServiceRoleKey string
	AnonKey        string
	DatabaseURL    string
	MaxOpenConns   int
	MaxIdleConns   int
	Timeout        time.Duration
	BatchSize      int
}

// PipelineConfig tunes the run itself.
type PipelineConfig struct {
	Concurrency              int
	RunTimeout               time.Duration
	EnrollmentCoursePrefix   string
	IncludeFirstInstallments bool
}

// RejectsConfig controls the CSV backup of rows dropped during transformation.
type RejectsConfig struct {
	Dir       string
	Retention time.Duration
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	LedgerTTL time.Duration
}

type MetricsConfig struct {
	PushgatewayURL string
	Job            string
}

// TriggerConfig secures the HTTP trigger server.
type TriggerConfig struct {
	JWTSecret   string
	Issuer      string
	CORSOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindLegacyNames(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sheets = SheetsConfig{
		SpreadsheetID:   strings.TrimSpace(v.GetString("SPREADSHEET_ID")),
		CredentialsJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}

	cfg.Worksheets = WorksheetsConfig{
		Courses:     worksheet(v, "COURSES"),
		Enrollments: worksheet(v, "ENROLLMENTS"),
		Payments:    worksheet(v, "PAYMENTS"),
		Students:    worksheet(v, "STUDENTS"),
	}

	cfg.Datastore = DatastoreConfig{
		Driver:         strings.ToLower(strings.TrimSpace(v.GetString("DATASTORE_DRIVER"))),
		URL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		ServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		AnonKey:        v.GetString("SUPABASE_KEY"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		Timeout:        parseDuration(v.GetString("DATASTORE_TIMEOUT"), 30*time.Second),
		BatchSize:      v.GetInt("LOAD_BATCH_SIZE"),
	}

	cfg.Pipeline = PipelineConfig{
		Concurrency:              v.GetInt("PIPELINE_CONCURRENCY"),
		RunTimeout:               parseDuration(v.GetString("RUN_TIMEOUT"), 10*time.Minute),
		EnrollmentCoursePrefix:   v.GetString("ENROLLMENT_COURSE_PREFIX"),
		IncludeFirstInstallments: v.GetBool("PAYMENTS_INCLUDE_FIRST_INSTALLMENT"),
	}

	cfg.Rejects = RejectsConfig{
		Dir:       v.GetString("REJECTS_DIR"),
		Retention: parseDuration(v.GetString("REJECTS_RETENTION"), 30*24*time.Hour),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("REDIS_ENABLED"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		LedgerTTL: parseDuration(v.GetString("RUN_LEDGER_TTL"), 30*24*time.Hour),
	}

	cfg.Metrics = MetricsConfig{
		PushgatewayURL: v.GetString("PUSHGATEWAY_URL"),
		Job:            v.GetString("METRICS_JOB"),
	}

	cfg.Trigger = TriggerConfig{
		JWTSecret:   v.GetString("TRIGGER_JWT_SECRET"),
		Issuer:      v.GetString("TRIGGER_JWT_ISSUER"),
		CORSOrigins: splitList(v.GetString("TRIGGER_CORS_ORIGINS")),
	}

	return cfg, nil
}

// Validate reports every missing setting required for a batch run.
func (c *Config) Validate() error {
	var missing []string
	if c.Sheets.SpreadsheetID == "" {
		missing = append(missing, "SPREADSHEET_ID")
	}
	if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
		missing = append(missing, "GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE")
	}
	for _, ws := range []struct {
		key  string
		name string
	}{
		{"WORKSHEET_COURSES", c.Worksheets.Courses.Name},
		{"WORKSHEET_ENROLLMENTS", c.Worksheets.Enrollments.Name},
		{"WORKSHEET_PAYMENTS", c.Worksheets.Payments.Name},
		{"WORKSHEET_STUDENTS", c.Worksheets.Students.Name},
	} {
		if strings.TrimSpace(ws.name) == "" {
			missing = append(missing, ws.key)
		}
	}

	switch c.Datastore.Driver {
	case DriverPostgREST:
		if c.Datastore.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Datastore.ServiceRoleKey == "" && c.Datastore.AnonKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY or SUPABASE_KEY")
		}
	case DriverPostgres:
		if c.Datastore.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DATASTORE_DRIVER %q", c.Datastore.Driver)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func worksheet(v *viper.Viper, table string) Worksheet {
	return Worksheet{
		Name:      strings.TrimSpace(v.GetString("WORKSHEET_" + table)),
		HeaderRow: v.GetInt("WORKSHEET_" + table + "_HEADER_ROW"),
	}
}

// bindLegacyNames keeps the environment names used by the first deployment working.
func bindLegacyNames(v *viper.Viper) {
	_ = v.BindEnv("SPREADSHEET_ID", "SPREADSHEET_ID", "Matricula_PI_ID", "MATRICULA_PI_ID")
	_ = v.BindEnv("WORKSHEET_COURSES", "WORKSHEET_COURSES", "WORKSHEET_CURSOS")
	_ = v.BindEnv("WORKSHEET_ENROLLMENTS", "WORKSHEET_ENROLLMENTS", "WORKSHEET_MATRICULAS")
	_ = v.BindEnv("WORKSHEET_PAYMENTS", "WORKSHEET_PAYMENTS", "WORKSHEET_PAGOS")
	_ = v.BindEnv("WORKSHEET_STUDENTS", "WORKSHEET_STUDENTS", "WORKSHEET_ESTUDIANTES")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKSHEET_COURSES", "Cursos")
	v.SetDefault("WORKSHEET_ENROLLMENTS", "Matriculas")
	v.SetDefault("WORKSHEET_PAYMENTS", "Pagos")
	v.SetDefault("WORKSHEET_STUDENTS", "Estudiantes")
	v.SetDefault("WORKSHEET_COURSES_HEADER_ROW", 2)
	v.SetDefault("WORKSHEET_ENROLLMENTS_HEADER_ROW", 3)
	v.SetDefault("WORKSHEET_PAYMENTS_HEADER_ROW", 6)
	v.SetDefault("WORKSHEET_STUDENTS_HEADER_ROW", 2)

	v.SetDefault("DATASTORE_DRIVER", DriverPostgREST)
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("DATASTORE_TIMEOUT", "30s")
	v.SetDefault("LOAD_BATCH_SIZE", 500)

	v.SetDefault("PIPELINE_CONCURRENCY", 1)
	v.SetDefault("RUN_TIMEOUT", "10m")
	v.SetDefault("ENROLLMENT_COURSE_PREFIX", "P")
	v.SetDefault("PAYMENTS_INCLUDE_FIRST_INSTALLMENT", true)

	v.SetDefault("REJECTS_DIR", "")
	v.SetDefault("REJECTS_RETENTION", "720h")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RUN_LEDGER_TTL", "720h")

	v.SetDefault("PUSHGATEWAY_URL", "")
	v.SetDefault("METRICS_JOB", "sheets_etl")

	v.SetDefault("TRIGGER_JWT_SECRET", "")
	v.SetDefault("TRIGGER_JWT_ISSUER", "")
	v.SetDefault("TRIGGER_CORS_ORIGINS", "")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
