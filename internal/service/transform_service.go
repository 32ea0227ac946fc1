package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
)

// TargetZone is the fixed UTC-5 frame the daily window is computed in, independent of the host zone.
var TargetZone = time.FixedZone("UTC-5", -5*60*60)

// TargetDate returns the calendar day before runAt, as seen in TargetZone.
func TargetDate(runAt time.Time) models.Date {
	return models.DateOf(runAt.In(TargetZone)).AddDays(-1)
}

// RunTimeFor returns an instant whose TargetDate is target. Backfills use it to replay a given day.
func RunTimeFor(target models.Date) time.Time {
	next := target.AddDays(1)
	return time.Date(next.Year, next.Month, next.Day, 12, 0, 0, 0, TargetZone)
}

// InWindow reports whether the row is dated exactly on target.
func InWindow(row models.Dated, target models.Date) bool {
	d := row.RecordDate()
	return !d.IsZero() && d == target
}

// FilterWindow keeps the dated rows that fall on target. Undated rows never match.
func FilterWindow(rows []models.Record, target models.Date) (kept []models.Record, excluded int) {
	kept = make([]models.Record, 0, len(rows))
	for _, r := range rows {
		if dated, ok := r.(models.Dated); ok && InWindow(dated, target) {
			kept = append(kept, r)
			continue
		}
		excluded++
	}
	return kept, excluded
}

// Transformed is the outcome of normalising one sheet.
type Transformed struct {
	Records    []models.Record
	Rejections []models.Rejection
	// Excluded counts valid rows left out on purpose, such as non-project enrollments.
	Excluded int
	// Duplicates counts rows replaced by a later row with the same key.
	Duplicates int
}

// TransformConfig tunes table specific rules.
type TransformConfig struct {
	EnrollmentCoursePrefix string
}

// TransformService normalises raw sheets into typed records.
type TransformService struct {
	validate *validator.Validate
	logger   *zap.Logger
	cfg      TransformConfig
}

// NewTransformService constructs the service.
func NewTransformService(cfg TransformConfig, logger *zap.Logger) *TransformService {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &TransformService{validate: v, logger: logger, cfg: cfg}
}

// rowError marks a single row as malformed.
type rowError struct {
	reason string
}

func (e *rowError) Error() string { return e.reason }

func invalid(field, value string) error {
	return &rowError{reason: fmt.Sprintf("invalid %s %q", field, value)}
}

type rowMapper func(row models.SheetRow) (models.Record, error)

// run applies mapper to every row, validating the result and collecting rejections.
func (s *TransformService) run(table models.TableName, sheet *models.Sheet, mapper rowMapper) *Transformed {
	out := &Transformed{}
	for _, row := range sheet.Rows {
		rec, err := mapper(row)
		if err == nil {
			err = s.check(rec)
		}
		if err != nil {
			var re *rowError
			if !errors.As(err, &re) {
				re = &rowError{reason: err.Error()}
			}
			out.Rejections = append(out.Rejections, models.Rejection{Table: table, Row: row.Number, Reason: re.reason, Values: row.Values})
			s.logger.Warn("row rejected", zap.String("table", string(table)), zap.Int("row", row.Number), zap.String("reason", re.reason))
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func (s *TransformService) check(rec models.Record) error {
	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return &rowError{reason: strings.Join(parts, "; ")}
}

// dedupeLastWins keeps the last record per business key, in first-seen key order.
func (s *TransformService) dedupeLastWins(table models.TableName, out *Transformed) {
	var dups []string
	out.Records, dups = dedupeByKey(out.Records)
	out.Duplicates = len(dups)
	if len(dups) > 0 {
		if len(dups) > 20 {
			dups = dups[:20]
		}
		s.logger.Warn("duplicate keys in sheet, keeping last row",
			zap.String("table", string(table)), zap.Int("duplicates", out.Duplicates), zap.Strings("keys", dups))
	}
}

// dedupeByKey collapses records sharing a business key onto the last one and returns the replaced keys.
func dedupeByKey(records []models.Record) ([]models.Record, []string) {
	pos := make(map[string]int, len(records))
	kept := make([]models.Record, 0, len(records))
	var dups []string
	for _, rec := range records {
		key := rec.BusinessKey()
		if i, ok := pos[key]; ok {
			kept[i] = rec
			dups = append(dups, key)
			continue
		}
		pos[key] = len(kept)
		kept = append(kept, rec)
	}
	return kept, dups
}

// requireColumns resolves every field, failing the table when a required one is absent.
func (s *TransformService) requireColumns(table models.TableName, sheet *models.Sheet, fields []columnSpec) (map[string]string, error) {
	idx := newColumnIndex(sheet.Header)
	resolved := make(map[string]string, len(fields))
	var missingRequired, missingOptional []string
	for _, f := range fields {
		col := idx.find(f.candidates...)
		resolved[f.field] = col
		if col != "" {
			continue
		}
		if f.required {
			missingRequired = append(missingRequired, f.candidates[0])
		} else {
			missingOptional = append(missingOptional, f.candidates[0])
		}
	}
	if len(missingRequired) > 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedSheet,
			fmt.Sprintf("worksheet %q for %s is missing columns: %s", sheet.Title, table, strings.Join(missingRequired, ", ")))
	}
	if len(missingOptional) > 0 {
		s.logger.Warn("columns not found, values left empty",
			zap.String("table", string(table)), zap.String("worksheet", sheet.Title), zap.Strings("columns", missingOptional))
	}
	return resolved, nil
}

type columnSpec struct {
	field      string
	required   bool
	candidates []string
}

func col(field string, required bool, candidates ...string) columnSpec {
	return columnSpec{field: field, required: required, candidates: candidates}
}

func cell(row models.SheetRow, cols map[string]string, field string) string {
	name := cols[field]
	if name == "" {
		return ""
	}
	return row.Get(name)
}

var courseColumns = []columnSpec{
	col("course_code", true, "CÓDIGO_C", "codigo curso"),
	col("course_name", false, "NOMBRE_C", "nombre curso"),
	col("module_number", false, "I1", "numero modulo"),
	col("start_date", false, "FECHA DE INICIO", "fecha inicio"),
	col("teacher_code", false, "PROFESOR"),
	col("schedule", false, "HORARIOS"),
}

// Courses normalises the courses worksheet. Repeated course codes keep the last row.
func (s *TransformService) Courses(sheet *models.Sheet) (*Transformed, error) {
	if len(sheet.Rows) == 0 {
		return &Transformed{}, nil
	}
	cols, err := s.requireColumns(models.TableCourses, sheet, courseColumns)
	if err != nil {
		return nil, err
	}

	out := s.run(models.TableCourses, sheet, func(row models.SheetRow) (models.Record, error) {
		module, err := parseCount(cell(row, cols, "module_number"))
		if err != nil {
			return nil, invalid("module_number", cell(row, cols, "module_number"))
		}
		start, err := parseDate(cell(row, cols, "start_date"))
		if err != nil {
			return nil, invalid("start_date", cell(row, cols, "start_date"))
		}
		return models.Course{
			CourseCode:   cell(row, cols, "course_code"),
			CourseName:   cell(row, cols, "course_name"),
			ModuleNumber: module,
			StartDate:    start,
			TeacherCode:  firstToken(cell(row, cols, "teacher_code")),
			Schedule:     cell(row, cols, "schedule"),
		}, nil
	})
	s.dedupeLastWins(models.TableCourses, out)
	return out, nil
}

var studentColumns = []columnSpec{
	col("student_code", true, "CODIGO_E", "codigo estudiante"),
	col("first_names", false, "NOMBRES_E", "nombres"),
	col("last_names", false, "APELLIDOS_E", "apellidos"),
	col("email", false, "CORREO_E", "correo"),
	col("phone", false, "NUMERO_E", "telefono"),
	col("gender", false, "GÉNERO_E", "genero"),
	col("contact_channel", false, "RED DE CONTACTO_E"),
	col("education_level", false, "GRADO DE INSTRUCCIÓN_E"),
}

// Students normalises the students worksheet and derives the country from the phone number.
func (s *TransformService) Students(sheet *models.Sheet) (*Transformed, error) {
	if len(sheet.Rows) == 0 {
		return &Transformed{}, nil
	}
	cols, err := s.requireColumns(models.TableStudents, sheet, studentColumns)
	if err != nil {
		return nil, err
	}

	out := s.run(models.TableStudents, sheet, func(row models.SheetRow) (models.Record, error) {
		phone := cell(row, cols, "phone")
		return models.Student{
			StudentCode:    cell(row, cols, "student_code"),
			FirstNames:     titleCase(cell(row, cols, "first_names")),
			LastNames:      titleCase(cell(row, cols, "last_names")),
			Email:          strings.ToLower(cell(row, cols, "email")),
			Phone:          phone,
			Country:        phoneCountry(phone),
			Gender:         cell(row, cols, "gender"),
			ContactChannel: cell(row, cols, "contact_channel"),
			EducationLevel: cell(row, cols, "education_level"),
		}, nil
	})
	s.dedupeLastWins(models.TableStudents, out)
	return out, nil
}

var enrollmentColumns = []columnSpec{
	col("enrollment_code", true, "Código de matrícula"),
	col("course_code", false, "Cursos de matrícula"),
	col("course_count", false, "num cursos"),
	col("enrollment_date", true, "Fecha de pago de la primera cuota"),
	col("student_condition", false, "Condición del alumno"),
	col("student_code", false, "Código de estudiante FINAL", "Código de estudiante"),
	col("enrollment_amount", false, "Monto de Pago"),
}

// Enrollments normalises the enrollments worksheet. The first-installment payment date is the enrollment date.
// Repeated enrollment codes keep the last row, then rows whose course is not a project course are excluded.
func (s *TransformService) Enrollments(sheet *models.Sheet) (*Transformed, error) {
	if len(sheet.Rows) == 0 {
		return &Transformed{}, nil
	}
	cols, err := s.requireColumns(models.TableEnrollments, sheet, enrollmentColumns)
	if err != nil {
		return nil, err
	}
	prefix := s.cfg.EnrollmentCoursePrefix

	out := s.run(models.TableEnrollments, sheet, func(row models.SheetRow) (models.Record, error) {
		date, err := parseDate(cell(row, cols, "enrollment_date"))
		if err != nil {
			return nil, invalid("enrollment_date", cell(row, cols, "enrollment_date"))
		}
		amount, err := parseAmount(cell(row, cols, "enrollment_amount"))
		if err != nil {
			return nil, invalid("enrollment_amount", cell(row, cols, "enrollment_amount"))
		}
		course := cell(row, cols, "course_code")
		count := 0
		if prefix == "" || strings.HasPrefix(course, prefix) {
			course = firstToken(course)
			if count, err = parseCount(cell(row, cols, "course_count")); err != nil {
				return nil, invalid("course_count", cell(row, cols, "course_count"))
			}
		}
		return models.Enrollment{
			EnrollmentCode:   cell(row, cols, "enrollment_code"),
			CourseCode:       course,
			CourseCount:      count,
			EnrollmentDate:   date,
			StudentCondition: cell(row, cols, "student_condition"),
			StudentCode:      cell(row, cols, "student_code"),
			EnrollmentAmount: amount,
		}, nil
	})
	s.dedupeLastWins(models.TableEnrollments, out)

	if prefix != "" {
		kept := out.Records[:0]
		for _, rec := range out.Records {
			if strings.HasPrefix(rec.(models.Enrollment).CourseCode, prefix) {
				kept = append(kept, rec)
				continue
			}
			out.Excluded++
		}
		out.Records = kept
		if out.Excluded > 0 {
			s.logger.Info("enrollments outside project courses excluded",
				zap.Int("excluded", out.Excluded), zap.String("prefix", prefix))
		}
	}
	return out, nil
}

var regularPaymentColumns = []columnSpec{
	col("enrollment_code", true, "Código de matrícula"),
	col("amount", false, "Monto de Pago", "monto"),
	col("payment_method", false, "Método de Pago"),
	col("registered_by", false, "Encargado de Registro", "encargado"),
	col("payment_date", true, "Fecha de pago", "FECHA_P"),
}

// RegularPayments normalises the payments worksheet. The currency follows the payment method.
func (s *TransformService) RegularPayments(sheet *models.Sheet) (*Transformed, error) {
	if len(sheet.Rows) == 0 {
		return &Transformed{}, nil
	}
	cols, err := s.requireColumns(models.TablePayments, sheet, regularPaymentColumns)
	if err != nil {
		return nil, err
	}

	return s.run(models.TablePayments, sheet, func(row models.SheetRow) (models.Record, error) {
		amount, err := parseAmount(cell(row, cols, "amount"))
		if err != nil {
			return nil, invalid("amount", cell(row, cols, "amount"))
		}
		date, err := parseDate(cell(row, cols, "payment_date"))
		if err != nil {
			return nil, invalid("payment_date", cell(row, cols, "payment_date"))
		}
		method := cell(row, cols, "payment_method")
		return models.Payment{
			EnrollmentCode: cell(row, cols, "enrollment_code"),
			Amount:         amount,
			PaymentMethod:  normalizeAccount(method),
			Currency:       inferCurrency(method),
			RegisteredBy:   cell(row, cols, "registered_by"),
			PaymentDate:    date,
		}, nil
	}), nil
}

var firstInstallmentColumns = []columnSpec{
	col("enrollment_code", true, "Código de matrícula"),
	col("amount", false, "Primera Cuota"),
	col("payment_method", false, "Método de Pago"),
	col("currency", false, "Moneda"),
	col("registered_by", false, "Encargado de Registro", "encargado"),
	col("payment_date", true, "Fecha de pago de la primera cuota"),
}

// FirstInstallmentPayments derives one payment per enrollment row from its first installment.
func (s *TransformService) FirstInstallmentPayments(sheet *models.Sheet) (*Transformed, error) {
	if len(sheet.Rows) == 0 {
		return &Transformed{}, nil
	}
	cols, err := s.requireColumns(models.TablePayments, sheet, firstInstallmentColumns)
	if err != nil {
		return nil, err
	}

	return s.run(models.TablePayments, sheet, func(row models.SheetRow) (models.Record, error) {
		amount, err := parseAmount(cell(row, cols, "amount"))
		if err != nil {
			return nil, invalid("amount", cell(row, cols, "amount"))
		}
		date, err := parseDate(cell(row, cols, "payment_date"))
		if err != nil {
			return nil, invalid("payment_date", cell(row, cols, "payment_date"))
		}
		method := cell(row, cols, "payment_method")
		currency := strings.ToUpper(cell(row, cols, "currency"))
		if currency == "" {
			currency = inferCurrency(method)
		}
		return models.Payment{
			EnrollmentCode: cell(row, cols, "enrollment_code"),
			Amount:         amount,
			PaymentMethod:  normalizeAccount(method),
			Currency:       currency,
			RegisteredBy:   cell(row, cols, "registered_by"),
			PaymentDate:    date,
		}, nil
	}), nil
}
