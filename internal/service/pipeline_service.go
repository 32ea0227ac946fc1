package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/pkg/config"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/jobs"
	applogger "github.com/noah-isme/sheets-etl/pkg/logger"
)

type runLedger interface {
	Count(ctx context.Context, date models.Date) (int, error)
	Append(ctx context.Context, summary *models.RunSummary) error
}

// PipelineConfig tunes a run.
type PipelineConfig struct {
	Worksheets               config.WorksheetsConfig
	Concurrency              int
	IncludeFirstInstallments bool
	Driver                   string
}

func (c PipelineConfig) worksheet(table models.TableName) config.Worksheet {
	switch table {
	case models.TableCourses:
		return c.Worksheets.Courses
	case models.TableStudents:
		return c.Worksheets.Students
	case models.TableEnrollments:
		return c.Worksheets.Enrollments
	default:
		return c.Worksheets.Payments
	}
}

// PipelineDeps groups the collaborators of PipelineService. Rejects, Ledger and Metrics are optional.
type PipelineDeps struct {
	Extract   *ExtractService
	Transform *TransformService
	Load      *LoadService
	Rejects   *RejectService
	Ledger    runLedger
	Metrics   *MetricsService
	Logger    *zap.Logger
	Clock     func() time.Time
}

// PipelineService runs extract, transform and load for every destination table.
type PipelineService struct {
	deps PipelineDeps
	cfg  PipelineConfig
	pool *jobs.Pool
	log  *zap.Logger
	now  func() time.Time
	mu   sync.Mutex
}

// NewPipelineService constructs the orchestrator.
func NewPipelineService(deps PipelineDeps, cfg PipelineConfig) *PipelineService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &PipelineService{
		deps: deps,
		cfg:  cfg,
		pool: jobs.NewPool("tables", jobs.PoolConfig{Workers: cfg.Concurrency, Logger: logger}),
		log:  logger,
		now:  now,
	}
}

// Run processes the day before now.
func (s *PipelineService) Run(ctx context.Context) (*models.RunSummary, error) {
	return s.RunAt(ctx, s.now())
}

// RunAt processes the day before runAt. Only one run executes at a time; a concurrent call gets
// ErrRunInProgress. The returned error is non-nil only when the run could not start or was aborted
// by a fatal error; table failures are reported in the summary.
func (s *PipelineService) RunAt(ctx context.Context, runAt time.Time) (*models.RunSummary, error) {
	if !s.mu.TryLock() {
		return nil, appErrors.ErrRunInProgress
	}
	defer s.mu.Unlock()

	target := TargetDate(runAt)
	summary := &models.RunSummary{
		RunID:      uuid.NewString(),
		TargetDate: target,
		StartedAt:  s.now().UTC(),
		Driver:     s.cfg.Driver,
	}
	log := applogger.ForRun(s.log, summary.RunID, target.String())
	log.Info("run started", zap.Time("run_at", runAt), zap.String("driver", s.cfg.Driver), zap.Int("concurrency", s.cfg.Concurrency))

	s.checkRerun(ctx, summary, log)
	s.deps.Rejects.Cleanup()

	specs := models.Tables()
	if err := s.preflight(ctx, log); err != nil {
		summary.Fatal = err.Error()
		summary.Tables = make([]models.TableResult, len(specs))
		for i, spec := range specs {
			summary.Tables[i] = aborted(spec.Name, err)
		}
		s.finish(ctx, summary, log)
		return summary, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := s.deps.Extract.Session()
	results := make([]models.TableResult, len(specs))
	var (
		fatalOnce sync.Once
		fatal     error
	)
	tasks := make([]jobs.Task, len(specs))
	for i, spec := range specs {
		tasks[i] = jobs.Task{
			Name: string(spec.Name),
			Run: func(ctx context.Context) error {
				res, err := s.runTable(ctx, session, spec, summary.RunID, target, applogger.ForTable(log, string(spec.Name)))
				results[i] = res
				if appErrors.IsFatal(err) {
					fatalOnce.Do(func() {
						fatal = err
						cancel()
					})
				}
				return err
			},
		}
	}

	for i, r := range s.pool.Run(runCtx, tasks) {
		var panicErr *jobs.PanicError
		switch {
		case r.Skipped:
			cause := fatal
			if cause == nil {
				cause = r.Err
			}
			results[i] = aborted(specs[i].Name, cause)
		case errors.As(r.Err, &panicErr):
			results[i] = models.TableResult{
				Table:     specs[i].Name,
				Status:    models.TableFailed,
				Reason:    panicErr.Error(),
				ErrorCode: appErrors.ErrInternal.Code,
				Duration:  r.Duration,
			}
		}
	}

	summary.Tables = results
	if fatal != nil {
		summary.Fatal = fatal.Error()
	}
	s.finish(ctx, summary, log)
	return summary, fatal
}

func aborted(table models.TableName, cause error) models.TableResult {
	reason := appErrors.ErrAborted.Message
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", reason, cause)
	}
	return models.TableResult{Table: table, Status: models.TableFailed, Reason: reason, ErrorCode: appErrors.ErrAborted.Code}
}

// checkRerun warns when the target date was already processed, since transactional tables are appended again.
func (s *PipelineService) checkRerun(ctx context.Context, summary *models.RunSummary, log *zap.Logger) {
	if s.deps.Ledger == nil {
		return
	}
	n, err := s.deps.Ledger.Count(ctx, summary.TargetDate)
	if err != nil {
		log.Warn("run ledger unavailable", zap.Error(err))
		return
	}
	summary.PreviousRuns = n
	if n > 0 {
		log.Warn("target date already processed, enrollments and payments will be inserted again",
			zap.Int("previous_runs", n))
	}
}

// preflight verifies both ends are reachable and authorised before any table starts.
func (s *PipelineService) preflight(ctx context.Context, log *zap.Logger) error {
	titles, err := s.deps.Extract.Titles(ctx)
	if err != nil {
		if !appErrors.IsFatal(err) {
			err = appErrors.WrapAs(err, appErrors.ErrSourceUnavailable, "list worksheets")
		}
		log.Error("spreadsheet preflight failed", zap.Error(err))
		return err
	}

	present := make(map[string]bool, len(titles))
	for _, t := range titles {
		present[t] = true
	}
	for _, spec := range models.Tables() {
		ws := s.cfg.worksheet(spec.Name)
		if !present[ws.Name] {
			log.Warn("worksheet not found, table will fail", zap.String("table", string(spec.Name)), zap.String("worksheet", ws.Name))
		}
	}

	if err := s.deps.Load.Ping(ctx); err != nil {
		if !appErrors.IsFatal(err) {
			err = appErrors.WrapAs(err, appErrors.ErrSinkUnavailable, "")
		}
		log.Error("datastore preflight failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *PipelineService) runTable(ctx context.Context, session *ExtractSession, spec models.TableSpec, runID string, target models.Date, log *zap.Logger) (models.TableResult, error) {
	started := time.Now()
	res := models.TableResult{Table: spec.Name}
	fail := func(err error) (models.TableResult, error) {
		res.Status = models.TableFailed
		res.Reason = err.Error()
		res.ErrorCode = appErrors.FromError(err).Code
		res.Duration = time.Since(started)
		log.Error("table failed", zap.String("error_code", res.ErrorCode), zap.Error(err))
		return res, err
	}

	out, extracted, err := s.transformTable(ctx, session, spec)
	if err != nil {
		return fail(err)
	}
	res.Extracted = extracted
	res.Rejected = len(out.Rejections)
	res.Excluded = out.Excluded

	records := out.Records
	if spec.Transactional() {
		var outside int
		records, outside = FilterWindow(records, target)
		res.Excluded += outside
		log.Info("date window applied", zap.Int("in_window", len(records)), zap.Int("outside_window", outside))
	}

	if path, err := s.deps.Rejects.Save(runID, target, spec.Name, out.Rejections); err != nil {
		log.Warn("rejections not saved", zap.Error(err))
	} else {
		res.RejectFile = path
	}

	n, err := s.deps.Load.Load(ctx, spec, records)
	res.Count = n
	if err != nil {
		return fail(err)
	}

	res.Status = models.TableSucceeded
	res.Duration = time.Since(started)
	return res, nil
}

// transformTable extracts the worksheets feeding the table and normalises them. It also returns the number of data
// rows read.
func (s *PipelineService) transformTable(ctx context.Context, session *ExtractSession, spec models.TableSpec) (*Transformed, int, error) {
	sheet, err := session.Extract(ctx, s.cfg.worksheet(spec.Name))
	if err != nil {
		return nil, 0, err
	}
	extracted := len(sheet.Rows)

	var out *Transformed
	switch spec.Name {
	case models.TableCourses:
		out, err = s.deps.Transform.Courses(sheet)
	case models.TableStudents:
		out, err = s.deps.Transform.Students(sheet)
	case models.TableEnrollments:
		out, err = s.deps.Transform.Enrollments(sheet)
	case models.TablePayments:
		out, err = s.deps.Transform.RegularPayments(sheet)
		if err != nil || !s.cfg.IncludeFirstInstallments {
			break
		}
		var enrollments *models.Sheet
		enrollments, err = session.Extract(ctx, s.cfg.Worksheets.Enrollments)
		if err != nil {
			break
		}
		var first *Transformed
		first, err = s.deps.Transform.FirstInstallmentPayments(enrollments)
		if err != nil {
			break
		}
		extracted += len(enrollments.Rows)
		out.Records = append(out.Records, first.Records...)
		out.Rejections = append(out.Rejections, first.Rejections...)
		out.Excluded += first.Excluded
	default:
		err = fmt.Errorf("no transform for table %s", spec.Name)
	}
	if err != nil {
		return nil, extracted, err
	}
	return out, extracted, nil
}

// finish stamps the summary, reports it and records it in the ledger.
func (s *PipelineService) finish(ctx context.Context, summary *models.RunSummary, log *zap.Logger) {
	summary.FinishedAt = s.now().UTC()

	for _, t := range summary.Tables {
		s.deps.Metrics.ObserveTable(t)
		fields := []zap.Field{
			zap.String("table", string(t.Table)),
			zap.String("status", string(t.Status)),
			zap.Int("count", t.Count),
			zap.Int("extracted", t.Extracted),
			zap.Int("rejected", t.Rejected),
			zap.Int("excluded", t.Excluded),
			zap.Duration("duration", t.Duration),
		}
		if t.Failed() {
			log.Error("table summary", append(fields, zap.String("reason", t.Reason), zap.String("error_code", t.ErrorCode))...)
			continue
		}
		log.Info("table summary", fields...)
	}
	s.deps.Metrics.ObserveRun(summary)

	succeeded, failed := summary.Counts()
	fields := []zap.Field{
		zap.Bool("success", summary.Succeeded()),
		zap.Int("tables_succeeded", succeeded),
		zap.Int("tables_failed", failed),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if summary.Fatal != "" {
		log.Error("run aborted", append(fields, zap.String("fatal", summary.Fatal))...)
	} else {
		log.Info("run finished", fields...)
	}

	if s.deps.Ledger == nil {
		return
	}
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.deps.Ledger.Append(ledgerCtx, summary); err != nil {
		log.Warn("run not recorded in ledger", zap.Error(err))
	}
}
