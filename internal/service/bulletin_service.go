package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin-api/internal/dto"
	"github.com/noah-isme/sma-bulletin-api/internal/grading"
	"github.com/noah-isme/sma-bulletin-api/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
	"github.com/noah-isme/sma-bulletin-api/pkg/export"
)

const dateLayout = "2006-01-02"

type gradeLedger interface {
	ListByStudent(ctx context.Context, studentID string, window models.DateWindow) ([]models.GradeEntry, error)
	ListByStudents(ctx context.Context, studentIDs []string, window models.DateWindow) (map[string][]models.GradeEntry, error)
}

type rosterReader interface {
	ListActive(ctx context.Context, classID, termID string) ([]models.RosterStudent, error)
	FindEnrollment(ctx context.Context, studentID, termID string) (*models.RosterStudent, error)
	StudentExists(ctx context.Context, studentID string) (bool, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindActive(ctx context.Context) (*models.Term, error)
}

type subjectTeacherReader interface {
	TeacherLabels(ctx context.Context, classID string) (map[string]string, error)
	HasTeacher(ctx context.Context, classID, teacherID string) (bool, error)
}

type coefficientReader interface {
	TableForClass(ctx context.Context, classID string) (map[string]float64, error)
}

type bulletinRenderer interface {
	Render(w io.Writer, doc models.ReportCardDocument) error
	RenderBulk(w io.Writer, docs []models.ReportCardDocument) (skipped map[int]error, err error)
}

// BulletinRepositories groups the read models the bulletin pipeline depends on.
type BulletinRepositories struct {
	Ledger       gradeLedger
	Roster       rosterReader
	Terms        termReader
	Subjects     subjectTeacherReader
	Coefficients coefficientReader
}

// BulletinServiceConfig holds computation policies.
type BulletinServiceConfig struct {
	SchoolYear   string
	Policy       models.CoefficientPolicy
	Strategy     models.RankStrategy
	Workers      int
	CacheTTL     time.Duration
	CSVSeparator rune
}

// RenderedFile is a generated document ready to be served as an attachment.
type RenderedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BulletinService computes class results and composes and renders bulletins.
type BulletinService struct {
	repos     BulletinRepositories
	renderer  bulletinRenderer
	exporters map[export.Format]export.Exporter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BulletinServiceConfig
}

// NewBulletinService constructs the service.
func NewBulletinService(repos BulletinRepositories, renderer bulletinRenderer, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg BulletinServiceConfig) *BulletinService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Strategy.Valid() {
		cfg.Strategy = models.RankSequential
	}
	if cfg.Policy != models.CoefficientTable {
		cfg.Policy = models.CoefficientFirstEntry
	}
	if cfg.CSVSeparator == 0 {
		cfg.CSVSeparator = ';'
	}
	return &BulletinService{
		repos:    repos,
		renderer: renderer,
		exporters: map[export.Format]export.Exporter{
			export.FormatCSV:  export.NewCSVExporter(cfg.CSVSeparator),
			export.FormatXLSX: export.NewXLSXExporter(),
			export.FormatPDF:  export.NewPDFExporter(),
		},
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// classComputation is a computed class with the roster it was computed for.
type classComputation struct {
	Term    *models.Term
	Window  models.DateWindow
	Roster  []models.RosterStudent
	Results *models.ClassResults
}

// StudentBulletin composes the bulletin of a student for a term, ranked within the student's class.
func (s *BulletinService) StudentBulletin(ctx context.Context, studentID string, q dto.BulletinQuery, actorID string, role models.UserRole) (*models.ReportCardDocument, error) {
	return s.composeStudent(ctx, studentID, dto.RenderBulletinRequest{
		TermID:   q.TermID,
		ClassID:  q.ClassID,
		From:     q.From,
		To:       q.To,
		Strategy: q.Strategy,
	}, actorID, role)
}

// RenderStudentBulletin composes the bulletin and renders it as PDF. The request may override the
// term label and carry the council comment and per-subject remarks.
func (s *BulletinService) RenderStudentBulletin(ctx context.Context, studentID string, req dto.RenderBulletinRequest, actorID string, role models.UserRole) (*RenderedFile, error) {
	doc, err := s.composeStudent(ctx, studentID, req, actorID, role)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	start := time.Now()
	if err := s.renderer.Render(&buf, *doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRenderFailed.Code, appErrors.ErrRenderFailed.Status, "failed to render bulletin")
	}
	s.metrics.ObserveRender("single", 1, time.Since(start))
	return &RenderedFile{
		Filename:    export.BulletinFilename(doc.StudentName, doc.TermLabel, "pdf"),
		ContentType: export.FormatPDF.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

func (s *BulletinService) composeStudent(ctx context.Context, studentID string, req dto.RenderBulletinRequest, actorID string, role models.UserRole) (*models.ReportCardDocument, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	term, err := s.ResolveTerm(ctx, req.TermID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.findEnrollment(ctx, studentID, term.ID)
	if err != nil {
		return nil, err
	}
	if req.ClassID != "" && req.ClassID != enrollment.ClassID {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in the requested class")
	}
	if err := s.AuthorizeClass(ctx, enrollment.ClassID, actorID, role); err != nil {
		return nil, err
	}
	window, err := resolveWindow(term, req.From, req.To)
	if err != nil {
		return nil, err
	}
	class, err := s.computeClass(ctx, enrollment.ClassID, term, window, s.strategy(req.Strategy))
	if err != nil {
		return nil, err
	}
	result, ok := class.Results.Student(studentID)
	if !ok {
		// enrolled after the roster was read; evaluate alone, unranked
		result, err = s.evaluateStudent(ctx, studentID, enrollment.ClassID, window)
		if err != nil {
			return nil, err
		}
	}
	teachers, err := s.repos.Subjects.TeacherLabels(ctx, enrollment.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject teachers")
	}
	termLabel := term.Name
	if req.TermLabel != "" {
		termLabel = req.TermLabel
	}
	doc := grading.Compose(grading.ComposeInput{
		Student:        *enrollment,
		SchoolYear:     s.schoolYear(term),
		TermLabel:      termLabel,
		Result:         result,
		Class:          class.Results,
		Teachers:       teachers,
		Remarks:        req.Remarks,
		CouncilComment: req.CouncilComment,
	})
	return &doc, nil
}

func (s *BulletinService) evaluateStudent(ctx context.Context, studentID, classID string, window models.DateWindow) (models.StudentResult, error) {
	start := time.Now()
	entries, err := s.repos.Ledger.ListByStudent(ctx, studentID, window)
	s.metrics.ObserveDBQuery("grade_entries_by_student", time.Since(start))
	if err != nil {
		return models.StudentResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	source, _, err := s.coefficientSource(ctx, classID)
	if err != nil {
		return models.StudentResult{}, err
	}
	return grading.EvaluateStudent(studentID, entries, window, source), nil
}

// ClassResults computes a class for a term and lists it in rank order.
func (s *BulletinService) ClassResults(ctx context.Context, classID string, q dto.ClassResultsQuery, actorID string, role models.UserRole) (*dto.ClassResultsResponse, error) {
	class, err := s.loadClass(ctx, classID, q, actorID, role)
	if err != nil {
		return nil, err
	}
	names := indexRoster(class.Roster)
	resp := &dto.ClassResultsResponse{
		ClassID:    classID,
		TermID:     class.Term.ID,
		TermLabel:  class.Term.Name,
		Strategy:   class.Results.Strategy,
		ClassSize:  class.Results.ClassSize,
		Students:   make([]dto.ClassStudentResult, 0, len(class.Results.Students)),
		Statistics: class.Results.Statistics,
	}
	for _, id := range grading.RankedOrder(class.Results.Students, class.Results.Ranks) {
		result, _ := class.Results.Student(id)
		student := names[id]
		resp.Students = append(resp.Students, dto.ClassStudentResult{
			StudentID:           id,
			FullName:            student.FullName,
			NIS:                 student.NIS,
			Rank:                class.Results.Ranks[id].Rank,
			GeneralAverage:      result.GeneralAverage,
			TotalWeightedPoints: result.TotalWeightedPoints,
			TotalCoefficient:    result.TotalCoefficient,
			Mention:             grading.MentionFor(result.GeneralAverage),
			Subjects:            result.Subjects,
		})
	}
	return resp, nil
}

// ClassSheet exports the ranked class results as CSV, XLSX or PDF.
func (s *BulletinService) ClassSheet(ctx context.Context, classID string, q dto.ClassSheetQuery, actorID string, role models.UserRole) (*RenderedFile, error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}
	format := export.Format(q.Format)
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported sheet format")
	}
	class, err := s.loadClass(ctx, classID, q.ClassResultsQuery, actorID, role)
	if err != nil {
		return nil, err
	}
	className := classID
	if len(class.Roster) > 0 && class.Roster[0].ClassName != "" {
		className = class.Roster[0].ClassName
	}
	sheet := buildClassSheet(class, className, s.schoolYear(class.Term))
	data, err := exporter.Render(sheet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRenderFailed.Code, appErrors.ErrRenderFailed.Status, "failed to export class results")
	}
	return &RenderedFile{
		Filename:    export.DocumentFilename("Resultats", className, class.Term.Name, string(format)),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// InvalidateClass drops cached computations of a class, for one term or all of them.
func (s *BulletinService) InvalidateClass(ctx context.Context, classID, termID string) (int, error) {
	removed, err := s.cache.Invalidate(ctx, ClassResultsPattern(classID, termID))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate class cache")
	}
	return removed, nil
}

// AuthorizeClass lets administrators through and requires teachers to teach in the class.
func (s *BulletinService) AuthorizeClass(ctx context.Context, classID, actorID string, role models.UserRole) error {
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleStudent:
		// students are scoped to their own record by the router
		return nil
	case models.RoleTeacher:
		ok, err := s.repos.Subjects.HasTeacher(ctx, classID, actorID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate class access")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrForbidden, "teacher is not assigned to this class")
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

// ClassBulletins is a computed class ready to have one bulletin composed per student.
type ClassBulletins struct {
	Term       models.Term
	SchoolYear string
	Roster     []models.RosterStudent
	Results    *models.ClassResults
	Teachers   map[string]string
}

// PrepareClass computes a class for bulk bulletin generation over the whole term.
func (s *BulletinService) PrepareClass(ctx context.Context, classID, termID string, strategy models.RankStrategy) (*ClassBulletins, error) {
	term, err := s.ResolveTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !strategy.Valid() {
		strategy = s.cfg.Strategy
	}
	class, err := s.computeClass(ctx, classID, term, term.Window(), strategy)
	if err != nil {
		return nil, err
	}
	teachers, err := s.repos.Subjects.TeacherLabels(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject teachers")
	}
	return &ClassBulletins{
		Term:       *term,
		SchoolYear: s.schoolYear(term),
		Roster:     class.Roster,
		Results:    class.Results,
		Teachers:   teachers,
	}, nil
}

// Ordered returns the roster in page order.
func (c *ClassBulletins) Ordered(order models.BulletinOrder) []models.RosterStudent {
	if order != models.BulletinOrderRank {
		return c.Roster
	}
	byID := indexRoster(c.Roster)
	ordered := make([]models.RosterStudent, 0, len(c.Roster))
	for _, id := range grading.RankedOrder(c.Results.Students, c.Results.Ranks) {
		if student, ok := byID[id]; ok {
			ordered = append(ordered, student)
		}
	}
	return ordered
}

// Compose builds the bulletin of one rostered student.
func (c *ClassBulletins) Compose(student models.RosterStudent, councilComment string) (models.ReportCardDocument, error) {
	result, ok := c.Results.Student(student.StudentID)
	if !ok {
		return models.ReportCardDocument{}, fmt.Errorf("no computed result for student %s", student.StudentID)
	}
	return grading.Compose(grading.ComposeInput{
		Student:        student,
		SchoolYear:     c.SchoolYear,
		TermLabel:      c.Term.Name,
		Result:         result,
		Class:          c.Results,
		Teachers:       c.Teachers,
		CouncilComment: councilComment,
	}), nil
}

func (s *BulletinService) loadClass(ctx context.Context, classID string, q dto.ClassResultsQuery, actorID string, role models.UserRole) (*classComputation, error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}
	if err := s.AuthorizeClass(ctx, classID, actorID, role); err != nil {
		return nil, err
	}
	term, err := s.ResolveTerm(ctx, q.TermID)
	if err != nil {
		return nil, err
	}
	window, err := resolveWindow(term, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return s.computeClass(ctx, classID, term, window, s.strategy(q.Strategy))
}

// computeClass evaluates every active student of a class. Cached results are reused while the
// roster they were computed for is unchanged.
func (s *BulletinService) computeClass(ctx context.Context, classID string, term *models.Term, window models.DateWindow, strategy models.RankStrategy) (*classComputation, error) {
	start := time.Now()
	roster, err := s.repos.Roster.ListActive(ctx, classID, term.ID)
	s.metrics.ObserveDBQuery("roster_active", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	ids := make([]string, len(roster))
	for i, student := range roster {
		ids[i] = student.StudentID
	}
	class := &classComputation{Term: term, Window: window, Roster: roster}

	source, version, err := s.coefficientSource(ctx, classID)
	if err != nil {
		return nil, err
	}
	key := ClassResultsKey(classID, term.ID, window, strategy, version)
	var cached models.ClassResults
	if s.cache.Get(ctx, key, &cached) && sameRoster(cached.Students, ids) {
		class.Results = &cached
		return class, nil
	}

	start = time.Now()
	entries, err := s.repos.Ledger.ListByStudents(ctx, ids, window)
	s.metrics.ObserveDBQuery("grade_entries_by_class", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class grades")
	}
	start = time.Now()
	engine := grading.Engine{Workers: s.cfg.Workers, Coefficients: source, Strategy: strategy}
	class.Results = engine.Compute(grading.ClassInput{
		ClassID: classID,
		TermID:  term.ID,
		Roster:  ids,
		Entries: entries,
		Window:  window,
	})
	s.metrics.ObserveClassCompute(len(ids), time.Since(start))
	if err := s.cache.Set(ctx, key, class.Results, s.cfg.CacheTTL); err != nil {
		s.logger.Sugar().Warnw("failed to cache class results", "class_id", classID, "error", err)
	}
	return class, nil
}

// coefficientSource returns the weights of a class and a version naming them in cache keys.
// Table versions change whenever a table row does.
func (s *BulletinService) coefficientSource(ctx context.Context, classID string) (grading.CoefficientSource, string, error) {
	if s.cfg.Policy != models.CoefficientTable {
		return grading.FirstEntryCoefficients{}, string(models.CoefficientFirstEntry), nil
	}
	table, err := s.repos.Coefficients.TableForClass(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject coefficients")
	}
	return grading.TableCoefficients(table), coefficientVersion(table), nil
}

func coefficientVersion(table map[string]float64) string {
	subjects := make([]string, 0, len(table))
	for subject := range table {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	digest := xxhash.New()
	for _, subject := range subjects {
		fmt.Fprintf(digest, "%s=%g;", subject, table[subject])
	}
	return fmt.Sprintf("%s-%016x", models.CoefficientTable, digest.Sum64())
}

// ResolveTerm loads a term by ID, or the active term when termID is empty.
func (s *BulletinService) ResolveTerm(ctx context.Context, termID string) (*models.Term, error) {
	var (
		term *models.Term
		err  error
	)
	if termID == "" {
		term, err = s.repos.Terms.FindActive(ctx)
	} else {
		term, err = s.repos.Terms.FindByID(ctx, termID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if termID == "" {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no active term")
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

func (s *BulletinService) findEnrollment(ctx context.Context, studentID, termID string) (*models.RosterStudent, error) {
	enrollment, err := s.repos.Roster.FindEnrollment(ctx, studentID, termID)
	if err == nil {
		return enrollment, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	exists, err := s.repos.Roster.StudentExists(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return nil, appErrors.ErrNotEnrolled
}

func (s *BulletinService) strategy(raw string) models.RankStrategy {
	strategy := models.RankStrategy(raw)
	if strategy.Valid() {
		return strategy
	}
	return s.cfg.Strategy
}

func (s *BulletinService) schoolYear(term *models.Term) string {
	if term != nil && term.AcademicYear != "" {
		return term.AcademicYear
	}
	return s.cfg.SchoolYear
}

func (s *BulletinService) validate(req interface{}) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return nil
}

// resolveWindow starts from the term dates and lets explicit from/to bounds replace them.
func resolveWindow(term *models.Term, from, to string) (models.DateWindow, error) {
	window := term.Window()
	if from != "" {
		start, err := time.Parse(dateLayout, from)
		if err != nil {
			return models.DateWindow{}, appErrors.Clone(appErrors.ErrValidation, "from must be a YYYY-MM-DD date")
		}
		window.Start = &start
	}
	if to != "" {
		end, err := time.Parse(dateLayout, to)
		if err != nil {
			return models.DateWindow{}, appErrors.Clone(appErrors.ErrValidation, "to must be a YYYY-MM-DD date")
		}
		window.End = &end
	}
	if window.Start != nil && window.End != nil && window.End.Before(*window.Start) {
		return models.DateWindow{}, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return window, nil
}

func sameRoster(results []models.StudentResult, ids []string) bool {
	if len(results) != len(ids) {
		return false
	}
	for i, res := range results {
		if res.StudentID != ids[i] {
			return false
		}
	}
	return true
}

func indexRoster(roster []models.RosterStudent) map[string]models.RosterStudent {
	byID := make(map[string]models.RosterStudent, len(roster))
	for _, student := range roster {
		byID[student.StudentID] = student
	}
	return byID
}

func buildClassSheet(class *classComputation, className, schoolYear string) export.Sheet {
	results := class.Results
	subjects := make([]string, len(results.Statistics))
	for i, stat := range results.Statistics {
		subjects[i] = stat.Subject
	}
	headers := append([]string{"Rang", "Matricule", "Nom"}, subjects...)
	headers = append(headers, "Total coef.", "Total points", "Moyenne", "Mention")

	names := indexRoster(class.Roster)
	rows := make([][]interface{}, 0, len(results.Students)+3)
	for _, id := range grading.RankedOrder(results.Students, results.Ranks) {
		result, _ := results.Student(id)
		averages := make(map[string]float64, len(result.Subjects))
		for _, subject := range result.Subjects {
			averages[subject.Subject] = subject.Average
		}
		row := []interface{}{results.Ranks[id].Rank, names[id].NIS, names[id].FullName}
		for _, subject := range subjects {
			if avg, ok := averages[subject]; ok {
				row = append(row, avg)
			} else {
				row = append(row, (*float64)(nil))
			}
		}
		row = append(row, result.TotalCoefficient, result.TotalWeightedPoints, result.GeneralAverage, grading.MentionFor(result.GeneralAverage))
		rows = append(rows, row)
	}

	statRow := func(label string, pick func(models.ClassSubjectStatistics) float64) []interface{} {
		row := []interface{}{"", "", label}
		for _, stat := range results.Statistics {
			row = append(row, pick(stat))
		}
		return append(row, "", "", "", "")
	}
	if len(results.Statistics) > 0 {
		rows = append(rows,
			statRow("Moyenne de classe", func(st models.ClassSubjectStatistics) float64 { return st.Mean }),
			statRow("Minimum", func(st models.ClassSubjectStatistics) float64 { return st.Min }),
			statRow("Maximum", func(st models.ClassSubjectStatistics) float64 { return st.Max }),
		)
	}
	return export.Sheet{
		Title:   fmt.Sprintf("Résultats %s - %s - %s", className, class.Term.Name, schoolYear),
		Headers: headers,
		Rows:    rows,
	}
}
