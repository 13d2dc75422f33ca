// Package session drives one evaluation from start to submission, or binds a
// saved result for viewing.
package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/scoring"
	"github.com/okian/skillcert/internal/domain/signature"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// State of a session.
type State int

// Session states.
const (
	StateIdle State = iota
	StateStarted
	StateSaving
	StateReadOnly
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateSaving:
		return "saving"
	case StateReadOnly:
		return "read-only"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Backend is the part of the REST collaborator a session needs.
type Backend interface {
	signature.Committer
	CreateResult(ctx context.Context, sub model.ResultSubmission) (model.EvaluationResult, error)
	ListGroups(ctx context.Context, areaID int64) ([]model.Group, error)
	ListSupervisors(ctx context.Context, areaID int64) ([]model.Supervisor, error)
}

// Tracker is notified when a result is created or a signature is committed,
// so derived completion can be recomputed.
type Tracker interface {
	signature.Tracker
	ResultCreated(ctx context.Context, result model.EvaluationResult)
}

// Row is the score entry of one question.
type Row struct {
	Question model.Question `json:"punto"`
	Score    *model.Score   `json:"puntuacion"`
	Notes    string         `json:"observaciones"`
}

// Preview is the locally computed result. The backend value returned on
// submission supersedes it.
type Preview struct {
	Obtained  int     `json:"puntos_obtenidos"`
	MaxPoints int     `json:"puntos_maximos"`
	Percent   float64 `json:"resultado"`
	Scored    int     `json:"puntuadas"`
	Total     int     `json:"total"`
	Passed    bool    `json:"aprobado"`
}

// StartRequest carries what Start needs. Existing is the saved result of the
// same instance for the employee, if any.
type StartRequest struct {
	Instance model.EvaluationInstance
	Employee model.Employee
	AreaID   int64
	Existing *model.EvaluationResult
}

// Outcome is returned by a successful submission. Signatures may still hold
// failed slots; the result is saved regardless.
type Outcome struct {
	Result     model.EvaluationResult `json:"resultado"`
	Signatures signature.Report       `json:"-"`
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	State        State                      `json:"estado"`
	Instance     model.EvaluationInstance   `json:"evaluacion"`
	Employee     model.Employee             `json:"empleado"`
	Rows         []Row                      `json:"filas"`
	Supervisors  []model.Supervisor         `json:"supervisores"`
	SupervisorID *int64                     `json:"supervisor,omitempty"`
	Preview      Preview                    `json:"vista_previa"`
	Result       *model.EvaluationResult    `json:"resultado,omitempty"`
	Signatures   map[string]signature.State `json:"firmas"`
	Editable     bool                       `json:"editable"`
}

// Controller is the state machine of one evaluation session. It is safe for
// concurrent use; a session never blocks another.
type Controller struct {
	mu sync.Mutex

	state        State
	instance     model.EvaluationInstance
	employee     model.Employee
	rows         []Row
	supervisors  []model.Supervisor
	supervisorID *int64
	formula      scoring.Formula
	existing     *model.EvaluationResult
	result       *model.EvaluationResult
	signatures   *signature.Reconciler
	editable     bool

	backend Backend
	tracker Tracker
	logger  logger.Logger
}

// New creates an idle controller.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("session")
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins scoring an instance for an employee. Eligible supervisors are
// loaded from the backend and a default is picked: the instance's supervisor,
// else the first supervisor of the first group of the area that has one.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	if c.State() == StateSaving {
		return reject(failure.Validation(ErrSaving, nil), "saving")
	}

	rec, err := c.newReconciler(req.Instance, req.Employee.ID)
	if err != nil {
		return err
	}
	if req.Existing != nil {
		rec.Bind(req.Existing.ID, req.Existing.Signatures)
	}

	supervisors, err := c.backend.ListSupervisors(ctx, req.AreaID)
	if err != nil {
		return err
	}
	def, err := c.defaultSupervisor(ctx, req.Instance, req.AreaID)
	if err != nil {
		return err
	}

	rows := make([]Row, len(req.Instance.Questions))
	for i, q := range req.Instance.Questions {
		rows[i] = Row{Question: q}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSaving {
		return reject(failure.Validation(ErrSaving, nil), "saving")
	}
	c.state = StateStarted
	c.instance = req.Instance
	c.employee = req.Employee
	c.rows = rows
	c.supervisors = supervisors
	c.supervisorID = def
	c.formula = scoring.FromInstance(req.Instance)
	c.existing = req.Existing
	c.result = nil
	c.signatures = rec
	c.editable = true

	c.logger.Info(ctx, "evaluation started",
		logger.Int64("evaluation_id", req.Instance.ID),
		logger.Int64("employee_id", req.Employee.ID),
		logger.Bool("previously_submitted", req.Existing != nil))
	return nil
}

func (c *Controller) defaultSupervisor(ctx context.Context, inst model.EvaluationInstance, areaID int64) (*int64, error) {
	if inst.SupervisorID != nil {
		id := *inst.SupervisorID
		return &id, nil
	}
	groups, err := c.backend.ListGroups(ctx, areaID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if len(g.Supervisors) > 0 {
			id := g.Supervisors[0]
			return &id, nil
		}
	}
	return nil, nil
}

func (c *Controller) newReconciler(inst model.EvaluationInstance, employeeID int64) (*signature.Reconciler, error) {
	opts := []signature.Option{
		signature.WithEmployee(employeeID),
		signature.WithLogger(c.logger.Named("signature")),
	}
	if c.tracker != nil {
		opts = append(opts, signature.WithTracker(c.tracker))
	}
	return signature.New(inst.Signatures, c.backend, opts...)
}

// View binds a saved result in read-only mode. Scores can never change. When
// editable is set, signatures may still be captured unless the result is
// completed or fully signed.
func (c *Controller) View(ctx context.Context, inst model.EvaluationInstance, saved model.EvaluationResult, editable bool) error {
	rec, err := c.newReconciler(inst, saved.UserID)
	if err != nil {
		return err
	}
	rec.Bind(saved.ID, saved.Signatures)

	points := make(map[int64]model.PointResult, len(saved.Points))
	for _, p := range saved.Points {
		points[p.QuestionID] = p
	}
	rows := make([]Row, len(inst.Questions))
	for i, q := range inst.Questions {
		rows[i] = Row{Question: q}
		if p, ok := points[q.ID]; ok {
			score := p.Score
			rows[i].Score = &score
			rows[i].Notes = p.Notes
		}
	}

	locked := saved.Status == model.StatusCompleted || completion.SignaturesComplete(inst, saved)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSaving {
		return reject(failure.Validation(ErrSaving, nil), "saving")
	}
	supervisor := saved.SupervisorID
	result := saved
	c.state = StateReadOnly
	c.instance = inst
	c.employee = model.Employee{ID: saved.UserID}
	c.rows = rows
	c.supervisors = nil
	c.supervisorID = &supervisor
	c.formula = scoring.FromInstance(inst)
	c.existing = &result
	c.result = &result
	c.signatures = rec
	c.editable = editable && !locked

	c.logger.Debug(ctx, "viewing saved evaluation",
		logger.Int64("result_id", saved.ID),
		logger.Bool("editable", c.editable))
	return nil
}

// SetEmployee attaches the full employee record to a viewed session.
func (c *Controller) SetEmployee(e model.Employee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.employee = e
}

// Score sets the score of a question.
func (c *Controller) Score(questionID int64, value model.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkScoring(); err != nil {
		return err
	}
	if !value.Valid() {
		return reject(failure.Field(ErrInvalidScore, "puntuacion", strconv.Itoa(int(value))), "invalid_score")
	}
	i, err := c.row(questionID)
	if err != nil {
		return err
	}
	v := value
	c.rows[i].Score = &v
	return nil
}

// SetNotes sets the observations of a question.
func (c *Controller) SetNotes(questionID int64, notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkScoring(); err != nil {
		return err
	}
	i, err := c.row(questionID)
	if err != nil {
		return err
	}
	c.rows[i].Notes = notes
	return nil
}

// SelectSupervisor picks the supervisor of the evaluation.
func (c *Controller) SelectSupervisor(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkScoring(); err != nil {
		return err
	}
	eligible := c.instance.SupervisorID != nil && *c.instance.SupervisorID == id
	for _, s := range c.supervisors {
		if s.ID == id {
			eligible = true
			break
		}
	}
	if !eligible {
		return reject(failure.Field(ErrUnknownSupervisor, "supervisor", strconv.FormatInt(id, 10)), "unknown_supervisor")
	}
	c.supervisorID = &id
	return nil
}

// CaptureSignature records a signature for a slot.
func (c *Controller) CaptureSignature(ctx context.Context, slotType string, p model.PendingSignature) error {
	rec, err := c.signatureTarget()
	if err != nil {
		return err
	}
	if err := rec.Capture(ctx, slotType, p); err != nil {
		return err
	}
	c.syncSignatures()
	return nil
}

// RemoveSignature drops a pending signature.
func (c *Controller) RemoveSignature(slotType string) error {
	rec, err := c.signatureTarget()
	if err != nil {
		return err
	}
	return rec.Remove(slotType)
}

// ClearSignature drops a pending drawing if nothing is committed for the slot.
func (c *Controller) ClearSignature(slotType string) (bool, error) {
	rec, err := c.signatureTarget()
	if err != nil {
		return false, err
	}
	return rec.Clear(slotType), nil
}

// ComputeResult returns the local preview. Unscored rows count as zero.
func (c *Controller) ComputeResult() Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview()
}

func (c *Controller) preview() Preview {
	scores := make([]*model.Score, len(c.rows))
	scored := 0
	for i, r := range c.rows {
		scores[i] = r.Score
		if r.Score != nil {
			scored++
		}
	}
	obtained := scoring.Obtained(scores)
	pct := c.formula.Percent(obtained)
	return Preview{
		Obtained:  obtained,
		MaxPoints: scoring.MaxPoints(len(c.rows)),
		Percent:   pct,
		Scored:    scored,
		Total:     len(c.rows),
		Passed:    c.formula.Passed(pct),
	}
}

// Submit validates the session, creates the result and commits every pending
// signature for it. Validation failures issue no backend call and keep the
// session started. Failed signature commits are reported in the outcome and
// can be retried with RetrySignatures.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.checkSubmit(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	sub := model.ResultSubmission{
		EvaluationID: c.instance.ID,
		UserID:       c.employee.ID,
		SupervisorID: *c.supervisorID,
		Points:       make([]model.PointResult, len(c.rows)),
	}
	for i, r := range c.rows {
		sub.Points[i] = model.PointResult{QuestionID: r.Question.ID, Score: *r.Score, Notes: r.Notes}
	}
	rec := c.signatures
	c.state = StateSaving
	c.mu.Unlock()

	result, err := c.backend.CreateResult(ctx, sub)
	if err != nil {
		c.mu.Lock()
		c.state = StateStarted
		c.mu.Unlock()
		metrics.RecordEvaluationSubmitted("failed")
		metrics.RecordError("session", string(failure.KindOf(err)))
		c.logger.Error(ctx, "evaluation submit failed",
			logger.Int64("evaluation_id", sub.EvaluationID),
			logger.Int64("employee_id", sub.UserID),
			logger.Error(err))
		return Outcome{}, err
	}

	report, err := rec.RegisterPending(ctx, result.ID)
	if err != nil {
		c.logger.Error(ctx, "pending signatures not registered",
			logger.Int64("result_id", result.ID),
			logger.Error(err))
	}
	result.Signatures = mergeRecords(result.Signatures, rec.Records())

	if c.tracker != nil {
		c.tracker.ResultCreated(ctx, result)
	}

	c.mu.Lock()
	saved := result
	c.result = &saved
	c.state = StateIdle
	c.mu.Unlock()

	outcome := "created"
	if len(report.Failed) > 0 {
		outcome = "partial"
	}
	metrics.RecordEvaluationSubmitted(outcome)
	c.logger.Info(ctx, "evaluation submitted",
		logger.Int64("result_id", result.ID),
		logger.Int64("employee_id", sub.UserID),
		logger.Int("signatures_failed", len(report.Failed)))

	return Outcome{Result: result, Signatures: report}, nil
}

// RetrySignatures commits the signatures that failed on the last submission
// or capture.
func (c *Controller) RetrySignatures(ctx context.Context) (signature.Report, error) {
	c.mu.Lock()
	rec := c.signatures
	state := c.state
	c.mu.Unlock()
	if state == StateSaving {
		return signature.Report{}, reject(failure.Validation(ErrSaving, nil), "saving")
	}
	if rec == nil || rec.ResultID() == 0 || len(rec.Pending()) == 0 {
		return signature.Report{}, failure.Validation(ErrNothingToRetry, nil)
	}
	report, err := rec.Retry(ctx)
	if err != nil {
		return report, err
	}
	c.syncSignatures()
	return report, nil
}

// Cancel returns to idle and forgets the session.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSaving {
		return reject(failure.Validation(ErrSaving, nil), "saving")
	}
	c.state = StateIdle
	c.instance = model.EvaluationInstance{}
	c.employee = model.Employee{}
	c.rows = nil
	c.supervisors = nil
	c.supervisorID = nil
	c.formula = scoring.Formula{}
	c.existing = nil
	c.result = nil
	c.signatures = nil
	c.editable = false
	return nil
}

// Snapshot returns a copy of the session for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:       c.state,
		Instance:    c.instance,
		Employee:    c.employee,
		Rows:        append([]Row(nil), c.rows...),
		Supervisors: append([]model.Supervisor(nil), c.supervisors...),
		Preview:     c.preview(),
		Editable:    c.editable && c.state != StateSaving,
	}
	if c.supervisorID != nil {
		id := *c.supervisorID
		s.SupervisorID = &id
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}
	if c.signatures != nil {
		s.Signatures = c.signatures.States()
	}
	return s
}

// Result returns the saved result bound to the session, if any.
func (c *Controller) Result() (model.EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return model.EvaluationResult{}, false
	}
	return *c.result, true
}

// checkScoring must be called with c.mu held.
func (c *Controller) checkScoring() error {
	switch c.state {
	case StateStarted:
		return nil
	case StateReadOnly:
		return reject(failure.Validation(ErrReadOnly, nil), "read_only")
	case StateSaving:
		return reject(failure.Validation(ErrSaving, nil), "saving")
	default:
		return failure.Validation(ErrNotStarted, nil)
	}
}

// checkSubmit must be called with c.mu held.
func (c *Controller) checkSubmit() error {
	if err := c.checkScoring(); err != nil {
		return err
	}
	if c.existing != nil || c.result != nil {
		return reject(failure.Field(ErrAlreadySubmitted, "evaluacion", strconv.FormatInt(c.instance.ID, 10)), "already_submitted")
	}
	if c.supervisorID == nil {
		return reject(failure.Field(ErrSupervisorRequired, "supervisor"), "supervisor_required")
	}
	var missing []string
	for _, r := range c.rows {
		if r.Score == nil {
			missing = append(missing, strconv.FormatInt(r.Question.ID, 10))
		}
	}
	if len(missing) > 0 {
		return reject(failure.Field(ErrUnscoredQuestions, "resultados_puntos", missing...), "unscored_questions")
	}
	return c.signatures.ValidateForSubmit()
}

// row must be called with c.mu held.
func (c *Controller) row(questionID int64) (int, error) {
	for i, r := range c.rows {
		if r.Question.ID == questionID {
			return i, nil
		}
	}
	return 0, reject(failure.Field(ErrUnknownQuestion, "punto_evaluacion", strconv.FormatInt(questionID, 10)), "unknown_question")
}

func (c *Controller) signatureTarget() (*signature.Reconciler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateStarted:
	case c.state == StateReadOnly && c.editable:
	case c.state == StateReadOnly:
		return nil, reject(failure.Validation(ErrReadOnly, nil), "read_only")
	case c.state == StateSaving:
		return nil, reject(failure.Validation(ErrSaving, nil), "saving")
	default:
		return nil, failure.Validation(ErrNotStarted, nil)
	}
	return c.signatures, nil
}

// syncSignatures copies committed records into the bound result and locks a
// viewed session once every slot is signed.
func (c *Controller) syncSignatures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil || c.signatures == nil {
		return
	}
	c.result.Signatures = mergeRecords(c.result.Signatures, c.signatures.Records())
	if c.state == StateReadOnly && c.signatures.Complete() {
		c.editable = false
	}
}

// mergeRecords overlays fresh records on base, keyed by slot type.
func mergeRecords(base, fresh []model.SignatureRecord) []model.SignatureRecord {
	out := append([]model.SignatureRecord(nil), base...)
	for _, f := range fresh {
		replaced := false
		for i := range out {
			if out[i].Type == f.Type {
				out[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

func reject(err *failure.Error, reason string) error {
	metrics.RecordValidationRejection(reason)
	return err
}
