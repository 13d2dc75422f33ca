// Package signature reconciles signatures captured before an evaluation
// result exists with the records the backend persists once it does.
package signature

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// State of one signature slot.
type State int

// Slot states.
const (
	StateUnset State = iota
	StateCaptured
	StateAssigned
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateCaptured:
		return "captured"
	case StateAssigned:
		return "assigned"
	case StateCommitted:
		return "committed"
	default:
		return "unset"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Committer persists one signature for an existing evaluation result.
type Committer interface {
	CommitSignature(ctx context.Context, resultID int64, req model.SignatureRequest) (model.SignatureRecord, error)
}

// Tracker is told about every record the backend reports as signed.
type Tracker interface {
	SignatureCommitted(ctx context.Context, employeeID, resultID int64, rec model.SignatureRecord)
}

// Report summarizes one commit run.
type Report struct {
	Committed []string
	Assigned  []string
	Failed    []SlotFailure
}

// Err returns a *PartialCommitError when any slot failed, else nil.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialCommitError{Failures: append([]SlotFailure(nil), r.Failed...)}
}

// Reconciler tracks the signature slots of one evaluation.
type Reconciler struct {
	mu         sync.Mutex
	slots      []model.SignatureSlot
	pending    map[string]model.PendingSignature
	records    map[string]model.SignatureRecord
	resultID   int64
	employeeID int64
	saving     bool

	committer Committer
	tracker   Tracker
	logger    logger.Logger
}

// New creates a reconciler for the given slots. Slot types must be unique
// and include the employee slot.
func New(slots []model.SignatureSlot, committer Committer, opts ...Option) (*Reconciler, error) {
	seen := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := seen[s.Type]; dup {
			metrics.RecordValidationRejection("duplicate_slot")
			return nil, failure.Field(ErrDuplicateSlot, "firmas", s.Type)
		}
		seen[s.Type] = struct{}{}
	}
	if _, ok := seen[model.EmployeeSlot]; !ok {
		metrics.RecordValidationRejection("missing_employee_slot")
		return nil, failure.Field(ErrMissingEmployeeSlot, "firmas")
	}

	ordered := append([]model.SignatureSlot(nil), slots...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	r := &Reconciler{
		slots:     ordered,
		pending:   make(map[string]model.PendingSignature),
		records:   make(map[string]model.SignatureRecord),
		committer: committer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("signature")
	}
	return r, nil
}

// Slots returns the slots in commit order.
func (r *Reconciler) Slots() []model.SignatureSlot {
	return append([]model.SignatureSlot(nil), r.slots...)
}

// ResultID returns the bound result id, zero when none.
func (r *Reconciler) ResultID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultID
}

// Saving reports whether a commit is in flight.
func (r *Reconciler) Saving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saving
}

// Bind attaches an existing result and its persisted records. Pending entries
// for slots that are already signed are dropped.
func (r *Reconciler) Bind(resultID int64, records []model.SignatureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resultID = resultID
	r.records = make(map[string]model.SignatureRecord, len(records))
	for _, rec := range records {
		r.records[rec.Type] = rec
		if rec.Signed {
			delete(r.pending, rec.Type)
		}
	}
}

// Capture records a signature for a slot. Before the result exists it only
// stays local; afterwards it is committed right away and a failed commit
// leaves the slot captured.
func (r *Reconciler) Capture(ctx context.Context, slotType string, p model.PendingSignature) error {
	r.mu.Lock()
	if err := r.checkMutable(slotType); err != nil {
		r.mu.Unlock()
		return err
	}
	if !p.Image.Present() && p.SignerID == nil {
		r.mu.Unlock()
		return reject(failure.Field(ErrEmptySignature, slotType), "empty_signature")
	}
	if p.Name == "" {
		p.Name = r.slotName(slotType)
	}
	r.pending[slotType] = p
	if r.resultID == 0 {
		r.mu.Unlock()
		return nil
	}
	resultID := r.resultID
	r.saving = true
	r.mu.Unlock()

	rec, err := r.commit(ctx, resultID, slotType, p)

	r.mu.Lock()
	r.saving = false
	if err == nil {
		r.records[slotType] = rec
		delete(r.pending, slotType)
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.notify(ctx, resultID, rec)
	return nil
}

// RegisterPending binds resultID and commits every pending slot in slot
// order. Each slot is independent: failures are collected and the slot stays
// pending for a later Retry. The returned error is only set when the run
// could not start.
func (r *Reconciler) RegisterPending(ctx context.Context, resultID int64) (Report, error) {
	r.mu.Lock()
	if r.saving {
		r.mu.Unlock()
		return Report{}, reject(failure.Validation(ErrSaving, nil), "saving")
	}
	if resultID <= 0 {
		r.mu.Unlock()
		return Report{}, failure.Validation(ErrNoResult, nil)
	}
	r.resultID = resultID
	type item struct {
		slot string
		sig  model.PendingSignature
	}
	var queue []item
	for _, s := range r.slots {
		if p, ok := r.pending[s.Type]; ok {
			queue = append(queue, item{slot: s.Type, sig: p})
		}
	}
	r.saving = len(queue) > 0
	r.mu.Unlock()

	var (
		report Report
		signed []model.SignatureRecord
	)
	done := make(map[string]model.SignatureRecord, len(queue))
	for _, it := range queue {
		rec, err := r.commit(ctx, resultID, it.slot, it.sig)
		if err != nil {
			report.Failed = append(report.Failed, SlotFailure{Type: it.slot, Err: err})
			continue
		}
		done[it.slot] = rec
		if rec.Signed {
			report.Committed = append(report.Committed, it.slot)
			signed = append(signed, rec)
		} else {
			report.Assigned = append(report.Assigned, it.slot)
		}
	}

	r.mu.Lock()
	for slot, rec := range done {
		r.records[slot] = rec
		delete(r.pending, slot)
	}
	r.saving = false
	r.mu.Unlock()

	if len(report.Failed) > 0 {
		r.logger.Warn(ctx, "signatures left pending",
			logger.Int64("result_id", resultID),
			logger.Int("failed", len(report.Failed)),
			logger.Error(report.Err()))
	}
	for _, rec := range signed {
		r.notify(ctx, resultID, rec)
	}
	return report, nil
}

// Retry commits whatever is still pending for the bound result.
func (r *Reconciler) Retry(ctx context.Context) (Report, error) {
	resultID := r.ResultID()
	if resultID == 0 {
		return Report{}, failure.Validation(ErrNoResult, nil)
	}
	return r.RegisterPending(ctx, resultID)
}

// Remove drops the pending entry of a slot. A signed employee signature can
// never be changed.
func (r *Reconciler) Remove(slotType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(slotType); err != nil {
		return err
	}
	delete(r.pending, slotType)
	return nil
}

// Clear drops the pending entry of a slot only when the backend holds no
// record for it. It reports whether local state changed.
func (r *Reconciler) Clear(slotType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saving {
		return false
	}
	if _, committed := r.records[slotType]; committed {
		return false
	}
	if _, ok := r.pending[slotType]; !ok {
		return false
	}
	delete(r.pending, slotType)
	return true
}

// ValidateForSubmit checks that the employee signature is either signed on
// the backend or captured with an image. Other slots never block.
func (r *Reconciler) ValidateForSubmit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[model.EmployeeSlot]; ok && rec.Signed {
		return nil
	}
	if p, ok := r.pending[model.EmployeeSlot]; ok && p.Image.Present() {
		return nil
	}
	return reject(failure.Field(ErrEmployeeSignatureRequired, "firmas", model.EmployeeSlot), "employee_signature_required")
}

// State returns the state of a slot.
func (r *Reconciler) State(slotType string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(slotType)
}

func (r *Reconciler) state(slotType string) State {
	if _, ok := r.pending[slotType]; ok {
		return StateCaptured
	}
	rec, ok := r.records[slotType]
	switch {
	case !ok:
		return StateUnset
	case rec.Signed:
		return StateCommitted
	default:
		return StateAssigned
	}
}

// States returns the state of every slot.
func (r *Reconciler) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.slots))
	for _, s := range r.slots {
		out[s.Type] = r.state(s.Type)
	}
	return out
}

// Complete reports whether every slot has a signed record.
func (r *Reconciler) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if rec, ok := r.records[s.Type]; !ok || !rec.Signed {
			return false
		}
	}
	return true
}

// Pending returns a copy of the local entries not yet committed.
func (r *Reconciler) Pending() map[string]model.PendingSignature {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.PendingSignature, len(r.pending))
	for k, v := range r.pending {
		out[k] = v
	}
	return out
}

// Records returns the persisted records in slot order.
func (r *Reconciler) Records() []model.SignatureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SignatureRecord, 0, len(r.records))
	for _, s := range r.slots {
		if rec, ok := r.records[s.Type]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// checkMutable must be called with r.mu held.
func (r *Reconciler) checkMutable(slotType string) error {
	if r.saving {
		return reject(failure.Validation(ErrSaving, nil), "saving")
	}
	if !r.hasSlot(slotType) {
		return reject(failure.Field(ErrUnknownSlot, "tipo_firma", slotType), "unknown_slot")
	}
	if slotType == model.EmployeeSlot {
		if rec, ok := r.records[slotType]; ok && rec.Signed {
			return reject(failure.Field(ErrEmployeeSignatureLocked, "firmas", slotType), "employee_signature_locked")
		}
	}
	return nil
}

func (r *Reconciler) hasSlot(slotType string) bool {
	for _, s := range r.slots {
		if s.Type == slotType {
			return true
		}
	}
	return false
}

func (r *Reconciler) slotName(slotType string) string {
	for _, s := range r.slots {
		if s.Type == slotType {
			return s.Name
		}
	}
	return ""
}

func (r *Reconciler) commit(ctx context.Context, resultID int64, slotType string, p model.PendingSignature) (model.SignatureRecord, error) {
	req := model.SignatureRequest{
		Type:     slotType,
		Name:     p.Name,
		SignerID: p.SignerID,
		Image:    p.Image,
	}
	rec, err := r.committer.CommitSignature(ctx, resultID, req)
	if err != nil {
		metrics.RecordSignatureCommit("failed")
		metrics.RecordError("signature", string(failure.KindOf(err)))
		r.logger.Error(ctx, "signature commit failed",
			logger.Int64("result_id", resultID),
			logger.String("slot", slotType),
			logger.Error(err))
		return model.SignatureRecord{}, err
	}
	if rec.Type == "" {
		rec.Type = slotType
	}
	if rec.Signed {
		metrics.RecordSignatureCommit("signed")
	} else {
		metrics.RecordSignatureCommit("assigned")
	}
	r.logger.Debug(ctx, "signature committed",
		logger.Int64("result_id", resultID),
		logger.String("slot", slotType),
		logger.Bool("signed", rec.Signed))
	return rec, nil
}

func (r *Reconciler) notify(ctx context.Context, resultID int64, rec model.SignatureRecord) {
	if r.tracker == nil || !rec.Signed {
		return
	}
	r.tracker.SignatureCommitted(ctx, r.employeeID, resultID, rec)
}

func reject(err *failure.Error, reason string) error {
	metrics.RecordValidationRejection(reason)
	return err
}

// IsPartial reports whether err carries a partial commit.
func IsPartial(err error) bool {
	var pe *PartialCommitError
	return errors.As(err, &pe)
}
