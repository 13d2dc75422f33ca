// Package completion derives per-level certification completeness from an
// employee's assigned evaluations and saved results.
package completion

import (
	"sort"

	"github.com/okian/skillcert/internal/domain/model"
)

// Progress is the raw counter behind one level's badge.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completadas"`
}

// Summary is the derived completion of every level for one employee.
type Summary struct {
	Levels   map[int]bool     `json:"niveles"`
	Progress map[int]Progress `json:"progreso"`
}

// Completed reports whether a level is complete.
func (s Summary) Completed(level int) bool { return s.Levels[level] }

// Calculate groups instances by level and counts the ones whose result is
// finished and fully signed. A level without instances is never complete.
// Instances with a level outside 1..4 are ignored.
func Calculate(instances []model.EvaluationInstance, results map[int64]model.EvaluationResult) Summary {
	s := Summary{
		Levels:   make(map[int]bool, model.MaxLevel),
		Progress: make(map[int]Progress, model.MaxLevel),
	}
	for l := model.LevelTraining; l <= model.MaxLevel; l++ {
		s.Progress[l] = Progress{}
	}

	for _, inst := range instances {
		if !model.ValidLevel(inst.Level) {
			continue
		}
		p := s.Progress[inst.Level]
		p.Total++
		if r, ok := results[inst.ID]; ok && Finished(inst, r) {
			p.Completed++
		}
		s.Progress[inst.Level] = p
	}

	for l, p := range s.Progress {
		s.Levels[l] = p.Total > 0 && p.Total == p.Completed
	}
	return s
}

// Finished reports whether a result counts towards its level: fully signed
// and either marked completed or carrying a final result.
func Finished(inst model.EvaluationInstance, r model.EvaluationResult) bool {
	if !SignaturesComplete(inst, r) {
		return false
	}
	return r.Status == model.StatusCompleted || r.FinalResult != nil
}

// SignaturesComplete reports whether every slot of the instance has a signed
// record on the result.
func SignaturesComplete(inst model.EvaluationInstance, r model.EvaluationResult) bool {
	for _, slot := range inst.Signatures {
		rec, ok := r.Signature(slot.Type)
		if !ok || !rec.Signed {
			return false
		}
	}
	return true
}

// ApplyOverride returns a copy of s with the level booleans replaced by the
// backend's precomputed entries for employeeID. Progress counters are kept.
func (s Summary) ApplyOverride(employeeID int64, progress []model.LevelProgress) Summary {
	out := Summary{
		Levels:   make(map[int]bool, len(s.Levels)),
		Progress: make(map[int]Progress, len(s.Progress)),
	}
	for l, v := range s.Levels {
		out.Levels[l] = v
	}
	for l, p := range s.Progress {
		out.Progress[l] = p
	}
	for _, lp := range progress {
		if lp.UserID != employeeID || !model.ValidLevel(lp.Level) {
			continue
		}
		out.Levels[lp.Level] = lp.Completed
	}
	return out
}

// IndexResults builds the instance-id keyed map of saved results. When an
// instance has several results the one with the highest id wins.
func IndexResults(results []model.EvaluationResult) map[int64]model.EvaluationResult {
	sorted := append([]model.EvaluationResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	out := make(map[int64]model.EvaluationResult, len(sorted))
	for _, r := range sorted {
		out[r.EvaluationID] = r
	}
	return out
}
