package model

// Competency levels. Level 1 is the training level.
const (
	LevelTraining = 1
	MaxLevel      = 4
)

// EmployeeSlot is the reserved, mandatory signature slot of every evaluation.
const EmployeeSlot = "empleado"

// ValidLevel reports whether l is one of the four competency levels.
func ValidLevel(l int) bool { return l >= LevelTraining && l <= MaxLevel }

// Question is a scored point of an evaluation.
type Question struct {
	ID          int64  `json:"id"`
	Description string `json:"descripcion"`
	Order       int    `json:"orden"`
}

// Criterion describes what a score value means for an evaluation.
type Criterion struct {
	ID          int64  `json:"id"`
	Description string `json:"descripcion"`
	Value       int    `json:"valor"`
}

// SignatureSlot is a named role that must sign an evaluation result.
type SignatureSlot struct {
	Type   string `json:"tipo_firma"`
	Name   string `json:"nombre"`
	Order  int    `json:"orden"`
	UserID *int64 `json:"usuario,omitempty"`
}

// EvaluationTemplate is a reusable evaluation definition. It is immutable
// once an instance references it.
type EvaluationTemplate struct {
	ID                int64           `json:"id"`
	Name              string          `json:"nombre"`
	Questions         []Question      `json:"puntos_evaluacion"`
	Criteria          []Criterion     `json:"criterios_evaluacion"`
	Signatures        []SignatureSlot `json:"firmas"`
	MinimumPassing    float64         `json:"minimo_aprobatorio"`
	FormulaDivisor    float64         `json:"formula_divisor"`
	FormulaMultiplier float64         `json:"formula_multiplicador"`
}

// EvaluationInstance is an evaluation bound to one level of a position. It
// owns copies of the template's questions, criteria and signature slots.
type EvaluationInstance struct {
	ID                int64           `json:"id"`
	TemplateID        int64           `json:"plantilla,omitempty"`
	Name              string          `json:"nombre"`
	PositionLevelID   int64           `json:"nivel_posicion"`
	Level             int             `json:"nivel"`
	Questions         []Question      `json:"puntos_evaluacion"`
	Criteria          []Criterion     `json:"criterios_evaluacion"`
	Signatures        []SignatureSlot `json:"firmas"`
	MinimumPassing    float64         `json:"minimo_aprobatorio"`
	FormulaDivisor    float64         `json:"formula_divisor"`
	FormulaMultiplier float64         `json:"formula_multiplicador"`
	SupervisorID      *int64          `json:"supervisor,omitempty"`
}

// NewInstance derives an instance from a template. Slices are copied so later
// edits to either side never leak into the other.
func NewInstance(t EvaluationTemplate, positionLevelID int64, level int) EvaluationInstance {
	inst := EvaluationInstance{
		TemplateID:        t.ID,
		Name:              t.Name,
		PositionLevelID:   positionLevelID,
		Level:             level,
		Questions:         append([]Question(nil), t.Questions...),
		Criteria:          append([]Criterion(nil), t.Criteria...),
		Signatures:        make([]SignatureSlot, len(t.Signatures)),
		MinimumPassing:    t.MinimumPassing,
		FormulaDivisor:    t.FormulaDivisor,
		FormulaMultiplier: t.FormulaMultiplier,
	}
	for i, s := range t.Signatures {
		if s.UserID != nil {
			id := *s.UserID
			s.UserID = &id
		}
		inst.Signatures[i] = s
	}
	return inst
}

// Slot returns the signature slot of the given type.
func (e EvaluationInstance) Slot(slotType string) (SignatureSlot, bool) {
	for _, s := range e.Signatures {
		if s.Type == slotType {
			return s, true
		}
	}
	return SignatureSlot{}, false
}
