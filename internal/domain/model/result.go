package model

import "time"

// Score is the value given to one question: 1, 2 or 3.
type Score int

// Valid reports whether the score is one of the accepted values.
func (s Score) Valid() bool { return s >= 1 && s <= 3 }

// ResultStatus is the backend lifecycle of an evaluation result.
type ResultStatus string

// Result statuses.
const (
	StatusPending   ResultStatus = "pendiente"
	StatusCompleted ResultStatus = "completada"
)

// Image is an opaque raster payload (base64 or data URL). Capture is done
// outside the core; only presence matters here.
type Image string

// Present reports whether an image payload was provided.
func (i Image) Present() bool { return i != "" }

// PointResult is the score given to one question.
type PointResult struct {
	QuestionID int64  `json:"punto_evaluacion"`
	Score      Score  `json:"puntuacion"`
	Notes      string `json:"observaciones"`
}

// SignatureRecord is a signature persisted on the backend.
type SignatureRecord struct {
	Type     string     `json:"tipo_firma"`
	SignerID int64      `json:"usuario"`
	Name     string     `json:"nombre,omitempty"`
	Image    Image      `json:"imagen,omitempty"`
	Signed   bool       `json:"esta_firmado"`
	SignedAt *time.Time `json:"fecha_firma,omitempty"`
}

// EvaluationResult is a submitted evaluation. FinalResult is computed by the
// backend and is authoritative over any local preview.
type EvaluationResult struct {
	ID           int64             `json:"id"`
	EvaluationID int64             `json:"evaluacion"`
	UserID       int64             `json:"usuario"`
	SupervisorID int64             `json:"supervisor"`
	Points       []PointResult     `json:"resultados_puntos"`
	FinalResult  *float64          `json:"resultado_final"`
	Status       ResultStatus      `json:"estado"`
	Signatures   []SignatureRecord `json:"firmas_usuario"`
}

// Signature returns the persisted record for a slot type.
func (r EvaluationResult) Signature(slotType string) (SignatureRecord, bool) {
	for _, s := range r.Signatures {
		if s.Type == slotType {
			return s, true
		}
	}
	return SignatureRecord{}, false
}

// PendingSignature is a signature captured locally before its evaluation
// result exists. It is never sent until the result has an id.
type PendingSignature struct {
	Image      Image
	SignerID   *int64
	SignerName string
	Name       string
}

// ResultSubmission is the body of POST evaluation-results.
type ResultSubmission struct {
	EvaluationID int64         `json:"evaluacion"`
	UserID       int64         `json:"usuario"`
	SupervisorID int64         `json:"supervisor"`
	Points       []PointResult `json:"resultados_puntos"`
}

// SignatureRequest is the body of POST evaluation-results/{id}/firmar.
type SignatureRequest struct {
	Type     string `json:"tipo_firma"`
	Name     string `json:"nombre,omitempty"`
	SignerID *int64 `json:"usuario,omitempty"`
	Image    Image  `json:"imagen,omitempty"`
}

// LevelProgress is the backend's precomputed completion of one level.
type LevelProgress struct {
	UserID    int64 `json:"usuario"`
	Level     int   `json:"nivel"`
	Completed bool  `json:"completado"`
}
