package ml

import "time"

// Predictor is a loaded, ready-to-query binary classifier. PredictProba
// returns (P(class 0), P(class 1)) for one feature vector ordered per
// FeatureNames().
type Predictor interface {
	PredictProba(features []float64) ([2]float64, error)
}

// ModelKind tags the structural capability of a loaded model. Assigned
// once at load time; the explainer choice dispatches on it.
type ModelKind string

const (
	// ModelKindForest models expose their tree structure and get exact
	// path-based attribution.
	ModelKindForest ModelKind = "forest"
	// ModelKindLogistic models are scored through the generic predictor
	// interface and get the sampling-based fallback attribution.
	ModelKindLogistic ModelKind = "logistic"
)

// ModelInfo describes a resolved model.
type ModelInfo struct {
	Kind        ModelKind `json:"kind"`
	Path        string    `json:"path"`
	Source      string    `json:"source"` // "preset" or "upload"
	Features    []string  `json:"features"`
	TreeCount   int       `json:"tree_count,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
}
