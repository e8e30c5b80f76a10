// Package risk runs the inference and explanation pipeline: score a
// patient feature vector with the resolved model, map the probability
// to a risk tier and protocol, and attach a per-feature attribution.
package risk

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"vaprisk/explain"
	"vaprisk/ml"
)

const defaultCacheSize = 256

// Assessment is the result of one pipeline run. Derived
// deterministically from the resolved model and the feature vector.
type Assessment struct {
	Features    ml.PatientFeatures   `json:"features"`
	Probability float64              `json:"probability"`
	RiskLevel   Tier                 `json:"risk_level"`
	Protocol    Protocol             `json:"protocol"`
	Attribution *explain.Attribution `json:"attribution"`
	ModelKind   ml.ModelKind         `json:"model_kind"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AssessmentError wraps a scoring or attribution failure. Non-fatal:
// the resolved model session survives and the caller may retry.
type AssessmentError struct {
	Stage string
	Err   error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment failed during %s: %v", e.Stage, e.Err)
}

func (e *AssessmentError) Unwrap() error { return e.Err }

// Assessor runs assessments against an injected model session.
type Assessor struct {
	session *ml.Session
	cache   *lru.Cache[string, *Assessment]
}

// NewAssessor builds the pipeline. cacheSize <= 0 uses the default.
func NewAssessor(session *ml.Session, cacheSize int) (*Assessor, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *Assessment](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Assessor{session: session, cache: cache}, nil
}

// Session exposes the injected model session.
func (a *Assessor) Session() *ml.Session { return a.session }

// Assess scores one feature vector and explains the prediction.
// Returns ml.ErrModelNotFound when no model is resolvable, or an
// AssessmentError when scoring or attribution fails.
func (a *Assessor) Assess(ctx context.Context, features ml.PatientFeatures) (*Assessment, error) {
	model, err := a.session.Resolve()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(model.Info.Fingerprint, features)
	if cached, ok := a.cache.Get(key); ok {
		return cached, nil
	}

	start := time.Now()
	vector := features.Vector()

	proba, err := model.Predictor().PredictProba(vector)
	if err != nil {
		zap.S().Errorw("scoring failed", "error", err, "features", vector)
		return nil, &AssessmentError{Stage: "scoring", Err: err}
	}
	probability := proba[1]

	// Background for the generic fallback explainer: the documented
	// defaults plus the input row itself.
	background := [][]float64{ml.DefaultFeatures().Vector(), vector}
	explainer, err := explain.ForModel(model, background)
	if err != nil {
		zap.S().Errorw("explainer selection failed", "error", err, "kind", model.Info.Kind)
		return nil, &AssessmentError{Stage: "attribution", Err: err}
	}
	attribution, err := explainer.Explain(vector)
	if err != nil {
		zap.S().Errorw("attribution failed", "error", err, "kind", model.Info.Kind)
		return nil, &AssessmentError{Stage: "attribution", Err: err}
	}

	result := &Assessment{
		Features:    features,
		Probability: probability,
		RiskLevel:   RiskLevel(probability),
		Protocol:    ProtocolFor(probability),
		Attribution: attribution,
		ModelKind:   model.Info.Kind,
		CreatedAt:   time.Now(),
	}
	a.cache.Add(key, result)

	zap.S().Infow("assessment complete",
		"probability", probability,
		"risk_level", result.RiskLevel,
		"protocol", result.Protocol.Tier,
		"elapsed", time.Since(start))
	return result, nil
}

func cacheKey(fingerprint string, features ml.PatientFeatures) string {
	return fmt.Sprintf("%s|%v", fingerprint, features.Vector())
}
