package risk

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"vaprisk/ml"
)

// writeTestModel writes a two-tree forest splitting on ApacheII (<=30)
// and GCS (<=8). Defaults score 0.45; ApacheII>30 with GCS>8 scores 0.55.
func writeTestModel(t *testing.T) string {
	t.Helper()
	forest := &ml.Forest{Trees: []ml.Tree{
		{Nodes: []ml.TreeNode{
			{FeatureIdx: 2, Threshold: 30, LeftChild: 1, RightChild: 2, Value: 0.5, Samples: 100},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.2, Samples: 50, IsLeaf: true},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.8, Samples: 50, IsLeaf: true},
		}},
		{Nodes: []ml.TreeNode{
			{FeatureIdx: 6, Threshold: 8, LeftChild: 1, RightChild: 2, Value: 0.5, Samples: 100},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.7, Samples: 60, IsLeaf: true},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.3, Samples: 40, IsLeaf: true},
		}},
	}}
	payload, err := json.Marshal(&ml.Artifact{
		Format:   ml.ArtifactFormat,
		Version:  ml.ArtifactVersion,
		Kind:     ml.ModelKindForest,
		Features: ml.FeatureNames(),
		Forest:   forest,
	})
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.pkl")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func newTestAssessor(t *testing.T) *Assessor {
	t.Helper()
	path := writeTestModel(t)
	session := ml.NewSession(ml.NewResolverWithPaths([]string{path}, filepath.Join(t.TempDir(), "uploaded.pkl")))
	assessor, err := NewAssessor(session, 8)
	if err != nil {
		t.Fatalf("new assessor: %v", err)
	}
	return assessor
}

func TestAssessLowRisk(t *testing.T) {
	assessor := newTestAssessor(t)
	result, err := assessor.Assess(context.Background(), ml.DefaultFeatures())
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if math.Abs(result.Probability-0.45) > 1e-12 {
		t.Fatalf("expected probability 0.45, got %g", result.Probability)
	}
	if result.RiskLevel != TierLow {
		t.Fatalf("expected Low Risk at 0.45, got %s", result.RiskLevel)
	}
	if result.Protocol.Tier != TierLow {
		t.Fatalf("expected low protocol at 0.45, got %s", result.Protocol.Tier)
	}
	if result.Attribution == nil {
		t.Fatal("expected an attribution")
	}
	if diff := math.Abs(result.Attribution.Prediction() - result.Probability); diff > 1e-9 {
		t.Fatalf("attribution should reconstruct the probability, diff=%g", diff)
	}
}

func TestAssessHighRiskModerateProtocol(t *testing.T) {
	assessor := newTestAssessor(t)
	features := ml.DefaultFeatures()
	features.ApacheII = 40
	features.GCS = 12 // both trees go right: (0.8+0.3)/2 = 0.55

	result, err := assessor.Assess(context.Background(), features)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if math.Abs(result.Probability-0.55) > 1e-12 {
		t.Fatalf("expected probability 0.55, got %g", result.Probability)
	}
	if result.RiskLevel != TierHigh {
		t.Fatalf("expected High Risk display, got %s", result.RiskLevel)
	}
	if result.Protocol.Tier != TierModerate {
		t.Fatalf("expected moderate protocol, got %s", result.Protocol.Tier)
	}
}

func TestAssessHighRiskHighProtocol(t *testing.T) {
	assessor := newTestAssessor(t)
	features := ml.DefaultFeatures()
	features.ApacheII = 40 // tree 1 right (0.8), tree 2 left (0.7): 0.75

	result, err := assessor.Assess(context.Background(), features)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if math.Abs(result.Probability-0.75) > 1e-12 {
		t.Fatalf("expected probability 0.75, got %g", result.Probability)
	}
	if result.RiskLevel != TierHigh || result.Protocol.Tier != TierHigh {
		t.Fatalf("expected High Risk on both mappings, got %s / %s", result.RiskLevel, result.Protocol.Tier)
	}
}

func TestAssessDeterministicAndCached(t *testing.T) {
	assessor := newTestAssessor(t)
	features := ml.DefaultFeatures()

	first, err := assessor.Assess(context.Background(), features)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	second, err := assessor.Assess(context.Background(), features)
	if err != nil {
		t.Fatalf("assess again: %v", err)
	}
	if first != second {
		t.Fatal("identical inputs should hit the result cache")
	}
	if !reflect.DeepEqual(first.Attribution, second.Attribution) {
		t.Fatal("repeated assessments must yield identical attributions")
	}
}

func writeTestLogisticModel(t *testing.T) string {
	t.Helper()
	payload, err := json.Marshal(&ml.Artifact{
		Format:   ml.ArtifactFormat,
		Version:  ml.ArtifactVersion,
		Kind:     ml.ModelKindLogistic,
		Features: ml.FeatureNames(),
		Logistic: &ml.Logistic{Weights: []float64{0, 0, 0.1, 0, 0, 0, 0}, Bias: -3},
	})
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.pkl")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestAssessLogisticModelAttribution(t *testing.T) {
	path := writeTestLogisticModel(t)
	session := ml.NewSession(ml.NewResolverWithPaths([]string{path}, filepath.Join(t.TempDir(), "uploaded.pkl")))
	assessor, err := NewAssessor(session, 8)
	if err != nil {
		t.Fatalf("new assessor: %v", err)
	}

	features := ml.DefaultFeatures()
	features.ApacheII = 40 // z = -3 + 0.1*40 = 1, p ~= 0.731

	result, err := assessor.Assess(context.Background(), features)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if result.ModelKind != ml.ModelKindLogistic {
		t.Fatalf("expected logistic model kind, got %s", result.ModelKind)
	}
	if result.RiskLevel != TierHigh || result.Protocol.Tier != TierHigh {
		t.Fatalf("expected High Risk on both mappings, got %s / %s", result.RiskLevel, result.Protocol.Tier)
	}
	if diff := math.Abs(result.Attribution.Prediction() - result.Probability); diff > 1e-9 {
		t.Fatalf("attribution should reconstruct the probability, diff=%g", diff)
	}
	// The only feature shifted away from its default must carry the
	// prediction delta; a flat zero attribution means the background
	// degenerated to the input row.
	if result.Attribution.Contributions[2] == 0 {
		t.Fatal("expected a nonzero contribution for the shifted feature")
	}
	for i, c := range result.Attribution.Contributions {
		if i != 2 && math.Abs(c) > 1e-12 {
			t.Fatalf("feature %d matches the background, contribution should be zero, got %g", i, c)
		}
	}
}

func TestAssessWithoutModel(t *testing.T) {
	session := ml.NewSession(ml.NewResolverWithPaths(
		[]string{filepath.Join(t.TempDir(), "missing.pkl")},
		filepath.Join(t.TempDir(), "uploaded.pkl")))
	assessor, err := NewAssessor(session, 8)
	if err != nil {
		t.Fatalf("new assessor: %v", err)
	}
	_, err = assessor.Assess(context.Background(), ml.DefaultFeatures())
	if !errors.Is(err, ml.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestAssessCancelledContext(t *testing.T) {
	assessor := newTestAssessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := assessor.Assess(ctx, ml.DefaultFeatures()); err == nil {
		t.Fatal("expected a context error")
	}
}
