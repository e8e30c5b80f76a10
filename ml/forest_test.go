package ml

import (
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

// testForest splits on ApacheII (<=30) and GCS (<=8) with probability
// leaves. Defaults (ApacheII 20, GCS 7) score (0.2+0.7)/2 = 0.45.
func testForest() *Forest {
	return &Forest{Trees: []Tree{
		{Nodes: []TreeNode{
			{FeatureIdx: 2, Threshold: 30, LeftChild: 1, RightChild: 2, Value: 0.5, Samples: 100},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.2, Samples: 50, IsLeaf: true},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.8, Samples: 50, IsLeaf: true},
		}},
		{Nodes: []TreeNode{
			{FeatureIdx: 6, Threshold: 8, LeftChild: 1, RightChild: 2, Value: 0.5, Samples: 100},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.7, Samples: 60, IsLeaf: true},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.3, Samples: 40, IsLeaf: true},
		}},
	}}
}

func testArtifactJSON(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(&Artifact{
		Format:   ArtifactFormat,
		Version:  ArtifactVersion,
		Kind:     ModelKindForest,
		Features: FeatureNames(),
		Forest:   testForest(),
	})
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	return payload
}

func TestForestPredictProba(t *testing.T) {
	forest := testForest()
	proba, err := forest.PredictProba(DefaultFeatures().Vector())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(proba[1]-0.45) > 1e-12 {
		t.Fatalf("expected p1=0.45, got %g", proba[1])
	}
	if math.Abs(proba[0]+proba[1]-1) > 1e-12 {
		t.Fatalf("probabilities should sum to 1, got %g", proba[0]+proba[1])
	}
}

func TestLogisticPredictProba(t *testing.T) {
	model := &Logistic{Weights: make([]float64, 7), Bias: 0}
	proba, err := model.PredictProba(DefaultFeatures().Vector())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(proba[1]-0.5) > 1e-12 {
		t.Fatalf("zero weights should score 0.5, got %g", proba[1])
	}

	if _, err := model.PredictProba([]float64{1, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestDecodeArtifact(t *testing.T) {
	model, err := DecodeArtifact(testArtifactJSON(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if model.Info.Kind != ModelKindForest {
		t.Fatalf("expected forest kind, got %s", model.Info.Kind)
	}
	if model.Info.TreeCount != 2 {
		t.Fatalf("expected 2 trees, got %d", model.Info.TreeCount)
	}
	if model.Info.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}
}

func TestDecodeArtifactRejectsGarbage(t *testing.T) {
	if _, err := DecodeArtifact([]byte("not a model")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeArtifact([]byte(`{"format":"something-else","version":1}`)); err == nil {
		t.Fatal("expected format error")
	}
}

func TestDecodeArtifactRejectsFeatureOrderMismatch(t *testing.T) {
	names := FeatureNames()
	names[0], names[1] = names[1], names[0]
	payload, _ := json.Marshal(&Artifact{
		Format:   ArtifactFormat,
		Version:  ArtifactVersion,
		Kind:     ModelKindForest,
		Features: names,
		Forest:   testForest(),
	})
	_, err := DecodeArtifact(payload)
	if err == nil {
		t.Fatal("expected feature order error")
	}
	if !strings.Contains(err.Error(), "feature order mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pkl")
	artifact := &Artifact{
		Format:   ArtifactFormat,
		Version:  ArtifactVersion,
		Kind:     ModelKindForest,
		Features: FeatureNames(),
		Forest:   testForest(),
	}
	if err := SaveArtifact(path, artifact); err != nil {
		t.Fatalf("save: %v", err)
	}
	model, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	proba, err := model.Predictor().PredictProba(DefaultFeatures().Vector())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(proba[1]-0.45) > 1e-12 {
		t.Fatalf("expected p1=0.45 after round trip, got %g", proba[1])
	}
}

func TestTrainForestSeparatesClasses(t *testing.T) {
	features := make([][]float64, 0, 40)
	labels := make([]int, 0, 40)
	for i := 0; i < 20; i++ {
		low := DefaultFeatures()
		low.ApacheII = 10 + float64(i%5)
		features = append(features, low.Vector())
		labels = append(labels, 0)

		high := DefaultFeatures()
		high.ApacheII = 50 + float64(i%5)
		features = append(features, high.Vector())
		labels = append(labels, 1)
	}

	forest, err := TrainForest(features, labels, 10, 3, 1)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	low := DefaultFeatures()
	low.ApacheII = 12
	high := DefaultFeatures()
	high.ApacheII = 52

	pLow, err := forest.PredictProba(low.Vector())
	if err != nil {
		t.Fatalf("predict low: %v", err)
	}
	pHigh, err := forest.PredictProba(high.Vector())
	if err != nil {
		t.Fatalf("predict high: %v", err)
	}
	if pHigh[1] <= pLow[1] {
		t.Fatalf("expected higher risk for high APACHE: low=%g high=%g", pLow[1], pHigh[1])
	}
}

func TestTrainLogisticDirection(t *testing.T) {
	features := [][]float64{}
	labels := []int{}
	for i := 0; i < 30; i++ {
		features = append(features, []float64{0, 0, float64(10 + i%5), 0, 0, 0, 0})
		labels = append(labels, 0)
		features = append(features, []float64{0, 0, float64(50 + i%5), 0, 0, 0, 0})
		labels = append(labels, 1)
	}
	model, err := TrainLogistic(features, labels, 300, 0.01)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if model.Weights[2] <= 0 {
		t.Fatalf("expected positive weight on the separating feature, got %g", model.Weights[2])
	}
}
