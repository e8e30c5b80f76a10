package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Artifact format identifiers, recorded in every saved model.
const (
	ArtifactFormat  = "vap-risk-model"
	ArtifactVersion = 1
)

// TreeNode is one node of a serialized decision tree. Nodes are stored
// as a flat array; child fields index into it. Value is the positive
// class fraction of the training samples that reached the node.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

// Tree is a single decision tree with probability leaves.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Forest is a bagged ensemble of trees. Prediction is the mean of the
// per-tree leaf values.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// Logistic is a linear scorer with a sigmoid link. It has no tree
// structure, so it exercises the generic attribution path.
type Logistic struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Artifact is the on-disk model document.
type Artifact struct {
	Format   string    `json:"format"`
	Version  int       `json:"version"`
	Kind     ModelKind `json:"kind"`
	Features []string  `json:"features"`
	Forest   *Forest   `json:"forest,omitempty"`
	Logistic *Logistic `json:"logistic,omitempty"`
}

// Model is a decoded artifact ready for scoring.
type Model struct {
	Info     ModelInfo
	Forest   *Forest
	Logistic *Logistic
}

// PredictLeaf walks the tree and returns the leaf value for a vector.
func (t *Tree) PredictLeaf(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("tree has no nodes")
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// PredictProba implements Predictor for a forest.
func (f *Forest) PredictProba(features []float64) ([2]float64, error) {
	if len(f.Trees) == 0 {
		return [2]float64{}, errors.New("forest has no trees")
	}
	sum := 0.0
	for i := range f.Trees {
		leaf, err := f.Trees[i].PredictLeaf(features)
		if err != nil {
			return [2]float64{}, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += leaf
	}
	p1 := sum / float64(len(f.Trees))
	return [2]float64{1 - p1, p1}, nil
}

// PredictProba implements Predictor for a logistic scorer.
func (l *Logistic) PredictProba(features []float64) ([2]float64, error) {
	if len(features) != len(l.Weights) {
		return [2]float64{}, fmt.Errorf("expected %d features, got %d", len(l.Weights), len(features))
	}
	z := l.Bias
	for i, w := range l.Weights {
		z += w * features[i]
	}
	p1 := 1 / (1 + math.Exp(-z))
	return [2]float64{1 - p1, p1}, nil
}

// Predictor returns the scoring backend picked at load time.
func (m *Model) Predictor() Predictor {
	if m.Info.Kind == ModelKindForest {
		return m.Forest
	}
	return m.Logistic
}

// DecodeArtifact parses and validates a serialized model. The recorded
// training feature order must match the live feature set exactly.
func DecodeArtifact(data []byte) (*Model, error) {
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if artifact.Format != ArtifactFormat {
		return nil, fmt.Errorf("unrecognized model format %q", artifact.Format)
	}
	if artifact.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported model version %d", artifact.Version)
	}
	if err := checkFeatureOrder(artifact.Features); err != nil {
		return nil, err
	}

	model := &Model{
		Info: ModelInfo{
			Kind:        artifact.Kind,
			Features:    artifact.Features,
			Fingerprint: fingerprint(data),
		},
	}

	switch artifact.Kind {
	case ModelKindForest:
		if artifact.Forest == nil || len(artifact.Forest.Trees) == 0 {
			return nil, errors.New("forest model has no trees")
		}
		for i := range artifact.Forest.Trees {
			if err := validateTree(&artifact.Forest.Trees[i]); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		model.Forest = artifact.Forest
		model.Info.TreeCount = len(artifact.Forest.Trees)
	case ModelKindLogistic:
		if artifact.Logistic == nil {
			return nil, errors.New("logistic model has no coefficients")
		}
		if len(artifact.Logistic.Weights) != len(FeatureNames()) {
			return nil, fmt.Errorf("logistic model has %d weights, want %d",
				len(artifact.Logistic.Weights), len(FeatureNames()))
		}
		model.Logistic = artifact.Logistic
	default:
		return nil, fmt.Errorf("unknown model kind %q", artifact.Kind)
	}

	return model, nil
}

// LoadArtifact reads and decodes a model file.
func LoadArtifact(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model, err := DecodeArtifact(data)
	if err != nil {
		return nil, err
	}
	model.Info.Path = path
	return model, nil
}

// SaveArtifact serializes a model document to disk.
func SaveArtifact(path string, artifact *Artifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func checkFeatureOrder(recorded []string) error {
	expected := FeatureNames()
	if len(recorded) == 0 {
		// Older artifacts omit the list; trust the documented order.
		return nil
	}
	if len(recorded) != len(expected) {
		return fmt.Errorf("model trained on %d features, service has %d", len(recorded), len(expected))
	}
	for i, name := range recorded {
		if name != expected[i] {
			return fmt.Errorf("feature order mismatch at column %d: model %q, service %q", i, name, expected[i])
		}
	}
	return nil
}

func validateTree(t *Tree) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	featureCount := len(FeatureNames())
	for i, node := range t.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= 0 || node.LeftChild >= len(t.Nodes) ||
			node.RightChild <= 0 || node.RightChild >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
