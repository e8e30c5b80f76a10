// Package explain computes per-feature attributions for a prediction:
// one signed contribution per input feature plus a scalar baseline such
// that baseline + sum(contributions) equals the predicted probability.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"vaprisk/ml"
)

// Attribution explains one prediction. Contributions follow the
// ml.FeatureNames() column order.
type Attribution struct {
	BaseValue     float64   `json:"base_value"`
	Contributions []float64 `json:"contributions"`
}

// Prediction reconstructs the explained probability.
func (a *Attribution) Prediction() float64 {
	sum := a.BaseValue
	for _, c := range a.Contributions {
		sum += c
	}
	return sum
}

// Contributor pairs a feature with its contribution for display.
type Contributor struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TopContributors lists features by absolute contribution, largest
// first. limit <= 0 returns all.
func (a *Attribution) TopContributors(limit int) []Contributor {
	names := ml.FeatureNames()
	contributors := make([]Contributor, 0, len(names))
	for i, name := range names {
		if i >= len(a.Contributions) {
			break
		}
		contributors = append(contributors, Contributor{
			Name:  name,
			Label: ml.FeatureLabel(name),
			Value: a.Contributions[i],
		})
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		return math.Abs(contributors[i].Value) > math.Abs(contributors[j].Value)
	})
	if limit > 0 && limit < len(contributors) {
		contributors = contributors[:limit]
	}
	return contributors
}

// Explainer computes an attribution for one feature vector.
type Explainer interface {
	Explain(features []float64) (*Attribution, error)
}

// ForModel picks the attribution method from the capability tag
// assigned at load time: exact tree-path attribution for forests, the
// background-sample fallback for everything else.
func ForModel(model *ml.Model, background [][]float64) (Explainer, error) {
	switch model.Info.Kind {
	case ml.ModelKindForest:
		return NewTreeExplainer(model.Forest), nil
	case ml.ModelKindLogistic:
		return NewKernelExplainer(model.Predictor(), background), nil
	default:
		return nil, fmt.Errorf("no explainer for model kind %q", model.Info.Kind)
	}
}

// TreeExplainer produces exact attributions for tree ensembles by
// descending each tree and crediting every split's change in node
// expectation to the split feature. The baseline is the ensemble root
// expectation, so baseline + contributions reconstruct the prediction
// exactly.
type TreeExplainer struct {
	forest *ml.Forest
}

func NewTreeExplainer(forest *ml.Forest) *TreeExplainer {
	return &TreeExplainer{forest: forest}
}

func (e *TreeExplainer) Explain(features []float64) (*Attribution, error) {
	if e.forest == nil || len(e.forest.Trees) == 0 {
		return nil, errors.New("no trees to explain")
	}

	contribs := make([]float64, len(features))
	base := 0.0
	for i := range e.forest.Trees {
		treeBase, treeContribs, err := pathContributions(&e.forest.Trees[i], features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		base += treeBase
		for j, c := range treeContribs {
			contribs[j] += c
		}
	}

	n := float64(len(e.forest.Trees))
	base /= n
	for j := range contribs {
		contribs[j] /= n
	}

	return &Attribution{BaseValue: base, Contributions: contribs}, nil
}

func pathContributions(tree *ml.Tree, features []float64) (float64, []float64, error) {
	if len(tree.Nodes) == 0 {
		return 0, nil, errors.New("empty tree")
	}

	contribs := make([]float64, len(features))
	idx := 0
	for {
		node := tree.Nodes[idx]
		if node.IsLeaf {
			return tree.Nodes[0].Value, contribs, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, nil, errors.New("feature index out of range")
		}
		next := node.LeftChild
		if features[node.FeatureIdx] > node.Threshold {
			next = node.RightChild
		}
		if next < 0 || next >= len(tree.Nodes) {
			return 0, nil, errors.New("invalid tree state")
		}
		contribs[node.FeatureIdx] += tree.Nodes[next].Value - node.Value
		idx = next
	}
}
