package explain

import (
	"errors"
	"fmt"

	"vaprisk/ml"
)

// maxBackgroundRows caps the background sample used by the
// model-agnostic fallback.
const maxBackgroundRows = 10

// KernelExplainer is the model-agnostic fallback for predictors that
// expose no tree structure. With only seven features the Shapley values
// are computed exactly by enumerating all feature coalitions against a
// small background sample, which keeps the result deterministic.
type KernelExplainer struct {
	predictor  ml.Predictor
	background [][]float64
}

// NewKernelExplainer builds a fallback explainer. background rows
// beyond maxBackgroundRows are dropped; an empty background falls back
// to the documented feature defaults.
func NewKernelExplainer(predictor ml.Predictor, background [][]float64) *KernelExplainer {
	if len(background) > maxBackgroundRows {
		background = background[:maxBackgroundRows]
	}
	if len(background) == 0 {
		background = [][]float64{ml.DefaultFeatures().Vector()}
	}
	return &KernelExplainer{predictor: predictor, background: background}
}

func (e *KernelExplainer) Explain(features []float64) (*Attribution, error) {
	if e.predictor == nil {
		return nil, errors.New("no predictor to explain")
	}
	n := len(features)
	if n == 0 {
		return nil, errors.New("empty feature vector")
	}
	for _, row := range e.background {
		if len(row) != n {
			return nil, fmt.Errorf("background row has %d features, want %d", len(row), n)
		}
	}

	// v[mask] is the mean prediction over background rows with the
	// masked features replaced by the input values.
	total := 1 << n
	values := make([]float64, total)
	blended := make([]float64, n)
	for mask := 0; mask < total; mask++ {
		sum := 0.0
		for _, row := range e.background {
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					blended[i] = features[i]
				} else {
					blended[i] = row[i]
				}
			}
			proba, err := e.predictor.PredictProba(blended)
			if err != nil {
				return nil, fmt.Errorf("score coalition: %w", err)
			}
			sum += proba[1]
		}
		values[mask] = sum / float64(len(e.background))
	}

	weights := coalitionWeights(n)
	contribs := make([]float64, n)
	for i := 0; i < n; i++ {
		bit := 1 << i
		for mask := 0; mask < total; mask++ {
			if mask&bit != 0 {
				continue
			}
			size := popCount(mask)
			contribs[i] += weights[size] * (values[mask|bit] - values[mask])
		}
	}

	return &Attribution{BaseValue: values[0], Contributions: contribs}, nil
}

// coalitionWeights returns |S|!(n-|S|-1)!/n! for each coalition size.
func coalitionWeights(n int) []float64 {
	factorial := make([]float64, n+1)
	factorial[0] = 1
	for i := 1; i <= n; i++ {
		factorial[i] = factorial[i-1] * float64(i)
	}
	weights := make([]float64, n)
	for s := 0; s < n; s++ {
		weights[s] = factorial[s] * factorial[n-s-1] / factorial[n]
	}
	return weights
}

func popCount(mask int) int {
	count := 0
	for mask != 0 {
		count += mask & 1
		mask >>= 1
	}
	return count
}
