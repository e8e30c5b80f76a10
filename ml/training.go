package ml

import (
	"errors"
	"math"
	"math/rand"
)

// TrainForest builds a bagged tree ensemble with probability leaves.
// Only cmd/train_model uses this; the serving path never trains.
func TrainForest(features [][]float64, labels []int, trees, maxDepth int, seed int64) (*Forest, error) {
	if len(features) == 0 || len(labels) == 0 {
		return nil, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if trees <= 0 {
		trees = 25
	}
	if maxDepth <= 0 {
		maxDepth = 4
	}

	rng := rand.New(rand.NewSource(seed))
	forest := &Forest{Trees: make([]Tree, 0, trees)}
	for t := 0; t < trees; t++ {
		sampleX, sampleY := bootstrapSample(features, labels, rng)
		nodes := buildNode(sampleX, sampleY, 0, maxDepth)
		forest.Trees = append(forest.Trees, Tree{Nodes: nodes})
	}
	return forest, nil
}

// TrainLogistic fits a linear scorer by gradient descent.
func TrainLogistic(features [][]float64, labels []int, epochs int, learningRate float64) (*Logistic, error) {
	if len(features) == 0 || len(labels) == 0 {
		return nil, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if epochs <= 0 {
		epochs = 200
	}
	if learningRate <= 0 {
		learningRate = 0.01
	}

	dim := len(features[0])
	model := &Logistic{Weights: make([]float64, dim)}
	n := float64(len(features))
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		for i, x := range features {
			z := model.Bias
			for j, w := range model.Weights {
				z += w * x[j]
			}
			p := 1 / (1 + math.Exp(-z))
			diff := p - float64(labels[i])
			for j := range gradW {
				gradW[j] += diff * x[j]
			}
			gradB += diff
		}
		for j := range model.Weights {
			model.Weights[j] -= learningRate * gradW[j] / n
		}
		model.Bias -= learningRate * gradB / n
	}
	return model, nil
}

func bootstrapSample(features [][]float64, labels []int, rng *rand.Rand) ([][]float64, []int) {
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		pick := rng.Intn(n)
		sampleX[i] = features[pick]
		sampleY[i] = labels[pick]
	}
	return sampleX, sampleY
}

func buildNode(features [][]float64, labels []int, depth, maxDepth int) []TreeNode {
	leaf := TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      positiveFraction(labels),
		Samples:    len(labels),
		IsLeaf:     true,
	}
	if depth >= maxDepth || isPure(labels) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return []TreeNode{leaf}
	}

	leftX, leftY, rightX, rightY := splitData(features, labels, bestFeature, threshold)
	if len(leftY) == 0 || len(rightY) == 0 {
		return []TreeNode{leaf}
	}

	leftNodes := buildNode(leftX, leftY, depth+1, maxDepth)
	rightNodes := buildNode(rightX, rightY, depth+1, maxDepth)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      positiveFraction(labels),
		Samples:    len(labels),
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	positive := positiveFraction(labels)
	return 1 - positive*positive - (1-positive)*(1-positive)
}

func positiveFraction(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	count := 0
	for _, label := range labels {
		if label == 1 {
			count++
		}
	}
	return float64(count) / float64(len(labels))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sortFloats(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sortFloats(values []float64) {
	for i := 1; i < len(values); i++ {
		j := i
		for j > 0 && values[j-1] > values[j] {
			values[j-1], values[j] = values[j], values[j-1]
			j--
		}
	}
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
