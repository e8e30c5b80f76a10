package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"vaprisk/ml"
)

func main() {
	dataPath := flag.String("data", "", "training CSV path (columns: HeadOfBed,VentHours,ApacheII,Age,GERD,ICUDays,GCS,Label)")
	modelPath := flag.String("model_path", filepath.Join("models", "my_model.pkl"), "model output path")
	kind := flag.String("kind", "forest", "model kind: forest or logistic")
	trees := flag.Int("trees", 25, "number of trees (forest)")
	maxDepth := flag.Int("max_depth", 4, "max tree depth (forest)")
	epochs := flag.Int("epochs", 200, "gradient epochs (logistic)")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	seed := flag.Int64("seed", 42, "bagging seed")
	gbk := flag.Bool("gbk", false, "dataset is a GBK-encoded legacy export")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	features, labels, err := loadDataset(*dataPath, *gbk)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	log.Printf("loaded %d rows from %s", len(features), *dataPath)

	trainX, trainY, testX, testY := splitDataset(features, labels, *testRatio)

	artifact := &ml.Artifact{
		Format:   ml.ArtifactFormat,
		Version:  ml.ArtifactVersion,
		Features: ml.FeatureNames(),
	}

	var predictor ml.Predictor
	switch *kind {
	case "forest":
		forest, err := ml.TrainForest(trainX, trainY, *trees, *maxDepth, *seed)
		if err != nil {
			log.Fatalf("failed to train forest: %v", err)
		}
		artifact.Kind = ml.ModelKindForest
		artifact.Forest = forest
		predictor = forest
	case "logistic":
		model, err := ml.TrainLogistic(trainX, trainY, *epochs, 0.01)
		if err != nil {
			log.Fatalf("failed to train logistic model: %v", err)
		}
		artifact.Kind = ml.ModelKindLogistic
		artifact.Logistic = model
		predictor = model
	default:
		log.Fatalf("unknown model kind %q", *kind)
	}

	accuracy, precision, recall := evaluateModel(predictor, testX, testY)
	log.Printf("accuracy=%.2f precision=%.2f recall=%.2f", accuracy, precision, recall)

	if dir := filepath.Dir(*modelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create model dir: %v", err)
		}
	}
	if err := ml.SaveArtifact(*modelPath, artifact); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

// loadDataset reads the patient CSV. Legacy hospital exports are
// GBK-encoded; -gbk transcodes them before parsing.
func loadDataset(path string, gbk bool) ([][]float64, []int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if gbk {
		reader = transform.NewReader(file, simplifiedchinese.GBK.NewDecoder())
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("dataset has no data rows")
	}

	featureCount := len(ml.FeatureNames())
	features := make([][]float64, 0, len(records)-1)
	labels := make([]int, 0, len(records)-1)
	for i, record := range records[1:] { // skip header
		if len(record) != featureCount+1 {
			return nil, nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, featureCount+1, len(record))
		}
		row := make([]float64, featureCount)
		for j := 0; j < featureCount; j++ {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %d: %w", i+2, j+1, err)
			}
			row[j] = v
		}
		label, err := strconv.Atoi(record[featureCount])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d label: %w", i+2, err)
		}
		features = append(features, row)
		labels = append(labels, label)
	}
	return features, labels, nil
}

func splitDataset(features [][]float64, labels []int, testRatio float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	split := int(float64(len(features)) * (1 - testRatio))
	for i := range features {
		if i < split {
			trainX = append(trainX, features[i])
			trainY = append(trainY, labels[i])
		} else {
			testX = append(testX, features[i])
			testY = append(testY, labels[i])
		}
	}
	return trainX, trainY, testX, testY
}

func evaluateModel(model ml.Predictor, testX [][]float64, testY []int) (accuracy, precision, recall float64) {
	if len(testX) == 0 {
		return 0, 0, 0
	}

	var correct int
	var truePositive int
	var predictedPositive int
	var actualPositive int

	for i, feature := range testX {
		proba, err := model.PredictProba(feature)
		if err != nil {
			continue
		}
		label := 0
		if proba[1] > 0.5 {
			label = 1
		}
		if label == testY[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if testY[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	accuracy = float64(correct) / float64(len(testX))
	if predictedPositive > 0 {
		precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		recall = float64(truePositive) / float64(actualPositive)
	}
	return accuracy, precision, recall
}
