package ml

import (
	"fmt"
)

// PatientFeatures holds the seven input parameters for one assessment.
// Field order matters: Vector() must emit values in the exact column
// order the model was trained on.
type PatientFeatures struct {
	HeadOfBed float64 `json:"head_of_bed"`
	VentHours float64 `json:"vent_hours"`
	ApacheII  float64 `json:"apache_ii"`
	Age       float64 `json:"age"`
	GERD      float64 `json:"gerd"`
	ICUDays   float64 `json:"icu_days"`
	GCS       float64 `json:"gcs"`
}

// FeatureRange bounds one input parameter.
type FeatureRange struct {
	Min     float64
	Max     float64
	Default float64
}

var featureRanges = map[string]FeatureRange{
	"HeadOfBed": {Min: 0, Max: 45, Default: 30},
	"VentHours": {Min: 0, Max: 480, Default: 240},
	"ApacheII":  {Min: 0, Max: 71, Default: 20},
	"Age":       {Min: 18, Max: 100, Default: 50},
	"GERD":      {Min: 0, Max: 1, Default: 0},
	"ICUDays":   {Min: 0, Max: 50, Default: 20},
	"GCS":       {Min: 0, Max: 15, Default: 7},
}

var featureLabels = map[string]string{
	"HeadOfBed": "Head of the bed elevated (°)",
	"VentHours": "Duration of mechanical ventilation (hours)",
	"ApacheII":  "APACHE II Score",
	"Age":       "Age (years)",
	"GERD":      "Gastroesophageal Reflux Disease",
	"ICUDays":   "Length of stay in the ICU (days)",
	"GCS":       "Glasgow Coma Scale (GCS) Score",
}

// FeatureNames returns the training column order. The model artifact
// records the same list and the loader rejects a mismatch.
func FeatureNames() []string {
	return []string{
		"HeadOfBed",
		"VentHours",
		"ApacheII",
		"Age",
		"GERD",
		"ICUDays",
		"GCS",
	}
}

// FeatureLabel returns the display label for a feature name.
func FeatureLabel(name string) string {
	if label, ok := featureLabels[name]; ok {
		return label
	}
	return name
}

// RangeFor returns the documented bounds for a feature name.
func RangeFor(name string) (FeatureRange, bool) {
	r, ok := featureRanges[name]
	return r, ok
}

// DefaultFeatures returns a vector populated with the documented defaults.
func DefaultFeatures() PatientFeatures {
	return PatientFeatures{
		HeadOfBed: featureRanges["HeadOfBed"].Default,
		VentHours: featureRanges["VentHours"].Default,
		ApacheII:  featureRanges["ApacheII"].Default,
		Age:       featureRanges["Age"].Default,
		GERD:      featureRanges["GERD"].Default,
		ICUDays:   featureRanges["ICUDays"].Default,
		GCS:       featureRanges["GCS"].Default,
	}
}

// Vector emits the ordered feature values, matching FeatureNames().
func (f PatientFeatures) Vector() []float64 {
	return []float64{
		f.HeadOfBed,
		f.VentHours,
		f.ApacheII,
		f.Age,
		f.GERD,
		f.ICUDays,
		f.GCS,
	}
}

// Validate checks every field against its documented range.
func (f PatientFeatures) Validate() error {
	values := f.Vector()
	for i, name := range FeatureNames() {
		r := featureRanges[name]
		if values[i] < r.Min || values[i] > r.Max {
			return fmt.Errorf("%s out of range: %g (allowed %g-%g)", name, values[i], r.Min, r.Max)
		}
	}
	if f.GERD != 0 && f.GERD != 1 {
		return fmt.Errorf("GERD must be 0 or 1, got %g", f.GERD)
	}
	return nil
}
