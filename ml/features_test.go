package ml

import (
	"testing"
)

func TestFeatureVectorOrder(t *testing.T) {
	f := PatientFeatures{
		HeadOfBed: 1, VentHours: 2, ApacheII: 3, Age: 20, GERD: 1, ICUDays: 6, GCS: 7,
	}
	got := f.Vector()
	want := []float64{1, 2, 3, 20, 1, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d: expected %g, got %g", i, want[i], got[i])
		}
	}
	if len(FeatureNames()) != len(got) {
		t.Fatalf("feature names and vector lengths differ")
	}
}

func TestDefaultsAreValid(t *testing.T) {
	if err := DefaultFeatures().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PatientFeatures)
	}{
		{"apache too high", func(f *PatientFeatures) { f.ApacheII = 72 }},
		{"age too low", func(f *PatientFeatures) { f.Age = 17 }},
		{"icu days too high", func(f *PatientFeatures) { f.ICUDays = 51 }},
		{"gcs too high", func(f *PatientFeatures) { f.GCS = 16 }},
		{"gerd not binary", func(f *PatientFeatures) { f.GERD = 0.5 }},
		{"head of bed negative", func(f *PatientFeatures) { f.HeadOfBed = -1 }},
	}
	for _, tc := range cases {
		f := DefaultFeatures()
		tc.mutate(&f)
		if err := f.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestFeatureLabelFallback(t *testing.T) {
	if FeatureLabel("ApacheII") != "APACHE II Score" {
		t.Fatalf("unexpected label: %s", FeatureLabel("ApacheII"))
	}
	if FeatureLabel("Unknown") != "Unknown" {
		t.Fatalf("unknown names should fall back to themselves")
	}
}
