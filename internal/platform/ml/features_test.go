package ml

import (
	"reflect"
	"testing"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

func TestDefaultEncoder_Shape(t *testing.T) {
	e := DefaultEncoder()
	want := len(clinical.Symptoms) + len(clinical.Conditions) + len(NumericFeatures) + len(clinical.Genders)
	if e.Len() != want {
		t.Fatalf("Len() = %d, want %d", e.Len(), want)
	}
	v := e.Encode(Input{})
	if v.Len() != want || len(v.Names) != want {
		t.Errorf("vector length %d / names %d, want %d", v.Len(), len(v.Names), want)
	}
	if v.Names[0] != "symptom_"+clinical.Symptoms[0] {
		t.Errorf("first feature = %q", v.Names[0])
	}
}

func TestEncoder_MultiHotAndOneHot(t *testing.T) {
	e, err := NewEncoder([]string{"chest_pain", "fever"}, []string{"diabetes"}, clinical.Genders,
		[]float64{35, 120, 80, 72, 98.6, 98, 16}, []float64{20, 15, 10, 12, 1, 2, 4})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	v := e.Encode(Input{
		Symptoms:   []string{"Fever", "unknown_symptom"},
		Conditions: []string{"diabetes"},
		Vitals:     clinical.VitalSigns{SpO2: clinical.Float(94)},
		Age:        55,
		Gender:     "f",
	})

	// symptoms, conditions, numeric (age z=1, spo2 z=-2), gender F
	want := []float64{
		0, 1,
		1,
		1, 0, 0, 0, 0, -2, 0,
		1, 0, 0,
	}
	if !reflect.DeepEqual(v.Values, want) {
		t.Errorf("Encode() = %v, want %v", v.Values, want)
	}
}

func TestEncoder_UnknownGenderMapsToMale(t *testing.T) {
	e := DefaultEncoder()
	v := e.Encode(Input{Gender: "X"})
	idx := -1
	for i, n := range v.Names {
		if n == "gender_M" {
			idx = i
		}
	}
	if idx < 0 || v.Values[idx] != 1 {
		t.Errorf("expected gender_M to be set for unknown gender")
	}
}

func TestEncoder_Deterministic(t *testing.T) {
	e := DefaultEncoder()
	in := Input{Symptoms: []string{"cough", "fever"}, Age: 30, Gender: "M"}
	a := e.Encode(in)
	b := e.Encode(in)
	if !reflect.DeepEqual(a, b) {
		t.Error("encoding the same input twice gave different vectors")
	}
}

func TestNewEncoder_Validation(t *testing.T) {
	mean := []float64{0, 0, 0, 0, 0, 0, 0}
	scale := []float64{1, 1, 1, 1, 1, 1, 1}
	if _, err := NewEncoder(nil, nil, clinical.Genders, mean[:3], scale); err == nil {
		t.Error("expected error for short mean")
	}
	zero := append([]float64(nil), scale...)
	zero[2] = 0
	if _, err := NewEncoder(nil, nil, clinical.Genders, mean, zero); err == nil {
		t.Error("expected error for zero scale")
	}
	if _, err := NewEncoder([]string{"a", "a"}, nil, clinical.Genders, mean, scale); err == nil {
		t.Error("expected error for duplicate symptom")
	}
	if _, err := NewEncoder(nil, nil, nil, mean, scale); err == nil {
		t.Error("expected error for empty genders")
	}
}

func TestNormalizeTerms(t *testing.T) {
	got := NormalizeTerms([]string{" Fever", "cough", "fever", ""})
	want := []string{"fever", "cough"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTerms() = %v, want %v", got, want)
	}
}
