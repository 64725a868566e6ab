package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swasthyaflow/intake/internal/domain/queue"
	"github.com/swasthyaflow/intake/internal/domain/routing"
	"github.com/swasthyaflow/intake/internal/platform/ml"
	"github.com/swasthyaflow/intake/pkg/clinical"
)

const maxAge = 130

// IntakeRequest is one patient presentation.
type IntakeRequest struct {
	PatientID  string              `json:"patient_id"`
	Symptoms   []string            `json:"symptoms"`
	Conditions []string            `json:"pre_existing_conditions"`
	Vitals     clinical.VitalSigns `json:"vitals"`
	Age        int                 `json:"age"`
	Gender     string              `json:"gender"`

	// Location enables facility routing.
	Location      *routing.GeoPoint `json:"location,omitempty"`
	MaxDistanceKm float64           `json:"max_distance_km,omitempty"`
	// FacilityID is where the patient already is. Tokens are issued there
	// when set, otherwise at the primary routed facility.
	FacilityID string `json:"hospital_id,omitempty"`
	IssueToken bool   `json:"issue_token"`
}

func (r *IntakeRequest) Validate() error {
	if len(r.Symptoms) == 0 {
		return fmt.Errorf("at least one symptom is required")
	}
	if r.Age < 0 || r.Age > maxAge {
		return fmt.Errorf("age must be between 0 and %d", maxAge)
	}
	if err := r.Vitals.Validate(); err != nil {
		return err
	}
	if r.IssueToken && strings.TrimSpace(r.PatientID) == "" {
		return fmt.Errorf("patient_id is required to issue a token")
	}
	if r.Location != nil {
		if r.Location.Latitude < -90 || r.Location.Latitude > 90 ||
			r.Location.Longitude < -180 || r.Location.Longitude > 180 {
			return fmt.Errorf("location out of range")
		}
	}
	return nil
}

func (r *IntakeRequest) input() ml.Input {
	return ml.Input{
		Symptoms:   ml.NormalizeTerms(r.Symptoms),
		Conditions: ml.NormalizeTerms(r.Conditions),
		Vitals:     r.Vitals,
		Age:        r.Age,
		Gender:     r.Gender,
	}
}

// DefaultEstimatedWait is reported when no facility load is known.
const DefaultEstimatedWait = 15

// Result is the outcome of the intake pipeline.
type Result struct {
	SessionID            uuid.UUID           `json:"session_id"`
	PatientID            string              `json:"patient_id,omitempty"`
	Decision             Decision            `json:"decision"`
	PrimaryFacility      *routing.Candidate  `json:"primary_facility,omitempty"`
	AlternateFacilities  []routing.Candidate `json:"alternate_facilities"`
	EstimatedWaitMinutes int                 `json:"estimated_wait_minutes"`
	Token                *queue.Token        `json:"token,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}
