package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

// Status is a token's place in its lifecycle:
// waiting -> in_progress -> completed, or waiting -> cancelled.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Token is a patient's place in a facility department queue.
type Token struct {
	ID                   uuid.UUID         `json:"id"`
	TokenNumber          int               `json:"token_number"`
	PatientID            string            `json:"patient_id"`
	SessionID            *uuid.UUID        `json:"session_id,omitempty"`
	Risk                 clinical.RiskTier `json:"risk_level"`
	Department           string            `json:"department"`
	FacilityID           string            `json:"hospital_id"`
	StaffID              *string           `json:"doctor_id"`
	Priority             int               `json:"priority"`
	Status               Status            `json:"status"`
	QueuePosition        int               `json:"queue_position"`
	EstimatedWaitMinutes int               `json:"estimated_wait_minutes"`
	CreatedAt            time.Time         `json:"created_at"`
	CalledAt             *time.Time        `json:"called_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

// IssueRequest asks for a new token.
type IssueRequest struct {
	PatientID  string            `json:"patient_id"`
	SessionID  *uuid.UUID        `json:"session_id,omitempty"`
	Risk       clinical.RiskTier `json:"risk_level"`
	Department string            `json:"department"`
	FacilityID string            `json:"hospital_id"`
	StaffID    *string           `json:"doctor_id,omitempty"`
}

// Stats summarises the waiting set of one facility department.
type Stats struct {
	FacilityID           string `json:"hospital_id"`
	Department           string `json:"department"`
	TotalWaiting         int    `json:"total_waiting"`
	HighRisk             int    `json:"high_risk"`
	MediumRisk           int    `json:"medium_risk"`
	LowRisk              int    `json:"low_risk"`
	InProgress           int    `json:"in_progress"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}
