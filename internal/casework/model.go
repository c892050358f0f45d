// Package casework manages client records and the disputes filed on their
// behalf.
package casework

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrDisputeNotFound = errors.New("dispute not found")
)

// Client and dispute statuses.
const (
	ClientActive = "active"

	DisputePending = "pending"
)

// Client is a customer of the credit-repair business.
type Client struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	CreditScore      *int      `json:"credit_score,omitempty"`
	Status           string    `json:"status"`
	EnforcementStage string    `json:"current_enforcement_stage"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Dispute is one challenged tradeline.
type Dispute struct {
	ID                 string    `json:"id"`
	ClientID           string    `json:"client_id"`
	CreditorName       string    `json:"creditor_name"`
	AccountNumber      string    `json:"account_number"`
	Reason             string    `json:"dispute_reason"`
	Description        string    `json:"description,omitempty"`
	Amount             *float64  `json:"amount,omitempty"`
	Status             string    `json:"status"`
	SuccessProbability *float64  `json:"success_probability,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Stage is one step of the enforcement process a client moves through.
type Stage struct {
	Step        int    `json:"step"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var stages = []Stage{
	{1, "Credit Report Analysis", "Comprehensive review of all three credit reports"},
	{2, "Error Identification", "Identify inaccurate, incomplete, or unverifiable items"},
	{3, "Strategic Dispute Planning", "Develop customized dispute strategy"},
	{4, "Initial Dispute Letters", "Send FCRA-compliant dispute letters to bureaus"},
	{5, "Furnisher Challenges", "Direct disputes with data furnishers"},
	{6, "Advanced Legal Tactics", "Escalated enforcement procedures"},
	{7, "Validation Requests", "Debt validation under FDCPA"},
	{8, "Compliance Monitoring", "Ensure all parties follow legal requirements"},
	{9, "Credit Optimization", "Positive credit building strategies"},
	{10, "Wealth Management Transition", "Graduate to wealth building services"},
}

// EnforcementStages returns a copy of the ordered stage list.
func EnforcementStages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// StageLabel formats a stage the way it is stored on a client.
func StageLabel(s Stage) string {
	return fmt.Sprintf("Step %d: %s", s.Step, s.Name)
}

// Stats summarizes the caseload.
type Stats struct {
	TotalClients     int            `json:"total_clients"`
	ActiveClients    int            `json:"active_clients"`
	TotalDisputes    int            `json:"total_disputes"`
	DisputesByStatus map[string]int `json:"disputes_by_status"`
}
