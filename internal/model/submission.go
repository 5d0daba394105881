package model

import "time"

type Submission struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	TaskID      string     `json:"task_id"`
	ProofRef    string     `json:"proof_ref"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func (s *Submission) Pending() bool {
	return s.Status == StatusPending
}
