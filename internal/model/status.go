package model

// Status is the lifecycle state shared by submissions and withdrawals.
// Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Outcome is an administrator's decision on a pending record.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

func (o Outcome) Valid() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// Status maps the outcome onto the terminal status it produces.
func (o Outcome) Status() Status {
	if o == OutcomeApprove {
		return StatusApproved
	}
	return StatusRejected
}
