package model

import "time"

type Withdrawal struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	Amount      int        `json:"amount"`
	Destination string     `json:"destination"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func (w *Withdrawal) Pending() bool {
	return w.Status == StatusPending
}
