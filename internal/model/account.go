package model

import "time"

type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Balance        int             `json:"balance"`
	ReferralCode   string          `json:"referral_code"`
	Referrals      int             `json:"referrals"`
	ReferredBy     string          `json:"referred_by,omitempty"`
	Blocked        bool            `json:"blocked"`
	RegisteredAt   time.Time       `json:"registered_at"`
	CompletedTasks []CompletedTask `json:"completed_tasks"`
}

type CompletedTask struct {
	TaskID      string    `json:"task_id"`
	Reward      int       `json:"reward"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletedCount returns how many times the account has been rewarded for taskID.
func (a *Account) CompletedCount(taskID string) int {
	n := 0
	for _, c := range a.CompletedTasks {
		if c.TaskID == taskID {
			n++
		}
	}
	return n
}
