package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/google/uuid"
)

// SubmissionStore records proof submissions and drives their
// pending -> approved|rejected transitions.
type SubmissionStore struct {
	submissions kv.Collection[[]model.Submission]
	accounts    *AccountStore
	tasks       *TaskStore
	now         func() time.Time
	newID       func() string
}

func NewSubmissionStore(c Collections, accounts *AccountStore, tasks *TaskStore) *SubmissionStore {
	return &SubmissionStore{
		submissions: c.Submissions,
		accounts:    accounts,
		tasks:       tasks,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Submit queues a new pending submission. Earlier pending submissions for the
// same task are left alone and reviewed independently.
func (s *SubmissionStore) Submit(accountID, taskID, proofRef string) (*model.Submission, error) {
	return s.submit(accountID, taskID, proofRef, false)
}

// SubmitExclusive is Submit under the single-pending-per-task policy: it
// fails with model.ErrAlreadyExists while another submission for the same
// task is still pending. The check and the append happen under one lock.
func (s *SubmissionStore) SubmitExclusive(accountID, taskID, proofRef string) (*model.Submission, error) {
	return s.submit(accountID, taskID, proofRef, true)
}

func (s *SubmissionStore) submit(accountID, taskID, proofRef string, exclusive bool) (*model.Submission, error) {
	a, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("submit for account %s: %w", accountID, model.ErrNotFound)
	}
	if a.Blocked {
		return nil, fmt.Errorf("submit for account %s: %w", accountID, model.ErrBlocked)
	}

	t, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("submit for task %s: %w", taskID, model.ErrNotFound)
	}

	sub := model.Submission{
		ID:          s.newID(),
		AccountID:   accountID,
		TaskID:      taskID,
		ProofRef:    proofRef,
		Status:      model.StatusPending,
		SubmittedAt: s.now(),
	}
	err = s.submissions.Upsert(accountID, func(list *[]model.Submission, _ bool) error {
		if exclusive {
			for _, existing := range *list {
				if existing.TaskID == taskID && existing.Pending() {
					return fmt.Errorf("pending submission for task %s: %w", taskID, model.ErrAlreadyExists)
				}
			}
		}
		*list = append(*list, sub)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return &sub, nil
}

// ListByAccount returns an account's submissions, oldest first.
func (s *SubmissionStore) ListByAccount(accountID string) ([]model.Submission, error) {
	list, err := s.submissions.Get(accountID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if list == nil {
		return nil, nil
	}
	return *list, nil
}

// ListPending returns every pending submission across all accounts, oldest first.
func (s *SubmissionStore) ListPending() ([]model.Submission, error) {
	all, err := s.submissions.List()
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	var pending []model.Submission
	for _, list := range all {
		for _, sub := range list {
			if sub.Pending() {
				pending = append(pending, sub)
			}
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})
	return pending, nil
}

// CountPending returns how many submissions the account has pending for taskID.
func (s *SubmissionStore) CountPending(accountID, taskID string) (int, error) {
	list, err := s.ListByAccount(accountID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sub := range list {
		if sub.TaskID == taskID && sub.Pending() {
			n++
		}
	}
	return n, nil
}

// Decide resolves the oldest pending submission of accountID for taskID.
// It fails with model.ErrNotFound when nothing is pending, which is what a
// second reviewer racing on the same submission observes.
func (s *SubmissionStore) Decide(accountID, taskID string, outcome model.Outcome, reason string) (*model.Submission, error) {
	return s.decide(accountID, outcome, reason, func(list []model.Submission) (int, error) {
		idx := -1
		for i, sub := range list {
			if sub.TaskID != taskID || !sub.Pending() {
				continue
			}
			if idx < 0 || sub.SubmittedAt.Before(list[idx].SubmittedAt) {
				idx = i
			}
		}
		if idx < 0 {
			return -1, fmt.Errorf("pending submission for task %s: %w", taskID, model.ErrNotFound)
		}
		return idx, nil
	})
}

// DecideByID resolves one specific submission. Deciding a submission that
// already left pending fails with model.ErrInvalidTransition.
func (s *SubmissionStore) DecideByID(accountID, submissionID string, outcome model.Outcome, reason string) (*model.Submission, error) {
	return s.decide(accountID, outcome, reason, func(list []model.Submission) (int, error) {
		for i, sub := range list {
			if sub.ID == submissionID {
				return i, nil
			}
		}
		return -1, fmt.Errorf("submission %s: %w", submissionID, model.ErrNotFound)
	})
}

func (s *SubmissionStore) decide(accountID string, outcome model.Outcome, reason string, pick func([]model.Submission) (int, error)) (*model.Submission, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("outcome %q: %w", outcome, model.ErrInvalidTransition)
	}

	var decided model.Submission
	rewarded := false
	err := s.submissions.Update(accountID, func(list *[]model.Submission) error {
		idx, err := pick(*list)
		if err != nil {
			return err
		}
		sub := &(*list)[idx]
		if !sub.Pending() {
			return fmt.Errorf("submission %s is %s: %w", sub.ID, sub.Status, model.ErrInvalidTransition)
		}

		now := s.now()
		if outcome == model.OutcomeApprove {
			if err := s.reward(sub, now); err != nil {
				return err
			}
			rewarded = true
		} else {
			sub.Reason = reason
		}
		sub.Status = outcome.Status()
		sub.ProcessedAt = &now
		decided = *sub
		return nil
	})
	if err != nil {
		if rewarded {
			// The reward was applied but the status write failed.
			s.undoReward(&decided)
		}
		return nil, fmt.Errorf("decide submission: %w", err)
	}
	return &decided, nil
}

// reward credits the task's reward, records the completion and bumps the
// task's completed count. A failure part way is rolled back before returning.
func (s *SubmissionStore) reward(sub *model.Submission, at time.Time) error {
	t, err := s.tasks.GetByID(sub.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task %s: %w", sub.TaskID, model.ErrNotFound)
	}

	err = s.accounts.Mutate(sub.AccountID, func(a *model.Account) error {
		a.Balance += t.Reward
		a.CompletedTasks = append(a.CompletedTasks, model.CompletedTask{
			TaskID:      t.ID,
			Reward:      t.Reward,
			CompletedAt: at,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.tasks.IncrementCompletedCount(t.ID); err != nil {
		s.revokeCredit(sub.AccountID, t.ID, t.Reward)
		return err
	}
	return nil
}

// errNoWrite releases a submissions lock without writing the record.
var errNoWrite = errors.New("no write")

// undoReward reverses a reward whose status write failed. The submission is
// still pending, so the reversal re-takes the account's submissions lock and
// cannot interleave with another decision on the same account.
func (s *SubmissionStore) undoReward(sub *model.Submission) {
	done := false
	err := s.submissions.Update(sub.AccountID, func(*[]model.Submission) error {
		s.reverseReward(sub)
		done = true
		return errNoWrite
	})
	if done {
		return
	}
	slog.Error("undo reward: lock submissions", "submission_id", sub.ID, "account_id", sub.AccountID, "error", err)
	s.reverseReward(sub)
}

func (s *SubmissionStore) reverseReward(sub *model.Submission) {
	t, err := s.tasks.GetByID(sub.TaskID)
	if err != nil || t == nil {
		slog.Error("undo reward: task lookup failed", "submission_id", sub.ID, "task_id", sub.TaskID, "error", err)
		return
	}
	s.revokeCredit(sub.AccountID, t.ID, t.Reward)
	if err := s.tasks.decrementCompletedCount(t.ID); err != nil {
		slog.Error("undo reward: task count", "task_id", t.ID, "error", err)
	}
}

// revokeCredit takes back a reward and its completion record. A balance the
// account already moved into a withdrawal is not driven negative; the part
// that could not be taken back is logged.
func (s *SubmissionStore) revokeCredit(accountID, taskID string, reward int) {
	shortfall := 0
	err := s.accounts.Mutate(accountID, func(a *model.Account) error {
		take := min(reward, a.Balance)
		shortfall = reward - take
		a.Balance -= take
		for i := len(a.CompletedTasks) - 1; i >= 0; i-- {
			if a.CompletedTasks[i].TaskID == taskID {
				a.CompletedTasks = append(a.CompletedTasks[:i], a.CompletedTasks[i+1:]...)
				break
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("revoke reward credit", "account_id", accountID, "task_id", taskID, "error", err)
		return
	}
	if shortfall > 0 {
		slog.Error("revoke reward credit: balance already spent", "account_id", accountID, "task_id", taskID, "shortfall", shortfall)
	}
}
