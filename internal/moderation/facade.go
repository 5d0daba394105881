// Package moderation is the single entry point a chat transport uses to drive
// the ledger: registration, task selection, proof submission, payout requests
// and the admin review queues.
package moderation

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/referral"
	"github.com/dukerupert/rewardledger/internal/store"
)

type Deps struct {
	Accounts    *store.AccountStore
	Tasks       *store.TaskStore
	Submissions *store.SubmissionStore
	Withdrawals *store.WithdrawalStore
	Referrals   *referral.Engine
	Policy      auth.Policy
}

type Options struct {
	// SinglePendingPerTask refuses a new submission while another one for
	// the same task is still pending.
	SinglePendingPerTask bool
	Notifier             Notifier
	Logger               *slog.Logger
}

type Facade struct {
	accounts      *store.AccountStore
	tasks         *store.TaskStore
	submissions   *store.SubmissionStore
	withdrawals   *store.WithdrawalStore
	referrals     *referral.Engine
	policy        auth.Policy
	notifier      Notifier
	singlePending bool
	logger        *slog.Logger
}

func New(d Deps, opts Options) *Facade {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		accounts:      d.Accounts,
		tasks:         d.Tasks,
		submissions:   d.Submissions,
		withdrawals:   d.Withdrawals,
		referrals:     d.Referrals,
		policy:        d.Policy,
		notifier:      notifier,
		singlePending: opts.SinglePendingPerTask,
		logger:        logger.With("component", "moderation"),
	}
}

// Registration is the outcome of RegisterAccount. Created is false when the
// account already existed; Credit is nil unless a referrer was credited.
type Registration struct {
	Account  *model.Account   `json:"account"`
	Created  bool             `json:"created"`
	Referrer string           `json:"referrer,omitempty"`
	Credit   *referral.Credit `json:"credit,omitempty"`
}

// Stats summarises the ledger for the admin dashboard.
type Stats struct {
	Accounts           int `json:"accounts"`
	BlockedAccounts    int `json:"blocked_accounts"`
	Tasks              int `json:"tasks"`
	ActiveTasks        int `json:"active_tasks"`
	PendingSubmissions int `json:"pending_submissions"`
	PendingWithdrawals int `json:"pending_withdrawals"`
	OutstandingBalance int `json:"outstanding_balance"`
	ReservedFunds      int `json:"reserved_funds"`
}

// History is an account's own view of its submissions and payouts.
type History struct {
	Account     *model.Account     `json:"account"`
	Submissions []model.Submission `json:"submissions"`
	Withdrawals []model.Withdrawal `json:"withdrawals"`
}

func (f *Facade) requireAdmin(callerID string) error {
	if f.policy == nil || !f.policy.IsAdmin(callerID) {
		return fmt.Errorf("caller %s: %w", callerID, model.ErrUnauthorized)
	}
	return nil
}

// IsAdmin reports whether callerID passes the admin policy.
func (f *Facade) IsAdmin(callerID string) bool {
	return f.requireAdmin(callerID) == nil
}

// RegisterAccount creates the account on first contact. The new account is
// committed before the referrer is credited, and a failed credit is logged
// without undoing the registration.
func (f *Facade) RegisterAccount(id, name, refCode string) (*Registration, error) {
	existing, err := f.accounts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Registration{Account: existing}, nil
	}

	referrer, err := f.referrals.Resolve(refCode, id)
	if err != nil {
		f.logger.Warn("resolve referral code", "account_id", id, "error", err)
		referrer = nil
	}
	referredBy := ""
	if referrer != nil {
		referredBy = referrer.ID
	}

	a, err := f.accounts.Create(id, name, referredBy)
	if errors.Is(err, model.ErrAlreadyExists) {
		// Lost a race with a concurrent registration of the same id.
		a, err = f.accounts.GetByID(id)
		if err != nil {
			return nil, err
		}
		return &Registration{Account: a}, nil
	}
	if err != nil {
		return nil, err
	}

	reg := &Registration{Account: a, Created: true, Referrer: referredBy}
	f.logger.Info("account registered", "account_id", a.ID, "referred_by", referredBy)
	f.notifier.Notify(Notification{
		Entity: EntityAccount,
		Action: ActionCreated,
		ID:     a.ID,
		Admins: true,
		Text:   fmt.Sprintf("New account %s (%s).", a.Name, a.ID),
	})

	if referrer == nil {
		return reg, nil
	}
	credit, err := f.referrals.Credit(referrer.ID)
	if err != nil {
		f.logger.Error("credit referrer", "referrer_id", referrer.ID, "account_id", a.ID, "error", err)
		return reg, nil
	}
	reg.Credit = credit
	f.notifier.Notify(referralNotification(a, credit))
	return reg, nil
}

func referralNotification(a *model.Account, c *referral.Credit) Notification {
	text := fmt.Sprintf("%s joined with your referral link: +%d credits.", a.Name, c.Reward)
	for _, m := range c.Bonuses {
		text += fmt.Sprintf(" Milestone of %d referrals reached: +%d bonus.", m.Threshold, m.Bonus)
	}
	return Notification{
		Entity:    EntityReferral,
		Action:    ActionCredited,
		ID:        a.ID,
		AccountID: c.ReferrerID,
		Text:      text,
		Extra: map[string]any{
			"referrals": c.Referrals,
			"total":     c.Total(),
		},
	}
}

func (f *Facade) activeAccount(accountID string) (*model.Account, error) {
	a, err := f.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	if a.Blocked {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrBlocked)
	}
	return a, nil
}

// SelectTask returns the task a user picked from the menu, provided the
// user may still work on it.
func (f *Facade) SelectTask(accountID, taskID string) (*model.Task, error) {
	if _, err := f.activeAccount(accountID); err != nil {
		return nil, err
	}
	t, err := f.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	if !t.Active {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrTaskInactive)
	}
	return t, nil
}

// SubmitProof queues proof of a completed task for review.
func (f *Facade) SubmitProof(accountID, taskID, proofRef string) (*model.Submission, error) {
	t, err := f.SelectTask(accountID, taskID)
	if err != nil {
		return nil, err
	}

	var sub *model.Submission
	if f.singlePending {
		sub, err = f.submissions.SubmitExclusive(accountID, taskID, proofRef)
	} else {
		sub, err = f.submissions.Submit(accountID, taskID, proofRef)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("proof submitted", "account_id", accountID, "task_id", taskID, "submission_id", sub.ID)
	f.notifier.Notify(Notification{
		Entity:    EntitySubmission,
		Action:    ActionCreated,
		ID:        sub.ID,
		AccountID: accountID,
		Admins:    true,
		Text:      fmt.Sprintf("New proof for %q from account %s.", t.Title, accountID),
		Extra:     map[string]any{"task_id": taskID, "proof_ref": proofRef},
	})
	return sub, nil
}

// ReviewDecision resolves the oldest pending submission of accountID for taskID.
func (f *Facade) ReviewDecision(callerID, accountID, taskID string, outcome model.Outcome, reason string) (*model.Submission, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	sub, err := f.submissions.Decide(accountID, taskID, outcome, reason)
	if err != nil {
		return nil, err
	}
	f.afterReview(callerID, sub)
	return sub, nil
}

// ReviewSubmission resolves one submission by id.
func (f *Facade) ReviewSubmission(callerID, accountID, submissionID string, outcome model.Outcome, reason string) (*model.Submission, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	sub, err := f.submissions.DecideByID(accountID, submissionID, outcome, reason)
	if err != nil {
		return nil, err
	}
	f.afterReview(callerID, sub)
	return sub, nil
}

func (f *Facade) afterReview(callerID string, sub *model.Submission) {
	title := sub.TaskID
	reward := 0
	if t, err := f.tasks.GetByID(sub.TaskID); err == nil && t != nil {
		title = t.Title
		reward = t.Reward
	}

	n := Notification{
		Entity:    EntitySubmission,
		ID:        sub.ID,
		AccountID: sub.AccountID,
		Extra:     map[string]any{"task_id": sub.TaskID},
	}
	if sub.Status == model.StatusApproved {
		n.Action = ActionApproved
		n.Text = fmt.Sprintf("Your proof for %q was approved: +%d credits.", title, reward)
	} else {
		n.Action = ActionRejected
		n.Text = fmt.Sprintf("Your proof for %q was rejected.", title)
		if sub.Reason != "" {
			n.Text += " Reason: " + sub.Reason
		}
	}
	f.logger.Info("submission reviewed", "reviewer_id", callerID, "submission_id", sub.ID, "status", sub.Status)
	f.notifier.Notify(n)
}

// RequestWithdrawal reserves the caller's whole balance for payout.
func (f *Facade) RequestWithdrawal(accountID, destination string) (*model.Withdrawal, error) {
	w, err := f.withdrawals.Request(accountID, destination)
	if err != nil {
		return nil, err
	}
	f.logger.Info("withdrawal requested", "account_id", accountID, "withdrawal_id", w.ID, "amount", w.Amount)
	f.notifier.Notify(Notification{
		Entity:    EntityWithdrawal,
		Action:    ActionCreated,
		ID:        w.ID,
		AccountID: accountID,
		Admins:    true,
		Text:      fmt.Sprintf("Withdrawal of %d credits requested by account %s to %s.", w.Amount, accountID, w.Destination),
		Extra:     map[string]any{"amount": w.Amount, "requested_at": w.RequestedAt},
	})
	return w, nil
}

// WithdrawalDecision resolves the pending withdrawal requested at requestedAt.
func (f *Facade) WithdrawalDecision(callerID, accountID string, requestedAt time.Time, outcome model.Outcome, reason string) (*model.Withdrawal, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	w, err := f.withdrawals.Decide(accountID, requestedAt, outcome, reason)
	if err != nil {
		return nil, err
	}
	f.afterPayout(callerID, w)
	return w, nil
}

// ReviewWithdrawal resolves one withdrawal by id.
func (f *Facade) ReviewWithdrawal(callerID, accountID, withdrawalID string, outcome model.Outcome, reason string) (*model.Withdrawal, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	w, err := f.withdrawals.DecideByID(accountID, withdrawalID, outcome, reason)
	if err != nil {
		return nil, err
	}
	f.afterPayout(callerID, w)
	return w, nil
}

func (f *Facade) afterPayout(callerID string, w *model.Withdrawal) {
	n := Notification{
		Entity:    EntityWithdrawal,
		ID:        w.ID,
		AccountID: w.AccountID,
		Extra:     map[string]any{"amount": w.Amount},
	}
	if w.Status == model.StatusApproved {
		n.Action = ActionApproved
		n.Text = fmt.Sprintf("Your withdrawal of %d credits to %s has been paid.", w.Amount, w.Destination)
	} else {
		n.Action = ActionRejected
		n.Text = fmt.Sprintf("Your withdrawal of %d credits was rejected and returned to your balance.", w.Amount)
		if w.Reason != "" {
			n.Text += " Reason: " + w.Reason
		}
	}
	f.logger.Info("withdrawal reviewed", "reviewer_id", callerID, "withdrawal_id", w.ID, "status", w.Status)
	f.notifier.Notify(n)
}

// Account returns the caller's account, or nil when it is not registered.
func (f *Facade) Account(accountID string) (*model.Account, error) {
	return f.accounts.GetByID(accountID)
}

func (f *Facade) History(accountID string) (*History, error) {
	a, err := f.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	subs, err := f.submissions.ListByAccount(accountID)
	if err != nil {
		return nil, err
	}
	ws, err := f.withdrawals.ListByAccount(accountID)
	if err != nil {
		return nil, err
	}
	return &History{Account: a, Submissions: subs, Withdrawals: ws}, nil
}

// ActiveTasks is the task menu, in creation order.
func (f *Facade) ActiveTasks() ([]model.Task, error) {
	return f.tasks.ListActive()
}

// Milestones returns the referral bonus schedule.
func (f *Facade) Milestones() []referral.Milestone {
	return f.referrals.Milestones()
}

func (f *Facade) PendingSubmissions(callerID string) ([]model.Submission, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	return f.submissions.ListPending()
}

func (f *Facade) PendingWithdrawals(callerID string) ([]model.Withdrawal, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	return f.withdrawals.ListPending()
}

func (f *Facade) CreateTask(callerID, title, description, link string, reward int, category model.TaskCategory) (*model.Task, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	t, err := f.tasks.Create(title, description, link, reward, category)
	if err != nil {
		return nil, err
	}
	f.logger.Info("task created", "admin_id", callerID, "task_id", t.ID, "reward", t.Reward)
	return t, nil
}

func (f *Facade) SetTaskActive(callerID, taskID string, active bool) error {
	if err := f.requireAdmin(callerID); err != nil {
		return err
	}
	if err := f.tasks.SetActive(taskID, active); err != nil {
		return err
	}
	f.logger.Info("task availability changed", "admin_id", callerID, "task_id", taskID, "active", active)
	return nil
}

func (f *Facade) SetBlocked(callerID, accountID string, blocked bool) error {
	if err := f.requireAdmin(callerID); err != nil {
		return err
	}
	if err := f.accounts.SetBlocked(accountID, blocked); err != nil {
		return err
	}
	f.logger.Info("account block changed", "admin_id", callerID, "account_id", accountID, "blocked", blocked)
	return nil
}

func (f *Facade) Stats(callerID string) (*Stats, error) {
	if err := f.requireAdmin(callerID); err != nil {
		return nil, err
	}
	return f.stats()
}

func (f *Facade) stats() (*Stats, error) {
	var st Stats

	accounts, err := f.accounts.List()
	if err != nil {
		return nil, err
	}
	st.Accounts = len(accounts)
	for _, a := range accounts {
		if a.Blocked {
			st.BlockedAccounts++
		}
		st.OutstandingBalance += a.Balance
	}

	tasks, err := f.tasks.List()
	if err != nil {
		return nil, err
	}
	st.Tasks = len(tasks)
	for _, t := range tasks {
		if t.Active {
			st.ActiveTasks++
		}
	}

	subs, err := f.submissions.ListPending()
	if err != nil {
		return nil, err
	}
	st.PendingSubmissions = len(subs)

	ws, err := f.withdrawals.ListPending()
	if err != nil {
		return nil, err
	}
	st.PendingWithdrawals = len(ws)
	for _, w := range ws {
		st.ReservedFunds += w.Amount
	}
	return &st, nil
}

// Digest notifies admins of the current review backlog. It sends nothing
// when both queues are empty.
func (f *Facade) Digest() (*Stats, error) {
	st, err := f.stats()
	if err != nil {
		return nil, err
	}
	if st.PendingSubmissions == 0 && st.PendingWithdrawals == 0 {
		return st, nil
	}
	f.notifier.Notify(Notification{
		Entity: EntityDigest,
		Action: ActionPending,
		Admins: true,
		Text: fmt.Sprintf("Review queue: %d submissions and %d withdrawals (%d credits) pending.",
			st.PendingSubmissions, st.PendingWithdrawals, st.ReservedFunds),
		Extra: map[string]any{
			"pending_submissions": st.PendingSubmissions,
			"pending_withdrawals": st.PendingWithdrawals,
		},
	})
	return st, nil
}
