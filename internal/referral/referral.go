// Package referral credits referrers when a new account registers with their
// code, including one-time milestone bonuses at configured referral counts.
package referral

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/store"
)

// Milestone awards Bonus once, when a referrer's count first reaches Threshold.
type Milestone struct {
	Threshold int `json:"threshold"`
	Bonus     int `json:"bonus"`
}

type Config struct {
	RewardPerReferral int
	Milestones        []Milestone
}

// Credit describes what one referral event paid out.
type Credit struct {
	ReferrerID string      `json:"referrer_id"`
	Referrals  int         `json:"referrals"`
	Reward     int         `json:"reward"`
	Bonuses    []Milestone `json:"bonuses,omitempty"`
}

// Total is the referral reward plus every milestone bonus awarded.
func (c Credit) Total() int {
	total := c.Reward
	for _, m := range c.Bonuses {
		total += m.Bonus
	}
	return total
}

type Engine struct {
	accounts   *store.AccountStore
	reward     int
	milestones []Milestone
	logger     *slog.Logger
}

func NewEngine(accounts *store.AccountStore, cfg Config, logger *slog.Logger) *Engine {
	milestones := append([]Milestone(nil), cfg.Milestones...)
	sort.Slice(milestones, func(i, j int) bool {
		return milestones[i].Threshold < milestones[j].Threshold
	})
	return &Engine{
		accounts:   accounts,
		reward:     cfg.RewardPerReferral,
		milestones: milestones,
		logger:     logger,
	}
}

// Milestones returns the configured thresholds in ascending order.
func (e *Engine) Milestones() []Milestone {
	return append([]Milestone(nil), e.milestones...)
}

// Resolve returns the account owning code, or nil when the code is empty,
// unknown, or belongs to newAccountID itself.
func (e *Engine) Resolve(code, newAccountID string) (*model.Account, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	referrer, err := e.accounts.GetByReferralCode(code)
	if err != nil {
		return nil, err
	}
	if referrer == nil || referrer.ID == newAccountID {
		return nil, nil
	}
	return referrer, nil
}

// Credit records one referral for referrerID as a single account mutation:
// the count goes up by one, the per-referral reward is added, and every
// milestone crossed between the old and new count pays its bonus.
func (e *Engine) Credit(referrerID string) (*Credit, error) {
	var credit Credit
	err := e.accounts.Mutate(referrerID, func(a *model.Account) error {
		prev := a.Referrals
		a.Referrals++
		bonuses := Crossed(e.milestones, prev, a.Referrals)

		credit = Credit{
			ReferrerID: a.ID,
			Referrals:  a.Referrals,
			Reward:     e.reward,
			Bonuses:    bonuses,
		}
		a.Balance += credit.Total()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("credit referrer: %w", err)
	}

	e.logger.Info("referral credited",
		"referrer_id", referrerID,
		"referrals", credit.Referrals,
		"reward", credit.Reward,
		"bonuses", len(credit.Bonuses),
	)
	return &credit, nil
}

// Crossed returns the milestones with prev < Threshold <= next. Thresholds
// beyond the highest configured one never pay.
func Crossed(milestones []Milestone, prev, next int) []Milestone {
	var out []Milestone
	for _, m := range milestones {
		if prev < m.Threshold && next >= m.Threshold {
			out = append(out, m)
		}
	}
	return out
}

// ParseMilestones parses "threshold:bonus" pairs separated by commas,
// for example "5:10,10:25,25:75".
func ParseMilestones(s string) ([]Milestone, error) {
	var out []Milestone
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		th, bonus, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("milestone %q: want threshold:bonus", part)
		}
		threshold, err := strconv.Atoi(strings.TrimSpace(th))
		if err != nil || threshold <= 0 {
			return nil, fmt.Errorf("milestone %q: threshold must be a positive integer", part)
		}
		amount, err := strconv.Atoi(strings.TrimSpace(bonus))
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("milestone %q: bonus must be a positive integer", part)
		}
		if seen[threshold] {
			return nil, fmt.Errorf("milestone %q: duplicate threshold", part)
		}
		seen[threshold] = true
		out = append(out, Milestone{Threshold: threshold, Bonus: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out, nil
}
