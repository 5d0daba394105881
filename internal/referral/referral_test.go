package referral

import (
	"log/slog"
	"testing"

	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/store"
)

const rewardPerReferral = 2

func setupEngine(t *testing.T) (*Engine, *store.AccountStore) {
	t.Helper()
	accounts := store.NewAccountStore(store.NewMemoryCollections())
	cfg := Config{
		RewardPerReferral: rewardPerReferral,
		Milestones: []Milestone{
			{Threshold: 10, Bonus: 25},
			{Threshold: 5, Bonus: 10},
		},
	}
	return NewEngine(accounts, cfg, slog.Default()), accounts
}

func TestResolve(t *testing.T) {
	e, accounts := setupEngine(t)
	alice, _ := accounts.Create("1", "Alice", "")

	got, err := e.Resolve(alice.ReferralCode, "2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.ID != "1" {
		t.Fatalf("got %+v, want account 1", got)
	}

	got, _ = e.Resolve(" "+alice.ReferralCode+" ", "2")
	if got == nil {
		t.Error("expected surrounding whitespace to be ignored")
	}
}

func TestResolveNoMatch(t *testing.T) {
	e, accounts := setupEngine(t)
	alice, _ := accounts.Create("1", "Alice", "")

	for _, tc := range []struct{ code, newID string }{
		{"", "2"},
		{"NOTACODE", "2"},
		{alice.ReferralCode, "1"},
	} {
		got, err := e.Resolve(tc.code, tc.newID)
		if err != nil {
			t.Fatalf("resolve %q: %v", tc.code, err)
		}
		if got != nil {
			t.Errorf("code %q for %s matched %s", tc.code, tc.newID, got.ID)
		}
	}
}

func TestCreditIncrementsAndRewards(t *testing.T) {
	e, accounts := setupEngine(t)
	accounts.Create("1", "Alice", "")

	c, err := e.Credit("1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if c.Referrals != 1 {
		t.Errorf("referrals = %d, want 1", c.Referrals)
	}
	if c.Total() != rewardPerReferral {
		t.Errorf("total = %d, want %d", c.Total(), rewardPerReferral)
	}

	a, _ := accounts.GetByID("1")
	if a.Referrals != 1 || a.Balance != rewardPerReferral {
		t.Errorf("account = %+v", a)
	}
}

func TestMilestoneFiresOnce(t *testing.T) {
	e, accounts := setupEngine(t)
	accounts.Create("1", "Alice", "")
	accounts.Mutate("1", func(a *model.Account) error {
		a.Referrals = 4
		return nil
	})

	c, _ := e.Credit("1")
	if len(c.Bonuses) != 1 || c.Bonuses[0].Threshold != 5 {
		t.Fatalf("bonuses = %+v, want threshold 5", c.Bonuses)
	}
	a, _ := accounts.GetByID("1")
	if a.Balance != rewardPerReferral+10 {
		t.Errorf("balance after 5th = %d, want %d", a.Balance, rewardPerReferral+10)
	}

	c, _ = e.Credit("1")
	if len(c.Bonuses) != 0 {
		t.Errorf("6th referral bonuses = %+v, want none", c.Bonuses)
	}
	a, _ = accounts.GetByID("1")
	if a.Balance != 2*rewardPerReferral+10 {
		t.Errorf("balance after 6th = %d, want %d", a.Balance, 2*rewardPerReferral+10)
	}
}

func TestNoExtrapolationPastHighestMilestone(t *testing.T) {
	e, accounts := setupEngine(t)
	accounts.Create("1", "Alice", "")
	accounts.Mutate("1", func(a *model.Account) error {
		a.Referrals = 19
		return nil
	})

	c, _ := e.Credit("1")
	if len(c.Bonuses) != 0 {
		t.Errorf("20th referral bonuses = %+v, want none", c.Bonuses)
	}
}

func TestCrossedScansAllThresholds(t *testing.T) {
	ms := []Milestone{{Threshold: 5, Bonus: 10}, {Threshold: 10, Bonus: 25}, {Threshold: 25, Bonus: 75}}

	got := Crossed(ms, 4, 11)
	if len(got) != 2 || got[0].Threshold != 5 || got[1].Threshold != 10 {
		t.Errorf("crossed(4, 11) = %+v", got)
	}
	if got := Crossed(ms, 5, 6); len(got) != 0 {
		t.Errorf("crossed(5, 6) = %+v, want none", got)
	}
	if got := Crossed(ms, 24, 25); len(got) != 1 || got[0].Bonus != 75 {
		t.Errorf("crossed(24, 25) = %+v", got)
	}
}

func TestCreditMissingReferrer(t *testing.T) {
	e, _ := setupEngine(t)

	if _, err := e.Credit("ghost"); err == nil {
		t.Error("expected error for unknown referrer")
	}
}

func TestParseMilestones(t *testing.T) {
	ms, err := ParseMilestones(" 10:25, 5:10 ,25:75")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(ms))
	}
	if ms[0].Threshold != 5 || ms[1].Threshold != 10 || ms[2].Threshold != 25 {
		t.Errorf("milestones not sorted: %+v", ms)
	}

	empty, err := ParseMilestones("")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty: %+v, %v", empty, err)
	}

	for _, bad := range []string{"5", "x:1", "5:0", "0:5", "5:1,5:2"} {
		if _, err := ParseMilestones(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
