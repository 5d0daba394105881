package store

import (
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/rewardledger/internal/database"
)

type testLedger struct {
	accounts    *AccountStore
	tasks       *TaskStore
	submissions *SubmissionStore
	withdrawals *WithdrawalStore
	push        *PushStore
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestLedger(c Collections) *testLedger {
	clock := stepClock()
	accounts := NewAccountStore(c)
	tasks := NewTaskStore(c)
	submissions := NewSubmissionStore(c, accounts, tasks)
	withdrawals := NewWithdrawalStore(c, accounts, WithdrawalPolicy{MinAmount: 10, MinDestinationLen: 5})
	accounts.now = clock
	tasks.now = clock
	submissions.now = clock
	withdrawals.now = clock
	push := NewPushStore(c)
	push.now = clock
	return &testLedger{
		accounts:    accounts,
		tasks:       tasks,
		submissions: submissions,
		withdrawals: withdrawals,
		push:        push,
	}
}

func setupLedgerTestDB(t *testing.T) *testLedger {
	t.Helper()
	return newTestLedger(setupTestCollections(t))
}

func setupTestCollections(t *testing.T) Collections {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteCollections(db)
}

// withBackends runs fn against a SQLite-backed and an in-memory ledger.
func withBackends(t *testing.T, fn func(t *testing.T, l *testLedger)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupLedgerTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, newTestLedger(NewMemoryCollections())) })
}
