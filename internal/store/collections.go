package store

import (
	"database/sql"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
)

// Collections groups the keyed record collections the ledger runs on.
// Submissions and withdrawals are keyed by account ID, so every decision on
// one account's records is serialized on that account's key only.
type Collections struct {
	Accounts      kv.Collection[model.Account]
	ReferralCodes kv.Collection[string]
	Tasks         kv.Collection[model.Task]
	Submissions   kv.Collection[[]model.Submission]
	Withdrawals   kv.Collection[[]model.Withdrawal]
	Push          kv.Collection[[]model.PushSubscription]
}

func NewMemoryCollections() Collections {
	return Collections{
		Accounts:      kv.NewMemory[model.Account](),
		ReferralCodes: kv.NewMemory[string](),
		Tasks:         kv.NewMemory[model.Task](),
		Submissions:   kv.NewMemory[[]model.Submission](),
		Withdrawals:   kv.NewMemory[[]model.Withdrawal](),
		Push:          kv.NewMemory[[]model.PushSubscription](),
	}
}

// NewSQLiteCollections expects db to have been opened with database.Open.
func NewSQLiteCollections(db *sql.DB) Collections {
	return Collections{
		Accounts:      kv.NewSQLite[model.Account](db, "accounts"),
		ReferralCodes: kv.NewSQLite[string](db, "referral_codes"),
		Tasks:         kv.NewSQLite[model.Task](db, "tasks"),
		Submissions:   kv.NewSQLite[[]model.Submission](db, "submissions"),
		Withdrawals:   kv.NewSQLite[[]model.Withdrawal](db, "withdrawals"),
		Push:          kv.NewSQLite[[]model.PushSubscription](db, "push_subscriptions"),
	}
}
