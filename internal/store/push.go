package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
)

// PushStore keeps each account's Web Push subscriptions, keyed by account ID.
type PushStore struct {
	subs kv.Collection[[]model.PushSubscription]
	now  func() time.Time
}

func NewPushStore(c Collections) *PushStore {
	return &PushStore{subs: c.Push, now: time.Now}
}

// Subscribe registers an endpoint for accountID. Re-subscribing the same
// endpoint replaces its keys.
func (s *PushStore) Subscribe(accountID, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	sub := model.PushSubscription{
		AccountID:  accountID,
		Endpoint:   endpoint,
		P256dhKey:  p256dh,
		AuthKey:    auth,
		DeviceName: deviceName,
		CreatedAt:  s.now(),
	}
	err := s.subs.Upsert(accountID, func(list *[]model.PushSubscription, _ bool) error {
		for i := range *list {
			if (*list)[i].Endpoint == endpoint {
				(*list)[i] = sub
				return nil
			}
		}
		*list = append(*list, sub)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe push: %w", err)
	}
	return &sub, nil
}

// Unsubscribe removes an endpoint. Removing an unknown endpoint is a no-op.
func (s *PushStore) Unsubscribe(accountID, endpoint string) error {
	err := s.subs.Update(accountID, func(list *[]model.PushSubscription) error {
		kept := (*list)[:0]
		for _, sub := range *list {
			if sub.Endpoint != endpoint {
				kept = append(kept, sub)
			}
		}
		*list = kept
		return nil
	})
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("unsubscribe push: %w", err)
	}
	return nil
}

func (s *PushStore) ListByAccount(accountID string) ([]model.PushSubscription, error) {
	list, err := s.subs.Get(accountID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	if list == nil {
		return nil, nil
	}
	return *list, nil
}

// List returns every subscription across all accounts.
func (s *PushStore) List() ([]model.PushSubscription, error) {
	all, err := s.subs.List()
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	var out []model.PushSubscription
	for _, list := range all {
		out = append(out, list...)
	}
	return out, nil
}
