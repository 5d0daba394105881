package push

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/moderation"
)

type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// Subscriptions is the subset of store.PushStore the notifier reads.
type Subscriptions interface {
	List() ([]model.PushSubscription, error)
	ListByAccount(accountID string) ([]model.PushSubscription, error)
	Unsubscribe(accountID, endpoint string) error
}

// Notifier pushes moderation notifications to the addressed account's
// devices and, for admin notifications, to every admin device. Delivery runs
// off the caller's goroutine.
type Notifier struct {
	sender sender
	subs   Subscriptions
	policy auth.Policy
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(s *Service, subs Subscriptions, policy auth.Policy, logger *slog.Logger) *Notifier {
	return &Notifier{sender: s, subs: subs, policy: policy, logger: logger}
}

func (n *Notifier) Notify(note moderation.Notification) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(note)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(note moderation.Notification) {
	targets, err := n.targets(note)
	if err != nil {
		n.logger.Error("load push targets", "error", err)
		return
	}

	payload := Payload{
		Title: title(note),
		Body:  note.Text,
		Tag:   note.Entity + "_" + note.Action,
	}
	if note.Entity == moderation.EntityWithdrawal || note.Entity == moderation.EntityDigest {
		payload.Urgency = webpush.UrgencyHigh
	}
	for i := range targets {
		sub := &targets[i]
		err := n.sender.Send(sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			if err := n.subs.Unsubscribe(sub.AccountID, sub.Endpoint); err != nil {
				n.logger.Error("drop expired push subscription", "account_id", sub.AccountID, "error", err)
			}
		default:
			n.logger.Warn("push delivery failed", "account_id", sub.AccountID, "error", err)
		}
	}
}

func (n *Notifier) targets(note moderation.Notification) ([]model.PushSubscription, error) {
	var out []model.PushSubscription
	seen := make(map[string]bool)
	add := func(subs []model.PushSubscription) {
		for _, s := range subs {
			if !seen[s.Endpoint] {
				seen[s.Endpoint] = true
				out = append(out, s)
			}
		}
	}

	if note.AccountID != "" {
		subs, err := n.subs.ListByAccount(note.AccountID)
		if err != nil {
			return nil, err
		}
		add(subs)
	}
	if note.Admins && n.policy != nil {
		all, err := n.subs.List()
		if err != nil {
			return nil, err
		}
		var admins []model.PushSubscription
		for _, s := range all {
			if n.policy.IsAdmin(s.AccountID) {
				admins = append(admins, s)
			}
		}
		add(admins)
	}
	return out, nil
}

func title(note moderation.Notification) string {
	if note.Entity == moderation.EntityDigest {
		return "Review queue"
	}
	entity := note.Entity
	if entity != "" {
		entity = strings.ToUpper(entity[:1]) + entity[1:]
	}
	return strings.TrimSpace(entity + " " + note.Action)
}
