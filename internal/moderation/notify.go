package moderation

// Notification is a side effect the transport delivers after a mutation has
// committed. AccountID names the user to message; Admins marks messages for
// the reviewer audience.
type Notification struct {
	Entity    string         `json:"entity"`
	Action    string         `json:"action"`
	ID        string         `json:"id,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
	Admins    bool           `json:"admins,omitempty"`
	Text      string         `json:"text"`
	Extra     map[string]any `json:"extra,omitempty"`
}

const (
	EntityAccount    = "account"
	EntityReferral   = "referral"
	EntitySubmission = "submission"
	EntityWithdrawal = "withdrawal"
	EntityDigest     = "digest"

	ActionCreated  = "created"
	ActionCredited = "credited"
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionPending  = "pending"
)

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Notifiers fans a notification out to every member.
type Notifiers []Notifier

func (ns Notifiers) Notify(n Notification) {
	for _, x := range ns {
		if x != nil {
			x.Notify(n)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
