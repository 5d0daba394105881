package model

import "time"

// PushSubscription is a browser Web Push endpoint registered by an account.
type PushSubscription struct {
	AccountID  string    `json:"account_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
