package model

import "time"

type TaskCategory string

const (
	CategorySubscribe TaskCategory = "subscribe"
	CategoryFollow    TaskCategory = "follow"
	CategoryJoin      TaskCategory = "join"
	CategoryLike      TaskCategory = "like"
)

type Task struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Link           string       `json:"link"`
	Reward         int          `json:"reward"`
	Category       TaskCategory `json:"category"`
	Active         bool         `json:"active"`
	CompletedCount int          `json:"completed_count"`
	CreatedAt      time.Time    `json:"created_at"`
}
