package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
)

const maxTaskIDAttempts = 1000

type TaskStore struct {
	tasks kv.Collection[model.Task]
	now   func() time.Time
}

func NewTaskStore(c Collections) *TaskStore {
	return &TaskStore{tasks: c.Tasks, now: time.Now}
}

// Create adds an active task. IDs are derived from the creation time in
// milliseconds and bumped past any ID already taken.
func (s *TaskStore) Create(title, description, link string, reward int, category model.TaskCategory) (*model.Task, error) {
	if reward <= 0 {
		return nil, fmt.Errorf("create task: %w", model.ErrInvalidReward)
	}

	now := s.now()
	t := model.Task{
		Title:       title,
		Description: description,
		Link:        link,
		Reward:      reward,
		Category:    category,
		Active:      true,
		CreatedAt:   now,
	}

	base := now.UnixMilli()
	for i := int64(0); i < maxTaskIDAttempts; i++ {
		t.ID = strconv.FormatInt(base+i, 10)
		err := s.tasks.Insert(t.ID, t)
		if errors.Is(err, model.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("insert task: no free id near %d", base)
}

func (s *TaskStore) GetByID(id string) (*model.Task, error) {
	t, err := s.tasks.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns every task, active or not, in creation order.
func (s *TaskStore) List() ([]model.Task, error) {
	tasks, err := s.tasks.List()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListActive returns active tasks in creation order.
func (s *TaskStore) ListActive() ([]model.Task, error) {
	tasks, err := s.List()
	if err != nil {
		return nil, err
	}
	active := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

func (s *TaskStore) IncrementCompletedCount(id string) error {
	return s.mutate(id, func(t *model.Task) { t.CompletedCount++ })
}

func (s *TaskStore) decrementCompletedCount(id string) error {
	return s.mutate(id, func(t *model.Task) {
		if t.CompletedCount > 0 {
			t.CompletedCount--
		}
	})
}

func (s *TaskStore) SetActive(id string, active bool) error {
	return s.mutate(id, func(t *model.Task) { t.Active = active })
}

func (s *TaskStore) mutate(id string, fn func(t *model.Task)) error {
	err := s.tasks.Update(id, func(t *model.Task) error {
		fn(t)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}
