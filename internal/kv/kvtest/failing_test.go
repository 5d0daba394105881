package kvtest

import (
	"errors"
	"testing"

	"github.com/dukerupert/rewardledger/internal/kv"
)

func TestFailingAbortsNthWrite(t *testing.T) {
	c := Wrap[int](kv.NewMemory[int](), "a", 2)

	if err := c.Insert("a", 1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	ran := false
	err := c.Update("a", func(v *int) error {
		ran = true
		*v = 5
		return nil
	})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("second write: err = %v, want ErrWriteFailed", err)
	}
	if !ran {
		t.Error("expected the update function to run before the failure")
	}
	got, _ := c.Get("a")
	if *got != 1 {
		t.Errorf("value = %d, want 1", *got)
	}

	// Other keys and later writes go through.
	if err := c.Insert("b", 2); err != nil {
		t.Errorf("other key: %v", err)
	}
	if err := c.Update("a", func(v *int) error { *v = 7; return nil }); err != nil {
		t.Errorf("third write: %v", err)
	}
	if c.Writes() != 3 {
		t.Errorf("writes = %d, want 3", c.Writes())
	}
}

func TestFailingSkipsAbortedUpdates(t *testing.T) {
	c := Wrap[int](kv.NewMemory[int](), "a", 1)
	c.Collection.Insert("a", 1)

	boom := errors.New("boom")
	if err := c.Update("a", func(*int) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Writes() != 0 {
		t.Errorf("writes = %d, want 0", c.Writes())
	}
}
