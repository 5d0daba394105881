package digest

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/dukerupert/rewardledger/internal/moderation"
)

type fakeDigester struct {
	calls int
	err   error
}

func (f *fakeDigester) Digest() (*moderation.Stats, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &moderation.Stats{PendingSubmissions: 2}, nil
}

func TestAddDigest(t *testing.T) {
	s := NewScheduler(slog.Default())

	if err := s.AddDigest("0 */6 * * *", &fakeDigester{}); err != nil {
		t.Fatalf("add digest: %v", err)
	}
	if err := s.AddFunc("@hourly", "cleanup", func() {}); err != nil {
		t.Fatalf("add func: %v", err)
	}
	if s.Jobs() != 2 {
		t.Errorf("Jobs = %d, want 2", s.Jobs())
	}
}

func TestAddDigestInvalidSpec(t *testing.T) {
	s := NewScheduler(slog.Default())

	if err := s.AddDigest("every tuesday", &fakeDigester{}); err == nil {
		t.Error("expected error for invalid spec")
	}
	if s.Jobs() != 0 {
		t.Errorf("Jobs = %d, want 0", s.Jobs())
	}
}

func TestDigestJob(t *testing.T) {
	s := NewScheduler(slog.Default())

	d := &fakeDigester{}
	s.digestJob(d)()
	if d.calls != 1 {
		t.Errorf("calls = %d, want 1", d.calls)
	}

	failing := &fakeDigester{err: errors.New("store unavailable")}
	s.digestJob(failing)()
	if failing.calls != 1 {
		t.Errorf("calls = %d, want 1", failing.calls)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(slog.Default())
	s.AddFunc("@daily", "noop", func() {})

	s.Start()
	<-s.Stop().Done()
}
