package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		wire string
		want Priority
	}{
		{"HIGH_PRIORITY", PriorityHigh},
		{"DEFAULT_PRIORITY", PriorityDefault},
		{"LOW_PRIORITY", PriorityLow},
	}
	for _, c := range cases {
		got, err := ParsePriority(c.wire)
		if err != nil {
			t.Fatalf("ParsePriority(%q): %v", c.wire, err)
		}
		if got != c.want {
			t.Fatalf("ParsePriority(%q) = %d, want %d", c.wire, got, c.want)
		}
		if got.Wire() != c.wire {
			t.Fatalf("Wire() = %q, want %q", got.Wire(), c.wire)
		}
	}
}

func TestParsePriority_Unknown(t *testing.T) {
	for _, wire := range []string{"", "URGENT", "high_priority", "10"} {
		if _, err := ParsePriority(wire); !errors.Is(err, ErrInvalidPriority) {
			t.Fatalf("ParsePriority(%q) err = %v, want ErrInvalidPriority", wire, err)
		}
	}
}

// The stored integer values are an on-disk contract shared with other
// readers of the job table.
func TestPriorityStoredValues(t *testing.T) {
	if PriorityHigh != 10 || PriorityDefault != 50 || PriorityLow != 100 {
		t.Fatalf("priority values changed: high=%d default=%d low=%d",
			PriorityHigh, PriorityDefault, PriorityLow)
	}
}

func TestValidationErrorsWrapInvalidNotification(t *testing.T) {
	for _, err := range []error{
		ErrEmptyContext,
		ErrInvalidPriority,
		ErrEmptySubject,
		ErrEmptyBody,
		ErrNoRecipients,
		ErrUnknownRecipient,
		ErrDuplicateToken,
	} {
		if !errors.Is(err, ErrInvalidNotification) {
			t.Fatalf("%v does not wrap ErrInvalidNotification", err)
		}
	}
}

func TestJobStatePredicates(t *testing.T) {
	now := time.Now().UTC()
	owner := "host-1"
	start := now.Add(-time.Minute)
	end := now

	fresh := &NotificationJob{NotBefore: now.Add(-time.Second)}
	if !fresh.Eligible(now) || fresh.Claimed() || fresh.Terminal() {
		t.Fatal("fresh job should be eligible only")
	}

	deferred := &NotificationJob{NotBefore: now.Add(time.Hour)}
	if deferred.Eligible(now) {
		t.Fatal("job with future not_before must not be eligible")
	}

	claimed := &NotificationJob{NotBefore: now, Owner: &owner, StartAt: &start}
	if claimed.Eligible(now) || !claimed.Claimed() || claimed.Terminal() {
		t.Fatal("claimed job should be claimed only")
	}

	done := &NotificationJob{NotBefore: now, Owner: &owner, StartAt: &start, EndAt: &end}
	if done.Eligible(now) || done.Claimed() || !done.Terminal() {
		t.Fatal("finalized job should be terminal only")
	}
}
