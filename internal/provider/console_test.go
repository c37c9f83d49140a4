package provider

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConsoleProvider_Send(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProvider("Support <support@example.com>", &buf)

	err := p.Send(context.Background(), "ada@example.com", "Welcome", "Hello Ada", "<p>Hello Ada</p>")
	if err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"From: Support <support@example.com>",
		"To: ada@example.com",
		"Subject: Welcome",
		"Plain Text: Hello Ada",
		"HTML Text: <p>Hello Ada</p>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateMessage(t *testing.T) {
	cases := []struct {
		name      string
		recipient string
		subject   string
		plain     string
		html      string
		wantErr   bool
	}{
		{"valid both bodies", "a@b.c", "s", "p", "h", false},
		{"valid plain only", "a@b.c", "s", "p", "", false},
		{"valid html only", "a@b.c", "s", "", "h", false},
		{"empty recipient", "", "s", "p", "", true},
		{"empty subject", "a@b.c", "", "p", "", true},
		{"no bodies", "a@b.c", "s", "", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateMessage(c.recipient, c.subject, c.plain, c.html)
			if c.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Fatalf("err = %v, want ErrInvalidParameter", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestPool_BoundsCheckouts(t *testing.T) {
	var buf bytes.Buffer
	pool := NewPool(1, func() Provider { return NewConsoleProvider("x@y.z", &buf) })

	ctx := context.Background()
	prov, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Second checkout must block until the first instance comes back.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := pool.Get(cancelled); err == nil {
		t.Fatal("Get on an exhausted pool should respect context cancellation")
	}

	pool.Put(prov)
	prov2, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(prov2)
}
