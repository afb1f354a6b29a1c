package cronrunner

import (
	"context"
	"testing"
)

func TestRunner_AddRejectsBadSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("sweep", "not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if _, err := r.Add("sweep", "@every 5s", func(context.Context) {}); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := r.Entries(); got != 1 {
		t.Fatalf("entries=%d want=1", got)
	}
}

func TestRunner_StartStop(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Add("retry", "*/1 * * * * *", func(context.Context) {}); err != nil {
		t.Fatalf("err=%v", err)
	}
	r.Start()
	r.Stop()
}
