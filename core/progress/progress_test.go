package progress

import (
	"testing"
	"time"
)

func TestCacheTracker(t *testing.T) {
	tr := NewCacheTracker(time.Hour, time.Minute)
	tr.Init("ABCD1234", 2)
	p, ok := tr.Get("ABCD1234")
	if !ok || p.Expected != 2 || p.Processed != 0 {
		t.Fatalf("unexpected progress %#v", p)
	}
	for i := 0; i < 3; i++ {
		p, ok = tr.Increment("ABCD1234")
	}
	if !ok || p.Processed != 2 || !p.Done() {
		t.Fatalf("expected capped completion got %#v", p)
	}
	if _, ok := tr.Increment("MISSING0"); ok {
		t.Fatalf("unknown order should not be tracked")
	}
	tr.Delete("ABCD1234")
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker")
	}
}

func TestCacheTrackerExpiry(t *testing.T) {
	tr := NewCacheTracker(10*time.Millisecond, time.Millisecond)
	tr.Init("ABCD1234", 1)
	time.Sleep(30 * time.Millisecond)
	if _, ok := tr.Get("ABCD1234"); ok {
		t.Fatalf("entry should have expired")
	}
}
