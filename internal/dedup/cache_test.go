package dedup

import (
	"sync"
	"testing"
	"time"
)

func TestSeenFirstAndDuplicate(t *testing.T) {
	c := New()

	if c.Seen(42) {
		t.Fatal("first observation should not be a duplicate")
	}
	if !c.Seen(42) {
		t.Fatal("second observation should be a duplicate")
	}
	if c.Seen(43) {
		t.Fatal("distinct id should not be a duplicate")
	}
}

func TestSeenExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(WithTTL(300*time.Second), WithClock(func() time.Time { return now }))

	if c.Seen(1) {
		t.Fatal("first observation should not be a duplicate")
	}

	now = now.Add(299 * time.Second)
	if !c.Seen(1) {
		t.Fatal("within TTL should be a duplicate")
	}

	// Duplicate hits do not refresh the entry; expiry counts from the first
	// observation.
	now = now.Add(302 * time.Second)
	if c.Seen(1) {
		t.Fatal("after TTL the id should be fresh again")
	}
}

func TestSeenEvictsStaleEntries(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(WithTTL(10*time.Second), WithClock(func() time.Time { return now }))

	c.Seen(1)
	c.Seen(2)
	c.Seen(3)
	if got := c.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	now = now.Add(11 * time.Second)
	c.Seen(4)
	if got := c.Len(); got != 1 {
		t.Fatalf("Len() after eviction = %d, want 1", got)
	}
}

func TestSeenConcurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	hits := make([]bool, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hits[i] = c.Seen(7)
		}(i)
	}
	wg.Wait()

	misses := 0
	for _, dup := range hits {
		if !dup {
			misses++
		}
	}
	if misses != 1 {
		t.Fatalf("exactly one goroutine should win the insert, got %d", misses)
	}
}
