package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/broker-authz/go-core/pkg/types"
)

func TestLRU_EpochInvalidation(t *testing.T) {
	c := NewLRU(16, time.Minute)

	c.Put("k", types.DecisionDeny, 1)

	if d, ok := c.Get("k", 1); !ok || d != types.DecisionDeny {
		t.Fatalf("expected hit at same epoch, got (%v, %v)", d, ok)
	}

	// After a mutation the epoch moves forward; the entry becomes a miss
	// and is evicted lazily.
	if _, ok := c.Get("k", 2); ok {
		t.Fatal("entry from epoch 1 must be a miss at epoch 2")
	}
	if _, ok := c.Get("k", 1); ok {
		t.Fatal("stale entry should have been evicted on the epoch-2 lookup")
	}
}

func TestLRU_NewerEntryNotOverwritten(t *testing.T) {
	c := NewLRU(16, time.Minute)

	c.Put("k", types.DecisionAllow, 5)
	c.Put("k", types.DecisionDeny, 3) // late write from a slower computation

	if d, ok := c.Get("k", 5); !ok || d != types.DecisionAllow {
		t.Fatalf("fresh entry was clobbered by a staler one: (%v, %v)", d, ok)
	}
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU(16, time.Millisecond)

	c.Put("k", types.DecisionAllow, 1)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k", 1); ok {
		t.Fatal("expired entry must be a miss")
	}
}

func TestLRU_CapacityEviction(t *testing.T) {
	c := NewLRU(32, time.Minute)

	for i := 0; i < 200; i++ {
		c.Put(fmt.Sprintf("key-%d", i), types.DecisionAllow, 1)
	}

	if got := c.Stats().Size; got > 32 {
		t.Fatalf("size = %d, want at most 32", got)
	}
	if _, ok := c.Get("key-199", 1); !ok {
		t.Fatal("most recent entry should survive eviction")
	}
}

func TestLRU_ConcurrentReadersAndWriters(t *testing.T) {
	c := NewLRU(256, time.Minute)
	for i := 0; i < 64; i++ {
		c.Put(fmt.Sprintf("seed-%d", i), types.DecisionAllow, 1)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("seed-%d", i%64)
				if g%2 == 0 {
					c.Get(key, 1)
				} else {
					c.Put(key, types.DecisionDeny, 2)
				}
			}
		}(g)
	}
	wg.Wait()

	if d, ok := c.Get("seed-0", 2); !ok || d != types.DecisionDeny {
		t.Fatalf("expected epoch-2 DENY after concurrent writes, got (%v, %v)", d, ok)
	}
}

func TestLRU_NonPositiveCapacityClamped(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		c := NewLRU(capacity, time.Minute)

		done := make(chan struct{})
		go func() {
			c.Put("k", types.DecisionAllow, 1)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Put hung with capacity %d", capacity)
		}

		if d, ok := c.Get("k", 1); !ok || d != types.DecisionAllow {
			t.Fatalf("capacity %d: expected hit after Put, got (%v, %v)", capacity, d, ok)
		}
	}
}

func TestLRU_InvalidateAll(t *testing.T) {
	c := NewLRU(16, time.Minute)
	c.Put("a", types.DecisionAllow, 1)
	c.Put("b", types.DecisionDeny, 1)

	c.InvalidateAll()

	if _, ok := c.Get("a", 1); ok {
		t.Fatal("invalidated entry must be a miss")
	}
	if got := c.Stats().Size; got != 0 {
		t.Fatalf("size = %d, want 0", got)
	}
}
