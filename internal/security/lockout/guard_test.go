package lockout

import (
	"fmt"
	"sync"
	"testing"
)

func TestSameAddressRepeatedFailuresBlock(t *testing.T) {
	g := NewGuard(nil, nil)

	for i := 0; i < 4; i++ {
		g.Record("alice", "10.0.0.9", "cli", false, "invalid password")
		if g.IsBlocked("10.0.0.9") {
			t.Fatalf("address blocked after only %d failures", i+1)
		}
	}
	g.Record("alice", "10.0.0.9", "cli", false, "invalid password")
	if !g.IsBlocked("10.0.0.9") {
		t.Fatal("address should be blocked after 5 same-address failures")
	}
}

func TestBlockingSpansUsernames(t *testing.T) {
	g := NewGuard(nil, nil)

	// Five failures from one address against five different accounts do not
	// trip the per-username window; each account saw one failure.
	for i := 0; i < 5; i++ {
		g.Record(fmt.Sprintf("user%d", i), "10.0.0.7", "cli", false, "invalid password")
	}
	if g.IsBlocked("10.0.0.7") {
		t.Fatal("per-address blocking is derived from a single account's window")
	}
}

func TestMixedAddressesDoNotBlock(t *testing.T) {
	g := NewGuard(nil, nil)

	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.1", "10.0.0.2", "10.0.0.1"}
	for _, a := range addrs {
		g.Record("bob", a, "cli", false, "invalid password")
	}
	if g.IsBlocked("10.0.0.1") || g.IsBlocked("10.0.0.2") {
		t.Fatal("no single address reached the threshold")
	}
}

func TestSuccessResetsWindowPressure(t *testing.T) {
	g := NewGuard(nil, nil)

	for i := 0; i < 4; i++ {
		g.Record("carol", "10.0.0.3", "cli", false, "invalid password")
	}
	g.Record("carol", "10.0.0.3", "cli", true, "")
	// The most recent 5 now include a success, so one more failure is not
	// enough to block.
	g.Record("carol", "10.0.0.3", "cli", false, "invalid password")
	if g.IsBlocked("10.0.0.3") {
		t.Fatal("success inside the window should prevent blocking")
	}
}

func TestHistoryBounded(t *testing.T) {
	g := NewGuard(nil, nil)
	for i := 0; i < 25; i++ {
		g.Record("dave", "10.0.0.4", "cli", true, "")
	}
	if n := len(g.History("dave")); n != maxHistory {
		t.Fatalf("history length = %d, want %d", n, maxHistory)
	}
}

func TestExplicitBlockIsMonotonic(t *testing.T) {
	g := NewGuard(nil, nil)
	g.Block("192.0.2.1")
	g.Block("192.0.2.1")
	if !g.IsBlocked("192.0.2.1") {
		t.Fatal("explicit block did not take effect")
	}
	if g.Stats().BlockedAddresses != 1 {
		t.Fatalf("blocked count = %d, want 1", g.Stats().BlockedAddresses)
	}
}

func TestConcurrentRecords(t *testing.T) {
	g := NewGuard(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g.Record("erin", fmt.Sprintf("10.1.0.%d", n%4), "cli", n%2 == 0, "")
		}(i)
	}
	wg.Wait()
	if n := len(g.History("erin")); n != maxHistory {
		t.Fatalf("history length = %d, want %d", n, maxHistory)
	}
}
