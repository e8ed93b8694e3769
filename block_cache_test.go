package main

import "testing"

func TestInstallEvictsOverlap(t *testing.T) {
	c := NewBlockCache()
	a := &Block{StartPC: 0x200, Length: 6, Payload: noopPayload{}}
	c.Install(a)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	b := &Block{StartPC: 0x204, Length: 4, Payload: noopPayload{}}
	c.Install(b)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d after overlapping install, want 1 (old block evicted)", c.Len())
	}
	if _, ok := c.Lookup(0x200); ok {
		t.Error("overlapping block at 0x200 should have been evicted")
	}
	if _, ok := c.Lookup(0x204); !ok {
		t.Error("new block at 0x204 should be live")
	}
}

func TestInstallDisjointBlocksCoexist(t *testing.T) {
	c := NewBlockCache()
	c.Install(&Block{StartPC: 0x200, Length: 4, Payload: noopPayload{}})
	c.Install(&Block{StartPC: 0x300, Length: 4, Payload: noopPayload{}})
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestInvalidateRangeEvictsIntersecting(t *testing.T) {
	c := NewBlockCache()
	c.Install(&Block{StartPC: 0x200, Length: 8, Payload: noopPayload{}})
	c.Install(&Block{StartPC: 0x300, Length: 8, Payload: noopPayload{}})

	c.InvalidateRange(0x204, 0x206) // hits only the first block's coverage
	if _, ok := c.Lookup(0x200); ok {
		t.Error("block covering the written range should be evicted")
	}
	if _, ok := c.Lookup(0x300); !ok {
		t.Error("disjoint block should survive")
	}
}

func TestHandleStalesAfterEviction(t *testing.T) {
	c := NewBlockCache()
	b := &Block{StartPC: 0x200, Length: 4, Payload: noopPayload{}}
	h := c.Install(b)
	if _, ok := h.Resolve(); !ok {
		t.Fatal("freshly issued handle should resolve")
	}

	c.InvalidateRange(0x200, 0x204)
	if _, ok := h.Resolve(); ok {
		t.Fatal("handle to an evicted block must not resolve")
	}

	// A new block installed at the same PC must not un-stale the old handle
	// (generation tag, not just presence-in-map).
	c.Install(&Block{StartPC: 0x200, Length: 4, Payload: noopPayload{}})
	if _, ok := h.Resolve(); ok {
		t.Fatal("stale handle resolved against a newer block at the same PC")
	}
}

func TestFlushAllInvokesHookAndReleasesPayloads(t *testing.T) {
	c := NewBlockCache()
	released := 0
	c.Install(&Block{StartPC: 0x200, Length: 4, Payload: releaseCounter{&released}})
	c.Install(&Block{StartPC: 0x300, Length: 4, Payload: releaseCounter{&released}})

	hookCalled := false
	c.SetFlushHook(func() { hookCalled = true })
	c.FlushAll()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after FlushAll, want 0", c.Len())
	}
	if released != 2 {
		t.Errorf("released = %d, want 2", released)
	}
	if !hookCalled {
		t.Error("flush hook was not invoked")
	}
}

type releaseCounter struct{ n *int }

func (r releaseCounter) Release() { *r.n++ }
