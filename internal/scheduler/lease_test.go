package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/practica-ai/practica/internal/store"
)

func TestLeaseKeeperHolderIdentityIsUnique(t *testing.T) {
	st := store.NewMemoryStore()
	a := NewLeaseKeeper(st, "retention", time.Minute)
	b := NewLeaseKeeper(st, "retention", time.Minute)
	if a.Holder() == b.Holder() {
		t.Errorf("two keepers must have distinct holder identities, both %q", a.Holder())
	}
	if a.Name() != "retention" {
		t.Errorf("expected lease name retention, got %q", a.Name())
	}
}

func TestLeaseKeeperAcquireAndCompete(t *testing.T) {
	st := store.NewMemoryStore()
	a := NewLeaseKeeper(st, "retention", time.Minute)
	b := NewLeaseKeeper(st, "retention", time.Minute)

	a.tick()
	if !a.Held() {
		t.Fatal("first keeper must acquire a free lease")
	}
	b.tick()
	if b.Held() {
		t.Fatal("second keeper must not steal a live lease")
	}

	// Renewal keeps the lease.
	a.tick()
	if !a.Held() {
		t.Fatal("renewal must keep the lease")
	}
}

func TestLeaseKeeperReleasesOnCancel(t *testing.T) {
	st := store.NewMemoryStore()
	a := NewLeaseKeeper(st, "retention", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !a.Held() {
		select {
		case <-deadline:
			t.Fatal("keeper never acquired the lease")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if a.Held() {
		t.Error("Held must report false after release")
	}

	// The release must free the lease for the next keeper immediately.
	b := NewLeaseKeeper(st, "retention", time.Minute)
	b.tick()
	if !b.Held() {
		t.Error("released lease must be acquirable")
	}
}

func TestLeaseKeeperTakesOverExpiredLease(t *testing.T) {
	st := store.NewMemoryStore()
	a := NewLeaseKeeper(st, "retention", time.Minute)
	a.ttl = -time.Second
	a.tick()

	b := NewLeaseKeeper(st, "retention", time.Minute)
	b.tick()
	if !b.Held() {
		t.Error("expired lease must be taken over")
	}
}
