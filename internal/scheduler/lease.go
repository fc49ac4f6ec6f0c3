package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/practica-ai/practica/internal/store"
	"github.com/practica-ai/practica/internal/util"
)

// DefaultLeaseTTL is how long a lease stays valid without renewal. A
// crashed holder blocks takeover for at most this long.
const DefaultLeaseTTL = 2 * time.Minute

// LeaseKeeper acquires and renews one named lease in the store. The
// lease elects a single job runner across all instances sharing the
// store; Held reports the current verdict without touching the store.
type LeaseKeeper struct {
	store  store.Store
	name   string
	holder string
	ttl    time.Duration
	held   atomic.Bool
}

// NewLeaseKeeper creates a keeper for the named lease. The holder
// identity is derived from the hostname plus a random suffix so two
// processes on one machine never collide.
func NewLeaseKeeper(st store.Store, name string, ttl time.Duration) *LeaseKeeper {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaseKeeper{
		store:  st,
		name:   name,
		holder: fmt.Sprintf("%s-%s", hostname, util.GenerateRandomHex(8)),
		ttl:    ttl,
	}
}

// Name returns the lease name.
func (k *LeaseKeeper) Name() string { return k.name }

// Holder returns this keeper's holder identity.
func (k *LeaseKeeper) Holder() string { return k.holder }

// Held reports whether the last store interaction left us holding the
// lease.
func (k *LeaseKeeper) Held() bool { return k.held.Load() }

// Run acquires the lease and keeps renewing it at a third of the TTL
// until the context is cancelled, then releases. Losing the lease is not
// fatal: the keeper keeps trying to reacquire, flipping Held as the
// store verdicts come in.
func (k *LeaseKeeper) Run(ctx context.Context) {
	k.tick()
	interval := k.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			k.release()
			return
		case <-ticker.C:
			k.tick()
		}
	}
}

func (k *LeaseKeeper) tick() {
	var (
		ok  bool
		err error
	)
	if k.held.Load() {
		ok, err = k.store.RenewLease(k.name, k.holder, k.ttl)
	} else {
		ok, err = k.store.AcquireLease(k.name, k.holder, k.ttl)
	}
	if err != nil {
		slog.Error("LeaseKeeper store error, treating lease as lost", "error", err, "lease", k.name, "holder", k.holder)
		k.held.Store(false)
		return
	}
	was := k.held.Swap(ok)
	if ok && !was {
		slog.Info("LeaseKeeper acquired lease", "lease", k.name, "holder", k.holder)
	}
	if !ok && was {
		slog.Warn("LeaseKeeper lost lease", "lease", k.name, "holder", k.holder)
	}
}

func (k *LeaseKeeper) release() {
	if !k.held.Swap(false) {
		return
	}
	if err := k.store.ReleaseLease(k.name, k.holder); err != nil {
		slog.Error("LeaseKeeper release failed, lease will expire by TTL", "error", err, "lease", k.name, "holder", k.holder)
		return
	}
	slog.Info("LeaseKeeper released lease", "lease", k.name, "holder", k.holder)
}
