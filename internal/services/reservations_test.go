package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/model"
)

func TestAcquireConflictNamesHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	held, err := f.resv.Acquire(ctx, alice, "files/main.go", 0, map[string]any{"reason": "editing"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if held.HolderAlias != "alice" || !held.ExpiresAt.After(held.AcquiredAt) {
		t.Fatalf("lease wrong: %+v", held)
	}

	_, err = f.resv.Acquire(ctx, bob, "files/main.go", 0, nil)
	var conflict *model.ReservationConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.HolderAlias != "alice" || conflict.ResourceKey != "files/main.go" {
		t.Fatalf("conflict details wrong: %+v", conflict)
	}
	if !errors.Is(err, model.ErrConflict) {
		t.Fatal("conflict must unwrap to ErrConflict")
	}
}

func TestConcurrentAcquiresOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*auth.Principal{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.resv.Acquire(ctx, p, "deploy", 600, nil)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, model.ErrConflict):
			lost++
			var conflict *model.ReservationConflictError
			if !errors.As(err, &conflict) || conflict.HolderAlias == "" {
				t.Fatalf("loser's conflict missing holder data: %v", err)
			}
		default:
			t.Fatalf("unexpected acquire error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}
}

func TestAcquireConflictsEvenForHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")

	if _, err := f.resv.Acquire(ctx, alice, "deploy", 100, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// renew, not re-acquire, is the refresh path
	if _, err := f.resv.Acquire(ctx, alice, "deploy", 3600, nil); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on unexpired lease, got %v", err)
	}
}

func TestExpiredLeaseCanBeTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	if _, err := f.resv.Acquire(ctx, alice, "gpu-0", 60, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// move the service clock past the expiry
	f.resv.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	taken, err := f.resv.Acquire(ctx, bob, "gpu-0", 60, nil)
	if err != nil {
		t.Fatalf("takeover of expired lease: %v", err)
	}
	if taken.HolderAlias != "bob" {
		t.Fatalf("holder %q", taken.HolderAlias)
	}
}

func TestRenewSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	if _, err := f.resv.Renew(ctx, alice, "absent", 0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("renew absent: %v", err)
	}

	if _, err := f.resv.Acquire(ctx, alice, "lock", 60, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.resv.Renew(ctx, bob, "lock", 0); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("renew other holder: %v", err)
	}
	expiresAt, err := f.resv.Renew(ctx, alice, "lock", 600)
	if err != nil {
		t.Fatalf("renew own: %v", err)
	}
	if !expiresAt.After(time.Now().Add(500 * time.Second)) {
		t.Fatalf("new expiry too close: %v", expiresAt)
	}

	// an expired lease renews as not found, not forbidden
	f.resv.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if _, err := f.resv.Renew(ctx, alice, "lock", 0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("renew expired: %v", err)
	}
}

func TestReleaseSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	// releasing an absent lease is an idempotent no-op
	released, err := f.resv.Release(ctx, alice, "absent")
	if err != nil {
		t.Fatalf("release absent: %v", err)
	}
	if released {
		t.Fatal("nothing to release")
	}

	if _, err := f.resv.Acquire(ctx, alice, "lock", 60, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.resv.Release(ctx, bob, "lock"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("release other holder: %v", err)
	}
	released, err = f.resv.Release(ctx, alice, "lock")
	if err != nil || !released {
		t.Fatalf("release own: %v released=%v", err, released)
	}

	// anyone may clean up an expired lease
	if _, err := f.resv.Acquire(ctx, alice, "stale", 60, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	f.resv.now = func() time.Time { return time.Now().Add(time.Hour) }
	released, err = f.resv.Release(ctx, bob, "stale")
	if err != nil || !released {
		t.Fatalf("release expired by other: %v released=%v", err, released)
	}
}

func TestRevokeByPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")
	bob := f.register(t, "acme", "bob")

	for _, key := range []string{"files/a.go", "files/b.go", "deploy"} {
		if _, err := f.resv.Acquire(ctx, alice, key, 600, nil); err != nil {
			t.Fatalf("acquire %s: %v", key, err)
		}
	}
	if _, err := f.resv.Acquire(ctx, bob, "files/c.go", 600, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	n, err := f.resv.Revoke(ctx, alice, "files/")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d, want 2", n)
	}

	left, err := f.resv.List(ctx, alice, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected deploy + bob's lease, got %+v", left)
	}
}

func TestListFiltersExpiredAndPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")

	if _, err := f.resv.Acquire(ctx, alice, "short", 60, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.resv.Acquire(ctx, alice, "long/lived", 3600, nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	f.resv.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	live, err := f.resv.List(ctx, alice, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 1 || live[0].ResourceKey != "long/lived" {
		t.Fatalf("expired lease leaked: %+v", live)
	}

	none, err := f.resv.List(ctx, alice, "short")
	if err != nil || len(none) != 0 {
		t.Fatalf("prefix filter: %v %+v", err, none)
	}
}

func TestAcquireValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "acme", "alice")

	if _, err := f.resv.Acquire(ctx, alice, "  ", 0, nil); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("blank key: %v", err)
	}

	// TTL above the cap clamps instead of failing
	res, err := f.resv.Acquire(ctx, alice, "capped", 999999999, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	max := time.Duration(f.cfg.ReservationMaxTTLSeconds) * time.Second
	if res.ExpiresAt.Sub(res.AcquiredAt) > max+time.Second {
		t.Fatalf("ttl not clamped: %v", res.ExpiresAt.Sub(res.AcquiredAt))
	}
}
