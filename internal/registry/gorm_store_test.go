package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	dbpkg "github.com/KDHBuddhika/suwatha/internal/db"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	gdb, err := dbpkg.OpenGorm("sqlite", filepath.Join(t.TempDir(), "registry.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbpkg.Close(gdb) })
	store := NewGormStore(gdb)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store *GormStore, in NewWorker) Worker {
	t.Helper()
	w, err := store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create worker %s: %v", in.Email, err)
	}
	return w
}

func boolPtr(v bool) *bool { return &v }

func TestClaimPrefersNonSpecialistThenFallsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	spec := mustCreate(t, store, NewWorker{Name: "Spec", Email: "spec@example.com", Specialist: true})
	gen := mustCreate(t, store, NewWorker{Name: "Gen", Email: "gen@example.com"})

	first, err := store.Claim(ctx, false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.ID != gen.ID {
		t.Fatalf("expected generalist %d, got %d", gen.ID, first.ID)
	}
	if first.Status != StatusBusy {
		t.Fatalf("expected busy, got %s", first.Status)
	}

	second, err := store.Claim(ctx, false)
	if err != nil {
		t.Fatalf("fallback claim: %v", err)
	}
	if second.ID != spec.ID {
		t.Fatalf("expected fallback to specialist %d, got %d", spec.ID, second.ID)
	}

	if _, err := store.Claim(ctx, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found when everyone is busy, got %v", err)
	}
}

func TestClaimSpecialistNeverFallsBack(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, NewWorker{Name: "Gen", Email: "gen@example.com"})

	if _, err := store.Claim(context.Background(), true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimLowestIDWithinTier(t *testing.T) {
	store := newTestStore(t)
	a := mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})
	mustCreate(t, store, NewWorker{Name: "B", Email: "b@example.com"})

	got, err := store.Claim(context.Background(), false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("expected %d, got %d", a.ID, got.ID)
	}
}

func TestClaimSkipsInactiveAndOffline(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, NewWorker{Name: "Off", Email: "off@example.com", Status: "OFFLINE"})
	mustCreate(t, store, NewWorker{Name: "Gone", Email: "gone@example.com", Active: boolPtr(false)})

	if _, err := store.Claim(context.Background(), false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentClaimsNeverShareAWorker(t *testing.T) {
	store := newTestStore(t)
	const workers = 5
	const claimers = 12
	for i := 0; i < workers; i++ {
		mustCreate(t, store, NewWorker{
			Name:       "W",
			Email:      string(rune('a'+i)) + "@example.com",
			Specialist: i%2 == 0,
		})
	}

	var (
		mu      sync.Mutex
		claimed = map[uint]int{}
		misses  int
		wg      sync.WaitGroup
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := store.Claim(context.Background(), false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, apperr.ErrNotFound) {
					t.Errorf("unexpected claim error: %v", err)
				}
				misses++
				return
			}
			claimed[w.ID]++
		}()
	}
	wg.Wait()

	if len(claimed) != workers {
		t.Fatalf("expected %d distinct claims, got %d", workers, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("worker %d claimed %d times", id, n)
		}
	}
	if misses != claimers-workers {
		t.Fatalf("expected %d misses, got %d", claimers-workers, misses)
	}
}

func TestReleaseMakesWorkerClaimableAgain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	w := mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})
	if _, err := store.Claim(ctx, false); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, w.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Release(ctx, w.ID); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	got, err := store.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Active || got.Status != StatusAvailable {
		t.Fatalf("expected claimable worker, got %+v", got)
	}
	if err := store.Release(ctx, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown worker, got %v", err)
	}
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})
	_, err := store.Create(context.Background(), NewWorker{Name: "B", Email: " A@Example.com "})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := store.Create(context.Background(), NewWorker{Name: "C", Email: "nope"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmailRejectsHeaderBreaks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, email := range []string{"a@example.com\r\nBcc: b@example.com", "a@exa\tmple.com", "a @example.com"} {
		if _, err := store.Create(ctx, NewWorker{Name: "A", Email: email}); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("create %q: expected validation error, got %v", email, err)
		}
	}
	w := mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})
	bad := "a@example.com\nBcc: b@example.com"
	if _, err := store.Update(ctx, w.ID, WorkerPatch{Email: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("update: expected validation error, got %v", err)
	}
}

func TestUpdateDeactivatesWorker(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	w := mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})

	name := "Dr. A"
	updated, err := store.Update(ctx, w.ID, WorkerPatch{Name: &name, Active: boolPtr(false)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.Active {
		t.Fatalf("unexpected worker after update: %+v", updated)
	}
	if _, err := store.Claim(ctx, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("inactive worker must not be claimable, got %v", err)
	}
	n, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 active workers, got %d", n)
	}
	if _, err := store.Update(ctx, 404, WorkerPatch{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetPresence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, store, NewWorker{Name: "A", Email: "a@example.com"})

	w, err := store.SetPresence(ctx, "A@example.com", StatusOffline)
	if err != nil {
		t.Fatalf("go offline: %v", err)
	}
	if w.Status != StatusOffline {
		t.Fatalf("expected offline, got %s", w.Status)
	}
	if _, err := store.SetPresence(ctx, "a@example.com", StatusAvailable); err != nil {
		t.Fatalf("go available: %v", err)
	}
	if _, err := store.Claim(ctx, false); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.SetPresence(ctx, "a@example.com", StatusOffline); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state while busy, got %v", err)
	}
	if _, err := store.SetPresence(ctx, "a@example.com", StatusBusy); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for BUSY, got %v", err)
	}
	if _, err := store.SetPresence(ctx, "ghost@example.com", StatusOffline); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
