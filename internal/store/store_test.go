package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pagelate/pagelate/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newImageTask(t *testing.T, s *store.Store) *store.Task {
	t.Helper()
	task := &store.Task{
		ID:         uuid.New().String(),
		BatchID:    "batch-1",
		Kind:       store.KindImage,
		SourceRef:  "https://cdn.example/src.png",
		TargetLang: "de",
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func TestClaim_CAS(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	ok, err := s.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	// Already processing: second claim must lose.
	ok, err = s.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if ok {
		t.Fatal("claim on a processing task must fail")
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != store.StatusProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
	if got.ClaimedAt == nil {
		t.Error("claimed_at should be set")
	}
}

func TestClaim_ConcurrentExactlyOneWins(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	const workers = 8
	wins := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, task.ID)
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one winner, got %d", won)
	}
}

func TestClaimNext_OrderAndEmpty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim next failed: %v", err)
	}
	if got != nil {
		t.Fatal("empty store should yield no task")
	}

	first := newImageTask(t, s)
	newImageTask(t, s)

	got, err = s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim next failed: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("expected oldest task %s, got %+v", first.ID, got)
	}
}

func TestMarkFailed_StoresMessage(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	s.Claim(ctx, task.ID)
	if err := s.MarkFailed(ctx, task.ID, "missing reference image"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Status != store.StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != "missing reference image" {
		t.Errorf("error message not stored: %q", got.ErrorMessage)
	}

	// failed → processing is a legal claim source (manual retry path).
	ok, err := s.Claim(ctx, task.ID)
	if err != nil || !ok {
		t.Errorf("failed task should be claimable: ok=%v err=%v", ok, err)
	}
}

func TestReclaimStalled(t *testing.T) {
	s := newStore(t)
	stalled := newImageTask(t, s)
	fresh := newImageTask(t, s)
	ctx := context.Background()

	s.Claim(ctx, stalled.ID)
	s.Claim(ctx, fresh.ID)

	// Only tasks claimed before the window are reclaimed; with a generous
	// window nothing moves.
	n, err := s.ReclaimStalled(ctx, time.Hour)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if n != 0 {
		t.Errorf("nothing should be reclaimed inside the window, got %d", n)
	}

	// Zero window: everything processing counts as stalled.
	time.Sleep(10 * time.Millisecond)
	n, err = s.ReclaimStalled(ctx, 0)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reclaimed, got %d", n)
	}

	got, _ := s.GetTask(ctx, stalled.ID)
	if got.Status != store.StatusPending {
		t.Errorf("reclaimed task should be pending, got %s", got.Status)
	}
}

func TestCreateVersion_ActiveInvariant(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := s.CreateVersion(ctx, &store.Version{
			TaskID:      task.ID,
			ArtifactURL: "https://cdn.example/v.png",
		})
		if err != nil {
			t.Fatalf("create version failed: %v", err)
		}
		if n != i+1 {
			t.Errorf("expected version number %d, got %d", i+1, n)
		}
	}

	versions, err := s.ListVersions(ctx, task.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}

	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
			if v.VersionNumber != 3 {
				t.Errorf("newest version should be active, got %d", v.VersionNumber)
			}
		}
	}
	if active != 1 {
		t.Errorf("exactly one version must be active, got %d", active)
	}
}

func TestUpdateVersionScoreAndActiveVersion(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	s.CreateVersion(ctx, &store.Version{TaskID: task.ID, ArtifactURL: "u1"})
	if err := s.UpdateVersionScore(ctx, task.ID, 1, 85, `{"score":85}`, ""); err != nil {
		t.Fatalf("update score failed: %v", err)
	}

	v, err := s.ActiveVersion(ctx, task.ID)
	if err != nil {
		t.Fatalf("active version failed: %v", err)
	}
	if v == nil || v.Score == nil || *v.Score != 85 {
		t.Errorf("expected active version with score 85, got %+v", v)
	}
}

func TestActivateBestVersion(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)
	ctx := context.Background()

	scores := []int{60, 75, 40}
	for i, score := range scores {
		s.CreateVersion(ctx, &store.Version{TaskID: task.ID, ArtifactURL: "u"})
		s.UpdateVersionScore(ctx, task.ID, i+1, score, "", "")
	}

	best, err := s.ActivateBestVersion(ctx, task.ID)
	if err != nil {
		t.Fatalf("activate best failed: %v", err)
	}
	if best != 2 {
		t.Errorf("expected version 2 (score 75) active, got %d", best)
	}

	v, _ := s.ActiveVersion(ctx, task.ID)
	if v.VersionNumber != 2 {
		t.Errorf("active version should be 2, got %d", v.VersionNumber)
	}
}

func TestActiveVersion_NoneYet(t *testing.T) {
	s := newStore(t)
	task := newImageTask(t, s)

	v, err := s.ActiveVersion(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("active version failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil before any attempt, got %+v", v)
	}
}

func TestBatchDone(t *testing.T) {
	s := newStore(t)
	a := newImageTask(t, s)
	b := newImageTask(t, s)
	ctx := context.Background()

	done, err := s.BatchDone(ctx, "batch-1")
	if err != nil {
		t.Fatalf("batch done failed: %v", err)
	}
	if done {
		t.Error("batch with pending tasks is not done")
	}

	s.Claim(ctx, a.ID)
	s.MarkCompleted(ctx, a.ID)
	s.Claim(ctx, b.ID)
	s.MarkFailed(ctx, b.ID, "boom")

	done, err = s.BatchDone(ctx, "batch-1")
	if err != nil {
		t.Fatalf("batch done failed: %v", err)
	}
	if !done {
		t.Error("batch with only terminal tasks is done")
	}
}
