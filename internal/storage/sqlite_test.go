package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func record(runID, group string, status entity.Status, started time.Time) engine.RunRecord {
	return engine.RunRecord{
		RunID:      runID,
		GroupID:    group,
		Bootstrap:  "bootstrapper.js",
		Status:     status,
		Iterations: 7,
		StartedAt:  started,
		EndedAt:    started.Add(2 * time.Second),
	}
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreSaveAndRetrieve(t *testing.T) {
	store := openTestStore(t)
	base := time.Unix(1_700_000_000, 0)

	failed := record("RUN1", "crocs", entity.StatusFailed, base)
	failed.Error = "runner: unrecognized signal from script: boom"
	failed.Attempt = 2

	if err := store.SaveRun(failed); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	if err := store.SaveRun(record("RUN2", "crocs", entity.StatusKilled, base.Add(time.Minute))); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	if err := store.SaveRun(record("RUN3", "villagers", entity.StatusKilled, base.Add(2*time.Minute))); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}

	runs, err := store.GroupRuns("crocs", 10)
	if err != nil {
		t.Fatalf("GroupRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 crocs runs, got %d", len(runs))
	}
	if runs[0].RunID != "RUN2" || runs[1].RunID != "RUN1" {
		t.Errorf("Runs not newest first: %s, %s", runs[0].RunID, runs[1].RunID)
	}

	got := runs[1]
	if got.Status != entity.StatusFailed || got.Error != failed.Error || got.Attempt != 2 {
		t.Errorf("Failed run round trip mismatch: %+v", got)
	}
	if !got.StartedAt.Equal(base) || got.Duration() != 2*time.Second {
		t.Errorf("Times = %v, %v", got.StartedAt, got.Duration())
	}
	if runs[0].Error != "" {
		t.Errorf("Killed run should have no error, got %q", runs[0].Error)
	}

	r, err := store.RunByID("RUN3")
	if err != nil {
		t.Fatalf("RunByID() failed: %v", err)
	}
	if r.GroupID != "villagers" || r.Iterations != 7 {
		t.Errorf("RunByID() = %+v", r)
	}

	if _, err := store.RunByID("NOPE"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("RunByID(NOPE) = %v, expected ErrRunNotFound", err)
	}
}

func TestStoreDuplicateRunID(t *testing.T) {
	store := openTestStore(t)
	rec := record("SAME", "g", entity.StatusKilled, time.Now())
	if err := store.SaveRun(rec); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(rec); err == nil {
		t.Error("Saving a run ID twice should fail")
	}
}

func TestStoreRecentRunsLimit(t *testing.T) {
	store := openTestStore(t)
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 5; i++ {
		store.SaveRun(record(fmt.Sprintf("R%d", i), "g", entity.StatusKilled, base.Add(time.Duration(i)*time.Second)))
	}

	runs, err := store.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs with limit, got %d", len(runs))
	}
	if runs[0].RunID != "R4" || runs[2].RunID != "R2" {
		t.Errorf("Runs not in expected order: %s .. %s", runs[0].RunID, runs[2].RunID)
	}
}

func TestStoreClearRuns(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	store.SaveRun(record("A1", "a", entity.StatusKilled, now))
	store.SaveRun(record("B1", "b", entity.StatusKilled, now))

	if err := store.ClearRuns("a"); err != nil {
		t.Fatalf("ClearRuns() failed: %v", err)
	}
	if runs, _ := store.GroupRuns("a", 10); len(runs) != 0 {
		t.Errorf("Expected 0 runs for a after clear, got %d", len(runs))
	}
	if runs, _ := store.GroupRuns("b", 10); len(runs) != 1 {
		t.Error("Runs for b should not be affected by clearing a")
	}

	if err := store.ClearRuns(""); err != nil {
		t.Fatal(err)
	}
	if runs, _ := store.RecentRuns(10); len(runs) != 0 {
		t.Errorf("Expected empty history, got %d runs", len(runs))
	}
}

func TestStoreGroupStats(t *testing.T) {
	store := openTestStore(t)
	base := time.Unix(1_700_000_000, 0)

	store.SaveRun(record("1", "crocs", entity.StatusFailed, base))
	store.SaveRun(record("2", "crocs", entity.StatusFailed, base.Add(time.Second)))
	store.SaveRun(record("3", "crocs", entity.StatusKilled, base.Add(2*time.Second)))
	store.SaveRun(record("4", "monkeys", entity.StatusKilled, base))

	stats, err := store.AllGroupStats()
	if err != nil {
		t.Fatalf("AllGroupStats() failed: %v", err)
	}
	crocs := stats["crocs"]
	if crocs == nil {
		t.Fatal("Missing crocs stats")
	}
	if crocs.Runs != 3 || crocs.Failures != 2 || crocs.Kills != 1 || crocs.TotalIterations != 21 {
		t.Errorf("crocs stats = %+v", crocs)
	}
	if !crocs.LastStarted.Equal(base.Add(2 * time.Second)) {
		t.Errorf("LastStarted = %v", crocs.LastStarted)
	}
	if stats["monkeys"] == nil || stats["monkeys"].Runs != 1 {
		t.Errorf("monkeys stats = %+v", stats["monkeys"])
	}
}

func TestStoreNestedPath(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "deep", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() with nested path failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}
