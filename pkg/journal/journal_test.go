package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestJournal(t *testing.T, opts ...Option) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	j, err := Open(path, "gestalt", "operator", "v3.2.0", opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func TestReflectAppendsJSONLines(t *testing.T) {
	j, path := openTestJournal(t)
	ctx := context.Background()

	j.Reflect(ctx, "BOOT", map[string]any{"version": "v3.2.0"})
	j.Reflect(ctx, "TICK", nil)

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()

	var events []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad line: %v", err)
		}
		if rec.ID != "gestalt" || rec.Anchor != "operator" {
			t.Errorf("identity fields not stamped: %+v", rec)
		}
		events = append(events, rec.Event)
	}
	if len(events) != 2 || events[0] != "BOOT" || events[1] != "TICK" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestRecentRingIsBounded(t *testing.T) {
	j, _ := openTestJournal(t, WithRecentCap(3))
	ctx := context.Background()

	for _, ev := range []string{"A", "B", "C", "D", "E"} {
		j.Reflect(ctx, ev, nil)
	}

	recent := j.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected ring of 3, got %d", len(recent))
	}
	for i, want := range []string{"C", "D", "E"} {
		if recent[i].Event != want {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].Event, want)
		}
	}
}

func TestSeedRespectsCap(t *testing.T) {
	j, _ := openTestJournal(t, WithRecentCap(2))
	j.Seed([]Record{
		{Event: "OLD", Timestamp: time.Now()},
		{Event: "MID", Timestamp: time.Now()},
		{Event: "NEW", Timestamp: time.Now()},
	})
	recent := j.Recent()
	if len(recent) != 2 || recent[0].Event != "MID" || recent[1].Event != "NEW" {
		t.Errorf("unexpected seeded ring: %+v", recent)
	}
}

func TestConcurrentReflect(t *testing.T) {
	j, path := openTestJournal(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				j.Reflect(ctx, "CONCURRENT", nil)
			}
		}()
	}
	wg.Wait()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()

	count := 0
	var last time.Time
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("interleaved write corrupted line %d: %v", count, err)
		}
		if rec.Timestamp.Before(last) {
			t.Fatalf("records out of wall-clock order at line %d", count)
		}
		last = rec.Timestamp
		count++
	}
	if count != 200 {
		t.Errorf("expected 200 records, got %d", count)
	}
}

func TestSQLiteArchiveMirror(t *testing.T) {
	dir := t.TempDir()
	arc, err := OpenSQLiteArchive(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	j, err := Open(filepath.Join(dir, "journal.jsonl"), "gestalt", "operator", "v3.2.0", WithArchive(arc))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	j.Reflect(ctx, "SKILL_ADDED", map[string]any{"name": "evolve_self"})
	j.Reflect(ctx, "SKILL_ADDED", map[string]any{"name": "run_transform"})
	j.Reflect(ctx, "TAMPER_DETECTED", nil)

	n, err := arc.CountByEvent(ctx, "SKILL_ADDED")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 archived SKILL_ADDED records, got %d", n)
	}

	// The archive carries the full record shape, anchor included.
	var identity, anchor, ver string
	row := arc.db.QueryRowContext(ctx,
		`SELECT identity, anchor, version FROM journal_events WHERE event = 'TAMPER_DETECTED'`)
	if err := row.Scan(&identity, &anchor, &ver); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if identity != "gestalt" || anchor != "operator" || ver != "v3.2.0" {
		t.Errorf("archived identity fields = %s/%s/%s", identity, anchor, ver)
	}
}
