package knowledge

import (
	"fmt"
	"testing"
	"time"
)

func TestStoreStrictFIFO(t *testing.T) {
	const capacity = 5
	s := NewStore(capacity)

	evicted := 0
	for i := 0; i < 12; i++ {
		evicted += s.Mimic(fmt.Sprintf("record %d", i), nil)
	}

	if s.Len() != capacity {
		t.Fatalf("expected %d records, got %d", capacity, s.Len())
	}
	if evicted != 12-capacity {
		t.Errorf("expected %d evictions, got %d", 12-capacity, evicted)
	}

	// The N most recently inserted records remain, in insertion order.
	all := s.All()
	for i, rec := range all {
		want := fmt.Sprintf("record %d", 12-capacity+i)
		if rec.Text != want {
			t.Errorf("record[%d] = %q, want %q", i, rec.Text, want)
		}
	}
}

func TestStoreMimicStampsTime(t *testing.T) {
	s := NewStore(10)
	before := time.Now()
	s.Mimic("hello", map[string]string{"source": "cli"})
	after := time.Now()

	rec := s.All()[0]
	if rec.At.Before(before) || rec.At.After(after) {
		t.Errorf("timestamp outside call bounds: %v", rec.At)
	}
	if rec.Meta["source"] != "cli" {
		t.Errorf("meta not preserved: %v", rec.Meta)
	}
}

func TestStoreSeedEvictsOldest(t *testing.T) {
	s := NewStore(2)
	s.Seed([]Experience{
		{Text: "one", At: time.Now()},
		{Text: "two", At: time.Now()},
		{Text: "three", At: time.Now()},
	})
	all := s.All()
	if len(all) != 2 || all[0].Text != "two" || all[1].Text != "three" {
		t.Errorf("unexpected seeded buffer: %+v", all)
	}
}

func TestLedgerLearnKeepsObservationTime(t *testing.T) {
	l := NewLedger()
	observed := time.Now().Add(-30 * time.Minute)
	l.Learn([]Experience{{At: observed, Text: "quantum drift"}})
	// A second learn pass over the same experience must not refresh
	// LastSeen to processing time.
	l.Learn([]Experience{{At: observed, Text: "quantum drift"}})

	snap := l.Snapshot()
	c, ok := snap["quantum"]
	if !ok {
		t.Fatal("concept 'quantum' not learned")
	}
	if c.Freq != 2 {
		t.Errorf("expected freq 2, got %d", c.Freq)
	}
	if !c.LastSeen.Equal(observed) {
		t.Errorf("LastSeen refreshed to processing time: %v != %v", c.LastSeen, observed)
	}
}

func TestLedgerTokenization(t *testing.T) {
	l := NewLedger()
	l.Learn([]Experience{{At: time.Now(), Text: "Go go GO! ab abc a1b2c3 xyz-runs"}})
	snap := l.Snapshot()
	if _, ok := snap["abc"]; !ok {
		t.Error("expected 'abc' (length 3) to be learned")
	}
	if _, ok := snap["ab"]; ok {
		t.Error("tokens shorter than 3 must be ignored")
	}
	if _, ok := snap["go"]; ok {
		t.Error("'go' is too short to be a concept")
	}
	if _, ok := snap["xyz"]; !ok {
		t.Error("alphabetic run 'xyz' should be split out of 'xyz-runs'")
	}
	if _, ok := snap["runs"]; !ok {
		t.Error("alphabetic run 'runs' should be split out of 'xyz-runs'")
	}
}

func TestDigestPrunesAndOrders(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	l.Learn([]Experience{
		{At: now.Add(-2 * time.Hour), Text: "stale stale stale stale"},
		{At: now.Add(-5 * time.Minute), Text: "fresh fresh fresh"},
		{At: now.Add(-2 * time.Minute), Text: "newer newer"},
		{At: now.Add(-1 * time.Minute), Text: "tied tied"},
	})

	grains, pruned := l.Digest(now, time.Hour, 10)
	if pruned != 1 {
		t.Errorf("expected exactly 1 pruned concept, got %d", pruned)
	}
	if l.Len() != 3 {
		t.Errorf("expected 3 live concepts, got %d", l.Len())
	}

	// freq desc first; equal freq ordered by last-seen desc.
	want := []string{"fresh:3", "tied:2", "newer:2"}
	if len(grains) != len(want) {
		t.Fatalf("unexpected grains: %v", grains)
	}
	for i := range want {
		if grains[i] != want[i] {
			t.Errorf("grains[%d] = %s, want %s (all: %v)", i, grains[i], want[i], grains)
		}
	}
}

func TestDigestCapsAtK(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.Learn([]Experience{{At: now, Text: "one two three four five six seven eight"}})

	grains, _ := l.Digest(now, time.Hour, 3)
	if len(grains) != 3 {
		t.Errorf("expected 3 grains, got %d: %v", len(grains), grains)
	}
}

func TestMimicLearnDigestEndToEnd(t *testing.T) {
	s := NewStore(200)
	l := NewLedger()

	s.Mimic("alpha beta alpha", nil)
	l.Learn(s.Recent(5 * time.Minute))

	grains, _ := l.Digest(time.Now(), time.Hour, 40)
	if len(grains) != 2 || grains[0] != "alpha:2" || grains[1] != "beta:1" {
		t.Errorf("expected [alpha:2 beta:1], got %v", grains)
	}
}

func TestSeedGrains(t *testing.T) {
	l := NewLedger()
	at := time.Now()
	malformed := l.SeedGrains([]string{"alpha:2", "beta:1", "notagrain", ":3", "gamma:x"}, at)

	if len(malformed) != 3 {
		t.Errorf("expected 3 malformed grains, got %v", malformed)
	}
	snap := l.Snapshot()
	if snap["alpha"].Freq != 2 || snap["beta"].Freq != 1 {
		t.Errorf("unexpected seeded concepts: %+v", snap)
	}
}

func TestMergeOverlays(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.Learn([]Experience{{At: now.Add(-time.Minute), Text: "alpha"}})

	older := now.Add(-time.Hour)
	l.Merge(map[string]Concept{
		"alpha": {Token: "alpha", Freq: 4, LastSeen: older},
		"delta": {Token: "delta", Freq: 1, LastSeen: older},
	})

	snap := l.Snapshot()
	if snap["alpha"].Freq != 5 {
		t.Errorf("expected merged freq 5, got %d", snap["alpha"].Freq)
	}
	if snap["alpha"].LastSeen.Equal(older) {
		t.Error("merge must keep the newer LastSeen")
	}
	if snap["delta"].Freq != 1 {
		t.Errorf("expected delta to be introduced, got %+v", snap["delta"])
	}
}
