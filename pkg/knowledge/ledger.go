package knowledge

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Concept is one learned token with its accumulated frequency and the
// observation time of the newest experience that mentioned it.
type Concept struct {
	Token    string    `json:"token"`
	Freq     int       `json:"freq"`
	LastSeen time.Time `json:"last_seen"`
}

var tokenPattern = regexp.MustCompile(`[a-z]{3,}`)

// Ledger accumulates concept frequencies and distills them into grains.
// Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	concepts map[string]Concept
}

// NewLedger creates an empty concept ledger.
func NewLedger() *Ledger {
	return &Ledger{concepts: make(map[string]Concept)}
}

// Learn tokenizes each experience into lowercase alphabetic runs of length
// >= 3 and increments per-occurrence frequencies. A concept's LastSeen is
// the observation time of the newest experience mentioning it, not the time
// of the learn pass, so a concept cannot renew itself merely by being
// reprocessed.
func (l *Ledger) Learn(experiences []Experience) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, exp := range experiences {
		for _, tok := range tokenPattern.FindAllString(strings.ToLower(exp.Text), -1) {
			c := l.concepts[tok]
			c.Token = tok
			c.Freq++
			if exp.At.After(c.LastSeen) {
				c.LastSeen = exp.At
			}
			l.concepts[tok] = c
		}
	}
}

// Digest prunes concepts whose LastSeen predates now-horizon, then returns
// the top-k grains as "token:freq" strings ordered by (freq desc, last-seen
// desc, token asc). It reports the number of pruned concepts.
func (l *Ledger) Digest(now time.Time, horizon time.Duration, k int) (grains []string, pruned int) {
	cutoff := now.Add(-horizon)

	l.mu.Lock()
	defer l.mu.Unlock()

	for tok, c := range l.concepts {
		if c.LastSeen.Before(cutoff) {
			delete(l.concepts, tok)
			pruned++
		}
	}

	top := make([]Concept, 0, len(l.concepts))
	for _, c := range l.concepts {
		top = append(top, c)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Freq != top[j].Freq {
			return top[i].Freq > top[j].Freq
		}
		if !top[i].LastSeen.Equal(top[j].LastSeen) {
			return top[i].LastSeen.After(top[j].LastSeen)
		}
		return top[i].Token < top[j].Token
	})
	if k >= 0 && len(top) > k {
		top = top[:k]
	}

	grains = make([]string, len(top))
	for i, c := range top {
		grains[i] = fmt.Sprintf("%s:%d", c.Token, c.Freq)
	}
	return grains, pruned
}

// Len reports the number of live concepts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.concepts)
}

// Snapshot returns a copy of the concept map.
func (l *Ledger) Snapshot() map[string]Concept {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Concept, len(l.concepts))
	for tok, c := range l.concepts {
		out[tok] = c
	}
	return out
}

// Merge overlays concepts from a predecessor: frequencies add, LastSeen
// keeps the newer observation.
func (l *Ledger) Merge(concepts map[string]Concept) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for tok, in := range concepts {
		c := l.concepts[tok]
		c.Token = tok
		c.Freq += in.Freq
		if in.LastSeen.After(c.LastSeen) {
			c.LastSeen = in.LastSeen
		}
		l.concepts[tok] = c
	}
}

// SeedGrains reconstructs concepts from "token:freq" grains, stamping them
// with the given observation time. Malformed grains are skipped and
// returned for reporting.
func (l *Ledger) SeedGrains(grains []string, at time.Time) (malformed []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range grains {
		tok, freqStr, ok := strings.Cut(g, ":")
		if !ok {
			malformed = append(malformed, g)
			continue
		}
		freq, err := strconv.Atoi(freqStr)
		if err != nil || tok == "" {
			malformed = append(malformed, g)
			continue
		}
		c := l.concepts[tok]
		c.Token = tok
		c.Freq += freq
		if at.After(c.LastSeen) {
			c.LastSeen = at
		}
		l.concepts[tok] = c
	}
	return malformed
}
