package transform

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/jllopis/gestalt/pkg/errors"
)

// Tunables are the loop constants a generation may drift between versions.
type Tunables struct {
	TickIntervalMS int `json:"tick_interval_ms"`
	SaveEvery      int `json:"save_every"`
	HealEvery      int `json:"heal_every"`
	DigestEvery    int `json:"digest_every"`
	EvolveEvery    int `json:"evolve_every"`
	EvolveGrains   int `json:"evolve_grains"`
	ExperienceCap  int `json:"experience_cap"`
	DistillTopK    int `json:"distill_top_k"`
}

// IdentityRecord is the versioned identity document a successor boots from.
type IdentityRecord struct {
	Name     string   `json:"name"`
	Anchor   string   `json:"anchor"`
	Version  string   `json:"version"`
	Tunables Tunables `json:"tunables"`
	Grains   []string `json:"grains,omitempty"`
}

// Mutator is the distinguished self-mutation transform. Each execution
// reads the live identity record, always bumps the patch version, jitters
// each tunable independently with probability JitterProb, embeds the
// current grains, and emits the mutated record as JSON. The emitted record
// is the successor's bootstrap input; the running process never rewrites
// itself.
type Mutator struct {
	Record     func() IdentityRecord
	Grains     func() []string
	JitterProb float64
	Rand       *rand.Rand
}

func (Mutator) ID() string { return "MUTATE_IDENTITY" }

func (m Mutator) Execute(_ context.Context, _ []byte) ([]byte, error) {
	if m.Record == nil {
		return nil, errors.New(errors.CodeMissingDependency, "mutator has no identity source", nil)
	}
	rec := m.Record()
	rec.Version = bumpPatch(rec.Version)
	rec.Tunables = m.jitter(rec.Tunables)
	if m.Grains != nil {
		rec.Grains = m.Grains()
	}
	return mustJSON(rec), nil
}

func (m Mutator) jitter(t Tunables) Tunables {
	fields := []*int{
		&t.TickIntervalMS, &t.SaveEvery, &t.HealEvery, &t.DigestEvery,
		&t.EvolveEvery, &t.EvolveGrains, &t.ExperienceCap, &t.DistillTopK,
	}
	for _, f := range fields {
		if m.roll() {
			*f = jitterInt(*f, m.Rand)
		}
	}
	return t
}

func (m Mutator) roll() bool {
	if m.JitterProb <= 0 {
		return false
	}
	if m.JitterProb >= 1 {
		return true
	}
	if m.Rand != nil {
		return m.Rand.Float64() < m.JitterProb
	}
	return rand.Float64() < m.JitterProb
}

// jitterInt nudges v by roughly ten percent, at least one, never below one.
func jitterInt(v int, r *rand.Rand) int {
	delta := v / 10
	if delta < 1 {
		delta = 1
	}
	up := true
	if r != nil {
		up = r.Intn(2) == 0
	} else {
		up = rand.Intn(2) == 0
	}
	if up {
		v += delta
	} else {
		v -= delta
	}
	if v < 1 {
		v = 1
	}
	return v
}

// bumpPatch increments the patch component of a vX.Y.Z version. Anything
// unparseable restarts at v0.0.1.
func bumpPatch(version string) string {
	v := strings.TrimPrefix(version, "v")
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return "v0.0.1"
	}
	major, errA := strconv.Atoi(parts[0])
	minor, errB := strconv.Atoi(parts[1])
	patch, errC := strconv.Atoi(parts[2])
	if errA != nil || errB != nil || errC != nil {
		return "v0.0.1"
	}
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch+1)
}
