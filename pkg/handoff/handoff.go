// Package handoff implements generation handoff: packaging the inheritable
// state of a running agent, persisting it atomically, spawning a successor
// process, and consuming the package on the successor side.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/journal"
	"github.com/jllopis/gestalt/pkg/knowledge"
	"github.com/jllopis/gestalt/pkg/state"
)

// Package is the inheritable snapshot one generation leaves for the next.
// HealDepth is already incremented for the successor; the successor's own
// generation id is never part of the package.
type Package struct {
	CreatedAt      time.Time                    `json:"created_at"`
	Predecessor    string                       `json:"predecessor"`
	PredecessorPID int                          `json:"predecessor_pid"`
	Identity       string                       `json:"identity"`
	Anchor         string                       `json:"anchor"`
	Version        string                       `json:"version"`
	SourcePath     string                       `json:"source_path"`
	HealDepth      int                          `json:"heal_depth"`
	State          state.Snapshot               `json:"state"`
	CoreMemory     map[string]string            `json:"core_memory"`
	Journal        []journal.Record             `json:"journal,omitempty"`
	Experiences    []knowledge.Experience       `json:"experiences,omitempty"`
	Concepts       map[string]knowledge.Concept `json:"concepts,omitempty"`
	Grains         []string                     `json:"grains,omitempty"`
}

// Clone returns an alias-free deep copy. The predecessor keeps mutating its
// live state after packaging; the written artifact must not see that.
func (p Package) Clone() Package {
	out := p

	out.State.Emotions = make(map[string]float64, len(p.State.Emotions))
	for k, v := range p.State.Emotions {
		out.State.Emotions[k] = v
	}
	out.State.Digest = append([]string(nil), p.State.Digest...)

	out.CoreMemory = make(map[string]string, len(p.CoreMemory))
	for k, v := range p.CoreMemory {
		out.CoreMemory[k] = v
	}

	out.Journal = append([]journal.Record(nil), p.Journal...)
	out.Grains = append([]string(nil), p.Grains...)

	out.Experiences = make([]knowledge.Experience, len(p.Experiences))
	for i, exp := range p.Experiences {
		out.Experiences[i] = exp
		out.Experiences[i].Meta = make(map[string]string, len(exp.Meta))
		for k, v := range exp.Meta {
			out.Experiences[i].Meta[k] = v
		}
	}

	out.Concepts = make(map[string]knowledge.Concept, len(p.Concepts))
	for k, v := range p.Concepts {
		out.Concepts[k] = v
	}
	return out
}

// Write persists the package to handoff_<pid>_<uuid>.json inside dir via
// temp-write-rename and returns the artifact path.
func Write(dir string, p Package) (string, error) {
	data, err := json.MarshalIndent(p.Clone(), "", "  ")
	if err != nil {
		return "", errors.New(errors.CodeInternal, "marshal handoff package", err)
	}
	name := fmt.Sprintf("handoff_%d_%s.json", os.Getpid(), uuid.NewString())
	path := filepath.Join(dir, name)
	if err := state.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", errors.New(errors.CodeExternalFault, "persist handoff package", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return path, nil
}

// Spawn starts the successor binary detached, pointing it at the handoff
// artifact. It does not wait: once Start succeeds the handoff is
// irrevocable. A launch failure aborts only this evolution attempt.
func Spawn(ctx context.Context, bin, handoffPath string, extraArgs ...string) (int, error) {
	args := append([]string{"--handoff", handoffPath}, extraArgs...)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, errors.New(errors.CodeExternalFault, "spawn successor", err).
			WithContext("binary", bin).
			WithRecoverable(true)
	}
	pid := cmd.Process.Pid
	// Release so the successor outlives us; we never reap it.
	if err := cmd.Process.Release(); err != nil {
		return pid, errors.New(errors.CodeExternalFault, "release successor", err).
			WithContext("pid", pid).
			WithRecoverable(true)
	}
	return pid, nil
}

// Consume reads a handoff package and deletes the artifact, enforcing the
// read-once contract. Missing or corrupt artifacts are recoverable: the
// caller boots fresh and reports the anomaly.
func Consume(path string) (Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Package{}, errors.New(errors.CodeNotFound, "handoff package missing", err).
				WithContext("path", path).
				WithRecoverable(true)
		}
		return Package{}, errors.New(errors.CodeExternalFault, "read handoff package", err).
			WithContext("path", path).
			WithRecoverable(true)
	}

	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		// Remove the corrupt artifact so it is not retried forever.
		os.Remove(path)
		return Package{}, errors.New(errors.CodeInvalidInput, "corrupt handoff package", err).
			WithContext("path", path).
			WithRecoverable(true)
	}

	if err := os.Remove(path); err != nil {
		return p, errors.New(errors.CodeExternalFault, "delete consumed handoff package", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return p, nil
}

// FindUnconsumed lists handoff artifacts left in dir. A leftover package is
// an anomaly worth journaling, not an error.
func FindUnconsumed(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "handoff_*.json"))
	if err != nil {
		return nil
	}
	return matches
}
