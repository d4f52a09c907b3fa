package state

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/knowledge"
)

// Dump is the whole-document memory image written to memory.json. It is
// also the inheritable half of a handoff package.
type Dump struct {
	Timestamp   time.Time                    `json:"timestamp"`
	Identity    string                       `json:"identity"`
	Anchor      string                       `json:"anchor"`
	Version     string                       `json:"version"`
	State       Snapshot                     `json:"state"`
	CoreMemory  map[string]string            `json:"core_memory"`
	Fingerprint string                       `json:"fingerprint"`
	Skills      []string                     `json:"skills"`
	Experiences []knowledge.Experience       `json:"experiences,omitempty"`
	Concepts    map[string]knowledge.Concept `json:"concepts,omitempty"`
	Grains      []string                     `json:"grains,omitempty"`
}

// SaveDump writes the dump as indented JSON via temp-write-rename.
func SaveDump(path string, d Dump) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInternal, "marshal memory dump", err)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.New(errors.CodeExternalFault, "persist memory dump", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return nil
}

// LoadDump reads a memory dump. A missing file is a recoverable NOT_FOUND;
// a corrupt one a recoverable INVALID_INPUT — boot proceeds fresh either way.
func LoadDump(path string) (Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Dump{}, errors.New(errors.CodeNotFound, "no memory dump", err).
				WithContext("path", path).
				WithRecoverable(true)
		}
		return Dump{}, errors.New(errors.CodeExternalFault, "read memory dump", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Dump{}, errors.New(errors.CodeInvalidInput, "corrupt memory dump", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return d, nil
}

// SaveTick persists the tick counter as plain integer text.
func SaveTick(path string, tick uint64) error {
	data := []byte(strconv.FormatUint(tick, 10))
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.New(errors.CodeExternalFault, "persist tick counter", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return nil
}

// LoadTick reads the tick counter. Missing or unreadable counters resolve
// to zero; only a present-but-corrupt file is reported, and even then the
// caller restarts from zero.
func LoadTick(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.New(errors.CodeExternalFault, "read tick counter", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	tick, err := strconv.ParseUint(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return 0, errors.New(errors.CodeInvalidInput, "corrupt tick counter", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return tick, nil
}
