// Package integrity computes the identity fingerprint and manages the
// on-disk certificate that anchors tamper detection.
package integrity

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/state"
)

// CertFileName is the certificate artifact inside the working directory.
const CertFileName = "identity.cert"

// Surface is the identity surface covered by the fingerprint. Volatile
// state (emotions, tick, the current_time core key) is deliberately
// outside it so routine operation does not change the fingerprint.
type Surface struct {
	Identity   string
	Anchor     string
	Version    string
	Status     string
	Birth      time.Time
	State      state.Snapshot
	CoreMemory map[string]string
	Skills     []string
	Transforms []string
}

// Certificate is the persisted integrity record. Exactly one is
// authoritative per working directory; it is always replaced whole.
type Certificate struct {
	Timestamp   time.Time `json:"timestamp"`
	Identity    string    `json:"identity"`
	Anchor      string    `json:"anchor"`
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
}

// Fingerprint hashes the identity surface with SHA-512 over canonical JSON
// (sorted object keys, sorted name lists). Pure: equal surfaces always
// produce equal digests, and volatile fields never contribute.
func Fingerprint(s Surface) string {
	core := make(map[string]string, len(s.CoreMemory))
	for k, v := range s.CoreMemory {
		if state.VolatileCoreKeys[k] {
			continue
		}
		core[k] = v
	}

	payload := map[string]any{
		"identity":    s.Identity,
		"anchor":      s.Anchor,
		"version":     s.Version,
		"status":      s.Status,
		"birth":       s.Birth.UTC().Format(time.RFC3339Nano),
		"digest":      sortedCopy(s.State.Digest),
		"core_memory": core,
		"skills":      sortedCopy(s.Skills),
		"transforms":  sortedCopy(s.Transforms),
	}

	// encoding/json emits map keys in sorted order, which is the whole
	// canonicalization this digest needs.
	data, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable values could fail here, and the payload is
		// built from plain strings and slices.
		panic(err)
	}
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// WriteCertificate replaces the certificate atomically. Concurrent readers
// observe either the previous document or the new one.
func WriteCertificate(dir string, cert Certificate) error {
	data, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInternal, "marshal certificate", err)
	}
	path := filepath.Join(dir, CertFileName)
	if err := state.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.New(errors.CodeExternalFault, "persist certificate", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return nil
}

// ReadCertificate loads the persisted certificate.
func ReadCertificate(dir string) (Certificate, error) {
	path := filepath.Join(dir, CertFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Certificate{}, errors.New(errors.CodeIntegrityViolation, "certificate missing", err).
				WithContext("path", path).
				WithAttribute("violation", "missing_certificate").
				WithRecoverable(true)
		}
		return Certificate{}, errors.New(errors.CodeExternalFault, "read certificate", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	var cert Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return Certificate{}, errors.New(errors.CodeIntegrityViolation, "certificate corrupt", err).
			WithContext("path", path).
			WithAttribute("violation", "corrupt_certificate").
			WithRecoverable(true)
	}
	return cert, nil
}

// Verify recomputes the fingerprint of the live surface and compares it to
// the persisted certificate. Any divergence, including an absent or corrupt
// certificate, is an INTEGRITY_VIOLATION the caller heals from.
func Verify(dir string, s Surface) error {
	cert, err := ReadCertificate(dir)
	if err != nil {
		return err
	}
	live := Fingerprint(s)
	if cert.Fingerprint != live {
		return errors.New(errors.CodeIntegrityViolation, "fingerprint mismatch", nil).
			WithContext("certified", cert.Fingerprint).
			WithContext("live", live).
			WithAttribute("violation", "fingerprint_mismatch").
			WithRecoverable(true)
	}
	return nil
}
