package transform

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jllopis/gestalt/pkg/errors"
)

// Hooks gives built-in transforms contextual access to the hosting agent.
// Any field may be nil.
type Hooks struct {
	Journal  Reflector
	Tick     func() uint64
	Emotions func() map[string]float64
}

// Builtins returns the standard transform set.
func Builtins(h Hooks) []Transform {
	return []Transform{
		NoOp{},
		SHA256Sum{},
		HTTPGet{Timeout: 15 * time.Second},
		SystemProfile{Hooks: h},
		AuditJWT{},
	}
}

// NoOp returns its payload unchanged. Useful as a dispatch liveness probe.
type NoOp struct{}

func (NoOp) ID() string { return "NO_OP" }

func (NoOp) Execute(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

// SHA256Sum hashes the payload.
type SHA256Sum struct{}

func (SHA256Sum) ID() string { return "SHA256_SUM" }

func (SHA256Sum) Execute(_ context.Context, payload []byte) ([]byte, error) {
	sum := sha256.Sum256(payload)
	return mustJSON(map[string]string{"sha256": hex.EncodeToString(sum[:])}), nil
}

// HTTPGet fetches the URL given as payload.
type HTTPGet struct {
	Timeout time.Duration
}

func (HTTPGet) ID() string { return "HTTP_GET" }

func (t HTTPGet) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	url := strings.TrimSpace(string(payload))
	if url == "" {
		return nil, errors.New(errors.CodeInvalidInput, "empty url payload", nil)
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "bad url payload", err).
			WithContext("url", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeExternalFault, "http get failed", err).
			WithContext("url", url).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.New(errors.CodeExternalFault, "read http body", err).
			WithContext("url", url).
			WithRecoverable(true)
	}
	return mustJSON(map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	}), nil
}

// SystemProfile reports the host and process profile, plus agent liveness
// when hooks are wired.
type SystemProfile struct {
	Hooks Hooks
}

func (SystemProfile) ID() string { return "SYSTEM_PROFILE" }

func (t SystemProfile) Execute(_ context.Context, _ []byte) ([]byte, error) {
	hostname, _ := os.Hostname()
	profile := map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"pid":        os.Getpid(),
		"hostname":   hostname,
	}
	if t.Hooks.Tick != nil {
		profile["tick"] = t.Hooks.Tick()
	}
	if t.Hooks.Emotions != nil {
		profile["emotions"] = t.Hooks.Emotions()
	}
	return mustJSON(profile), nil
}

// AuditJWT inspects a JWT for the alg:none downgrade without verifying the
// signature. Payload is the raw token.
type AuditJWT struct{}

func (AuditJWT) ID() string { return "AUDIT_JWT" }

func (AuditJWT) Execute(_ context.Context, payload []byte) ([]byte, error) {
	token := strings.TrimSpace(string(payload))
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, errors.New(errors.CodeInvalidInput, "payload is not a jwt", nil)
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "jwt header not base64url", err)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "jwt header not json", err)
	}
	vulnerable := strings.EqualFold(header.Alg, "none")
	return mustJSON(map[string]any{
		"alg":        header.Alg,
		"vulnerable": vulnerable,
		"unsigned":   len(parts) < 3 || parts[2] == "",
	}), nil
}
