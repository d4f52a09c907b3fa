// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	gerrors "github.com/jllopis/gestalt/pkg/errors"
)

func TestConfigureSlogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")

	logger.Info("should be filtered")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("info record leaked past warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn record missing")
	}
}

func TestConfigureSlogTextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "not-a-format")
	logger.Debug("hello", slog.String("k", "v"))
	if !strings.Contains(buf.String(), "hello") {
		t.Error("debug record missing with text fallback handler")
	}
}

func TestInitNoneExporter(t *testing.T) {
	shutdown, err := InitWithConfig("gestalt-test", "v0.0.0", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("gestalt-test", "v0.0.0", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("gestalt-test", "v0.0.0", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error when otlp endpoint is empty")
	}
}

func TestCoreMetricsNilSafe(t *testing.T) {
	var cm *CoreMetrics
	ctx := context.Background()
	// All recorders must tolerate a nil receiver; the core treats metrics
	// as best-effort.
	cm.RecordTick(ctx)
	cm.RecordDispatch(ctx, "NO_OP", nil)
	cm.RecordInvocation(ctx, "evolve_self", gerrors.New(gerrors.CodeNotFound, "missing", nil))
	cm.RecordEvictions(ctx, 3)
	cm.RecordHeal(ctx, "manual")
	cm.RecordEvolution(ctx, nil)
	cm.RecordHeartbeatFailure(ctx)
}

func TestOutcomeOf(t *testing.T) {
	if got := outcomeOf(nil); got != "ok" {
		t.Errorf("expected ok, got %s", got)
	}
	err := gerrors.New(gerrors.CodeMissingBinary, "msfconsole not found", nil)
	if got := outcomeOf(err); got != "MISSING_BINARY" {
		t.Errorf("expected MISSING_BINARY, got %s", got)
	}
}
