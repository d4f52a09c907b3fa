package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/journal"
)

type fakeJournal struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeJournal) Reflect(_ context.Context, event string, _ map[string]any) journal.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return journal.Record{Event: event}
}

func (f *fakeJournal) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestRegisterLastWriteWins(t *testing.T) {
	var lastNames []string
	r := New(nil, func(names []string) { lastNames = names })

	first := func(ctx context.Context, args map[string]any) (any, error) { return "first", nil }
	second := func(ctx context.Context, args map[string]any) (any, error) { return "second", nil }

	if replaced := r.Register("echo", first, "builtin"); replaced {
		t.Error("first registration reported as replacement")
	}
	if replaced := r.Register("echo", second, "builtin"); !replaced {
		t.Error("second registration not reported as replacement")
	}

	res := <-r.InvokeAsync(context.Background(), "echo", nil).Done
	if res.Value != "second" {
		t.Errorf("expected last binding to win, got %v", res.Value)
	}
	if len(lastNames) != 1 || lastNames[0] != "echo" {
		t.Errorf("onChange names = %v", lastNames)
	}
}

func TestInvokeUnknownIsNotFound(t *testing.T) {
	r := New(nil, nil)
	ack := r.InvokeAsync(context.Background(), "ghost", nil)

	if ack.Accepted {
		t.Error("unknown skill must not be accepted")
	}
	if errors.CodeOf(ack.Err) != errors.CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", ack.Err)
	}
	res := <-ack.Done
	if errors.CodeOf(res.Err) != errors.CodeNotFound {
		t.Errorf("result should carry NOT_FOUND, got %v", res.Err)
	}
}

func TestInvokeAcknowledgesBeforeCompletion(t *testing.T) {
	r := New(nil, nil)
	release := make(chan struct{})
	r.Register("slow", func(ctx context.Context, args map[string]any) (any, error) {
		<-release
		return "done", nil
	}, "builtin")

	start := time.Now()
	ack := r.InvokeAsync(context.Background(), "slow", nil)
	if !ack.Accepted {
		t.Fatal("known skill not accepted")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("acknowledgement waited on the invocable")
	}

	close(release)
	res := <-ack.Done
	if res.Value != "done" || res.Err != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestInvokePanicIsRecovered(t *testing.T) {
	fj := &fakeJournal{}
	r := New(fj, nil)
	r.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("invocable exploded")
	}, "builtin")

	res := <-r.InvokeAsync(context.Background(), "boom", nil).Done
	if errors.CodeOf(res.Err) != errors.CodeInternal {
		t.Errorf("expected recovered INTERNAL error, got %v", res.Err)
	}
	if !fj.has("SKILL_PANIC") {
		t.Error("panic not journaled")
	}
}

func writeManifest(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const echoManifest = `---
name: echo-caps
description: Echoes a fixed greeting for loader tests.
command: echo hello
---

Runs /bin/echo.
`

func TestLoadFileValidation(t *testing.T) {
	root := t.TempDir()

	cases := map[string]string{
		"name mismatch": `---
name: other-name
description: Valid description.
command: echo hi
---
body`,
		"missing description": `---
name: echo-caps
command: echo hi
---
body`,
		"missing command": `---
name: echo-caps
description: Valid description.
---
body`,
		"bad name casing": `---
name: Echo_Caps
description: Valid description.
command: echo hi
---
body`,
	}
	for label, content := range cases {
		writeManifest(t, root, "echo-caps", content)
		_, err := LoadFile(filepath.Join(root, "echo-caps", "SKILL.md"))
		if errors.CodeOf(err) != errors.CodeInvalidInput {
			t.Errorf("%s: expected INVALID_INPUT, got %v", label, err)
		}
	}

	writeManifest(t, root, "echo-caps", echoManifest)
	m, err := LoadFile(filepath.Join(root, "echo-caps", "SKILL.md"))
	if err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
	if m.Command != "echo hello" || m.Body == "" {
		t.Errorf("manifest fields lost: %+v", m)
	}
}

func TestLoadManifestsGatedByDefault(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "echo-caps", echoManifest)

	r := New(nil, nil)
	n, err := r.LoadManifests(root, false, time.Minute)
	if err != nil || n != 0 {
		t.Errorf("disabled loader must be a no-op, got n=%d err=%v", n, err)
	}
	if r.Len() != 0 {
		t.Error("skills registered despite allow_external=false")
	}
}

func TestLoadManifestsRunsSubprocess(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "echo-caps", echoManifest)

	r := New(&fakeJournal{}, nil)
	n, err := r.LoadManifests(root, true, time.Minute)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 manifest, got %d", n)
	}

	res := <-r.InvokeAsync(context.Background(), "echo-caps", nil).Done
	if res.Err != nil {
		t.Fatalf("invoke: %v", res.Err)
	}
	if res.Value != "hello" {
		t.Errorf("expected subprocess output, got %v", res.Value)
	}
}

func TestSubprocessKilledAtTimeout(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "slow-touch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Sleeps past the deadline, then leaves a marker. If the timeout kills
	// the child, the marker never appears.
	script := "sleep 1\ntouch marker\n"
	if err := os.WriteFile(filepath.Join(dir, "slow.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, root, "slow-touch", `---
name: slow-touch
description: Sleeps past its deadline for timeout tests.
command: /bin/sh slow.sh
---
body`)

	r := New(&fakeJournal{}, nil)
	if _, err := r.LoadManifests(root, true, 100*time.Millisecond); err != nil {
		t.Fatalf("load: %v", err)
	}

	res := <-r.InvokeAsync(context.Background(), "slow-touch", nil).Done
	if errors.CodeOf(res.Err) != errors.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", res.Err)
	}

	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(filepath.Join(dir, "marker")); !os.IsNotExist(err) {
		t.Errorf("subprocess survived the deadline: %v", err)
	}
}

func TestLoadManifestsMissingDirIsEmpty(t *testing.T) {
	r := New(nil, nil)
	n, err := r.LoadManifests(filepath.Join(t.TempDir(), "absent"), true, time.Minute)
	if err != nil || n != 0 {
		t.Errorf("missing skills dir should load nothing, got n=%d err=%v", n, err)
	}
}
