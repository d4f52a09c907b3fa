package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/resilience"
)

// Manifest describes an externally provided capability: a SKILL.md file
// whose frontmatter declares the command to run. Manifests never inject
// in-process code; the declared command runs as a bounded subprocess.
type Manifest struct {
	Name        string
	Description string
	License     string
	Command     string
	Metadata    map[string]string
	Body        string
	Path        string
	Dir         string
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir scans root for skill subdirectories containing SKILL.md.
func LoadDir(root string) ([]Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.CodeExternalFault, "scan skills dir", err).
			WithContext("dir", root)
	}
	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), "SKILL.md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadFile parses and validates a single SKILL.md manifest.
func LoadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.New(errors.CodeExternalFault, "read manifest", err).
			WithContext("path", path)
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return Manifest{}, errors.New(errors.CodeInvalidInput, err.Error(), nil).
			WithContext("path", path)
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return Manifest{}, errors.New(errors.CodeInvalidInput, "parse frontmatter", err).
			WithContext("path", path)
	}
	m := Manifest{
		Name:        parsed.Name,
		Description: parsed.Description,
		License:     parsed.License,
		Command:     parsed.Command,
		Metadata:    parsed.Metadata,
		Body:        strings.TrimSpace(body),
		Path:        path,
		Dir:         filepath.Dir(path),
	}
	if err := validate(m); err != nil {
		return Manifest{}, errors.New(errors.CodeInvalidInput, err.Error(), nil).
			WithContext("path", path)
	}
	return m, nil
}

type frontmatter struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	License     string            `yaml:"license"`
	Command     string            `yaml:"command"`
	Metadata    map[string]string `yaml:"metadata"`
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", fmt.Errorf("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validate(m Manifest) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(m.Dir); dirName != name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	desc := strings.TrimSpace(m.Description)
	if desc == "" {
		return fmt.Errorf("description is required")
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if strings.TrimSpace(m.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// LoadManifests loads all manifests under root and registers one
// subprocess-backed invocable per manifest. It does nothing unless
// allowExternal is true: external capabilities are an explicit opt-in
// trust boundary. Returns the number registered.
func (r *Registry) LoadManifests(root string, allowExternal bool, cmdTimeout time.Duration) (int, error) {
	if !allowExternal {
		r.logger.Debug("external skills disabled, skipping manifest scan", "dir", root)
		return 0, nil
	}
	manifests, err := LoadDir(root)
	if err != nil {
		return 0, err
	}
	for _, m := range manifests {
		r.Register(m.Name, commandInvocable(m, cmdTimeout), "manifest")
	}
	return len(manifests), nil
}

// commandInvocable wraps a manifest's declared command as a subprocess with
// a hard timeout. Invocation args are passed as JSON on stdin; stdout is
// the result value.
func commandInvocable(m Manifest, timeout time.Duration) Invocable {
	fields := strings.Fields(m.Command)
	return func(ctx context.Context, args map[string]any) (any, error) {
		bin, err := exec.LookPath(fields[0])
		if err != nil {
			return nil, errors.New(errors.CodeMissingBinary, "skill command not found", err).
				WithContext("name", m.Name).
				WithContext("command", fields[0]).
				WithRecoverable(true)
		}

		var stdin []byte
		if len(args) > 0 {
			stdin, err = json.Marshal(args)
			if err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "marshal skill args", err).
					WithContext("name", m.Name)
			}
		}

		// The bounded context goes to CommandContext so the subprocess is
		// killed when the deadline fires, not just abandoned.
		out, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: timeout}, func(ctx context.Context) ([]byte, error) {
			cmd := exec.CommandContext(ctx, bin, fields[1:]...)
			cmd.Dir = m.Dir
			if stdin != nil {
				cmd.Stdin = strings.NewReader(string(stdin))
			}
			output, runErr := cmd.Output()
			if runErr != nil {
				return nil, errors.New(errors.CodeExternalFault, "skill command failed", runErr).
					WithContext("name", m.Name).
					WithRecoverable(true)
			}
			return output, nil
		})
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(string(out)), nil
	}
}
