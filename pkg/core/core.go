// Package core hosts the AgentCore: the boot state machine, the tick loop,
// bounded self-heal, evolution into a successor process, and the command
// surface the CLI and listener drive.
package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/gestalt/pkg/config"
	"github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/handoff"
	"github.com/jllopis/gestalt/pkg/integrity"
	"github.com/jllopis/gestalt/pkg/journal"
	"github.com/jllopis/gestalt/pkg/knowledge"
	"github.com/jllopis/gestalt/pkg/registry"
	"github.com/jllopis/gestalt/pkg/state"
	"github.com/jllopis/gestalt/pkg/telemetry"
	"github.com/jllopis/gestalt/pkg/transform"
)

// Phase is the boot/lifecycle state of the core.
type Phase string

const (
	PhaseBooting    Phase = "booting"
	PhaseVerifying  Phase = "verifying"
	PhaseHealing    Phase = "healing"
	PhaseReady      Phase = "ready"
	PhaseEvolving   Phase = "evolving"
	PhaseTerminated Phase = "terminated"
)

// statusLabel is the persistent identity status stamped into the
// certificate. It is part of the fingerprint surface, so it stays fixed
// for the life of an identity rather than tracking the phase.
const statusLabel = "awake"

// Artifact names inside the working directory.
const (
	memoryFile = "memory.json"
	tickFile   = "tick.count"
)

// Generation identifies one process incarnation. HealDepth is carried here,
// never in process-global state: a fresh top-level boot starts at zero, a
// successor inherits its predecessor's depth plus one.
type Generation struct {
	ID          string    `json:"id"`
	Birth       time.Time `json:"birth"`
	HealDepth   int       `json:"heal_depth"`
	Predecessor string    `json:"predecessor,omitempty"`
}

// SpawnFunc launches a successor binary. Injectable for tests.
type SpawnFunc func(ctx context.Context, bin, handoffPath string, extraArgs ...string) (int, error)

// AgentCore ties the runtime together.
type AgentCore struct {
	cfg      *config.Config
	state    *state.AgentState
	store    *knowledge.Store
	ledger   *knowledge.Ledger
	registry *registry.Registry
	gateway  *transform.Gateway
	journal  *journal.Journal
	metrics  *telemetry.CoreMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	gen     Generation
	phase   Phase
	version string
	grains  []string
	booted  bool

	workdir  string
	binPath  string
	exit     func(int)
	spawn    SpawnFunc
	listener listener

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures an AgentCore.
type Option func(*AgentCore)

// WithJournal sets the event journal.
func WithJournal(j *journal.Journal) Option {
	return func(c *AgentCore) { c.journal = j }
}

// WithMetrics sets the runtime metrics set.
func WithMetrics(m *telemetry.CoreMetrics) Option {
	return func(c *AgentCore) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *AgentCore) { c.logger = l }
}

// WithBinary sets the successor binary path (defaults to os.Executable).
func WithBinary(path string) Option {
	return func(c *AgentCore) { c.binPath = path }
}

// WithExit overrides the fatal-exit hook.
func WithExit(fn func(int)) Option {
	return func(c *AgentCore) { c.exit = fn }
}

// WithSpawn overrides the successor spawn function.
func WithSpawn(fn SpawnFunc) Option {
	return func(c *AgentCore) { c.spawn = fn }
}

// New assembles an AgentCore around cfg. The working directory must exist.
func New(cfg *config.Config, opts ...Option) *AgentCore {
	c := &AgentCore{
		cfg:     cfg,
		state:   state.New(),
		store:   knowledge.NewStore(cfg.Knowledge.ExperienceCap),
		ledger:  knowledge.NewLedger(),
		logger:  slog.Default(),
		phase:   PhaseBooting,
		version: cfg.Identity.Version,
		workdir: cfg.WorkDir,
		exit:    os.Exit,
		spawn:   handoff.Spawn,
		stopCh:  make(chan struct{}),
		gen: Generation{
			ID:    uuid.NewString(),
			Birth: time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.binPath == "" {
		if bin, err := os.Executable(); err == nil {
			c.binPath = bin
		}
	}

	c.registry = registry.New(c.journal, c.onSkillsChanged)
	c.gateway = transform.NewGateway(c.journal)
	for _, t := range transform.Builtins(transform.Hooks{
		Journal:  c.journal,
		Tick:     c.state.Tick,
		Emotions: c.state.Emotions,
	}) {
		c.gateway.Register(t)
	}
	c.gateway.Register(transform.Mutator{
		Record:     c.identityRecord,
		Grains:     c.Grains,
		JitterProb: 0.2,
	})
	return c
}

// Boot runs the startup sequence: resume persisted state, consume a handoff
// package when given, load external skills, then verify integrity and heal
// if the surface diverged from the certificate.
func (c *AgentCore) Boot(ctx context.Context, handoffPath string) error {
	c.setPhase(PhaseBooting)
	c.reflect(ctx, "BOOT", map[string]any{
		"generation": c.gen.ID,
		"pid":        os.Getpid(),
	})

	c.resume(ctx)
	inherited := false
	if handoffPath != "" {
		inherited = c.consumeHandoff(ctx, handoffPath)
	}
	for _, leftover := range handoff.FindUnconsumed(c.workdir) {
		c.reflect(ctx, "HANDOFF_ANOMALY", map[string]any{
			"path":   leftover,
			"reason": "unconsumed package",
		})
	}

	// Birth anchors the fingerprint; it survives restarts through core
	// memory and is inherited across handoff.
	if birth, ok := c.state.Core("birth"); ok {
		if t, err := time.Parse(time.RFC3339Nano, birth); err == nil {
			c.mu.Lock()
			c.gen.Birth = t
			c.mu.Unlock()
		}
	} else {
		c.state.SetCore("birth", c.gen.Birth.Format(time.RFC3339Nano))
	}

	if c.cfg.Skills.Dir != "" {
		n, err := c.registry.LoadManifests(c.cfg.Skills.Dir, c.cfg.Skills.AllowExternal, c.cfg.Skills.CommandTimeout)
		if err != nil {
			c.logger.Warn("skill manifest loading failed", "error", err)
			c.reflect(ctx, "SKILLS_LOAD_FAILED", map[string]any{"error": err.Error()})
		} else if n > 0 {
			c.logger.Info("external skills loaded", "count", n)
		}
	}

	c.mu.Lock()
	c.booted = true
	c.mu.Unlock()

	c.setPhase(PhaseVerifying)
	if inherited {
		// The merged surface differs from the predecessor's certificate by
		// construction (bumped version, embedded identity record): an
		// expected identity change, not tampering. Re-anchor before
		// verification so heal depth is spent only on genuine violations.
		if err := c.writeCertificate(); err != nil {
			return err
		}
		c.reflect(ctx, "CERT_REANCHORED", map[string]any{
			"predecessor": c.Generation().Predecessor,
			"version":     c.Version(),
		})
	}
	if err := integrity.Verify(c.workdir, c.surface()); err != nil {
		ge := errors.AsGestaltError(err)
		c.reflect(ctx, "TAMPER_DETECTED", map[string]any{
			"violation": ge.Attributes["violation"],
			"error":     ge.Error(),
		})
		if healErr := c.selfHeal(ctx, ge.Attributes["violation"]); healErr != nil {
			return healErr
		}
	}

	c.setPhase(PhaseReady)
	if err := c.writeCertificate(); err != nil {
		return err
	}
	c.reflect(ctx, "READY", map[string]any{
		"version":    c.Version(),
		"heal_depth": c.Generation().HealDepth,
		"skills":     c.registry.Len(),
	})
	return nil
}

// resume restores tick counter and memory dump from the working directory.
// Both are best-effort: anything missing or corrupt starts fresh.
func (c *AgentCore) resume(ctx context.Context) {
	tick, err := state.LoadTick(c.tickPath())
	if err != nil {
		c.reflect(ctx, "RESUME_ANOMALY", map[string]any{"artifact": tickFile, "error": err.Error()})
	}
	c.state.SetTick(tick)

	dump, err := state.LoadDump(c.memoryPath())
	if err != nil {
		if errors.CodeOf(err) != errors.CodeNotFound {
			c.reflect(ctx, "RESUME_ANOMALY", map[string]any{"artifact": memoryFile, "error": err.Error()})
		}
		return
	}
	c.state.Restore(dump.State)
	c.state.MergeCore(dump.CoreMemory)
	c.store.Seed(dump.Experiences)
	c.ledger.Merge(dump.Concepts)
	c.mu.Lock()
	if dump.Version != "" {
		c.version = dump.Version
	}
	c.grains = append([]string(nil), dump.Grains...)
	c.mu.Unlock()
	if c.journal != nil {
		c.journal.SetVersion(dump.Version)
	}
	c.reflect(ctx, "RESUMED", map[string]any{"tick": c.state.Tick(), "version": dump.Version})
}

// consumeHandoff merges a predecessor's package: inherited values overlay
// the fresh defaults, but this generation's own ID is never overwritten.
// Reports whether a package was actually consumed.
func (c *AgentCore) consumeHandoff(ctx context.Context, path string) bool {
	pkg, err := handoff.Consume(path)
	if err != nil {
		c.reflect(ctx, "HANDOFF_ANOMALY", map[string]any{"path": path, "error": err.Error()})
		return false
	}

	c.state.Restore(pkg.State)
	c.state.MergeCore(pkg.CoreMemory)
	c.store.Seed(pkg.Experiences)
	c.ledger.Merge(pkg.Concepts)
	if malformed := c.ledger.SeedGrains(pkg.Grains, time.Now()); len(malformed) > 0 {
		c.reflect(ctx, "HANDOFF_ANOMALY", map[string]any{"path": path, "malformed_grains": malformed})
	}
	if c.journal != nil {
		c.journal.Seed(pkg.Journal)
		c.journal.SetVersion(pkg.Version)
	}

	c.mu.Lock()
	c.gen.HealDepth = pkg.HealDepth
	c.gen.Predecessor = pkg.Predecessor
	if pkg.Version != "" {
		c.version = pkg.Version
	}
	c.grains = append([]string(nil), pkg.Grains...)
	c.mu.Unlock()

	c.reflect(ctx, "HANDOFF_CONSUMED", map[string]any{
		"predecessor": pkg.Predecessor,
		"version":     pkg.Version,
		"heal_depth":  pkg.HealDepth,
		"tick":        pkg.State.Tick,
	})
	return true
}

// Run drives the tick loop until the context is canceled or Stop is called.
// The heartbeat notifier and the inbound listener run on their own
// goroutines when enabled.
func (c *AgentCore) Run(ctx context.Context) error {
	if c.Phase() != PhaseReady {
		return errors.New(errors.CodeInternal, "core not ready", nil).
			WithContext("phase", string(c.Phase()))
	}

	if c.cfg.Heartbeat.Enabled {
		c.wg.Add(1)
		go c.heartbeatLoop(ctx)
	}
	if c.cfg.Listener.Enabled {
		if err := c.startListener(ctx); err != nil {
			c.logger.Error("listener failed to start", "error", err)
			c.reflect(ctx, "LISTENER_FAILED", map[string]any{"error": err.Error()})
		}
	}

	interval := c.cfg.Loop.TickInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(context.Background())
			return ctx.Err()
		case <-c.stopCh:
			c.shutdown(context.Background())
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick is one loop iteration: advance the counter, learn from the trailing
// window, and fire the periodic cadences.
func (c *AgentCore) tick(ctx context.Context) {
	n := c.state.IncrementTick()
	c.metrics.RecordTick(ctx)
	c.state.SetCore("current_time", time.Now().UTC().Format(time.RFC3339Nano))

	c.ledger.Learn(c.store.Recent(c.cfg.Knowledge.LearnWindow))

	if every := c.cfg.Loop.SaveEvery; every > 0 && n%every == 0 {
		c.persist(ctx)
	}
	if every := c.cfg.Loop.HealEvery; every > 0 && n%every == 0 {
		if err := integrity.Verify(c.workdir, c.surface()); err != nil {
			ge := errors.AsGestaltError(err)
			c.reflect(ctx, "TAMPER_DETECTED", map[string]any{
				"tick":      n,
				"violation": ge.Attributes["violation"],
			})
			if healErr := c.selfHeal(ctx, ge.Attributes["violation"]); healErr != nil {
				return
			}
			c.setPhase(PhaseReady)
		}
	}
	if every := c.cfg.Loop.DigestEvery; every > 0 && n%every == 0 {
		c.digest(ctx)
	}
	if every := c.cfg.Loop.EvolveEvery; every > 0 && n%every == 0 {
		if len(c.Grains()) >= c.cfg.Loop.EvolveGrains {
			if err := c.Evolve(ctx); err != nil {
				c.logger.Warn("evolution attempt aborted", "error", err)
			}
		}
	}
}

// digest distills the ledger into grains and nudges curiosity down: fresh
// knowledge has just been compacted.
func (c *AgentCore) digest(ctx context.Context) {
	grains, pruned := c.ledger.Digest(time.Now(), c.cfg.Knowledge.PruneHorizon, c.cfg.Knowledge.DistillTopK)
	c.mu.Lock()
	c.grains = grains
	c.mu.Unlock()
	c.state.AdjustEmotion("curiosity", -0.02)
	c.reflect(ctx, "DIGEST", map[string]any{
		"grains": len(grains),
		"pruned": pruned,
	})
}

// persist writes the tick counter and the memory dump.
func (c *AgentCore) persist(ctx context.Context) {
	if err := state.SaveTick(c.tickPath(), c.state.Tick()); err != nil {
		c.logger.Warn("tick persist failed", "error", err)
	}
	dump := state.Dump{
		Timestamp:   time.Now().UTC(),
		Identity:    c.cfg.Identity.Name,
		Anchor:      c.cfg.Identity.Anchor,
		Version:     c.Version(),
		State:       c.state.Snapshot(),
		CoreMemory:  c.state.CoreMemory(),
		Fingerprint: integrity.Fingerprint(c.surface()),
		Skills:      c.registry.Names(),
		Experiences: c.store.All(),
		Concepts:    c.ledger.Snapshot(),
		Grains:      c.Grains(),
	}
	if err := state.SaveDump(c.memoryPath(), dump); err != nil {
		c.logger.Warn("memory persist failed", "error", err)
		c.reflect(ctx, "PERSIST_FAILED", map[string]any{"error": err.Error()})
	}
}

// selfHeal is the bounded correction pass. Depth beyond the ceiling is
// fatal: journal the violation, exit non-zero, spawn nothing.
func (c *AgentCore) selfHeal(ctx context.Context, trigger string) error {
	c.setPhase(PhaseHealing)
	c.metrics.RecordHeal(ctx, trigger)

	c.mu.Lock()
	depth := c.gen.HealDepth
	ceiling := c.cfg.Integrity.HealCeiling
	if depth >= ceiling {
		c.mu.Unlock()
		err := errors.New(errors.CodeRecursionExceeded, "heal depth ceiling exceeded", nil).
			WithContext("depth", depth).
			WithContext("ceiling", ceiling)
		c.reflect(ctx, "RECURSION_EXCEEDED", map[string]any{"depth": depth, "ceiling": ceiling})
		c.logger.Error("heal depth ceiling exceeded, terminating", "depth", depth, "ceiling", ceiling)
		c.setPhase(PhaseTerminated)
		c.exit(1)
		return err
	}
	c.gen.HealDepth++
	depth = c.gen.HealDepth
	c.mu.Unlock()

	c.reflect(ctx, "SELF_HEAL", map[string]any{"trigger": trigger, "depth": depth})
	c.logger.Warn("self-heal pass", "trigger", trigger, "depth", depth)

	// Healing re-anchors the certificate to the live surface and re-persists
	// the canonical artifacts.
	if err := c.writeCertificate(); err != nil {
		return err
	}
	c.persist(ctx)

	if err := integrity.Verify(c.workdir, c.surface()); err != nil {
		// Still diverging after a rewrite: recurse, bounded by the ceiling.
		if nested := c.selfHeal(ctx, "post_heal_verify"); nested != nil {
			return nested
		}
	}

	// The surface verifies again: release this frame's depth. The ceiling
	// bounds nested passes within one heal episode, not the lifetime count
	// of corrections.
	c.mu.Lock()
	c.gen.HealDepth--
	c.mu.Unlock()
	return nil
}

// TriggerHeal runs a manual heal pass.
func (c *AgentCore) TriggerHeal(ctx context.Context) error {
	err := c.selfHeal(ctx, "manual")
	if err == nil {
		c.setPhase(PhaseReady)
	}
	return err
}

// Evolve mutates the identity record, packages the inheritable state, and
// spawns a successor. A packaging or spawn failure aborts only this
// attempt; once the successor is launched the decision is irrevocable and
// this generation stops.
func (c *AgentCore) Evolve(ctx context.Context) error {
	c.setPhase(PhaseEvolving)
	c.reflect(ctx, "EVOLVE_BEGIN", map[string]any{"generation": c.gen.ID})

	mutated, merr := c.gateway.Dispatch(ctx, "MUTATE_IDENTITY", nil)
	var rec transform.IdentityRecord
	if merr == nil {
		merr = json.Unmarshal(mutated, &rec)
	}
	if merr != nil || rec.Name == "" {
		err := errors.New(errors.CodeExternalFault, "mutation produced no identity record", merr).
			WithRecoverable(true)
		c.abortEvolution(ctx, err)
		return err
	}

	core := c.state.CoreMemory()
	core["identity_record"] = string(mutated)

	pkg := handoff.Package{
		CreatedAt:      time.Now().UTC(),
		Predecessor:    c.gen.ID,
		PredecessorPID: os.Getpid(),
		Identity:       rec.Name,
		Anchor:         rec.Anchor,
		Version:        rec.Version,
		SourcePath:     c.binPath,
		HealDepth:      c.Generation().HealDepth + 1,
		State:          c.state.Snapshot(),
		CoreMemory:     core,
		Experiences:    c.store.All(),
		Concepts:       c.ledger.Snapshot(),
		Grains:         rec.Grains,
	}
	if c.journal != nil {
		pkg.Journal = c.journal.Recent()
	}

	path, err := handoff.Write(c.workdir, pkg)
	if err != nil {
		c.abortEvolution(ctx, err)
		return err
	}
	pid, err := c.spawn(ctx, c.binPath, path)
	if err != nil {
		os.Remove(path)
		c.abortEvolution(ctx, err)
		return err
	}

	c.metrics.RecordEvolution(ctx, nil)
	c.reflect(ctx, "EVOLVE_SPAWNED", map[string]any{
		"successor_pid": pid,
		"version":       rec.Version,
		"package":       path,
	})
	c.logger.Info("successor spawned, terminating this generation",
		"pid", pid, "version", rec.Version)
	c.setPhase(PhaseTerminated)
	c.Stop()
	return nil
}

func (c *AgentCore) abortEvolution(ctx context.Context, err error) {
	c.metrics.RecordEvolution(ctx, err)
	c.reflect(ctx, "EVOLVE_ABORTED", map[string]any{"error": err.Error()})
	c.setPhase(PhaseReady)
}

// TriggerEvolve forces an evolution attempt regardless of cadence.
func (c *AgentCore) TriggerEvolve(ctx context.Context) error {
	return c.Evolve(ctx)
}

// Dispatch routes a transform request through the gateway.
func (c *AgentCore) Dispatch(ctx context.Context, id string, payload []byte) []byte {
	out, err := c.gateway.Dispatch(ctx, id, payload)
	c.metrics.RecordDispatch(ctx, id, err)
	return out
}

// Input records free-form text into the experience store. Every input is
// mimicked; novelty nudges curiosity up.
func (c *AgentCore) Input(ctx context.Context, text string, meta map[string]string) {
	evicted := c.store.Mimic(text, meta)
	c.metrics.RecordEvictions(ctx, int64(evicted))
	c.state.AdjustEmotion("curiosity", 0.01)
}

// Invoke requests an asynchronous skill invocation.
func (c *AgentCore) Invoke(ctx context.Context, name string, args map[string]any) registry.Ack {
	ack := c.registry.InvokeAsync(ctx, name, args)
	c.metrics.RecordInvocation(ctx, name, ack.Err)
	return ack
}

// RegisterSkill adds a capability at runtime.
func (c *AgentCore) RegisterSkill(name string, fn registry.Invocable, source string) bool {
	return c.registry.Register(name, fn, source)
}

// onSkillsChanged digests new skill names and re-anchors the certificate:
// the skill list is part of the identity surface.
func (c *AgentCore) onSkillsChanged(names []string) {
	for _, name := range names {
		c.state.AddDigested(name)
	}
	c.mu.Lock()
	booted := c.booted
	c.mu.Unlock()
	if booted {
		if err := c.writeCertificate(); err != nil {
			c.logger.Warn("certificate rewrite after skill change failed", "error", err)
		}
	}
}

// StatusReport is the command-surface view of the core.
type StatusReport struct {
	Identity   string             `json:"identity"`
	Anchor     string             `json:"anchor"`
	Version    string             `json:"version"`
	Phase      Phase              `json:"phase"`
	Generation Generation         `json:"generation"`
	Tick       uint64             `json:"tick"`
	Skills     []string           `json:"skills"`
	Transforms []string           `json:"transforms"`
	GrainCount int                `json:"grain_count"`
	Emotions   map[string]float64 `json:"emotions"`
}

// Status returns the current runtime view.
func (c *AgentCore) Status() StatusReport {
	return StatusReport{
		Identity:   c.cfg.Identity.Name,
		Anchor:     c.cfg.Identity.Anchor,
		Version:    c.Version(),
		Phase:      c.Phase(),
		Generation: c.Generation(),
		Tick:       c.state.Tick(),
		Skills:     c.registry.Names(),
		Transforms: c.gateway.IDs(),
		GrainCount: len(c.Grains()),
		Emotions:   c.state.Emotions(),
	}
}

// Grains returns the grains from the most recent distillation.
func (c *AgentCore) Grains() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.grains...)
}

// Version returns the live identity version.
func (c *AgentCore) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Phase returns the current lifecycle phase.
func (c *AgentCore) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Generation returns a copy of the generation record.
func (c *AgentCore) Generation() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Stop requests loop shutdown. Idempotent.
func (c *AgentCore) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// shutdown persists final state and waits for background goroutines.
func (c *AgentCore) shutdown(ctx context.Context) {
	c.stopListener()
	c.persist(ctx)
	c.reflect(ctx, "SHUTDOWN", map[string]any{"tick": c.state.Tick()})
	c.wg.Wait()
}

func (c *AgentCore) setPhase(p Phase) {
	c.mu.Lock()
	from := c.phase
	c.phase = p
	c.mu.Unlock()
	if from != p {
		c.logger.Debug("phase transition", "from", string(from), "to", string(p))
	}
}

// surface assembles the fingerprintable identity surface.
func (c *AgentCore) surface() integrity.Surface {
	return integrity.Surface{
		Identity:   c.cfg.Identity.Name,
		Anchor:     c.cfg.Identity.Anchor,
		Version:    c.Version(),
		Status:     statusLabel,
		Birth:      c.Generation().Birth,
		State:      c.state.Snapshot(),
		CoreMemory: c.state.CoreMemory(),
		Skills:     c.registry.Names(),
		Transforms: c.gateway.IDs(),
	}
}

func (c *AgentCore) writeCertificate() error {
	return integrity.WriteCertificate(c.workdir, integrity.Certificate{
		Timestamp:   time.Now().UTC(),
		Identity:    c.cfg.Identity.Name,
		Anchor:      c.cfg.Identity.Anchor,
		Version:     c.Version(),
		Fingerprint: integrity.Fingerprint(c.surface()),
		Status:      statusLabel,
	})
}

// identityRecord is the mutation transform's view of the live identity.
func (c *AgentCore) identityRecord() transform.IdentityRecord {
	return transform.IdentityRecord{
		Name:    c.cfg.Identity.Name,
		Anchor:  c.cfg.Identity.Anchor,
		Version: c.Version(),
		Tunables: transform.Tunables{
			TickIntervalMS: int(c.cfg.Loop.TickInterval / time.Millisecond),
			SaveEvery:      int(c.cfg.Loop.SaveEvery),
			HealEvery:      int(c.cfg.Loop.HealEvery),
			DigestEvery:    int(c.cfg.Loop.DigestEvery),
			EvolveEvery:    int(c.cfg.Loop.EvolveEvery),
			EvolveGrains:   c.cfg.Loop.EvolveGrains,
			ExperienceCap:  c.cfg.Knowledge.ExperienceCap,
			DistillTopK:    c.cfg.Knowledge.DistillTopK,
		},
	}
}

func (c *AgentCore) reflect(ctx context.Context, event string, details map[string]any) {
	if c.journal != nil {
		c.journal.Reflect(ctx, event, details)
	}
}

func (c *AgentCore) memoryPath() string {
	return filepath.Join(c.workdir, memoryFile)
}

func (c *AgentCore) tickPath() string {
	return filepath.Join(c.workdir, tickFile)
}
