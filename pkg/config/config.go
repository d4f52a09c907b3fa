package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Identity  IdentityConfig  `koanf:"identity"`
	WorkDir   string          `koanf:"workdir"`
	Loop      LoopConfig      `koanf:"loop"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Integrity IntegrityConfig `koanf:"integrity"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	Listener  ListenerConfig  `koanf:"listener"`
	Skills    SkillsConfig    `koanf:"skills"`
	Journal   JournalConfig   `koanf:"journal"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// IdentityConfig is the mutable identity surface carried across generations.
// Grains are only populated in a successor's bootstrap config, written by
// the mutation transform.
type IdentityConfig struct {
	Name    string   `koanf:"name"`
	Anchor  string   `koanf:"anchor"`
	Version string   `koanf:"version"`
	Grains  []string `koanf:"grains"`
}

type LoopConfig struct {
	TickInterval  time.Duration `koanf:"tick_interval"`
	SaveEvery     uint64        `koanf:"save_every"`   // ticks between memory dumps
	HealEvery     uint64        `koanf:"heal_every"`   // ticks between integrity checks
	DigestEvery   uint64        `koanf:"digest_every"` // ticks between ledger distillations
	EvolveEvery   uint64        `koanf:"evolve_every"` // minimum ticks between evolution attempts
	EvolveGrains  int           `koanf:"evolve_grains"`
}

type KnowledgeConfig struct {
	ExperienceCap int           `koanf:"experience_cap"`
	RecentCap     int           `koanf:"recent_cap"` // in-memory journal ring size
	LearnWindow   time.Duration `koanf:"learn_window"`
	PruneHorizon  time.Duration `koanf:"prune_horizon"`
	DistillTopK   int           `koanf:"distill_top_k"`
}

type IntegrityConfig struct {
	HealCeiling int `koanf:"heal_ceiling"`
}

type HeartbeatConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url"`
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ListenerConfig controls the inbound dispatch listener. Accepting payloads
// from the network is a trust boundary: it is off unless explicitly enabled.
type ListenerConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

// SkillsConfig controls external capability loading. AllowExternal gates the
// manifest loader; manifests run their declared command as a subprocess and
// are never evaluated in-process.
type SkillsConfig struct {
	Dir            string        `koanf:"dir"`
	AllowExternal  bool          `koanf:"allow_external"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

type JournalConfig struct {
	Archive bool   `koanf:"archive"`
	DBPath  string `koanf:"db_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load reads configuration with precedence defaults < file < GESTALT_* env.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("identity.name", "gestalt")
	k.Set("identity.anchor", "operator")
	k.Set("identity.version", "v3.2.0")
	k.Set("workdir", "")

	k.Set("loop.tick_interval", "500ms")
	k.Set("loop.save_every", 10)
	k.Set("loop.heal_every", 50)
	k.Set("loop.digest_every", 600)
	k.Set("loop.evolve_every", 1000)
	k.Set("loop.evolve_grains", 100)

	k.Set("knowledge.experience_cap", 200)
	k.Set("knowledge.recent_cap", 500)
	k.Set("knowledge.learn_window", "5m")
	k.Set("knowledge.prune_horizon", "1h")
	k.Set("knowledge.distill_top_k", 40)

	k.Set("integrity.heal_ceiling", 2)

	k.Set("heartbeat.enabled", false)
	k.Set("heartbeat.url", "")
	k.Set("heartbeat.interval", "5m")
	k.Set("heartbeat.timeout", "10s")

	k.Set("listener.enabled", false)
	k.Set("listener.port", 6666)

	k.Set("skills.dir", "")
	k.Set("skills.allow_external", false)
	k.Set("skills.command_timeout", "2m")

	k.Set("journal.archive", false)
	k.Set("journal.db_path", "")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "none")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (GESTALT_LISTENER_PORT -> listener.port)
	if err := k.Load(env.Provider("GESTALT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "GESTALT_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
