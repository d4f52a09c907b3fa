// Command gestalt runs the self-regenerating agent runtime: boot (optionally
// consuming a predecessor's handoff package), drive the tick loop, and serve
// a small REPL over stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jllopis/gestalt/pkg/config"
	"github.com/jllopis/gestalt/pkg/core"
	gestalterrors "github.com/jllopis/gestalt/pkg/errors"
	"github.com/jllopis/gestalt/pkg/journal"
	"github.com/jllopis/gestalt/pkg/telemetry"
)

const version = "v3.2.0"

func main() {
	configPath := flag.String("config", "", "Path to gestalt.yaml")
	workDir := flag.String("workdir", "", "Working directory (default ~/.gestalt)")
	handoffPath := flag.String("handoff", "", "Predecessor handoff package to consume")
	showVersion := flag.Bool("version", false, "Print version and exit")
	noREPL := flag.Bool("no-repl", false, "Run headless without the stdin REPL")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if cfg.WorkDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatal(err)
		}
		cfg.WorkDir = filepath.Join(home, ".gestalt")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	// Log level and format follow edits to the config file while running.
	live := config.NewReloadableConfig(cfg)
	if *configPath != "" {
		watcher, err := config.NewWatcher([]string{*configPath}, config.WithWatchLogger(logger))
		if err != nil {
			logger.Warn("config watcher disabled", "error", err)
		} else {
			watcher.OnChange(func(next *config.Config) {
				live.Update(next)
				lc := live.Log()
				telemetry.ConfigureSlog(os.Stderr, lc.Level, lc.Format)
			})
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	shutdownTelemetry, err := telemetry.InitWithConfig(cfg.Identity.Name, cfg.Identity.Version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewCoreMetrics()
	if err != nil {
		fatal(err)
	}

	jopts := []journal.Option{
		journal.WithRecentCap(cfg.Knowledge.RecentCap),
		journal.WithLogger(logger),
	}
	if cfg.Journal.Archive {
		dbPath := cfg.Journal.DBPath
		if dbPath == "" {
			dbPath = filepath.Join(cfg.WorkDir, "journal.db")
		}
		archive, err := journal.OpenSQLiteArchive(dbPath)
		if err != nil {
			fatal(err)
		}
		jopts = append(jopts, journal.WithArchive(archive))
	}
	j, err := journal.Open(filepath.Join(cfg.WorkDir, "journal.jsonl"),
		cfg.Identity.Name, cfg.Identity.Anchor, cfg.Identity.Version, jopts...)
	if err != nil {
		fatal(err)
	}
	defer j.Close()

	agent := core.New(cfg,
		core.WithJournal(j),
		core.WithMetrics(metrics),
		core.WithLogger(logger),
	)

	if err := agent.Boot(ctx, *handoffPath); err != nil {
		if gestalterrors.CodeOf(err) == gestalterrors.CodeRecursionExceeded {
			// The exit hook already fired inside the core.
			os.Exit(1)
		}
		fatal(err)
	}
	logger.Info("gestalt ready",
		"identity", cfg.Identity.Name,
		"version", agent.Version(),
		"generation", agent.Generation().ID,
		"workdir", cfg.WorkDir,
	)

	if !*noREPL {
		go repl(ctx, agent)
	}

	if err := agent.Run(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

// repl reads commands from stdin. Unrecognized lines are mimicked into the
// experience store, the same as listener free text.
func repl(ctx context.Context, agent *core.AgentCore) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch strings.ToLower(fields[0]) {
		case "exit", "quit":
			agent.Stop()
			return
		case "status":
			printJSON(agent.Status())
		case "grains":
			printJSON(agent.Grains())
		case "evolve":
			if err := agent.TriggerEvolve(ctx); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			return
		case "heal":
			if err := agent.TriggerHeal(ctx); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "xform":
			parts := strings.SplitN(line, " ", 3)
			if len(parts) < 2 {
				fmt.Fprintln(os.Stderr, "usage: xform <ID> [payload]")
				continue
			}
			payload := ""
			if len(parts) == 3 {
				payload = strings.TrimSpace(parts[2])
			}
			fmt.Println(string(agent.Dispatch(ctx, parts[1], []byte(payload))))
		case "skill":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: skill <name>")
				continue
			}
			ack := agent.Invoke(ctx, fields[1], nil)
			res := <-ack.Done
			if res.Err != nil {
				fmt.Fprintln(os.Stderr, res.Err)
				continue
			}
			printJSON(res.Value)
		case "help":
			fmt.Println("commands: status grains evolve heal xform <ID> [payload] skill <name> exit")
			fmt.Println("anything else is recorded as an experience")
		default:
			agent.Input(ctx, line, map[string]string{"source": "repl"})
			fmt.Println("OK")
		}
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(payload))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
