package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/config"
	"github.com/noodles/ramen/internal/core/event"
	"github.com/noodles/ramen/internal/core/slot"
	coresys "github.com/noodles/ramen/internal/core/system"
	"github.com/noodles/ramen/internal/data"
	"github.com/noodles/ramen/internal/metrics"
	rnet "github.com/noodles/ramen/internal/net"
	"github.com/noodles/ramen/internal/persist"
	"github.com/noodles/ramen/internal/resource"
	"github.com/noodles/ramen/internal/scene"
	"github.com/noodles/ramen/internal/scripting"
	"github.com/noodles/ramen/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "0.1.0"

const usage = `ramen mirrors the document of a scene server.

Usage:
  ramen [--config=<path>] [--url=<url>] [--dump]
  ramen -h | --help
  ramen --version

Options:
  -h --help        Show this screen.
  --version        Show version.
  --config=<path>  Config file, overrides RAMEN_CONFIG.
  --url=<url>      Scene server endpoint, overrides client.url.
  --dump           Print the scene tree on exit.
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, url string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m               ramen  v%-19s\033[36;1m│\033[0m\n", version)
	fmt.Println("\033[36;1m  │\033[0m       scene document replication          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mclient:\033[0m %s \033[90m(%s)\033[0m\n\n", name, url)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Client ─────────────────────────────────────────────────────────

func configPath(opts docopt.Opts) string {
	path := "config/ramen.toml"
	if p := os.Getenv("RAMEN_CONFIG"); p != "" {
		path = p
	}
	if p, err := opts.String("--config"); err == nil && p != "" {
		path = p
	}
	return path
}

func run(opts docopt.Opts) error {
	// 1. Load config
	cfg, err := config.Load(configPath(opts))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if u, err := opts.String("--url"); err == nil && u != "" {
		cfg.Client.URL = u
	}
	dump, _ := opts.Bool("--dump")

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Client.Name, cfg.Client.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Protocol table and shared services
	printSection("setup")
	table, err := data.LoadProtocolTable(cfg.Protocol.Table)
	if err != nil {
		return fmt.Errorf("protocol table: %w", err)
	}
	printStat("collections", table.Count())

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, log.Named("metrics")); err != nil {
				log.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
		printOK("metrics on " + cfg.Metrics.Listen)
	}

	codec, err := rnet.NewCBORCodec()
	if err != nil {
		return err
	}
	fetcher, err := resource.NewFetcher(resource.Options{
		Timeout:      cfg.Fetch.Timeout,
		CacheEntries: cfg.Fetch.CacheEntries,
		Metrics:      m,
		Log:          log.Named("fetch"),
	})
	if err != nil {
		return err
	}

	// 4. Connect
	settings := rnet.Settings{
		HandshakeTimeout: cfg.Network.HandshakeTimeout,
		WriteTimeout:     cfg.Network.WriteTimeout,
		ReadTimeout:      cfg.Network.ReadTimeout,
		PingInterval:     cfg.Network.PingInterval,
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
	}
	sess, err := rnet.Dial(ctx, cfg.Client.URL, settings, log)
	if err != nil {
		return err
	}
	defer sess.Close()
	printOK("connected to " + cfg.Client.URL)

	// 5. Collaborators
	sc := scene.New(ctx, fetcher, log.Named("scene"))
	delegates := []map[string]client.Delegate{sc.Delegates()}

	if cfg.Scripting.Enabled {
		engine, err := scripting.NewEngine(cfg.Scripting.Dir, log.Named("lua"))
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		delegates = append(delegates, engine.Delegates(table.Names()))
		printOK("lua scripts loaded from " + cfg.Scripting.Dir)
	}

	var journalSys *system.JournalSystem
	if cfg.Journal.Enabled {
		db, err := persist.NewDB(ctx, cfg.Journal, log)
		if err != nil {
			return fmt.Errorf("journal database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		journal := persist.NewJournal(sess.ID.String(), codec, cfg.Journal.FlushSize, log.Named("journal"))
		delegates = append(delegates, journal.Delegates(table.Names()))
		journalSys = system.NewJournalSystem(journal, persist.NewJournalRepo(db), 20, log.Named("journal"))
		printOK("journal recording session " + sess.ID.String())
	}

	bus := event.NewBus()
	c := client.New(client.Options{
		Name:      cfg.Client.Name,
		Table:     table,
		Delegates: client.MergeDelegates(delegates...),
		Codec:     codec,
		Bus:       bus,
		Metrics:   m,
		Log:       log.Named("client"),
		OnSignal: func(si client.SignalInvocation) {
			log.Debug("signal", zap.Stringer("signal", si.Signal), zap.Int("args", len(si.Args)))
		},
	})
	sc.Attach(c)

	event.Subscribe(bus, func(e event.PhaseChanged) {
		if e.To != client.PhaseSynchronized.String() {
			return
		}
		records := 0
		c.Collections().Each(func(col *slot.Collection) { records += col.Store.Len() })
		log.Info("document synchronized", zap.Int("records", records), zap.Int("nodes", sc.Len()))
	})
	event.Subscribe(bus, func(event.DocumentReset) {
		log.Info("document reset by server")
	})
	fmt.Println()

	// 6. Systems
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(sess.InQueue, c, cfg.Network.MaxFramesPerTick, log))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewTaskSystem(c))
	runner.Register(system.NewGaugeSystem(c, m, 20))
	runner.Register(system.NewOutputSystem(c, sess, log))
	if journalSys != nil {
		runner.Register(journalSys)
	}

	// 7. Introduce and start the loop
	sess.Start(ctx)
	c.Introduce()
	runner.TickPhase(coresys.PhaseOutput, 0)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("session %s", sess.ID))
	printReady(fmt.Sprintf("loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	var sessErr error
loop:
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case <-sess.Closed():
			// Apply whatever arrived before the close.
			runner.Tick(cfg.Network.TickRate)
			sessErr = sess.Err()
			log.Info("session closed", zap.Error(sessErr))
			break loop
		case sig := <-shutdownCh:
			log.Info("shutting down", zap.Stringer("signal", sig))
			break loop
		}
	}

	if journalSys != nil {
		journalSys.Flush()
	}
	if dump {
		if err := sc.Dump(os.Stdout); err != nil {
			return err
		}
	}
	if sessErr != nil && !errors.Is(sessErr, context.Canceled) {
		return fmt.Errorf("session: %w", sessErr)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
