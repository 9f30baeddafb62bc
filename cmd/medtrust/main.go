// Command medtrust runs the medicine market trust simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/stuphys1729/SenHons/internal/api"
	"github.com/stuphys1729/SenHons/internal/config"
	"github.com/stuphys1729/SenHons/internal/engine"
	"github.com/stuphys1729/SenHons/internal/entropy"
	"github.com/stuphys1729/SenHons/internal/environment"
	"github.com/stuphys1729/SenHons/internal/history"
	"github.com/stuphys1729/SenHons/internal/persistence"
	"github.com/stuphys1729/SenHons/internal/shell"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		configPath = flag.String("config", "", "YAML run configuration")
		maxSteps   = flag.Int("n", 0, "number of steps to run (0 = until stopped)")
		patients   = flag.Int("ni", 0, "number of patients")
		sellers    = flag.Int("nj", 0, "number of sellers")
		suppliers  = flag.Int("nk", 0, "number of suppliers")
		dynPrice   = flag.Bool("dp", false, "enable dynamic pricing")
		dynActors  = flag.Bool("da", false, "enable dynamic actors (spawning and retirement)")
		townsFile  = flag.String("e", "", "town file for 2D placement")
		genTowns   = flag.Int("gen-towns", 0, "generate this many towns procedurally")
		seed       = flag.Int64("seed", 0, "random seed (0 = random)")
		port       = flag.Int("port", 0, "HTTP API port (0 = disabled)")
		useShell   = flag.Bool("shell", false, "open the interactive console on a terminal")
		resume     = flag.Bool("resume", false, "resume the run saved in the database")
	)
	flag.Parse()

	// ── Configuration: file, then environment, then flags ─────────────
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		slog.Error("bad environment", "error", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			cfg.MaxSteps = *maxSteps
		case "ni":
			cfg.Patients = *patients
		case "nj":
			cfg.Sellers = *sellers
		case "nk":
			cfg.Suppliers = *suppliers
		case "dp":
			cfg.Market.DynamicPricing = *dynPrice
		case "da":
			cfg.DynamicActors = *dynActors
		case "e":
			cfg.TownsFile = *townsFile
		case "gen-towns":
			cfg.GenTowns = *genTowns
		case "seed":
			cfg.Seed = *seed
		case "port":
			cfg.Server.Port = *port
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.DBPath != "" {
		os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755)
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Storage.DBPath)
	} else if *resume {
		slog.Error("-resume needs a database (storage.db_path or MEDTRUST_DB)")
		os.Exit(1)
	}

	var saved persistence.RunState
	if *resume {
		saved, err = db.LoadRunState()
		if err != nil {
			slog.Error("failed to load saved run", "error", err)
			os.Exit(1)
		}
		cfg.Seed, cfg.RunID = saved.Seed, saved.RunID
	}

	// ── Random source ─────────────────────────────────────────────────
	rng := entropy.New(cfg.Seed)
	runID := cfg.EnsureRunID()
	slog.Info("MedTrust market simulation", "run", runID, "seed", rng.Seed())

	// ── Environment ───────────────────────────────────────────────────
	sampler, err := buildSampler(cfg, rng)
	if err != nil {
		slog.Error("failed to build environment", "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	var sim *engine.Simulation
	if *resume {
		sim, err = engine.Restore(cfg.Params, rng, sampler, runID, saved.Pop, saved.Step, saved.NextID)
	} else {
		sim, err = engine.NewSimulation(cfg.Params, rng, sampler, runID)
	}
	if err != nil {
		slog.Error("failed to set up simulation", "error", err)
		os.Exit(1)
	}

	// ── Telemetry ─────────────────────────────────────────────────────
	bus := telemetry.NewBus(cfg.Telemetry.BusCapacity)
	var sinks []telemetry.Sink

	var recorder *telemetry.Recorder
	if cfg.Telemetry.RecordPath != "" {
		recorder, err = telemetry.NewRecorder(cfg.Telemetry.RecordPath)
		if err != nil {
			slog.Error("failed to open frame recorder", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, recorder)
		slog.Info("recording frames", "path", recorder.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *api.Hub
	if cfg.Server.Port != 0 {
		hub = api.NewHub()
		go hub.Run(ctx)
		sinks = append(sinks, hub)
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		telemetry.Pump(bus.Frames(), sinks...)
	}()

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(sim, bus)
	eng.MaxSteps = cfg.MaxSteps
	eng.ReportEvery = cfg.ReportEvery
	eng.SaveEvery = cfg.SaveEvery
	eng.Interval = time.Duration(cfg.IntervalMs) * time.Millisecond

	if db != nil {
		eng.OnSave = db.SaveRunState
		eng.OnStep = func(stats telemetry.StepStats) {
			if err := db.SaveStep(runID, stats); err != nil {
				slog.Error("step save failed", "step", stats.Step, "error", err)
			}
		}
	}

	if cfg.Storage.PgDSN != "" {
		archive, err := history.OpenPostgres(cfg.Storage.PgDSN)
		if err != nil {
			slog.Error("failed to open history archive", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		eng.OnReport = func(stats telemetry.StepStats) {
			actx, acancel := context.WithTimeout(ctx, 5*time.Second)
			defer acancel()
			if err := archive.RecordStep(actx, runID, stats); err != nil {
				slog.Warn("history archive failed", "step", stats.Step, "error", err)
			}
		}
		slog.Info("archiving reports to postgres")
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.Port != 0 {
		if cfg.Server.AdminKey == "" {
			slog.Warn("MEDTRUST_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := (&api.Server{
			Ctl:      bus,
			Hub:      hub,
			DB:       db,
			RunID:    runID,
			Port:     cfg.Server.Port,
			AdminKey: cfg.Server.AdminKey,
		}).Start()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\nMarket open: %d patients, %d sellers, %d suppliers.\n",
		len(sim.Patients), len(sim.Sellers), len(sim.Suppliers))
	if cfg.Server.Port != 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	}
	if sim.StepCount > 0 {
		fmt.Printf("Resuming from step %s\n", humanize.Comma(int64(sim.StepCount)))
	}

	if *useShell {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			sh, err := shell.New(bus, shell.Config{HistoryFile: filepath.Join(os.TempDir(), "medtrust_history")})
			if err != nil {
				slog.Error("failed to open shell", "error", err)
				os.Exit(1)
			}
			go func() {
				if err := sh.Run(ctx); err != nil {
					slog.Error("shell error", "error", err)
				}
			}()
		} else {
			slog.Warn("-shell ignored: stdin is not a terminal")
		}
	} else {
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
	}

	runErr := eng.Run(ctx)
	<-pumpDone
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			slog.Error("frame recorder close failed", "error", err)
		}
	}

	printSummary(sim)
	if runErr != nil {
		if errors.Is(runErr, engine.ErrNoCandidates) {
			slog.Error("market collapsed", "error", runErr)
		} else {
			slog.Error("simulation failed", "error", runErr)
		}
		os.Exit(1)
	}
}

// buildSampler picks the placement layout: a town file, generated towns, or
// nil for the 1D line.
func buildSampler(cfg *config.Config, rng *entropy.Source) (environment.Sampler, error) {
	var towns []environment.Town
	switch {
	case cfg.TownsFile != "":
		t, err := environment.LoadTowns(cfg.TownsFile)
		if err != nil {
			return nil, err
		}
		towns = t
	case cfg.GenTowns > 0:
		gc := environment.DefaultGenConfig()
		gc.Seed = rng.Seed()
		gc.Towns = cfg.GenTowns
		towns = environment.Generate(gc)
		for _, t := range towns {
			slog.Info("town", "name", t.Name, "weight", fmt.Sprintf("%.2f", t.Weight),
				"x", fmt.Sprintf("%.1f", t.X), "y", fmt.Sprintf("%.1f", t.Y))
		}
	default:
		return nil, nil
	}
	return environment.NewTownMap(towns, rng)
}

func printSummary(sim *engine.Simulation) {
	last := sim.LastStats()
	fmt.Printf("\nRun %s stopped after %s steps.\n", sim.RunID, humanize.Comma(int64(sim.StepCount)))
	fmt.Printf("  total sales       %s\n", humanize.Comma(int64(sim.TotalSales)))
	fmt.Printf("  mean quality      %.3f\n", sim.MeanQualityOverall())
	fmt.Printf("  best seller       %d (quality %.3f)\n", last.TopSeller, last.TopQuality)
	fmt.Printf("  sellers/suppliers %d/%d\n", len(sim.Sellers), len(sim.Suppliers))
}
